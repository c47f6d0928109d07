package sse

import (
	"encoding/json"
	"sync"

	"github.com/bitfantasy/nimo-mis/internal/mis/service"
	"go.uber.org/zap"
)

const (
	EventRowCompleted   = "row_completed"
	EventBatchCompleted = "batch_completed"
)

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	BatchID   string `json:"batch_id"`
	Data      string `json:"data"`
}

// Client represents a connected SSE client
// An empty BatchID subscribes to every batch.
type Client struct {
	ID      string
	BatchID string
	Events  chan Event
}

// Hub manages all SSE client connections and publishes batch progress.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates a new SSE Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger.Named("sse"),
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("client registered", zap.String("client_id", client.ID), zap.String("batch_id", client.BatchID), zap.Int("total", len(h.clients)))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client subscribed to its batch
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.BatchID != "" && client.BatchID != event.BatchID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("client buffer full, skipping event", zap.String("client_id", client.ID), zap.String("event", event.EventType))
		}
	}
}

// RowCompleted publishes one row outcome.
func (h *Hub) RowCompleted(batchID string, outcome service.RowOutcome) {
	h.publish(EventRowCompleted, batchID, outcome)
}

// BatchCompleted publishes the final report.
func (h *Hub) BatchCompleted(report *service.SubmissionReport) {
	h.publish(EventBatchCompleted, report.BatchID, report)
}

func (h *Hub) publish(eventType, batchID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", eventType), zap.Error(err))
		return
	}
	h.Broadcast(Event{EventType: eventType, BatchID: batchID, Data: string(data)})
}
