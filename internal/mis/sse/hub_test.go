package sse

import (
	"encoding/json"
	"testing"

	"github.com/bitfantasy/nimo-mis/internal/mis/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RowCompletedFiltersByBatch(t *testing.T) {
	hub := NewHub(nil)
	all := &Client{ID: "all", Events: make(chan Event, 4)}
	mine := &Client{ID: "mine", BatchID: "batch-1", Events: make(chan Event, 4)}
	other := &Client{ID: "other", BatchID: "batch-2", Events: make(chan Event, 4)}
	hub.Register(all)
	hub.Register(mine)
	hub.Register(other)
	assert.Equal(t, 3, hub.ClientCount())

	hub.RowCompleted("batch-1", service.RowOutcome{Index: 0, Key: "ABC123", Status: service.RowSucceeded, RevisionMarker: 2})

	require.Len(t, all.Events, 1)
	require.Len(t, mine.Events, 1)
	assert.Len(t, other.Events, 0)

	ev := <-mine.Events
	assert.Equal(t, EventRowCompleted, ev.EventType)
	var outcome service.RowOutcome
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &outcome))
	assert.Equal(t, "ABC123", outcome.Key)
	assert.Equal(t, 2, outcome.RevisionMarker)
}

func TestHub_BatchCompleted(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{ID: "c1", Events: make(chan Event, 1)}
	hub.Register(client)

	hub.BatchCompleted(&service.SubmissionReport{BatchID: "batch-9", Total: 3, Succeeded: 3})

	ev := <-client.Events
	assert.Equal(t, EventBatchCompleted, ev.EventType)
	assert.Equal(t, "batch-9", ev.BatchID)
	assert.Contains(t, ev.Data, `"succeeded":3`)
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{ID: "slow", Events: make(chan Event, 1)}
	hub.Register(client)

	hub.Broadcast(Event{EventType: "x"})
	hub.Broadcast(Event{EventType: "y"})
	assert.Len(t, client.Events, 1)
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{ID: "c1", Events: make(chan Event, 1)}
	hub.Register(client)
	hub.Unregister("c1")
	hub.Unregister("c1")

	_, open := <-client.Events
	assert.False(t, open)
	assert.Equal(t, 0, hub.ClientCount())
}
