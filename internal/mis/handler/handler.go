package handler

import (
	"github.com/bitfantasy/nimo-mis/internal/mis/service"
	"github.com/bitfantasy/nimo-mis/internal/mis/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 处理器集合
type Handlers struct {
	Submission *SubmissionHandler
	Record     *RecordHandler
	SSE        *SSEHandler
	Health     *HealthHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(submissions *service.SubmissionService, revisions *service.RevisionService, hub *sse.Hub, checks map[string]ReadinessCheck, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		Submission: NewSubmissionHandler(submissions, logger),
		Record:     NewRecordHandler(revisions),
		SSE:        NewSSEHandler(hub),
		Health:     NewHealthHandler(checks),
	}
}

// RegisterRoutes 注册路由
func RegisterRoutes(r *gin.Engine, h *Handlers) {
	r.GET("/health/live", h.Health.Live)
	r.GET("/health/ready", h.Health.Ready)

	mis := r.Group("/api/v1/mis")
	{
		mis.POST("/preview", h.Submission.Preview)
		mis.POST("/submissions", h.Submission.Submit)
		mis.DELETE("/submissions/:batchId", h.Submission.Reset)

		mis.GET("/records/keys", h.Record.Keys)
		mis.GET("/records/:key/revisions", h.Record.Revisions)

		mis.GET("/events", h.SSE.Stream)
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 状态冲突响应（批次已提交/处理中）
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}
