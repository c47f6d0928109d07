package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/nimo-mis/internal/mis/service"
	"github.com/gin-gonic/gin"
)

// RecordHandler 成本记录查询
type RecordHandler struct {
	svc *service.RevisionService
}

func NewRecordHandler(svc *service.RevisionService) *RecordHandler {
	return &RecordHandler{svc: svc}
}

// Keys 按片段搜索 NDC Code
// GET /api/v1/mis/records/keys?q=xxx&limit=20
func (h *RecordHandler) Keys(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 0 {
			BadRequest(c, "limit 参数无效")
			return
		}
		limit = v
	}

	keys, err := h.svc.ListKeys(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		InternalError(c, "查询失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": keys})
}

// Revisions 版本历史及每个版本对应的附件
// GET /api/v1/mis/records/:key/revisions
func (h *RecordHandler) Revisions(c *gin.Context) {
	key := c.Param("key")
	entries, err := h.svc.Resolve(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			NotFound(c, "记录不存在: "+key)
			return
		}
		InternalError(c, "查询版本历史失败: "+err.Error())
		return
	}
	Success(c, gin.H{"key": key, "items": entries})
}
