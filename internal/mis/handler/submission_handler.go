package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/bitfantasy/nimo-mis/internal/mis/ingest"
	"github.com/bitfantasy/nimo-mis/internal/mis/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// attachmentFieldPrefix 附件表单字段前缀，字段名为 attachments.<NDC Code>
const attachmentFieldPrefix = "attachments."

// SubmissionHandler 成本数据上传与提交
type SubmissionHandler struct {
	svc    *service.SubmissionService
	logger *zap.Logger
}

func NewSubmissionHandler(svc *service.SubmissionService, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{svc: svc, logger: logger}
}

// upload is a parsed multipart submission.
type upload struct {
	filename string
	data     []byte
	format   ingest.Format
	rows     []ingest.Row
}

// Preview 解析上传文件并返回行数据，不写入
// POST /api/v1/mis/preview
func (h *SubmissionHandler) Preview(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, "无法解析上传文件: "+err.Error())
		return
	}
	up, ok := h.parseUpload(c, form)
	if !ok {
		return
	}
	Success(c, gin.H{
		"filename":    up.filename,
		"format":      up.format,
		"fingerprint": ingest.Fingerprint(up.data),
		"total":       len(up.rows),
		"rows":        up.rows,
	})
}

// Submit 解析并提交整批数据
// POST /api/v1/mis/submissions
func (h *SubmissionHandler) Submit(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, "无法解析上传文件: "+err.Error())
		return
	}
	up, ok := h.parseUpload(c, form)
	if !ok {
		return
	}
	attachments, err := readAttachments(form)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	batchID := strings.TrimSpace(formValue(form, "batch_id"))
	if batchID == "" {
		batchID = ingest.Fingerprint(up.data)
	}

	report, err := h.svc.Submit(c.Request.Context(), batchID, up.rows, attachments)
	switch {
	case errors.Is(err, service.ErrBatchSubmitted), errors.Is(err, service.ErrBatchInProgress):
		Conflict(c, err.Error())
		return
	case errors.Is(err, service.ErrEmptyBatchID):
		BadRequest(c, err.Error())
		return
	case err != nil:
		h.logger.Error("submit batch", zap.String("batch_id", batchID), zap.Error(err))
		InternalError(c, "提交失败: "+err.Error())
		return
	}
	Success(c, report)
}

// Reset 清除批次防重状态，允许再次提交
// DELETE /api/v1/mis/submissions/:batchId
func (h *SubmissionHandler) Reset(c *gin.Context) {
	batchID := c.Param("batchId")
	if err := h.svc.Reset(c.Request.Context(), batchID); err != nil {
		if errors.Is(err, service.ErrEmptyBatchID) {
			BadRequest(c, err.Error())
			return
		}
		InternalError(c, "重置批次失败: "+err.Error())
		return
	}
	Success(c, gin.H{"batch_id": batchID})
}

// parseUpload reads the file field and decodes it. It writes the error response itself.
func (h *SubmissionHandler) parseUpload(c *gin.Context, form *multipart.Form) (*upload, bool) {
	files := form.File["file"]
	if len(files) == 0 {
		BadRequest(c, "没有上传文件")
		return nil, false
	}
	fh := files[0]

	var (
		format ingest.Format
		err    error
	)
	if tag := formValue(form, "format"); tag != "" {
		format, err = ingest.ParseFormat(tag)
	} else {
		format, err = ingest.FormatFromFilename(fh.Filename)
	}
	if err != nil {
		BadRequest(c, err.Error())
		return nil, false
	}

	data, err := readFileHeader(fh)
	if err != nil {
		InternalError(c, "读取上传文件失败: "+err.Error())
		return nil, false
	}

	rows, err := ingest.Parse(data, format)
	if err != nil {
		var perr *ingest.ParseError
		if errors.As(err, &perr) {
			BadRequest(c, err.Error())
			return nil, false
		}
		InternalError(c, err.Error())
		return nil, false
	}
	if rows == nil {
		rows = []ingest.Row{}
	}
	return &upload{filename: fh.Filename, data: data, format: format, rows: rows}, true
}

// readAttachments collects attachments.<KEY> file fields, one file per key.
func readAttachments(form *multipart.Form) (map[string]service.Attachment, error) {
	out := make(map[string]service.Attachment)
	for field, files := range form.File {
		if !strings.HasPrefix(field, attachmentFieldPrefix) {
			continue
		}
		key := strings.TrimSpace(strings.TrimPrefix(field, attachmentFieldPrefix))
		if key == "" {
			return nil, fmt.Errorf("attachment field %q has no key", field)
		}
		if len(files) > 1 {
			return nil, fmt.Errorf("only one attachment per key is allowed: %s", key)
		}
		data, err := readFileHeader(files[0])
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", key, err)
		}
		out[key] = service.Attachment{Filename: files[0].Filename, Content: data}
	}
	return out, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func formValue(form *multipart.Form, name string) string {
	if v := form.Value[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}
