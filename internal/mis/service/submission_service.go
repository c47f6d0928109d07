package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bitfantasy/nimo-mis/internal/mis/ingest"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RowStatus 行处理结果
type RowStatus string

const (
	RowSucceeded RowStatus = "succeeded"
	RowPartial   RowStatus = "partial" // record written, attachment failed
	RowFailed    RowStatus = "failed"
	RowSkipped   RowStatus = "skipped" // failed validation
	RowCancelled RowStatus = "cancelled"
)

// Attachment 随行上传的附件
type Attachment struct {
	Filename string
	Content  []byte
}

// RowOutcome 单行处理结果
type RowOutcome struct {
	Index          int          `json:"index"`
	Line           int          `json:"line"`
	Key            string       `json:"key"`
	Status         RowStatus    `json:"status"`
	Stage          Stage        `json:"stage,omitempty"`
	Action         UpsertAction `json:"action,omitempty"`
	RecordID       string       `json:"record_id,omitempty"`
	RevisionMarker int          `json:"revision_marker,omitempty"`
	Attachment     string       `json:"attachment,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// SubmissionReport 批次提交报告
type SubmissionReport struct {
	BatchID              string       `json:"batch_id"`
	StartedAt            time.Time    `json:"started_at"`
	FinishedAt           time.Time    `json:"finished_at"`
	Total                int          `json:"total"`
	Succeeded            int          `json:"succeeded"`
	Partial              int          `json:"partial"`
	Failed               int          `json:"failed"`
	Skipped              int          `json:"skipped"`
	Cancelled            int          `json:"cancelled"`
	Rows                 []RowOutcome `json:"rows"`
	UnmatchedAttachments []string     `json:"unmatched_attachments"`
}

// Notifier receives progress while a batch runs.
type Notifier interface {
	RowCompleted(batchID string, outcome RowOutcome)
	BatchCompleted(report *SubmissionReport)
}

// SubmissionOptions 提交并发与超时设置
type SubmissionOptions struct {
	Workers     int
	CallTimeout time.Duration
}

// SubmissionService 批次导入编排
type SubmissionService struct {
	records     *RecordService
	attachments *AttachmentService
	guard       BatchGuard
	notifier    Notifier
	workers     int
	callTimeout time.Duration
	logger      *zap.Logger
}

func NewSubmissionService(records *RecordService, attachments *AttachmentService, guard BatchGuard, notifier Notifier, opts SubmissionOptions, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	return &SubmissionService{
		records:     records,
		attachments: attachments,
		guard:       guard,
		notifier:    notifier,
		workers:     opts.Workers,
		callTimeout: opts.CallTimeout,
		logger:      logger,
	}
}

// reportBuilder collects row outcomes from concurrent workers.
type reportBuilder struct {
	mu     sync.Mutex
	report *SubmissionReport
}

func (b *reportBuilder) set(outcome RowOutcome) {
	b.mu.Lock()
	b.report.Rows[outcome.Index] = outcome
	b.mu.Unlock()
}

// Submit upserts every row and binds its attachment, in input order per key. Row failures
// are recorded in the report and never stop the batch. The only errors returned are guard
// refusals.
func (s *SubmissionService) Submit(ctx context.Context, batchID string, rows []ingest.Row, attachments map[string]Attachment) (*SubmissionReport, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, ErrEmptyBatchID
	}
	if err := s.guard.Begin(ctx, batchID); err != nil {
		return nil, err
	}

	b := &reportBuilder{report: &SubmissionReport{
		BatchID:   batchID,
		StartedAt: time.Now(),
		Rows:      make([]RowOutcome, len(rows)),
	}}
	s.logger.Info("batch started", zap.String("batch_id", batchID), zap.Int("rows", len(rows)), zap.Int("workers", s.workers))

	var chains [][]int
	chainOf := make(map[string]int)
	seen := make(map[string]bool)
	for i, row := range rows {
		key := strings.TrimSpace(row.NDCCode)
		if key == "" {
			s.finish(b, batchID, RowOutcome{
				Index:  i,
				Line:   row.Line,
				Status: RowSkipped,
				Stage:  StageValidate,
				Error:  (&RowValidationError{Line: row.Line, Reason: "NDC Code is required"}).Error(),
			})
			continue
		}
		seen[key] = true
		chains = s.schedule(chains, chainOf, i, key)
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, chain := range chains {
		if ctx.Err() != nil {
			s.cancelRows(ctx, b, batchID, rows, chain)
			continue
		}
		chain := chain
		g.Go(func() error {
			for n, idx := range chain {
				if ctx.Err() != nil {
					s.cancelRows(ctx, b, batchID, rows, chain[n:])
					return nil
				}
				s.finish(b, batchID, s.processRow(ctx, idx, rows[idx], attachments))
			}
			return nil
		})
	}
	_ = g.Wait()

	report := b.report
	report.UnmatchedAttachments = unmatched(attachments, seen)
	report.FinishedAt = time.Now()
	tally(report)

	// 取消后仍需落定批次状态
	if err := s.guard.Complete(context.WithoutCancel(ctx), batchID); err != nil {
		s.logger.Error("failed to mark batch submitted", zap.String("batch_id", batchID), zap.Error(err))
	}
	s.logger.Info("batch finished",
		zap.String("batch_id", batchID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("partial", report.Partial),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("cancelled", report.Cancelled))
	if s.notifier != nil {
		s.notifier.BatchCompleted(report)
	}
	return report, nil
}

// Reset clears the guard so the batch can be submitted again.
func (s *SubmissionService) Reset(ctx context.Context, batchID string) error {
	if strings.TrimSpace(batchID) == "" {
		return ErrEmptyBatchID
	}
	return s.guard.Reset(ctx, batchID)
}

// schedule appends row i to a chain. With one worker every row shares a single chain in
// input order; otherwise each key gets its own chain so rows of one key never overlap.
func (s *SubmissionService) schedule(chains [][]int, chainOf map[string]int, i int, key string) [][]int {
	if s.workers == 1 {
		key = ""
	}
	if c, ok := chainOf[key]; ok {
		chains[c] = append(chains[c], i)
		return chains
	}
	chainOf[key] = len(chains)
	return append(chains, []int{i})
}

// processRow runs upsert then bind for one row. Calls already started are not cut short by
// cancellation of ctx; each is bounded by the call timeout instead.
func (s *SubmissionService) processRow(ctx context.Context, idx int, row ingest.Row, attachments map[string]Attachment) RowOutcome {
	key := strings.TrimSpace(row.NDCCode)
	outcome := RowOutcome{Index: idx, Line: row.Line, Key: key}
	base := context.WithoutCancel(ctx)

	upsertCtx, cancel := context.WithTimeout(base, s.callTimeout)
	result, err := s.records.Upsert(upsertCtx, row.CostRecordFields)
	cancel()
	if err != nil {
		outcome.Status = RowFailed
		outcome.Stage = StageUpsert
		var verr *RowValidationError
		if errors.As(err, &verr) {
			outcome.Status = RowSkipped
			outcome.Stage = StageValidate
		}
		outcome.Error = err.Error()
		s.logger.Warn("row upsert failed", zap.String("key", key), zap.Int("line", row.Line), zap.Error(err))
		return outcome
	}
	outcome.Action = result.Action
	outcome.RecordID = result.RecordID
	outcome.RevisionMarker = result.RevisionMarker

	att, ok := attachments[key]
	if !ok {
		outcome.Status = RowSucceeded
		return outcome
	}
	outcome.Attachment = att.Filename

	bindCtx, cancel := context.WithTimeout(base, s.callTimeout)
	_, err = s.attachments.Bind(bindCtx, key, att.Filename, att.Content, result.RevisionMarker)
	cancel()
	if err != nil {
		outcome.Status = RowPartial
		outcome.Stage = StageBind
		outcome.Error = err.Error()
		s.logger.Warn("row attachment failed", zap.String("key", key), zap.String("file", att.Filename), zap.Error(err))
		return outcome
	}
	outcome.Status = RowSucceeded
	return outcome
}

func (s *SubmissionService) finish(b *reportBuilder, batchID string, outcome RowOutcome) {
	b.set(outcome)
	if s.notifier != nil {
		s.notifier.RowCompleted(batchID, outcome)
	}
}

func (s *SubmissionService) cancelRows(ctx context.Context, b *reportBuilder, batchID string, rows []ingest.Row, idxs []int) {
	for _, idx := range idxs {
		s.finish(b, batchID, RowOutcome{
			Index:  idx,
			Line:   rows[idx].Line,
			Key:    strings.TrimSpace(rows[idx].NDCCode),
			Status: RowCancelled,
			Error:  ctx.Err().Error(),
		})
	}
}

func unmatched(attachments map[string]Attachment, keys map[string]bool) []string {
	out := []string{}
	for key := range attachments {
		if !keys[key] {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func tally(r *SubmissionReport) {
	r.Total = len(r.Rows)
	for _, row := range r.Rows {
		switch row.Status {
		case RowSucceeded:
			r.Succeeded++
		case RowPartial:
			r.Partial++
		case RowFailed:
			r.Failed++
		case RowSkipped:
			r.Skipped++
		case RowCancelled:
			r.Cancelled++
		}
	}
}
