package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/bitfantasy/nimo-mis/internal/mis/repository"
	"go.uber.org/zap"
)

// UpsertAction 写入动作
type UpsertAction string

const (
	ActionCreated UpsertAction = "created"
	ActionUpdated UpsertAction = "updated"
)

// UpsertResult 写入结果
type UpsertResult struct {
	Action         UpsertAction `json:"action"`
	RecordID       string       `json:"record_id"`
	RevisionMarker int          `json:"revision_marker"`
}

// RecordService 按 NDC Code 新增或覆盖成本记录
type RecordService struct {
	store     RecordStore
	listTitle string
	logger    *zap.Logger
}

func NewRecordService(store RecordStore, listTitle string, logger *zap.Logger) *RecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{store: store, listTitle: listTitle, logger: logger}
}

// Upsert writes fields under fields.NDCCode: full replace when a record exists, insert
// otherwise. The returned marker is the one the store assigned to this write.
func (s *RecordService) Upsert(ctx context.Context, fields entity.CostRecordFields) (*UpsertResult, error) {
	key := strings.TrimSpace(fields.NDCCode)
	if key == "" {
		return nil, &RowValidationError{Reason: "NDC Code is required"}
	}
	fields.NDCCode = key

	existing, err := s.findOne(ctx, key)
	if err != nil {
		return nil, &UpsertError{Key: key, Err: err}
	}
	if existing != nil {
		return s.update(ctx, existing.ID, fields)
	}

	record, err := s.store.Insert(ctx, s.listTitle, fields)
	if err == nil {
		return &UpsertResult{Action: ActionCreated, RecordID: record.ID, RevisionMarker: record.Version}, nil
	}
	if !errors.Is(err, repository.ErrDuplicateKey) {
		return nil, &UpsertError{Key: key, Err: err}
	}

	// 并发插入冲突：重新查找后按更新处理（仅重试一次）
	s.logger.Info("insert lost key race, retrying as update", zap.String("key", key))
	existing, err = s.findOne(ctx, key)
	if err != nil {
		return nil, &UpsertError{Key: key, Err: err}
	}
	if existing == nil {
		return nil, &UpsertError{Key: key, Err: repository.ErrDuplicateKey}
	}
	return s.update(ctx, existing.ID, fields)
}

func (s *RecordService) update(ctx context.Context, id string, fields entity.CostRecordFields) (*UpsertResult, error) {
	marker, err := s.store.UpdateByID(ctx, s.listTitle, id, fields)
	if err != nil {
		return nil, &UpsertError{Key: fields.NDCCode, Err: err}
	}
	return &UpsertResult{Action: ActionUpdated, RecordID: id, RevisionMarker: marker}, nil
}

// findOne returns the first record for key, nil when there is none.
func (s *RecordService) findOne(ctx context.Context, key string) (*entity.CostRecord, error) {
	records, err := s.store.FindByKey(ctx, s.listTitle, key)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	if len(records) > 1 {
		s.logger.Warn("multiple records share a key, using the first",
			zap.String("key", key),
			zap.String("record_id", records[0].ID),
			zap.Int("matches", len(records)))
	}
	return &records[0], nil
}
