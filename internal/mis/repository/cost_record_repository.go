package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CostRecordRepository struct {
	db *gorm.DB
}

func NewCostRecordRepository(db *gorm.DB) *CostRecordRepository {
	return &CostRecordRepository{db: db}
}

// FindByKey 按 NDC Code 查找记录
// The unique index allows at most one match; a second row is returned only so callers can notice
// a broken index.
func (r *CostRecordRepository) FindByKey(ctx context.Context, title, key string) ([]entity.CostRecord, error) {
	var records []entity.CostRecord
	err := r.db.WithContext(ctx).
		Where("list_title = ? AND ndc_code = ?", title, key).
		Order("created_at ASC, id ASC").
		Limit(2).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("find cost record %s: %w", key, err)
	}
	return records, nil
}

// Insert 创建记录及其首个版本 1.0
func (r *CostRecordRepository) Insert(ctx context.Context, title string, fields entity.CostRecordFields) (*entity.CostRecord, error) {
	now := time.Now()
	record := &entity.CostRecord{
		ID:               newID(),
		ListTitle:        title,
		CostRecordFields: fields,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return tx.Create(snapshot(record, now)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert cost record %s: %w", fields.NDCCode, err)
	}
	return record, nil
}

// UpdateByID 全字段覆盖更新，版本号 +1，返回新版本号
func (r *CostRecordRepository) UpdateByID(ctx context.Context, title, id string, fields entity.CostRecordFields) (int, error) {
	var version int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record entity.CostRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND list_title = ?", id, title).
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		now := time.Now()
		fields.NDCCode = record.NDCCode
		record.CostRecordFields = fields
		record.Version++
		record.UpdatedAt = now

		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		if err := tx.Create(snapshot(&record, now)).Error; err != nil {
			return err
		}
		version = record.Version
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("update cost record %s: %w", id, err)
	}
	return version, nil
}

// GetRevisionHistory 获取版本历史（按时间正序）
func (r *CostRecordRepository) GetRevisionHistory(ctx context.Context, title, id string) ([]entity.CostRecordVersion, error) {
	var versions []entity.CostRecordVersion
	err := r.db.WithContext(ctx).
		Joins("JOIN cost_records ON cost_records.id = cost_record_versions.record_id AND cost_records.list_title = ?", title).
		Where("cost_record_versions.record_id = ?", id).
		Order("cost_record_versions.version ASC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", id, err)
	}
	return versions, nil
}

// ListKeys 按关键字模糊匹配 NDC Code（自动补全）
func (r *CostRecordRepository) ListKeys(ctx context.Context, title, contains string, limit int) ([]string, error) {
	var keys []string
	query := r.db.WithContext(ctx).
		Model(&entity.CostRecord{}).
		Where("list_title = ?", title)
	if contains != "" {
		query = query.Where("ndc_code ILIKE ?", "%"+escapeLike(contains)+"%")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Order("ndc_code ASC").Pluck("ndc_code", &keys).Error; err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

func snapshot(record *entity.CostRecord, at time.Time) *entity.CostRecordVersion {
	return &entity.CostRecordVersion{
		ID:               newID(),
		RecordID:         record.ID,
		Version:          record.Version,
		VersionLabel:     fmt.Sprintf("%d.0", record.Version),
		CreatedAt:        at,
		CostRecordFields: record.CostRecordFields,
	}
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
