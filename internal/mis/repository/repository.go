package repository

import (
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate record key")
)

// Repositories 仓库集合
type Repositories struct {
	CostRecord *CostRecordRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		CostRecord: NewCostRecordRepository(db),
	}
}

// Migrate creates the cost record tables and the per-list key uniqueness index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entity.CostRecord{}, &entity.CostRecordVersion{}); err != nil {
		return fmt.Errorf("auto migrate cost records: %w", err)
	}
	// embedded fields are shared with the version table, so the unique index lives here
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_cost_records_list_key ON cost_records (list_title, ndc_code)").Error; err != nil {
		return fmt.Errorf("create key index: %w", err)
	}
	return nil
}
