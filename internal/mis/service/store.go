package service

import (
	"context"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
)

// RecordStore 成本记录存储（repository.CostRecordRepository 实现）
type RecordStore interface {
	FindByKey(ctx context.Context, title, key string) ([]entity.CostRecord, error)
	Insert(ctx context.Context, title string, fields entity.CostRecordFields) (*entity.CostRecord, error)
	UpdateByID(ctx context.Context, title, id string, fields entity.CostRecordFields) (int, error)
	GetRevisionHistory(ctx context.Context, title, id string) ([]entity.CostRecordVersion, error)
	ListKeys(ctx context.Context, title, contains string, limit int) ([]string, error)
}

// DocumentStore 附件文档库（storage.MinIOStore / storage.LocalStore 实现）
type DocumentStore interface {
	FolderExists(ctx context.Context, folder string) (bool, error)
	CreateFolder(ctx context.Context, folder string) error
	ListFiles(ctx context.Context, folder string) ([]entity.StoredFile, error)
	AddFile(ctx context.Context, folder, name string, content []byte, overwrite bool) (*entity.StoredFile, error)
	SetFolderAttribute(ctx context.Context, folder, attr, value string) error
	SetFileAttribute(ctx context.Context, folder, name, attr, value string) error
}
