package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/bitfantasy/nimo-mis/internal/mis/storage"
	"go.uber.org/zap"
)

var errInvalidFolderKey = errors.New("key cannot be used as a folder name")

// BindResult 附件绑定结果
type BindResult struct {
	Folder        string            `json:"folder"`
	File          entity.StoredFile `json:"file"`
	FolderCreated bool              `json:"folder_created"`
	Overwritten   bool              `json:"overwritten"`
	RevisionTag   int               `json:"revision_tag"`
}

// AttachmentService 将附件写入以 NDC Code 命名的文件夹
type AttachmentService struct {
	store  DocumentStore
	root   string
	logger *zap.Logger
}

func NewAttachmentService(store DocumentStore, root string, logger *zap.Logger) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentService{store: store, root: strings.Trim(root, "/"), logger: logger}
}

// FolderFor returns the document store folder holding key's attachments.
func (s *AttachmentService) FolderFor(key string) (string, error) {
	if err := validateFolderKey(key); err != nil {
		return "", err
	}
	if s.root == "" {
		return key, nil
	}
	return s.root + "/" + key, nil
}

// Bind stores payload as filename in key's folder and stamps the folder and the file with
// marker. An existing file with the same name is overwritten. File writes are not retried.
func (s *AttachmentService) Bind(ctx context.Context, key, filename string, payload []byte, marker int) (*BindResult, error) {
	fail := func(err error) (*BindResult, error) {
		return nil, &BindError{Key: key, Filename: filename, Err: err}
	}

	folder, err := s.FolderFor(key)
	if err != nil {
		return fail(err)
	}
	if filename == "" || strings.ContainsAny(filename, `/\`) {
		return fail(fmt.Errorf("invalid file name %q", filename))
	}

	created, err := s.ensureFolder(ctx, folder)
	if err != nil {
		return fail(err)
	}

	files, err := s.store.ListFiles(ctx, folder)
	if err != nil {
		return fail(fmt.Errorf("list files: %w", err))
	}
	overwrite := false
	for _, f := range files {
		if f.Name == filename {
			overwrite = true
			break
		}
	}

	stored, err := s.store.AddFile(ctx, folder, filename, payload, overwrite)
	if err != nil {
		return fail(fmt.Errorf("add file: %w", err))
	}

	tag := strconv.Itoa(marker)
	if err := s.store.SetFolderAttribute(ctx, folder, entity.RevisionTagAttribute, tag); err != nil {
		return fail(fmt.Errorf("tag folder: %w", err))
	}
	if err := s.store.SetFileAttribute(ctx, folder, filename, entity.RevisionTagAttribute, tag); err != nil {
		return fail(fmt.Errorf("tag file: %w", err))
	}

	if stored.Attributes == nil {
		stored.Attributes = make(map[string]string)
	}
	stored.Attributes[entity.RevisionTagAttribute] = tag

	s.logger.Info("attachment bound",
		zap.String("key", key),
		zap.String("file", filename),
		zap.Bool("overwritten", overwrite),
		zap.Int("revision", marker))

	return &BindResult{
		Folder:        folder,
		File:          *stored,
		FolderCreated: created,
		Overwritten:   overwrite,
		RevisionTag:   marker,
	}, nil
}

// ensureFolder creates folder unless it exists; losing a creation race counts as success.
func (s *AttachmentService) ensureFolder(ctx context.Context, folder string) (bool, error) {
	exists, err := s.store.FolderExists(ctx, folder)
	if err != nil {
		return false, fmt.Errorf("check folder: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := s.store.CreateFolder(ctx, folder); err != nil {
		if errors.Is(err, storage.ErrFolderExists) {
			return false, nil
		}
		return false, fmt.Errorf("create folder: %w", err)
	}
	return true, nil
}

func validateFolderKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", errInvalidFolderKey, key)
	}
	return nil
}
