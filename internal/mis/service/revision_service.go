package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/bitfantasy/nimo-mis/internal/mis/storage"
	"go.uber.org/zap"
)

const (
	defaultKeyLimit = 20
	maxKeyLimit     = 500
)

// RevisionAttachment 单个历史版本及其对应附件
type RevisionAttachment struct {
	Label      string             `json:"version_label"`
	CreatedAt  time.Time          `json:"created_at"`
	Attachment *entity.StoredFile `json:"attachment"`
}

// RevisionService 版本历史与附件对照
type RevisionService struct {
	records     RecordStore
	attachments *AttachmentService
	listTitle   string
	logger      *zap.Logger
}

func NewRevisionService(records RecordStore, attachments *AttachmentService, listTitle string, logger *zap.Logger) *RevisionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevisionService{records: records, attachments: attachments, listTitle: listTitle, logger: logger}
}

// Resolve pairs every revision of key's record, oldest first, with the attachment whose
// revision tag equals the revision's major number. Revisions without one get a nil attachment.
func (s *RevisionService) Resolve(ctx context.Context, key string) ([]RevisionAttachment, error) {
	key = strings.TrimSpace(key)
	records, err := s.records.FindByKey(ctx, s.listTitle, key)
	if err != nil {
		return nil, fmt.Errorf("find record %s: %w", key, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	if len(records) > 1 {
		s.logger.Warn("multiple records share a key, using the first",
			zap.String("key", key), zap.Int("matches", len(records)))
	}

	history, err := s.records.GetRevisionHistory(ctx, s.listTitle, records[0].ID)
	if err != nil {
		return nil, fmt.Errorf("get revision history of %s: %w", key, err)
	}

	files, err := s.listAttachments(ctx, key)
	if err != nil {
		return nil, err
	}

	result := make([]RevisionAttachment, 0, len(history))
	for _, rev := range history {
		entry := RevisionAttachment{Label: rev.VersionLabel, CreatedAt: rev.CreatedAt}
		major, ok := entity.MajorVersion(rev.VersionLabel)
		if !ok {
			s.logger.Warn("unparseable revision label", zap.String("key", key), zap.String("label", rev.VersionLabel))
			result = append(result, entry)
			continue
		}

		var matched []entity.StoredFile
		for _, f := range files {
			if tag, ok := f.RevisionTag(); ok && tag == major {
				matched = append(matched, f)
			}
		}
		if len(matched) > 1 {
			s.logger.Warn("several attachments carry the same revision tag, using the first by name",
				zap.String("key", key),
				zap.Int("revision", major),
				zap.String("file", matched[0].Name),
				zap.Int("matches", len(matched)))
		}
		if len(matched) > 0 {
			f := matched[0]
			entry.Attachment = &f
		}
		result = append(result, entry)
	}
	return result, nil
}

// listAttachments returns key's files sorted by name; a missing folder means no files.
func (s *RevisionService) listAttachments(ctx context.Context, key string) ([]entity.StoredFile, error) {
	folder, err := s.attachments.FolderFor(key)
	if err != nil {
		// such a key could never have had a folder
		return nil, nil
	}
	files, err := s.attachments.store.ListFiles(ctx, folder)
	if err != nil {
		if errors.Is(err, storage.ErrFolderNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list attachments of %s: %w", key, err)
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// ListKeys returns stored keys containing fragment, case-insensitively.
func (s *RevisionService) ListKeys(ctx context.Context, fragment string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultKeyLimit
	}
	if limit > maxKeyLimit {
		limit = maxKeyLimit
	}
	keys, err := s.records.ListKeys(ctx, s.listTitle, strings.TrimSpace(fragment), limit)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}
