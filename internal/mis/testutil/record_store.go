package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/bitfantasy/nimo-mis/internal/mis/repository"
)

// MemoryRecordStore is an in-memory keyed record store with revision history.
// Hooks run before the matching operation; a non-nil error is returned instead of the result.
type MemoryRecordStore struct {
	mu       sync.Mutex
	seq      int
	records  map[string]*entity.CostRecord
	versions map[string][]entity.CostRecordVersion
	clock    time.Time

	OnFind   func(key string) error
	OnInsert func(fields entity.CostRecordFields) error
	OnUpdate func(id string) error
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records:  make(map[string]*entity.CostRecord),
		versions: make(map[string][]entity.CostRecordVersion),
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so history order is deterministic.
func (s *MemoryRecordStore) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

func (s *MemoryRecordStore) FindByKey(_ context.Context, title, key string) ([]entity.CostRecord, error) {
	if s.OnFind != nil {
		if err := s.OnFind(key); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.CostRecord
	for _, r := range s.records {
		if r.ListTitle == title && r.NDCCode == key {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryRecordStore) Insert(_ context.Context, title string, fields entity.CostRecordFields) (*entity.CostRecord, error) {
	if s.OnInsert != nil {
		if err := s.OnInsert(fields); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ListTitle == title && r.NDCCode == fields.NDCCode {
			return nil, repository.ErrDuplicateKey
		}
	}
	return s.insertLocked(title, fields), nil
}

// Seed inserts a record bypassing the uniqueness check, to model a broken index.
func (s *MemoryRecordStore) Seed(title string, fields entity.CostRecordFields) *entity.CostRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(title, fields)
}

func (s *MemoryRecordStore) insertLocked(title string, fields entity.CostRecordFields) *entity.CostRecord {
	s.seq++
	now := s.tick()
	rec := &entity.CostRecord{
		ID:               fmt.Sprintf("rec-%03d", s.seq),
		ListTitle:        title,
		CostRecordFields: fields,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.records[rec.ID] = rec
	s.snapshotLocked(rec, now)
	out := *rec
	return &out
}

func (s *MemoryRecordStore) UpdateByID(_ context.Context, title, id string, fields entity.CostRecordFields) (int, error) {
	if s.OnUpdate != nil {
		if err := s.OnUpdate(id); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.ListTitle != title {
		return 0, repository.ErrNotFound
	}
	now := s.tick()
	fields.NDCCode = rec.NDCCode
	rec.CostRecordFields = fields
	rec.Version++
	rec.UpdatedAt = now
	s.snapshotLocked(rec, now)
	return rec.Version, nil
}

func (s *MemoryRecordStore) snapshotLocked(rec *entity.CostRecord, at time.Time) {
	s.versions[rec.ID] = append(s.versions[rec.ID], entity.CostRecordVersion{
		ID:               fmt.Sprintf("%s-v%d", rec.ID, rec.Version),
		RecordID:         rec.ID,
		Version:          rec.Version,
		VersionLabel:     fmt.Sprintf("%d.0", rec.Version),
		CreatedAt:        at,
		CostRecordFields: rec.CostRecordFields,
	})
}

func (s *MemoryRecordStore) GetRevisionHistory(_ context.Context, title, id string) ([]entity.CostRecordVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.ListTitle != title {
		return nil, nil
	}
	out := make([]entity.CostRecordVersion, len(s.versions[id]))
	copy(out, s.versions[id])
	return out, nil
}

func (s *MemoryRecordStore) ListKeys(_ context.Context, title, contains string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, r := range s.records {
		if r.ListTitle == title && strings.Contains(strings.ToLower(r.NDCCode), strings.ToLower(contains)) {
			keys = append(keys, r.NDCCode)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// Count returns the number of stored records.
func (s *MemoryRecordStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
