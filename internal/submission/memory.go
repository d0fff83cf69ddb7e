package submission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation guarded by a mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory submission store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return NewValidationError("record and ID are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return NewStateError(fmt.Sprintf("record %s already exists", rec.ID))
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("record %s not found", id))
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return NewValidationError("record and ID are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		return NewNotFoundError(fmt.Sprintf("record %s not found", rec.ID))
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *MemoryStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Record
	for _, rec := range s.records {
		if rec.Status == StatusPending && !rec.NextAttemptAt.After(now) {
			due = append(due, rec)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*Record, 0, len(due))
	for _, rec := range due {
		rec.Status = StatusInProgress
		rec.UpdatedAt = now
		cp := *rec
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *MemoryStore) CountPending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, rec := range s.records {
		if rec.Status == StatusPending {
			count++
		}
	}
	return count, nil
}
