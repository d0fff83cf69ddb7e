package irn

import (
	"context"
	"fmt"
	"sync"
)

// Store persists IRN records. The IRN string is the primary key, so a given
// invoice, service and date combination is registered at most once.
type Store interface {
	// Save inserts a new record. Duplicate IRNs are rejected.
	Save(ctx context.Context, rec *Record) error

	// Get retrieves the record for an IRN.
	Get(ctx context.Context, irn string) (*Record, error)

	// Update persists the record's current state.
	Update(ctx context.Context, rec *Record) error
}

// MemoryStore is an in-memory Store implementation guarded by a mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory IRN store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec == nil {
		return NewValidationError("record is required")
	}
	key := rec.IRN()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[key]; exists {
		return NewStateError(fmt.Sprintf("IRN %s already registered", key))
	}
	cp := *rec
	s.records[key] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, irn string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[irn]
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("IRN %s not found", irn))
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, rec *Record) error {
	if rec == nil {
		return NewValidationError("record is required")
	}
	key := rec.IRN()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return NewNotFoundError(fmt.Sprintf("IRN %s not found", key))
	}
	cp := *rec
	s.records[key] = &cp
	return nil
}
