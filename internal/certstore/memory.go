package certstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation guarded by a RWMutex.
// Suited to tests and single-process deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	certs map[string]*Certificate
}

// NewMemoryStore creates an empty in-memory certificate store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{certs: make(map[string]*Certificate)}
}

func (s *MemoryStore) Store(_ context.Context, cert *Certificate, overwrite bool) error {
	if cert == nil || cert.ID == "" {
		return NewMalformedError("certificate and ID are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.certs[cert.ID]; exists && !overwrite {
		return NewDuplicateError(fmt.Sprintf("certificate %s already exists", cert.ID))
	}
	s.certs[cert.ID] = cert.clone()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, ok := s.certs[id]
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("certificate %s not found", id))
	}
	return cert.clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	certs := make([]*Certificate, 0, len(s.certs))
	for _, cert := range s.certs {
		certs = append(certs, cert.clone())
	}
	sort.Slice(certs, func(i, j int) bool {
		if certs[i].RegisteredAt.Equal(certs[j].RegisteredAt) {
			return certs[i].ID < certs[j].ID
		}
		return certs[i].RegisteredAt.Before(certs[j].RegisteredAt)
	})
	return certs, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, ok := s.certs[id]
	if !ok {
		return NewNotFoundError(fmt.Sprintf("certificate %s not found", id))
	}
	if err := checkStatusTransition(id, cert.Status, status); err != nil {
		return err
	}
	cert.Status = status
	return nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, ok := s.certs[id]
	if !ok {
		return NewNotFoundError(fmt.Sprintf("certificate %s not found", id))
	}
	if usedAt.After(cert.LastUsedAt) {
		cert.LastUsedAt = usedAt
	}
	return nil
}

func (s *MemoryStore) ExpireOverdue(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, cert := range s.certs {
		if cert.Status != StatusActive && cert.Status != StatusPending {
			continue
		}
		if cert.NotAfter.Before(now) {
			cert.Status = StatusExpired
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	return expired, nil
}
