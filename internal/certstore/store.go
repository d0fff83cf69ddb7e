package certstore

import (
	"context"
	"time"
)

// Store persists signing certificates and their lifecycle state.
type Store interface {
	// Store registers a certificate. When overwrite is false an existing
	// certificate with the same ID is rejected with ErrCodeDuplicate.
	Store(ctx context.Context, cert *Certificate, overwrite bool) error

	// Load retrieves a certificate by ID.
	Load(ctx context.Context, id string) (*Certificate, error)

	// List returns all stored certificates ordered by registration time.
	List(ctx context.Context) ([]*Certificate, error)

	// UpdateStatus transitions a certificate to a new lifecycle status.
	// Transitions out of REVOKED are rejected.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// MarkUsed records a signing use at instant usedAt.
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error

	// ExpireOverdue transitions ACTIVE and PENDING certificates whose
	// NotAfter precedes now to EXPIRED, returning the IDs transitioned.
	ExpireOverdue(ctx context.Context, now time.Time) ([]string, error)
}

func checkStatusTransition(id string, from, to Status) error {
	if from == StatusRevoked && to != StatusRevoked {
		return NewRevokedError("certificate " + id + " is revoked and cannot change status")
	}
	switch to {
	case StatusPending, StatusActive, StatusExpired, StatusRevoked:
		return nil
	default:
		return NewMalformedError("unknown certificate status " + string(to))
	}
}
