package submission

import (
	"context"
	"time"
)

// Store persists submission records.
type Store interface {
	// Create inserts a new record.
	Create(ctx context.Context, rec *Record) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*Record, error)

	// Update persists the record's current state.
	Update(ctx context.Context, rec *Record) error

	// ClaimDue atomically transitions up to limit PENDING records whose
	// NextAttemptAt is not after now into IN_PROGRESS and returns them.
	// A record claimed by one worker is invisible to concurrent claims.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	// CountPending returns the number of records awaiting retry.
	CountPending(ctx context.Context) (int, error)
}
