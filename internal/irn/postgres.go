package irn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store implementation backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates an IRN store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return NewValidationError("record is required")
	}

	tag, err := s.pool.Exec(ctx, `
INSERT INTO irn_records (irn, invoice_number, service_id, date_stamp, unique_id, content_hash, verification_code, status, generated_at, valid_until)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (irn) DO NOTHING`,
		rec.IRN(), rec.InvoiceNumber, rec.ServiceID, rec.DateStamp, rec.UniqueID,
		rec.ContentHash, rec.VerificationCode, string(rec.Status), rec.GeneratedAt, rec.ValidUntil)
	if err != nil {
		return WrapInternalError(err, "failed to save IRN record")
	}
	if tag.RowsAffected() == 0 {
		return NewStateError(fmt.Sprintf("IRN %s already registered", rec.IRN()))
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, irn string) (*Record, error) {
	var rec Record
	var status string
	var generatedAt, validUntil time.Time
	err := s.pool.QueryRow(ctx, `
SELECT invoice_number, service_id, date_stamp, unique_id, content_hash, verification_code, status, generated_at, valid_until
FROM irn_records
WHERE irn=$1`, irn).Scan(
		&rec.InvoiceNumber, &rec.ServiceID, &rec.DateStamp, &rec.UniqueID,
		&rec.ContentHash, &rec.VerificationCode, &status, &generatedAt, &validUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewNotFoundError(fmt.Sprintf("IRN %s not found", irn))
		}
		return nil, WrapInternalError(err, "failed to load IRN record")
	}
	rec.Status = Status(status)
	rec.GeneratedAt = generatedAt
	rec.ValidUntil = validUntil
	return &rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *Record) error {
	if rec == nil {
		return NewValidationError("record is required")
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE irn_records
SET status=$1, valid_until=$2
WHERE irn=$3`,
		string(rec.Status), rec.ValidUntil, rec.IRN())
	if err != nil {
		return WrapInternalError(err, "failed to update IRN record")
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError(fmt.Sprintf("IRN %s not found", rec.IRN()))
	}
	return nil
}
