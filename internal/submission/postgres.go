package submission

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

// NewPostgresStore creates a submission store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return NewValidationError("record and ID are required")
	}

	_, err := s.pool.Exec(ctx, `
INSERT INTO submission_records (id, irn, payload, status, attempts, max_attempts, next_attempt_at, last_error, receipt_id, severity, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.IRN, []byte(rec.Payload), string(rec.Status), rec.Attempts, rec.MaxAttempts,
		nullableTime(rec.NextAttemptAt), rec.LastError, rec.ReceiptID, string(rec.Severity),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return WrapInternalError(err, "failed to create submission record")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
SELECT id, irn, payload, status, attempts, max_attempts, next_attempt_at, last_error, receipt_id, severity, created_at, updated_at
FROM submission_records
WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewNotFoundError(fmt.Sprintf("record %s not found", id))
		}
		return nil, WrapInternalError(err, "failed to load submission record")
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return NewValidationError("record and ID are required")
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE submission_records
SET status=$1, attempts=$2, next_attempt_at=$3, last_error=$4, receipt_id=$5, severity=$6, updated_at=$7
WHERE id=$8`,
		string(rec.Status), rec.Attempts, nullableTime(rec.NextAttemptAt),
		rec.LastError, rec.ReceiptID, string(rec.Severity), rec.UpdatedAt, rec.ID)
	if err != nil {
		return WrapInternalError(err, "failed to update submission record")
	}
	if tag.RowsAffected() == 0 {
		return NewNotFoundError(fmt.Sprintf("record %s not found", rec.ID))
	}
	return nil
}

// ClaimDue uses a conditional UPDATE with SKIP LOCKED so concurrent sweeps
// on separate instances never claim the same record.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Record, error) {
	rows, err := s.pool.Query(ctx, `
UPDATE submission_records
SET status='IN_PROGRESS', updated_at=$1
WHERE id IN (
  SELECT id FROM submission_records
  WHERE status='PENDING' AND next_attempt_at <= $1
  ORDER BY next_attempt_at, id
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
RETURNING id, irn, payload, status, attempts, max_attempts, next_attempt_at, last_error, receipt_id, severity, created_at, updated_at`,
		now, limit)
	if err != nil {
		return nil, WrapInternalError(err, "failed to claim due submission records")
	}
	defer rows.Close()

	var claimed []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, WrapInternalError(err, "failed to scan claimed record")
		}
		claimed = append(claimed, rec)
	}
	return claimed, rows.Err()
}

func (s *PostgresStore) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submission_records WHERE status='PENDING'`).Scan(&count)
	if err != nil {
		return 0, WrapInternalError(err, "failed to count pending submissions")
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var status, severity string
	var nextAttempt *time.Time
	var payload []byte
	err := row.Scan(&rec.ID, &rec.IRN, &payload, &status, &rec.Attempts, &rec.MaxAttempts,
		&nextAttempt, &rec.LastError, &rec.ReceiptID, &severity, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Payload = payload
	rec.Status = Status(status)
	rec.Severity = Severity(severity)
	if nextAttempt != nil {
		rec.NextAttemptAt = *nextAttempt
	}
	return &rec, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
