package certstore

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

// NewPostgresStore creates a certificate store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Store(ctx context.Context, cert *Certificate, overwrite bool) error {
	if cert == nil || cert.ID == "" {
		return NewMalformedError("certificate and ID are required")
	}

	if overwrite {
		_, err := s.pool.Exec(ctx, `
INSERT INTO certificates (id, subject_dn, issuer_dn, serial_number, certificate_pem, private_key_pem, status, not_before, not_after, registered_at, last_used_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  subject_dn=EXCLUDED.subject_dn,
  issuer_dn=EXCLUDED.issuer_dn,
  serial_number=EXCLUDED.serial_number,
  certificate_pem=EXCLUDED.certificate_pem,
  private_key_pem=EXCLUDED.private_key_pem,
  status=EXCLUDED.status,
  not_before=EXCLUDED.not_before,
  not_after=EXCLUDED.not_after,
  registered_at=EXCLUDED.registered_at,
  last_used_at=EXCLUDED.last_used_at`,
			cert.ID, cert.SubjectDN, cert.IssuerDN, cert.SerialNumber,
			cert.CertificatePEM, cert.PrivateKeyPEM, string(cert.Status),
			cert.NotBefore, cert.NotAfter, cert.RegisteredAt, nullableTime(cert.LastUsedAt))
		if err != nil {
			return WrapInternalError(err, "failed to store certificate")
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
INSERT INTO certificates (id, subject_dn, issuer_dn, serial_number, certificate_pem, private_key_pem, status, not_before, not_after, registered_at, last_used_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO NOTHING`,
		cert.ID, cert.SubjectDN, cert.IssuerDN, cert.SerialNumber,
		cert.CertificatePEM, cert.PrivateKeyPEM, string(cert.Status),
		cert.NotBefore, cert.NotAfter, cert.RegisteredAt, nullableTime(cert.LastUsedAt))
	if err != nil {
		return WrapInternalError(err, "failed to store certificate")
	}
	if tag.RowsAffected() == 0 {
		return NewDuplicateError(fmt.Sprintf("certificate %s already exists", cert.ID))
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*Certificate, error) {
	cert, err := scanCertificate(s.pool.QueryRow(ctx, `
SELECT id, subject_dn, issuer_dn, serial_number, certificate_pem, private_key_pem, status, not_before, not_after, registered_at, last_used_at
FROM certificates
WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewNotFoundError(fmt.Sprintf("certificate %s not found", id))
		}
		return nil, WrapInternalError(err, "failed to load certificate")
	}
	return cert, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Certificate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, subject_dn, issuer_dn, serial_number, certificate_pem, private_key_pem, status, not_before, not_after, registered_at, last_used_at
FROM certificates
ORDER BY registered_at, id`)
	if err != nil {
		return nil, WrapInternalError(err, "failed to list certificates")
	}
	defer rows.Close()

	var certs []*Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, WrapInternalError(err, "failed to scan certificate")
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapInternalError(err, "failed to list certificates")
	}
	return certs, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM certificates WHERE id=$1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NewNotFoundError(fmt.Sprintf("certificate %s not found", id))
		}
		return WrapInternalError(err, "failed to load certificate status")
	}
	if err := checkStatusTransition(id, Status(current), status); err != nil {
		return err
	}

	// Conditional update so a concurrent revocation cannot be undone.
	tag, err := s.pool.Exec(ctx, `
UPDATE certificates SET status=$1 WHERE id=$2 AND status=$3`,
		string(status), id, current)
	if err != nil {
		return WrapInternalError(err, "failed to update certificate status")
	}
	if tag.RowsAffected() == 0 {
		return NewRevokedError(fmt.Sprintf("certificate %s changed status concurrently", id))
	}
	return nil
}

func (s *PostgresStore) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE certificates SET last_used_at=$1
WHERE id=$2 AND (last_used_at IS NULL OR last_used_at < $1)`, usedAt, id)
	if err != nil {
		return WrapInternalError(err, "failed to mark certificate used")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM certificates WHERE id=$1)`, id).Scan(&exists); err != nil {
			return WrapInternalError(err, "failed to check certificate existence")
		}
		if !exists {
			return NewNotFoundError(fmt.Sprintf("certificate %s not found", id))
		}
	}
	return nil
}

func (s *PostgresStore) ExpireOverdue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
UPDATE certificates SET status='EXPIRED'
WHERE status IN ('ACTIVE','PENDING') AND not_after < $1
RETURNING id`, now)
	if err != nil {
		return nil, WrapInternalError(err, "failed to expire certificates")
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, WrapInternalError(err, "failed to scan expired certificate ID")
		}
		expired = append(expired, id)
	}
	return expired, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*Certificate, error) {
	var cert Certificate
	var status string
	var lastUsed *time.Time
	err := row.Scan(&cert.ID, &cert.SubjectDN, &cert.IssuerDN, &cert.SerialNumber,
		&cert.CertificatePEM, &cert.PrivateKeyPEM, &status,
		&cert.NotBefore, &cert.NotAfter, &cert.RegisteredAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	cert.Status = Status(status)
	if lastUsed != nil {
		cert.LastUsedAt = *lastUsed
	}
	return &cert, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
