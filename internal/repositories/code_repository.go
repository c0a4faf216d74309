package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"settlementsam/internal/models"
)

const codeColumns = `id, phone, code_hash, created_at, expires_at, attempts, used`

func scanCode(row scanner) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	if err := row.Scan(&vc.ID, &vc.Phone, &vc.CodeHash, &vc.CreatedAt, &vc.ExpiresAt, &vc.Attempts, &vc.Used); err != nil {
		return nil, err
	}
	vc.CreatedAt = vc.CreatedAt.UTC()
	vc.ExpiresAt = vc.ExpiresAt.UTC()
	return &vc, nil
}

// IssueCode enforces the send window, invalidates every unused code for the
// phone and stores the new hash. On Postgres the phone is additionally
// serialized with a transaction-scoped advisory lock.
func (s *SQLStore) IssueCode(ctx context.Context, p IssueCodeParams) (*models.VerificationCode, error) {
	now := p.Now.UTC()
	vc := &models.VerificationCode{
		ID:        uuid.NewString(),
		Phone:     p.Phone,
		CodeHash:  p.CodeHash,
		CreatedAt: now,
		ExpiresAt: now.Add(p.TTL),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if s.dialect == Postgres {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.Phone); err != nil {
				return fmt.Errorf("lock phone: %w", err)
			}
		}
		if p.MaxSends > 0 {
			since := now.Add(-p.Window)
			var sent int
			if err := tx.QueryRowContext(ctx,
				s.q(`SELECT COUNT(*) FROM verification_codes WHERE phone = $1 AND created_at > $2`),
				p.Phone, since,
			).Scan(&sent); err != nil {
				return fmt.Errorf("count sends: %w", err)
			}
			if sent >= p.MaxSends {
				var oldest time.Time
				if err := tx.QueryRowContext(ctx, s.q(`
					SELECT created_at FROM verification_codes
					WHERE phone = $1 AND created_at > $2
					ORDER BY created_at ASC
					LIMIT 1
				`), p.Phone, since).Scan(&oldest); err != nil {
					return fmt.Errorf("oldest send: %w", err)
				}
				retry := oldest.Add(p.Window).Sub(now)
				if retry < time.Second {
					retry = time.Second
				}
				return &SendLimitError{RetryAfter: retry}
			}
		}
		if _, err := tx.ExecContext(ctx,
			s.q(`UPDATE verification_codes SET used = TRUE WHERE phone = $1 AND used = FALSE`), p.Phone,
		); err != nil {
			return fmt.Errorf("invalidate codes: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO verification_codes (`+codeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`), vc.ID, vc.Phone, vc.CodeHash, vc.CreatedAt, vc.ExpiresAt, 0, false); err != nil {
			return fmt.Errorf("insert code: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vc, nil
}

func (s *SQLStore) DeleteCode(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM verification_codes WHERE id = $1`), id); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

// LatestActiveCode returns the newest unused code that has not expired at now.
func (s *SQLStore) LatestActiveCode(ctx context.Context, phone string, now time.Time) (*models.VerificationCode, error) {
	query := s.q(`
		SELECT ` + codeColumns + `
		FROM verification_codes
		WHERE phone = $1 AND used = FALSE AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`)
	vc, err := scanCode(s.db.QueryRowContext(ctx, query, phone, now.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest code: %w", err)
	}
	return vc, nil
}

func (s *SQLStore) RecordFailedAttempt(ctx context.Context, id string, max int) (int, error) {
	query := s.q(`
		UPDATE verification_codes
		SET attempts = attempts + 1
		WHERE id = $1 AND used = FALSE AND attempts < $2
		RETURNING attempts
	`)
	var attempts int
	if err := s.db.QueryRowContext(ctx, query, id, max).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("record attempt: %w", err)
	}
	return attempts, nil
}

func (s *SQLStore) ConsumeCode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE verification_codes SET used = TRUE WHERE id = $1 AND used = FALSE`), id)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("consume code: %w", err)
	} else if n == 0 {
		return ErrConflict
	}
	return nil
}
