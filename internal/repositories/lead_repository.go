package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"settlementsam/internal/models"
	"settlementsam/internal/scoring"
)

const leadColumns = `id, first_name, last_name, phone, email, carrier, state, incident_type,
		timeframe, injury_type, received_treatment, hospitalized, surgery, still_in_treatment,
		missed_work, lost_wages, insurance_contact, has_attorney, score, tier, tier_override,
		estimate_low, estimate_high, verified, delivered, disputed, dispute_reason, replaced,
		client_id, exclusive_until, delivered_at, created_at`

func scanLead(row scanner) (*models.Lead, error) {
	var (
		l              models.Lead
		clientID       sql.NullString
		exclusiveUntil sql.NullTime
		deliveredAt    sql.NullTime
	)
	err := row.Scan(
		&l.ID, &l.FirstName, &l.LastName, &l.Phone, &l.Email, &l.Carrier, &l.State, &l.IncidentType,
		&l.Timeframe, &l.InjuryType, &l.ReceivedTreatment, &l.Hospitalized, &l.Surgery, &l.StillInTreatment,
		&l.MissedWork, &l.LostWages, &l.InsuranceContact, &l.HasAttorney, &l.Score, &l.Tier, &l.TierOverride,
		&l.EstimateLow, &l.EstimateHigh, &l.Verified, &l.Delivered, &l.Disputed, &l.DisputeReason, &l.Replaced,
		&clientID, &exclusiveUntil, &deliveredAt, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.ClientID = clientID.String
	l.ExclusiveUntil = timePtr(exclusiveUntil)
	l.DeliveredAt = timePtr(deliveredAt)
	l.CreatedAt = l.CreatedAt.UTC()
	return &l, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateLead assigns an id (and created_at when unset) and inserts the lead.
func (s *SQLStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	return s.insertLead(ctx, s.db, lead)
}

// CreateLeadUnlessRecent inserts lead unless the same phone already has a
// lead created at or after since, in which case that lead is returned with
// created=false. The check and insert share a transaction; on Postgres the
// phone is locked for its duration.
func (s *SQLStore) CreateLeadUnlessRecent(ctx context.Context, lead *models.Lead, since time.Time) (*models.Lead, bool, error) {
	var (
		existing *models.Lead
		created  bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if s.dialect == Postgres {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('lead:' || $1::text))`, lead.Phone); err != nil {
				return fmt.Errorf("lock phone: %w", err)
			}
		}
		l, err := s.findRecentLead(ctx, tx, lead.Phone, since)
		if err == nil {
			existing = l
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.insertLead(ctx, tx, lead); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		return existing, false, nil
	}
	return lead, true, nil
}

func (s *SQLStore) insertLead(ctx context.Context, db execQuerier, lead *models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	query := s.q(`
		INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)
	`)
	_, err := db.ExecContext(ctx, query,
		lead.ID, lead.FirstName, lead.LastName, lead.Phone, lead.Email, lead.Carrier, lead.State, lead.IncidentType,
		lead.Timeframe, lead.InjuryType, lead.ReceivedTreatment, lead.Hospitalized, lead.Surgery, lead.StillInTreatment,
		lead.MissedWork, lead.LostWages, lead.InsuranceContact, lead.HasAttorney, lead.Score, lead.Tier, lead.TierOverride,
		lead.EstimateLow, lead.EstimateHigh, lead.Verified, lead.Delivered, lead.Disputed, lead.DisputeReason, lead.Replaced,
		nullString(lead.ClientID), nullTimeOf(lead.ExclusiveUntil), nullTimeOf(lead.DeliveredAt), lead.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (s *SQLStore) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	query := s.q(`SELECT ` + leadColumns + ` FROM leads WHERE id = $1`)
	l, err := scanLead(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// ListLeads filters and pages leads, newest first.
func (s *SQLStore) ListLeads(ctx context.Context, f models.LeadFilter) ([]*models.Lead, error) {
	query := "SELECT " + leadColumns + " FROM leads WHERE 1=1"
	args := []any{}
	i := 1

	if f.Tier != "" {
		query += fmt.Sprintf(" AND (CASE WHEN tier_override <> '' THEN tier_override ELSE tier END) = $%d", i)
		args = append(args, f.Tier)
		i++
	}
	for _, b := range []struct {
		col string
		val *bool
	}{{"verified", f.Verified}, {"delivered", f.Delivered}, {"disputed", f.Disputed}} {
		if b.val != nil {
			query += fmt.Sprintf(" AND %s = $%d", b.col, i)
			args = append(args, *b.val)
			i++
		}
	}
	if f.ClientID != "" {
		query += fmt.Sprintf(" AND client_id = $%d", i)
		args = append(args, f.ClientID)
		i++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", i, i+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []*models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// FindRecentLeadByPhone returns the newest lead for phone created at or after since.
func (s *SQLStore) FindRecentLeadByPhone(ctx context.Context, phone string, since time.Time) (*models.Lead, error) {
	return s.findRecentLead(ctx, s.db, phone, since)
}

func (s *SQLStore) findRecentLead(ctx context.Context, db execQuerier, phone string, since time.Time) (*models.Lead, error) {
	query := s.q(`
		SELECT ` + leadColumns + `
		FROM leads
		WHERE phone = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`)
	l, err := scanLead(db.QueryRowContext(ctx, query, phone, since.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find lead by phone: %w", err)
	}
	return l, nil
}

func (s *SQLStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTierOverride stores an admin tier. An empty tier clears the override.
func (s *SQLStore) SetTierOverride(ctx context.Context, id string, tier scoring.Tier) error {
	return s.execOne(ctx, "set tier override",
		`UPDATE leads SET tier_override = $1 WHERE id = $2`, string(tier), id)
}

func (s *SQLStore) MarkDisputed(ctx context.Context, id, reason string) error {
	return s.execOne(ctx, "mark disputed",
		`UPDATE leads SET disputed = TRUE, dispute_reason = $1 WHERE id = $2`, strings.TrimSpace(reason), id)
}

// MarkReplaced flips replaced once and credits the delivering client.
func (s *SQLStore) MarkReplaced(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var clientID sql.NullString
		var replaced bool
		err := tx.QueryRowContext(ctx, s.q(`SELECT client_id, replaced FROM leads WHERE id = $1 FOR UPDATE`), id).
			Scan(&clientID, &replaced)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("load lead: %w", err)
		}
		if replaced {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx, s.q(`UPDATE leads SET replaced = TRUE WHERE id = $1 AND replaced = FALSE`), id)
		if err != nil {
			return fmt.Errorf("mark replaced: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConflict
		}
		if clientID.Valid {
			if _, err := tx.ExecContext(ctx,
				s.q(`UPDATE clients SET leads_replaced = leads_replaced + 1 WHERE id = $1`), clientID.String); err != nil {
				return fmt.Errorf("bump leads_replaced: %w", err)
			}
		}
		return nil
	})
}

// LeadSummary counts leads by effective tier and status.
func (s *SQLStore) LeadSummary(ctx context.Context) (*models.LeadSummary, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN (CASE WHEN tier_override <> '' THEN tier_override ELSE tier END) = 'HOT' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN (CASE WHEN tier_override <> '' THEN tier_override ELSE tier END) = 'WARM' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN (CASE WHEN tier_override <> '' THEN tier_override ELSE tier END) = 'COLD' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN verified THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN delivered THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN disputed THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN replaced THEN 1 ELSE 0 END), 0)
		FROM leads
	`
	var sum models.LeadSummary
	if err := s.db.QueryRowContext(ctx, query).Scan(
		&sum.Total, &sum.Hot, &sum.Warm, &sum.Cold, &sum.Verified, &sum.Delivered, &sum.Disputed, &sum.Replaced,
	); err != nil {
		return nil, fmt.Errorf("lead summary: %w", err)
	}
	return &sum, nil
}
