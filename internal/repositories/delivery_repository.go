package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"settlementsam/internal/models"
)

const deliveryColumns = `id, lead_id, client_id, method, status, errors, exclusive_until, delivered_at`

func scanDelivery(row scanner) (*models.Delivery, error) {
	var (
		d              models.Delivery
		errs           []byte
		exclusiveUntil sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.LeadID, &d.ClientID, &d.Method, &d.Status, &errs, &exclusiveUntil, &d.DeliveredAt); err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &d.Errors); err != nil {
			return nil, fmt.Errorf("decode delivery errors: %w", err)
		}
	}
	d.ExclusiveUntil = timePtr(exclusiveUntil)
	d.DeliveredAt = d.DeliveredAt.UTC()
	return &d, nil
}

// RecordDelivery marks the lead delivered with a compare-and-swap on the
// delivered flag, bumps the client's counter and writes the audit row, all in
// one transaction. ErrConflict means another delivery won.
func (s *SQLStore) RecordDelivery(ctx context.Context, p RecordDeliveryParams) (*models.Delivery, error) {
	exclusive := p.ExclusiveUntil.UTC()
	d := &models.Delivery{
		ID:             uuid.NewString(),
		LeadID:         p.LeadID,
		ClientID:       p.ClientID,
		Method:         p.Method,
		Status:         p.Status,
		Errors:         p.Errors,
		ExclusiveUntil: &exclusive,
		DeliveredAt:    p.DeliveredAt.UTC(),
	}
	errs := p.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("encode delivery errors: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE leads
			SET delivered = TRUE, client_id = $1, exclusive_until = $2, delivered_at = $3
			WHERE id = $4 AND delivered = FALSE
		`), p.ClientID, exclusive, d.DeliveredAt, p.LeadID)
		if err != nil {
			return fmt.Errorf("mark lead delivered: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM leads WHERE id = $1`), p.LeadID).Scan(&exists); err != nil {
				return fmt.Errorf("check lead: %w", err)
			}
			if exists == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}

		res, err = tx.ExecContext(ctx,
			s.q(`UPDATE clients SET leads_delivered = leads_delivered + 1 WHERE id = $1`), p.ClientID)
		if err != nil {
			return fmt.Errorf("bump leads_delivered: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO deliveries (`+deliveryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`), d.ID, d.LeadID, d.ClientID, d.Method, d.Status, string(errsJSON), exclusive, d.DeliveredAt); err != nil {
			return fmt.Errorf("insert delivery: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *SQLStore) ListDeliveriesByLead(ctx context.Context, leadID string) ([]*models.Delivery, error) {
	return s.listDeliveries(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE lead_id = $1
		ORDER BY delivered_at DESC
	`, leadID)
}

func (s *SQLStore) ListDeliveriesByClient(ctx context.Context, clientID string, limit int) ([]*models.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listDeliveries(ctx, `
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE client_id = $1
		ORDER BY delivered_at DESC
		LIMIT $2
	`, clientID, limit)
}

func (s *SQLStore) listDeliveries(ctx context.Context, query string, args ...any) ([]*models.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var _ Store = (*SQLStore)(nil)
