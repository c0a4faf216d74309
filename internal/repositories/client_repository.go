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

const clientColumns = `id, name, contact_email, delivery_email, phone, balance_cents, leads_purchased,
		leads_delivered, leads_replaced, sheets_id, stripe_customer_id, throttle_mode, active, created_at`

func scanClient(row scanner) (*models.Client, error) {
	var c models.Client
	if err := row.Scan(
		&c.ID, &c.Name, &c.ContactEmail, &c.DeliveryEmail, &c.Phone, &c.BalanceCents, &c.LeadsPurchased,
		&c.LeadsDelivered, &c.LeadsReplaced, &c.SheetsID, &c.StripeCustomerID, &c.ThrottleMode, &c.Active, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *SQLStore) CreateClient(ctx context.Context, c *models.Client) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	query := s.q(`
		INSERT INTO clients (` + clientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	if _, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.ContactEmail, c.DeliveryEmail, c.Phone, c.BalanceCents, c.LeadsPurchased,
		c.LeadsDelivered, c.LeadsReplaced, c.SheetsID, c.StripeCustomerID, c.ThrottleMode, c.Active, c.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

func (s *SQLStore) GetClient(ctx context.Context, id string) (*models.Client, error) {
	query := s.q(`SELECT ` + clientColumns + ` FROM clients WHERE id = $1`)
	c, err := scanClient(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (s *SQLStore) ListClients(ctx context.Context, limit, offset int) ([]*models.Client, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := s.q(`
		SELECT ` + clientColumns + `
		FROM clients
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`)
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateClient writes the editable profile fields. Counters and balance are
// only changed through ApplyPurchase and the delivery path.
func (s *SQLStore) UpdateClient(ctx context.Context, c *models.Client) error {
	return s.execOne(ctx, "update client", `
		UPDATE clients
		SET name = $1, contact_email = $2, delivery_email = $3, phone = $4, sheets_id = $5,
			stripe_customer_id = $6, throttle_mode = $7, active = $8
		WHERE id = $9
	`, c.Name, c.ContactEmail, c.DeliveryEmail, c.Phone, c.SheetsID, c.StripeCustomerID, c.ThrottleMode, c.Active, c.ID)
}

func (s *SQLStore) ApplyPurchase(ctx context.Context, clientID string, quantity int, amountCents int64) error {
	return s.execOne(ctx, "apply purchase", `
		UPDATE clients
		SET balance_cents = balance_cents + $1, leads_purchased = leads_purchased + $2
		WHERE id = $3
	`, amountCents, quantity, clientID)
}
