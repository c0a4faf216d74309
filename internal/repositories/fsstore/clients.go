package fsstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
)

func (s *Store) CreateClient(ctx context.Context, c *models.Client) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}
	if _, err := s.col(ctx, clientsCollection).Doc(c.ID).Create(ctx, c); err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*models.Client, error) {
	snap, err := s.col(ctx, clientsCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return decodeClient(snap)
}

func (s *Store) ListClients(ctx context.Context, limit, offset int) ([]*models.Client, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.col(ctx, clientsCollection).OrderBy("createdAt", firestore.Desc).Limit(limit)
	if offset > 0 {
		q = q.Offset(offset)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	out := make([]*models.Client, 0, len(snaps))
	for _, snap := range snaps {
		c, err := decodeClient(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) UpdateClient(ctx context.Context, c *models.Client) error {
	return s.update(ctx, s.col(ctx, clientsCollection).Doc(c.ID), []firestore.Update{
		{Path: "name", Value: c.Name},
		{Path: "contactEmail", Value: c.ContactEmail},
		{Path: "deliveryEmail", Value: c.DeliveryEmail},
		{Path: "phone", Value: c.Phone},
		{Path: "sheetsId", Value: c.SheetsID},
		{Path: "stripeCustomerId", Value: c.StripeCustomerID},
		{Path: "throttleMode", Value: c.ThrottleMode},
		{Path: "active", Value: c.Active},
	})
}

func (s *Store) ApplyPurchase(ctx context.Context, clientID string, quantity int, amountCents int64) error {
	return s.update(ctx, s.col(ctx, clientsCollection).Doc(clientID), []firestore.Update{
		{Path: "balanceCents", Value: firestore.Increment(amountCents)},
		{Path: "leadsPurchased", Value: firestore.Increment(quantity)},
	})
}
