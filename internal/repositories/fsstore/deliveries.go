package fsstore

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"

	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
)

func (s *Store) RecordDelivery(ctx context.Context, p repositories.RecordDeliveryParams) (*models.Delivery, error) {
	fs := s.firestoreClientFun(ctx)
	exclusive := p.ExclusiveUntil.UTC()
	deliveredAt := p.DeliveredAt.UTC()
	d := &models.Delivery{
		ID:             newID(),
		LeadID:         p.LeadID,
		ClientID:       p.ClientID,
		Method:         p.Method,
		Status:         p.Status,
		Errors:         p.Errors,
		ExclusiveUntil: &exclusive,
		DeliveredAt:    deliveredAt,
	}
	leadRef := fs.Collection(leadsCollection).Doc(p.LeadID)
	clientRef := fs.Collection(clientsCollection).Doc(p.ClientID)

	err := fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(leadRef)
		if err != nil {
			if isNotFound(err) {
				return repositories.ErrNotFound
			}
			return err
		}
		delivered, err := snap.DataAt("delivered")
		if err != nil {
			return err
		}
		if b, _ := delivered.(bool); b {
			return repositories.ErrConflict
		}
		if _, err := tx.Get(clientRef); err != nil {
			if isNotFound(err) {
				return repositories.ErrNotFound
			}
			return err
		}

		if err := tx.Update(leadRef, []firestore.Update{
			{Path: "delivered", Value: true},
			{Path: "clientId", Value: p.ClientID},
			{Path: "exclusiveUntil", Value: exclusive},
			{Path: "deliveredAt", Value: deliveredAt},
		}); err != nil {
			return err
		}
		if err := tx.Update(clientRef, []firestore.Update{
			{Path: "leadsDelivered", Value: firestore.Increment(1)},
		}); err != nil {
			return err
		}
		return tx.Create(fs.Collection(deliveriesCollection).Doc(d.ID), d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) ListDeliveriesByLead(ctx context.Context, leadID string) ([]*models.Delivery, error) {
	return s.listDeliveries(ctx, "leadId", leadID, 0)
}

func (s *Store) ListDeliveriesByClient(ctx context.Context, clientID string, limit int) ([]*models.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listDeliveries(ctx, "clientId", clientID, limit)
}

func (s *Store) listDeliveries(ctx context.Context, field, value string, limit int) ([]*models.Delivery, error) {
	snaps, err := s.col(ctx, deliveriesCollection).Where(field, "==", value).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	out := make([]*models.Delivery, 0, len(snaps))
	for _, snap := range snaps {
		d, err := decodeDelivery(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DeliveredAt.After(out[j].DeliveredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
