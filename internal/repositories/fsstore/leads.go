package fsstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
	"settlementsam/internal/scoring"
)

func (s *Store) CreateLead(ctx context.Context, lead *models.Lead) error {
	if lead.ID == "" {
		lead.ID = newID()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now()
	}
	if _, err := s.col(ctx, leadsCollection).Doc(lead.ID).Create(ctx, lead); err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (s *Store) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	snap, err := s.col(ctx, leadsCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return decodeLead(snap)
}

// ListLeads pushes equality filters to Firestore and applies the effective
// tier, ordering and paging in memory.
func (s *Store) ListLeads(ctx context.Context, f models.LeadFilter) ([]*models.Lead, error) {
	q := s.col(ctx, leadsCollection).Query
	if f.Verified != nil {
		q = q.Where("verified", "==", *f.Verified)
	}
	if f.Delivered != nil {
		q = q.Where("delivered", "==", *f.Delivered)
	}
	if f.Disputed != nil {
		q = q.Where("disputed", "==", *f.Disputed)
	}
	if f.ClientID != "" {
		q = q.Where("clientId", "==", f.ClientID)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}

	leads := make([]*models.Lead, 0, len(snaps))
	for _, snap := range snaps {
		l, err := decodeLead(snap)
		if err != nil {
			return nil, err
		}
		if f.Tier != "" && l.EffectiveTier() != f.Tier {
			continue
		}
		leads = append(leads, l)
	}
	sortLeadsNewestFirst(leads)

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if f.Offset > 0 {
		if f.Offset >= len(leads) {
			return nil, nil
		}
		leads = leads[f.Offset:]
	}
	if len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

func (s *Store) FindRecentLeadByPhone(ctx context.Context, phone string, since time.Time) (*models.Lead, error) {
	snaps, err := s.col(ctx, leadsCollection).Where("phone", "==", phone).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("find lead by phone: %w", err)
	}
	return newestSince(snaps, since)
}

// CreateLeadUnlessRecent runs the phone query and the create in one
// transaction, so a concurrent create for the same phone forces a retry.
func (s *Store) CreateLeadUnlessRecent(ctx context.Context, lead *models.Lead, since time.Time) (*models.Lead, bool, error) {
	if lead.ID == "" {
		lead.ID = newID()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now()
	}
	fs := s.firestoreClientFun(ctx)
	col := fs.Collection(leadsCollection)
	var existing *models.Lead
	err := fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing = nil
		snaps, err := tx.Documents(col.Where("phone", "==", lead.Phone)).GetAll()
		if err != nil {
			return err
		}
		l, err := newestSince(snaps, since)
		if err == nil {
			existing = l
			return nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		return tx.Create(col.Doc(lead.ID), lead)
	})
	if err != nil {
		return nil, false, fmt.Errorf("create lead: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}
	return lead, true, nil
}

func newestSince(snaps []*firestore.DocumentSnapshot, since time.Time) (*models.Lead, error) {
	var newest *models.Lead
	for _, snap := range snaps {
		l, err := decodeLead(snap)
		if err != nil {
			return nil, err
		}
		if l.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || l.CreatedAt.After(newest.CreatedAt) {
			newest = l
		}
	}
	if newest == nil {
		return nil, repositories.ErrNotFound
	}
	return newest, nil
}

func (s *Store) SetTierOverride(ctx context.Context, id string, tier scoring.Tier) error {
	return s.update(ctx, s.col(ctx, leadsCollection).Doc(id), []firestore.Update{
		{Path: "tierOverride", Value: string(tier)},
	})
}

func (s *Store) MarkDisputed(ctx context.Context, id, reason string) error {
	return s.update(ctx, s.col(ctx, leadsCollection).Doc(id), []firestore.Update{
		{Path: "disputed", Value: true},
		{Path: "disputeReason", Value: strings.TrimSpace(reason)},
	})
}

func (s *Store) MarkReplaced(ctx context.Context, id string) error {
	fs := s.firestoreClientFun(ctx)
	return fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		leadRef := fs.Collection(leadsCollection).Doc(id)
		snap, err := tx.Get(leadRef)
		if err != nil {
			if isNotFound(err) {
				return repositories.ErrNotFound
			}
			return err
		}
		lead, err := decodeLead(snap)
		if err != nil {
			return err
		}
		if lead.Replaced {
			return repositories.ErrConflict
		}

		var clientRef *firestore.DocumentRef
		if lead.ClientID != "" {
			clientRef = fs.Collection(clientsCollection).Doc(lead.ClientID)
			if _, err := tx.Get(clientRef); err != nil {
				if !isNotFound(err) {
					return err
				}
				clientRef = nil
			}
		}

		if err := tx.Update(leadRef, []firestore.Update{{Path: "replaced", Value: true}}); err != nil {
			return err
		}
		if clientRef != nil {
			return tx.Update(clientRef, []firestore.Update{{Path: "leadsReplaced", Value: firestore.Increment(1)}})
		}
		return nil
	})
}

// LeadSummary scans the collection. Firestore has no conditional sums, and the
// effective tier depends on two fields.
func (s *Store) LeadSummary(ctx context.Context) (*models.LeadSummary, error) {
	snaps, err := s.col(ctx, leadsCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("lead summary: %w", err)
	}
	var sum models.LeadSummary
	for _, snap := range snaps {
		l, err := decodeLead(snap)
		if err != nil {
			return nil, err
		}
		sum.Total++
		switch l.EffectiveTier() {
		case scoring.TierHot:
			sum.Hot++
		case scoring.TierWarm:
			sum.Warm++
		case scoring.TierCold:
			sum.Cold++
		}
		if l.Verified {
			sum.Verified++
		}
		if l.Delivered {
			sum.Delivered++
		}
		if l.Disputed {
			sum.Disputed++
		}
		if l.Replaced {
			sum.Replaced++
		}
	}
	return &sum, nil
}
