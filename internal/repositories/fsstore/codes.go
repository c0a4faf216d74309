package fsstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
)

// IssueCode reads every code for the phone inside the transaction, so a
// concurrent issuance for the same phone forces a retry rather than a
// second code slipping past the limit.
func (s *Store) IssueCode(ctx context.Context, p repositories.IssueCodeParams) (*models.VerificationCode, error) {
	fs := s.firestoreClientFun(ctx)
	col := fs.Collection(codesCollection)
	issuedAt := p.Now.UTC()
	vc := &models.VerificationCode{
		ID:        newID(),
		Phone:     p.Phone,
		CodeHash:  p.CodeHash,
		CreatedAt: issuedAt,
		ExpiresAt: issuedAt.Add(p.TTL),
	}

	err := fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(col.Where("phone", "==", p.Phone)).GetAll()
		if err != nil {
			return err
		}
		since := issuedAt.Add(-p.Window)
		var (
			sent   int
			oldest time.Time
			active []*firestore.DocumentRef
		)
		for _, snap := range snaps {
			existing, err := decodeCode(snap)
			if err != nil {
				return err
			}
			if existing.CreatedAt.After(since) {
				sent++
				if oldest.IsZero() || existing.CreatedAt.Before(oldest) {
					oldest = existing.CreatedAt
				}
			}
			if !existing.Used {
				active = append(active, snap.Ref)
			}
		}
		if p.MaxSends > 0 && sent >= p.MaxSends {
			retry := oldest.Add(p.Window).Sub(issuedAt)
			if retry < time.Second {
				retry = time.Second
			}
			return &repositories.SendLimitError{RetryAfter: retry}
		}
		for _, ref := range active {
			if err := tx.Update(ref, []firestore.Update{{Path: "used", Value: true}}); err != nil {
				return err
			}
		}
		return tx.Create(col.Doc(vc.ID), vc)
	})
	if err != nil {
		return nil, err
	}
	return vc, nil
}

func (s *Store) DeleteCode(ctx context.Context, id string) error {
	if _, err := s.col(ctx, codesCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

func (s *Store) LatestActiveCode(ctx context.Context, phone string, at time.Time) (*models.VerificationCode, error) {
	snaps, err := s.col(ctx, codesCollection).Where("phone", "==", phone).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("latest code: %w", err)
	}
	var newest *models.VerificationCode
	for _, snap := range snaps {
		vc, err := decodeCode(snap)
		if err != nil {
			return nil, err
		}
		if vc.Used || !vc.ExpiresAt.After(at) {
			continue
		}
		if newest == nil || vc.CreatedAt.After(newest.CreatedAt) {
			newest = vc
		}
	}
	if newest == nil {
		return nil, repositories.ErrNotFound
	}
	return newest, nil
}

func (s *Store) RecordFailedAttempt(ctx context.Context, id string, max int) (int, error) {
	fs := s.firestoreClientFun(ctx)
	ref := fs.Collection(codesCollection).Doc(id)
	var attempts int
	err := fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return repositories.ErrConflict
			}
			return err
		}
		vc, err := decodeCode(snap)
		if err != nil {
			return err
		}
		if vc.Used || vc.Attempts >= max {
			return repositories.ErrConflict
		}
		attempts = vc.Attempts + 1
		return tx.Update(ref, []firestore.Update{{Path: "attempts", Value: attempts}})
	})
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

func (s *Store) ConsumeCode(ctx context.Context, id string) error {
	fs := s.firestoreClientFun(ctx)
	ref := fs.Collection(codesCollection).Doc(id)
	return fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return repositories.ErrConflict
			}
			return err
		}
		used, err := snap.DataAt("used")
		if err != nil {
			return err
		}
		if b, _ := used.(bool); b {
			return repositories.ErrConflict
		}
		return tx.Update(ref, []firestore.Update{{Path: "used", Value: true}})
	})
}
