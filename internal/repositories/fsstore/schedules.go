package fsstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
)

func (s *Store) CreateSchedule(ctx context.Context, ds *models.DeliverySchedule) error {
	if ds.ID == "" {
		ds.ID = newID()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now()
	}
	if ds.DeliveredByDate == nil {
		ds.DeliveredByDate = map[string]int{}
	}
	if _, err := s.col(ctx, schedulesCollection).Doc(ds.ID).Create(ctx, ds); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (s *Store) LatestSchedule(ctx context.Context, clientID string) (*models.DeliverySchedule, error) {
	snaps, err := s.col(ctx, schedulesCollection).Where("clientId", "==", clientID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("latest schedule: %w", err)
	}
	ds, _, err := latestSchedule(snaps)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, repositories.ErrNotFound
	}
	return ds, nil
}

func (s *Store) ReserveSlot(ctx context.Context, clientID, date string) (*repositories.Reservation, error) {
	fs := s.firestoreClientFun(ctx)
	var res *repositories.Reservation
	err := fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		res = &repositories.Reservation{Date: date}
		snaps, err := tx.Documents(fs.Collection(schedulesCollection).Where("clientId", "==", clientID)).GetAll()
		if err != nil {
			return err
		}
		ds, ref, err := latestSchedule(snaps)
		if err != nil || ds == nil {
			return err
		}
		res.Scheduled = true
		res.ScheduleID = ds.ID
		res.Target = ds.Targets[date]
		res.Delivered = ds.DeliveredByDate[date]
		if res.Delivered >= res.Target {
			res.Throttled = true
			return nil
		}
		res.Delivered++
		return tx.Update(ref, []firestore.Update{
			{FieldPath: firestore.FieldPath{"deliveredByDate", date}, Value: res.Delivered},
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) ReleaseSlot(ctx context.Context, scheduleID, date string) error {
	fs := s.firestoreClientFun(ctx)
	ref := fs.Collection(schedulesCollection).Doc(scheduleID)
	return fs.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return repositories.ErrNotFound
			}
			return err
		}
		ds, err := decodeSchedule(snap)
		if err != nil {
			return err
		}
		n := ds.DeliveredByDate[date]
		if n <= 0 {
			return nil
		}
		field := firestore.FieldPath{"deliveredByDate", date}
		if n == 1 {
			return tx.Update(ref, []firestore.Update{{FieldPath: field, Value: firestore.Delete}})
		}
		return tx.Update(ref, []firestore.Update{{FieldPath: field, Value: n - 1}})
	})
}
