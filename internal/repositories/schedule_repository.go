package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"settlementsam/internal/models"
)

const scheduleColumns = `id, client_id, mode, quantity, start_date, targets, delivered_by_date, created_at`

func scanSchedule(row scanner) (*models.DeliverySchedule, error) {
	var (
		ds                 models.DeliverySchedule
		targets, delivered []byte
	)
	if err := row.Scan(&ds.ID, &ds.ClientID, &ds.Mode, &ds.Quantity, &ds.StartDate, &targets, &delivered, &ds.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(targets, &ds.Targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	if err := json.Unmarshal(delivered, &ds.DeliveredByDate); err != nil {
		return nil, fmt.Errorf("decode delivered_by_date: %w", err)
	}
	if ds.DeliveredByDate == nil {
		ds.DeliveredByDate = map[string]int{}
	}
	ds.CreatedAt = ds.CreatedAt.UTC()
	return &ds, nil
}

// encodeCounts renders a day map as a JSON string. Strings bind as text on
// both drivers, which JSONB accepts.
func encodeCounts(m map[string]int) (string, error) {
	if m == nil {
		m = map[string]int{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *SQLStore) CreateSchedule(ctx context.Context, ds *models.DeliverySchedule) error {
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}
	if ds.DeliveredByDate == nil {
		ds.DeliveredByDate = map[string]int{}
	}
	targets, err := encodeCounts(ds.Targets)
	if err != nil {
		return fmt.Errorf("encode targets: %w", err)
	}
	delivered, err := encodeCounts(ds.DeliveredByDate)
	if err != nil {
		return fmt.Errorf("encode delivered_by_date: %w", err)
	}
	query := s.q(`
		INSERT INTO delivery_schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if _, err := s.db.ExecContext(ctx, query,
		ds.ID, ds.ClientID, ds.Mode, ds.Quantity, ds.StartDate, targets, delivered, ds.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (s *SQLStore) LatestSchedule(ctx context.Context, clientID string) (*models.DeliverySchedule, error) {
	query := s.q(`
		SELECT ` + scheduleColumns + `
		FROM delivery_schedules
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`)
	ds, err := scanSchedule(s.db.QueryRowContext(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest schedule: %w", err)
	}
	return ds, nil
}

// ReserveSlot checks today's target of the client's latest schedule and, if
// there is room, counts one delivery against it. The read and the increment
// share a transaction with the row locked.
func (s *SQLStore) ReserveSlot(ctx context.Context, clientID, date string) (*Reservation, error) {
	res := &Reservation{Date: date}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ds, err := scanSchedule(tx.QueryRowContext(ctx, s.q(`
			SELECT `+scheduleColumns+`
			FROM delivery_schedules
			WHERE client_id = $1
			ORDER BY created_at DESC
			LIMIT 1 FOR UPDATE`), clientID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("load schedule: %w", err)
		}
		res.Scheduled = true
		res.ScheduleID = ds.ID
		res.Target = ds.Targets[date]
		res.Delivered = ds.DeliveredByDate[date]
		if res.Delivered >= res.Target {
			res.Throttled = true
			return nil
		}
		ds.DeliveredByDate[date]++
		res.Delivered = ds.DeliveredByDate[date]
		return s.writeDelivered(ctx, tx, ds)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReleaseSlot gives back a slot taken by ReserveSlot.
func (s *SQLStore) ReleaseSlot(ctx context.Context, scheduleID, date string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ds, err := scanSchedule(tx.QueryRowContext(ctx, s.q(`
			SELECT `+scheduleColumns+`
			FROM delivery_schedules
			WHERE id = $1 FOR UPDATE`), scheduleID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("load schedule: %w", err)
		}
		if ds.DeliveredByDate[date] <= 0 {
			return nil
		}
		ds.DeliveredByDate[date]--
		if ds.DeliveredByDate[date] == 0 {
			delete(ds.DeliveredByDate, date)
		}
		return s.writeDelivered(ctx, tx, ds)
	})
}

func (s *SQLStore) writeDelivered(ctx context.Context, tx *sql.Tx, ds *models.DeliverySchedule) error {
	delivered, err := encodeCounts(ds.DeliveredByDate)
	if err != nil {
		return fmt.Errorf("encode delivered_by_date: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		s.q(`UPDATE delivery_schedules SET delivered_by_date = $1 WHERE id = $2`), delivered, ds.ID,
	); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}
