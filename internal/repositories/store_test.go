package repositories

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlementsam/internal/models"
	"settlementsam/internal/scoring"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQL(ctx, SQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleLead(phone string) *models.Lead {
	return &models.Lead{
		FirstName:         "Dana",
		LastName:          "Reyes",
		Phone:             phone,
		State:             "TX",
		IncidentType:      scoring.IncidentCar,
		Timeframe:         scoring.TimeframeUnder6Month,
		InjuryType:        scoring.Fracture,
		ReceivedTreatment: scoring.TreatmentERDoctor,
		Hospitalized:      true,
		StillInTreatment:  scoring.StillTreatingYes,
		MissedWork:        scoring.MissedWorkSome,
		InsuranceContact:  scoring.InsuranceNo,
		HasAttorney:       scoring.AttorneyNo,
		Score:             70,
		Tier:              scoring.TierWarm,
		EstimateLow:       25_000,
		EstimateHigh:      100_000,
		Verified:          true,
	}
}

func sampleClient(t *testing.T, s *SQLStore) *models.Client {
	t.Helper()
	c := &models.Client{Name: "Hale & Ortiz LLP", DeliveryEmail: "intake@hale.test", ThrottleMode: "standard", Active: true}
	require.NoError(t, s.CreateClient(context.Background(), c))
	return c
}

func TestRebindForSQLite(t *testing.T) {
	s := &SQLStore{dialect: SQLite}
	assert.Equal(t, "SELECT a FROM t WHERE x = ?1 AND y = ?12", s.q("SELECT a FROM t WHERE x = $1 AND y = $12"))
	assert.Equal(t, "SELECT a FROM t LIMIT 1", s.q("SELECT a FROM t LIMIT 1 FOR UPDATE"))

	pg := &SQLStore{dialect: Postgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 FOR UPDATE", pg.q("SELECT a FROM t WHERE x = $1 FOR UPDATE"))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	d, err = ParseDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}

func TestLeadLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	lead := sampleLead("5125550101")
	require.NoError(t, s.CreateLead(ctx, lead))
	require.NotEmpty(t, lead.ID)

	got, err := s.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.Phone, got.Phone)
	assert.Equal(t, scoring.TierWarm, got.Tier)
	assert.True(t, got.Hospitalized)
	assert.Nil(t, got.DeliveredAt)

	_, err = s.GetLead(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetTierOverride(ctx, lead.ID, scoring.TierHot))
	got, _ = s.GetLead(ctx, lead.ID)
	assert.Equal(t, scoring.TierWarm, got.Tier)
	assert.Equal(t, scoring.TierHot, got.EffectiveTier())

	require.NoError(t, s.MarkDisputed(ctx, lead.ID, " wrong number "))
	got, _ = s.GetLead(ctx, lead.ID)
	assert.True(t, got.Disputed)
	assert.Equal(t, "wrong number", got.DisputeReason)

	assert.ErrorIs(t, s.MarkDisputed(ctx, "missing", "x"), ErrNotFound)
}

func TestListLeadsFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cold := sampleLead("5125550102")
	cold.Score, cold.Tier = 10, scoring.TierCold
	require.NoError(t, s.CreateLead(ctx, cold))
	warm := sampleLead("5125550103")
	require.NoError(t, s.CreateLead(ctx, warm))
	require.NoError(t, s.SetTierOverride(ctx, warm.ID, scoring.TierHot))

	hot, err := s.ListLeads(ctx, models.LeadFilter{Tier: scoring.TierHot})
	require.NoError(t, err)
	require.Len(t, hot, 1)
	assert.Equal(t, warm.ID, hot[0].ID)

	no := false
	undelivered, err := s.ListLeads(ctx, models.LeadFilter{Delivered: &no})
	require.NoError(t, err)
	assert.Len(t, undelivered, 2)

	page, err := s.ListLeads(ctx, models.LeadFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	sum, err := s.LeadSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Hot)
	assert.Equal(t, 1, sum.Cold)
	assert.Equal(t, 0, sum.Warm)
	assert.Equal(t, 2, sum.Verified)
}

func TestFindRecentLeadByPhone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := sampleLead("5125550104")
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -45)
	require.NoError(t, s.CreateLead(ctx, old))

	since := time.Now().UTC().AddDate(0, 0, -30)
	_, err := s.FindRecentLeadByPhone(ctx, "5125550104", since)
	assert.ErrorIs(t, err, ErrNotFound)

	fresh := sampleLead("5125550104")
	require.NoError(t, s.CreateLead(ctx, fresh))
	got, err := s.FindRecentLeadByPhone(ctx, "5125550104", since)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, got.ID)
}

func TestCreateLeadUnlessRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	since := time.Now().UTC().AddDate(0, 0, -30)

	first, created, err := s.CreateLeadUnlessRecent(ctx, sampleLead("5125550105"), since)
	require.NoError(t, err)
	require.True(t, created)

	got, created, err := s.CreateLeadUnlessRecent(ctx, sampleLead("5125550105"), since)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, got.ID)

	other, created, err := s.CreateLeadUnlessRecent(ctx, sampleLead("5125550106"), since)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestConcurrentLeadCreatesForOnePhone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	since := time.Now().UTC().AddDate(0, 0, -30)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]bool{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, fresh, err := s.CreateLeadUnlessRecent(ctx, sampleLead("5125550107"), since)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[l.ID] = true
			if fresh {
				created++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)

	leads, err := s.ListLeads(ctx, models.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
}

func TestClientPurchaseAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := sampleClient(t, s)

	require.NoError(t, s.ApplyPurchase(ctx, c.ID, 25, 250_000))
	require.NoError(t, s.ApplyPurchase(ctx, c.ID, 5, 50_000))
	assert.ErrorIs(t, s.ApplyPurchase(ctx, "missing", 1, 1), ErrNotFound)

	c.Name = "Hale Ortiz"
	c.SheetsID = "sheet-1"
	require.NoError(t, s.UpdateClient(ctx, c))

	got, err := s.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hale Ortiz", got.Name)
	assert.Equal(t, "sheet-1", got.SheetsID)
	assert.Equal(t, 30, got.LeadsPurchased)
	assert.EqualValues(t, 300_000, got.BalanceCents)

	list, err := s.ListClients(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func issue(t *testing.T, s *SQLStore, phone string, now time.Time) (*models.VerificationCode, error) {
	t.Helper()
	return s.IssueCode(context.Background(), IssueCodeParams{
		Phone:    phone,
		CodeHash: "hash",
		Now:      now,
		TTL:      10 * time.Minute,
		Window:   time.Hour,
		MaxSends: 3,
	})
}

func TestIssueCodeLimitsAndInvalidates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	first, err := issue(t, s, "5125550105", now)
	require.NoError(t, err)
	second, err := issue(t, s, "5125550105", now.Add(time.Minute))
	require.NoError(t, err)

	active, err := s.LatestActiveCode(ctx, "5125550105", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID, "issuing a new code invalidates the previous one")
	assert.NotEqual(t, first.ID, active.ID)

	_, err = issue(t, s, "5125550105", now.Add(2*time.Minute))
	require.NoError(t, err)

	_, err = issue(t, s, "5125550105", now.Add(3*time.Minute))
	var limit *SendLimitError
	require.True(t, errors.As(err, &limit))
	assert.InDelta(t, (57 * time.Minute).Seconds(), limit.RetryAfter.Seconds(), 1)

	_, err = issue(t, s, "5125550199", now.Add(3*time.Minute))
	assert.NoError(t, err, "limit is per phone")

	_, err = issue(t, s, "5125550105", now.Add(61*time.Minute))
	assert.NoError(t, err, "window slides")
}

func TestDeletedCodeDoesNotCountAgainstLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		vc, err := issue(t, s, "5125550106", now)
		require.NoError(t, err)
		require.NoError(t, s.DeleteCode(ctx, vc.ID))
	}
	_, err := s.LatestActiveCode(ctx, "5125550106", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestActiveCodeHonoursExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	_, err := issue(t, s, "5125550107", now)
	require.NoError(t, err)

	_, err = s.LatestActiveCode(ctx, "5125550107", now.Add(9*time.Minute))
	assert.NoError(t, err)
	_, err = s.LatestActiveCode(ctx, "5125550107", now.Add(11*time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailedAttemptsAreBounded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	vc, err := issue(t, s, "5125550108", time.Now().UTC())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, conflicts := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordFailedAttempt(ctx, vc.ID, 5)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrConflict) {
				conflicts++
			} else if err == nil {
				ok++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, ok)
	assert.Equal(t, 7, conflicts)

	got, err := s.LatestActiveCode(ctx, "5125550108", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 5, got.Attempts)
}

func TestConsumeCodeOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	vc, err := issue(t, s, "5125550109", time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, s.ConsumeCode(ctx, vc.ID))
	assert.ErrorIs(t, s.ConsumeCode(ctx, vc.ID), ErrConflict)

	_, err = s.RecordFailedAttempt(ctx, vc.ID, 5)
	assert.ErrorIs(t, err, ErrConflict, "used codes take no more attempts")
}

func TestReserveAndReleaseSlot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := sampleClient(t, s)

	res, err := s.ReserveSlot(ctx, c.ID, "2026-03-02")
	require.NoError(t, err)
	assert.False(t, res.Scheduled, "no schedule means nothing to reserve")

	ds := &models.DeliverySchedule{
		ClientID:  c.ID,
		Mode:      "standard",
		Quantity:  3,
		StartDate: "2026-03-02",
		Targets:   map[string]int{"2026-03-02": 2, "2026-03-03": 1},
	}
	require.NoError(t, s.CreateSchedule(ctx, ds))

	for i := 1; i <= 2; i++ {
		res, err = s.ReserveSlot(ctx, c.ID, "2026-03-02")
		require.NoError(t, err)
		assert.True(t, res.Scheduled)
		assert.False(t, res.Throttled)
		assert.Equal(t, i, res.Delivered)
	}
	res, err = s.ReserveSlot(ctx, c.ID, "2026-03-02")
	require.NoError(t, err)
	assert.True(t, res.Throttled)

	require.NoError(t, s.ReleaseSlot(ctx, ds.ID, "2026-03-02"))
	latest, err := s.LatestSchedule(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest.DeliveredByDate["2026-03-02"])
	assert.Equal(t, ds.Targets, latest.Targets)

	res, err = s.ReserveSlot(ctx, c.ID, "2026-03-05")
	require.NoError(t, err)
	assert.True(t, res.Throttled, "days outside the plan have no slots")
}

func TestConcurrentReservationsNeverExceedTarget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := sampleClient(t, s)
	require.NoError(t, s.CreateSchedule(ctx, &models.DeliverySchedule{
		ClientID: c.ID, Mode: "standard", Quantity: 4, StartDate: "2026-03-02",
		Targets: map[string]int{"2026-03-02": 4},
	}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.ReserveSlot(ctx, c.ID, "2026-03-02")
			if err == nil && !res.Throttled {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, granted)
}

func TestRecordDeliveryIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := sampleClient(t, s)
	lead := sampleLead("5125550110")
	require.NoError(t, s.CreateLead(ctx, lead))

	now := time.Now().UTC()
	params := RecordDeliveryParams{
		LeadID:         lead.ID,
		ClientID:       c.ID,
		Method:         models.MethodEmail,
		Status:         models.DeliveryStatusDelivered,
		DeliveredAt:    now,
		ExclusiveUntil: now.AddDate(0, 0, 90),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	won, lost := 0, 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordDelivery(ctx, params)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
			} else if errors.Is(err, ErrConflict) {
				lost++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
	assert.Equal(t, 4, lost)

	got, err := s.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.True(t, got.Delivered)
	assert.Equal(t, c.ID, got.ClientID)
	require.NotNil(t, got.ExclusiveUntil)
	assert.WithinDuration(t, now.AddDate(0, 0, 90), *got.ExclusiveUntil, time.Second)

	client, err := s.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, client.LeadsDelivered)

	deliveries, err := s.ListDeliveriesByLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Len(t, deliveries, 1)

	byClient, err := s.ListDeliveriesByClient(ctx, c.ID, 0)
	require.NoError(t, err)
	assert.Len(t, byClient, 1)

	_, err = s.RecordDelivery(ctx, RecordDeliveryParams{LeadID: "missing", ClientID: c.ID, DeliveredAt: now, ExclusiveUntil: now})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkReplacedCreditsClient(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := sampleClient(t, s)
	lead := sampleLead("5125550111")
	require.NoError(t, s.CreateLead(ctx, lead))

	now := time.Now().UTC()
	_, err := s.RecordDelivery(ctx, RecordDeliveryParams{
		LeadID: lead.ID, ClientID: c.ID, Method: models.MethodSheets,
		Status: models.DeliveryStatusDelivered, DeliveredAt: now, ExclusiveUntil: now.AddDate(0, 0, 90),
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkReplaced(ctx, lead.ID))
	assert.ErrorIs(t, s.MarkReplaced(ctx, lead.ID), ErrConflict)
	assert.ErrorIs(t, s.MarkReplaced(ctx, "missing"), ErrNotFound)

	client, _ := s.GetClient(ctx, c.ID)
	assert.Equal(t, 1, client.LeadsReplaced)
}
