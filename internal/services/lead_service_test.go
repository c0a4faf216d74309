package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlementsam/internal/apperr"
	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
	"settlementsam/internal/scoring"
)

func newLeadService(t *testing.T) (*LeadService, *repositories.SQLStore, *recordingNotifier, *recordingPublisher) {
	t.Helper()
	store := newTestStore(t)
	n := &recordingNotifier{}
	p := &recordingPublisher{}
	svc := NewLeadService(store, store, 30*24*time.Hour, nil).WithNotifier(n).WithEvents(p)
	return svc, store, n, p
}

func TestCreateVerifiedLeadScoresServerSide(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier, events := newLeadService(t)

	lead, created, err := svc.CreateVerifiedLead(ctx, "5125550134", LeadSubmission{
		FirstName: " Dana ",
		LastName:  "Reyes",
		Carrier:   "T-Mobile",
		Answers:   hotAnswers(),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Dana", lead.FirstName)
	assert.Equal(t, "TX", lead.State)
	assert.Equal(t, "tmobile", lead.Carrier)
	assert.Equal(t, 165, lead.Score)
	assert.Equal(t, scoring.TierHot, lead.Tier)
	assert.Equal(t, scoring.Spinal, lead.InjuryType)
	assert.True(t, lead.Verified)
	assert.Equal(t, scoring.EstimateFor(hotAnswers()).Low, lead.EstimateLow)

	assert.Equal(t, []string{EventLeadCreated}, events.names())
	require.Len(t, notifier.messages(), 1)
	assert.Contains(t, notifier.messages()[0], "HOT lead Dana Reyes")
}

func TestCreateVerifiedLeadColdDoesNotNotify(t *testing.T) {
	svc, _, notifier, _ := newLeadService(t)
	lead, _, err := svc.CreateVerifiedLead(context.Background(), "5125550134", LeadSubmission{FirstName: "Lee", Answers: coldAnswers()})
	require.NoError(t, err)
	assert.Equal(t, scoring.TierCold, lead.Tier)
	assert.Empty(t, notifier.messages())
}

func TestCreateVerifiedLeadRejects(t *testing.T) {
	svc, _, _, _ := newLeadService(t)
	ctx := context.Background()

	_, _, err := svc.CreateVerifiedLead(ctx, "5125550134", LeadSubmission{Answers: hotAnswers()})
	requireKind(t, err, apperr.InvalidInput)

	bad := hotAnswers()
	bad.MissedWork = "sometimes"
	_, _, err = svc.CreateVerifiedLead(ctx, "5125550134", LeadSubmission{FirstName: "Dana", Answers: bad})
	requireKind(t, err, apperr.InvalidInput)

	atFault := hotAnswers()
	atFault.AtFault = true
	_, _, err = svc.CreateVerifiedLead(ctx, "5125550134", LeadSubmission{FirstName: "Dana", Answers: atFault})
	requireKind(t, err, apperr.InvalidInput)
}

func TestCreateVerifiedLeadDedupesByPhone(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newLeadService(t)
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	svc.now = fixedClock(start)

	first, created, err := svc.CreateVerifiedLead(ctx, "5125550134", LeadSubmission{FirstName: "Dana", Answers: hotAnswers()})
	require.NoError(t, err)
	require.True(t, created)

	svc.now = fixedClock(start.AddDate(0, 0, 10))
	again, created, err := svc.CreateVerifiedLead(ctx, "5125550134", LeadSubmission{FirstName: "Dana", Answers: coldAnswers()})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	svc.now = fixedClock(start.AddDate(0, 0, 31))
	later, created, err := svc.CreateVerifiedLead(ctx, "5125550134", LeadSubmission{FirstName: "Dana", Answers: coldAnswers()})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, later.ID)
}

func TestConcurrentSubmissionsCreateOneLead(t *testing.T) {
	ctx := context.Background()
	svc, store, _, events := newLeadService(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, fresh, err := svc.CreateVerifiedLead(ctx, "5125550134", LeadSubmission{FirstName: "Dana", Answers: coldAnswers()})
			if err != nil || !fresh {
				return
			}
			mu.Lock()
			created++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, events.names(), 1)
	leads, err := store.ListLeads(ctx, models.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
}

func TestLeadTriage(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newLeadService(t)
	lead, _, err := svc.CreateVerifiedLead(ctx, "5125550134", LeadSubmission{FirstName: "Dana", Answers: coldAnswers()})
	require.NoError(t, err)

	require.NoError(t, svc.OverrideTier(ctx, lead.ID, "hot"))
	hot, err := svc.List(ctx, models.LeadFilter{Tier: scoring.TierHot})
	require.NoError(t, err)
	require.Len(t, hot, 1)
	assert.Equal(t, scoring.TierCold, hot[0].Tier, "derived tier is kept")
	assert.Equal(t, scoring.TierHot, hot[0].EffectiveTier())

	requireKind(t, svc.OverrideTier(ctx, lead.ID, "lukewarm"), apperr.InvalidInput)
	requireKind(t, svc.OverrideTier(ctx, "missing", "WARM"), apperr.NotFound)
	require.NoError(t, svc.OverrideTier(ctx, lead.ID, ""))

	requireKind(t, svc.Dispute(ctx, lead.ID, "  "), apperr.InvalidInput)
	require.NoError(t, svc.Dispute(ctx, lead.ID, "wrong number"))

	detail, err := svc.Get(ctx, lead.ID)
	require.NoError(t, err)
	assert.True(t, detail.Disputed)
	assert.Equal(t, "wrong number", detail.DisputeReason)
	assert.Empty(t, detail.TierOverride)
	assert.NotNil(t, detail.Deliveries)

	// only delivered leads can be replaced
	requireKind(t, svc.Replace(ctx, lead.ID), apperr.InvalidInput)

	client := &models.Client{Name: "Hale & Ortiz LLP", DeliveryEmail: "intake@hale.test", Active: true}
	require.NoError(t, store.CreateClient(ctx, client))
	now := time.Now().UTC()
	_, err = store.RecordDelivery(ctx, repositories.RecordDeliveryParams{
		LeadID: lead.ID, ClientID: client.ID, Method: models.MethodEmail, Status: models.DeliveryStatusDelivered,
		DeliveredAt: now, ExclusiveUntil: now.AddDate(0, 0, 90),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Replace(ctx, lead.ID))
	requireKind(t, svc.Replace(ctx, lead.ID), apperr.InvalidInput)
	got, err := store.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LeadsReplaced)

	_, err = svc.Get(ctx, "missing")
	requireKind(t, err, apperr.NotFound)
}
