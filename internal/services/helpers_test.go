package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"settlementsam/internal/apperr"
	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
	"settlementsam/internal/scoring"
)

func newTestStore(t *testing.T) *repositories.SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := repositories.OpenSQL(ctx, repositories.SQLite, filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func hotAnswers() scoring.Answers {
	return scoring.Answers{
		IncidentType:      scoring.IncidentCar,
		State:             "tx",
		Timeframe:         scoring.TimeframeUnder6Month,
		ReceivedTreatment: scoring.TreatmentERDoctor,
		Hospitalized:      true,
		Surgery:           true,
		StillInTreatment:  scoring.StillTreatingYes,
		MissedWork:        scoring.MissedWorkCantWork,
		LostWages:         12_000,
		InsuranceContact:  scoring.InsuranceGotLetter,
		HasAttorney:       scoring.AttorneyNo,
	}
}

func coldAnswers() scoring.Answers {
	return scoring.Answers{
		IncidentType:      scoring.IncidentSlipFall,
		State:             "FL",
		Timeframe:         scoring.Timeframe1To2Years,
		ReceivedTreatment: scoring.TreatmentNone,
		StillInTreatment:  scoring.StillTreatingNo,
		MissedWork:        scoring.MissedWorkNo,
		InsuranceContact:  scoring.InsuranceNo,
		HasAttorney:       scoring.AttorneyNo,
	}
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return nil
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(event string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) SendLead(_ context.Context, client *models.Client, lead *models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, client.DeliveryEmail+":"+lead.ID)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeSheets struct {
	rows int
	err  error
}

func (f *fakeSheets) AppendLead(context.Context, string, *models.Lead) error {
	if f.err != nil {
		return f.err
	}
	f.rows++
	return nil
}

var errSMTP = errors.New("smtp: 421 service not available")
