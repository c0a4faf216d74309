package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"settlementsam/internal/apperr"
	"settlementsam/internal/authz"
)

type capturingSender struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (s *capturingSender) SendCode(_ context.Context, _, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.codes = append(s.codes, code)
	return nil
}

func (s *capturingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[len(s.codes)-1]
}

func testOTPSettings() OTPSettings {
	return OTPSettings{
		CodeLength:  6,
		TTL:         10 * time.Minute,
		MaxSends:    3,
		SendWindow:  time.Hour,
		MaxAttempts: 5,
		BcryptCost:  bcrypt.MinCost,
	}
}

func newOTPService(t *testing.T, sender CodeSender) (*OTPService, *authz.TokenManager) {
	t.Helper()
	tm := authz.NewTokenManager("0123456789abcdef0123", "settlementsam", time.Hour, 30*time.Minute)
	return NewOTPService(newTestStore(t), sender, tm, testOTPSettings(), nil), tm
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestOTPIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	sender := &capturingSender{}
	svc, tm := newOTPService(t, sender)

	issued, err := svc.Issue(ctx, "(512) 555-0134", "verizon")
	require.NoError(t, err)
	assert.Equal(t, "5125550134", issued.Phone)
	assert.Len(t, sender.last(), 6)

	v, err := svc.Verify(ctx, "512-555-0134", sender.last())
	require.NoError(t, err)
	claims, err := tm.Parse(v.SessionToken, authz.KindSession)
	require.NoError(t, err)
	assert.Equal(t, "5125550134", claims.Phone)

	// a consumed code never matches again
	_, err = svc.Verify(ctx, "5125550134", sender.last())
	requireKind(t, err, apperr.Expired)
}

func TestOTPIssueValidation(t *testing.T) {
	svc, _ := newOTPService(t, &capturingSender{})
	_, err := svc.Issue(context.Background(), "555-0134", "verizon")
	requireKind(t, err, apperr.InvalidInput)
	_, err = svc.Issue(context.Background(), "5125550134", "carrier pigeon")
	requireKind(t, err, apperr.InvalidInput)
}

func TestOTPSendLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newOTPService(t, &capturingSender{})
	for i := 0; i < 3; i++ {
		_, err := svc.Issue(ctx, "5125550134", "att")
		require.NoError(t, err)
	}
	_, err := svc.Issue(ctx, "5125550134", "att")
	requireKind(t, err, apperr.TooManyRequests)
	var e *apperr.Error
	require.True(t, errors.As(err, &e))
	assert.Greater(t, e.RetryAfter, 59*time.Minute)
}

func TestOTPNewSendInvalidatesOlderCode(t *testing.T) {
	ctx := context.Background()
	sender := &capturingSender{}
	svc, _ := newOTPService(t, sender)

	_, err := svc.Issue(ctx, "5125550134", "att")
	require.NoError(t, err)
	first := sender.last()
	_, err = svc.Issue(ctx, "5125550134", "att")
	require.NoError(t, err)
	second := sender.last()
	if first == second {
		t.Skip("random codes collided")
	}

	_, err = svc.Verify(ctx, "5125550134", first)
	requireKind(t, err, apperr.InvalidCode)
	_, err = svc.Verify(ctx, "5125550134", second)
	require.NoError(t, err)
}

func TestOTPFailedDispatchRollsBack(t *testing.T) {
	ctx := context.Background()
	sender := &capturingSender{err: errSMTP}
	svc, _ := newOTPService(t, sender)

	for i := 0; i < 5; i++ {
		_, err := svc.Issue(ctx, "5125550134", "att")
		requireKind(t, err, apperr.SendFailed)
	}
	// failed sends did not count against the limit and left no active code
	_, err := svc.Verify(ctx, "5125550134", "123456")
	requireKind(t, err, apperr.Expired)

	sender.err = nil
	_, err = svc.Issue(ctx, "5125550134", "att")
	require.NoError(t, err)
}

func TestOTPAttemptLockout(t *testing.T) {
	ctx := context.Background()
	sender := &capturingSender{}
	svc, _ := newOTPService(t, sender)

	_, err := svc.Issue(ctx, "5125550134", "att")
	require.NoError(t, err)
	good := sender.last()
	bad := wrongCode(good)

	for want := 4; want >= 0; want-- {
		_, err := svc.Verify(ctx, "5125550134", bad)
		requireKind(t, err, apperr.InvalidCode)
		var e *apperr.Error
		require.True(t, errors.As(err, &e))
		require.NotNil(t, e.Remaining)
		assert.Equal(t, want, *e.Remaining)
	}
	_, err = svc.Verify(ctx, "5125550134", good)
	requireKind(t, err, apperr.TooManyAttempts)
}

func TestOTPCorrectCodeOnLastAttempt(t *testing.T) {
	ctx := context.Background()
	sender := &capturingSender{}
	svc, tm := newOTPService(t, sender)

	_, err := svc.Issue(ctx, "5125550134", "att")
	require.NoError(t, err)
	good := sender.last()
	bad := wrongCode(good)

	for want := 4; want >= 1; want-- {
		_, err := svc.Verify(ctx, "5125550134", bad)
		var e *apperr.Error
		require.True(t, errors.As(err, &e))
		require.NotNil(t, e.Remaining)
		assert.Equal(t, want, *e.Remaining)
	}

	v, err := svc.Verify(ctx, "5125550134", good)
	require.NoError(t, err)
	require.NotEmpty(t, v.SessionToken)
	claims, err := tm.Parse(v.SessionToken, authz.KindSession)
	require.NoError(t, err)
	assert.Equal(t, "5125550134", claims.Phone)
}

func TestOTPExpiry(t *testing.T) {
	ctx := context.Background()
	sender := &capturingSender{}
	svc, _ := newOTPService(t, sender)
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	svc.now = fixedClock(start)

	_, err := svc.Issue(ctx, "5125550134", "att")
	require.NoError(t, err)

	svc.now = fixedClock(start.Add(11 * time.Minute))
	_, err = svc.Verify(ctx, "5125550134", sender.last())
	requireKind(t, err, apperr.Expired)
}

type stubLimiter struct {
	allow  bool
	retry  time.Duration
	undone int
}

func (l *stubLimiter) Allow(context.Context, string) (time.Duration, bool, error) {
	return l.retry, l.allow, nil
}

func (l *stubLimiter) Undo(context.Context, string) error {
	l.undone++
	return nil
}

func TestOTPExternalLimiter(t *testing.T) {
	ctx := context.Background()
	sender := &capturingSender{}
	svc, _ := newOTPService(t, sender)

	lim := &stubLimiter{allow: false, retry: 42 * time.Second}
	svc.WithLimiter(lim)
	_, err := svc.Issue(ctx, "5125550134", "att")
	requireKind(t, err, apperr.TooManyRequests)

	// with the limiter allowing, the store-side count no longer applies
	lim.allow = true
	for i := 0; i < 4; i++ {
		_, err := svc.Issue(ctx, "5125550134", "att")
		require.NoError(t, err)
	}

	sender.err = errSMTP
	_, err = svc.Issue(ctx, "5125550134", "att")
	requireKind(t, err, apperr.SendFailed)
	assert.Equal(t, 1, lim.undone)
}
