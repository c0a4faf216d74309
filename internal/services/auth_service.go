package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"settlementsam/internal/apperr"
	"settlementsam/internal/logger"
)

const (
	DefaultLoginMaxFailures = 5
	DefaultLoginLockout     = 15 * time.Minute
)

type AdminAccount struct {
	Username     string
	PasswordHash string
	Role         string
}

type AdminTokenIssuer interface {
	IssueAdmin(username, role string) (string, time.Time, error)
}

type LoginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
}

type loginFailures struct {
	count       int
	first       time.Time
	lockedUntil time.Time
}

// AuthService checks admin credentials and locks a username out after
// repeated failures. Failure counters live in process memory.
type AuthService struct {
	accounts    map[string]AdminAccount
	tokens      AdminTokenIssuer
	maxFailures int
	lockout     time.Duration

	mu       sync.Mutex
	failures map[string]*loginFailures

	now func() time.Time
	log *zap.Logger
}

func NewAuthService(accounts []AdminAccount, tokens AdminTokenIssuer, log *zap.Logger) *AuthService {
	byName := make(map[string]AdminAccount, len(accounts))
	for _, a := range accounts {
		byName[strings.ToLower(a.Username)] = a
	}
	return &AuthService{
		accounts:    byName,
		tokens:      tokens,
		maxFailures: DefaultLoginMaxFailures,
		lockout:     DefaultLoginLockout,
		failures:    map[string]*loginFailures{},
		now:         time.Now,
		log:         logger.OrNop(log),
	}
}

// dummyHash keeps unknown usernames as slow as known ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("settlementsam"), bcrypt.MinCost)

func (s *AuthService) Login(_ context.Context, username, password string) (*LoginResult, error) {
	key := strings.ToLower(strings.TrimSpace(username))
	if key == "" || password == "" {
		return nil, apperr.New(apperr.InvalidInput, "username and password are required")
	}
	if wait := s.lockedFor(key); wait > 0 {
		s.log.Warn("[auth][login] locked", zap.String("username", key))
		return nil, &apperr.Error{Kind: apperr.Locked, Message: "too many failed logins, try again later", RetryAfter: wait}
	}

	acct, ok := s.accounts[key]
	hash := dummyHash
	if ok {
		hash = []byte(acct.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
		s.recordFailure(key)
		s.log.Info("[auth][login] invalid credentials", zap.String("username", key))
		return nil, apperr.New(apperr.Unauthorized, "invalid username or password")
	}
	s.clearFailures(key)

	token, exp, err := s.tokens.IssueAdmin(acct.Username, acct.Role)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "issue token", err)
	}
	s.log.Info("[auth][login] ok", zap.String("username", key), zap.String("role", acct.Role))
	return &LoginResult{AccessToken: token, ExpiresAt: exp, Username: acct.Username, Role: acct.Role}, nil
}

func (s *AuthService) lockedFor(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[key]
	if !ok {
		return 0
	}
	if wait := f.lockedUntil.Sub(s.now()); wait > 0 {
		return wait
	}
	return 0
}

// recordFailure counts failures inside a lockout-sized window; reaching the
// limit locks the username for the same duration.
func (s *AuthService) recordFailure(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	f, ok := s.failures[key]
	if !ok || now.Sub(f.first) > s.lockout {
		f = &loginFailures{first: now}
		s.failures[key] = f
	}
	f.count++
	if f.count >= s.maxFailures {
		f.lockedUntil = now.Add(s.lockout)
		f.count = 0
		f.first = now
	}
}

func (s *AuthService) clearFailures(key string) {
	s.mu.Lock()
	delete(s.failures, key)
	s.mu.Unlock()
}
