package authz

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind string

const (
	// KindAdmin tokens authenticate back-office users.
	KindAdmin TokenKind = "admin"
	// KindSession tokens prove a claimant verified their phone.
	KindSession TokenKind = "session"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	Kind  TokenKind `json:"kind"`
	Role  string    `json:"role,omitempty"`
	Phone string    `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret     []byte
	issuer     string
	adminTTL   time.Duration
	sessionTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

func NewTokenManager(secret, issuer string, adminTTL, sessionTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		adminTTL:   adminTTL,
		sessionTTL: sessionTTL,
		leeway:     2 * time.Minute,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

func (m *TokenManager) SessionTTL() time.Duration { return m.sessionTTL }

func (m *TokenManager) IssueAdmin(username, role string) (string, time.Time, error) {
	if !ValidRole(role) {
		return "", time.Time{}, fmt.Errorf("unknown role %q", role)
	}
	return m.issue(Claims{Kind: KindAdmin, Role: role}, username, m.adminTTL)
}

// IssueSession binds a short-lived token to a verified phone.
func (m *TokenManager) IssueSession(phone string) (string, time.Time, error) {
	return m.issue(Claims{Kind: KindSession, Phone: phone}, phone, m.sessionTTL)
}

func (m *TokenManager) issue(claims Claims, subject string, ttl time.Duration) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    m.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse validates signature, issuer, expiry (with leeway) and kind.
func (m *TokenManager) Parse(tokenStr string, kind TokenKind) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
