package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"settlementsam/internal/apperr"
	"settlementsam/internal/logger"
	"settlementsam/internal/repositories"
	"settlementsam/internal/utils"
)

// CodeSender delivers a verification code to a phone.
type CodeSender interface {
	SendCode(ctx context.Context, phone, carrier, code string) error
}

// SendLimiter is an optional external send counter. When configured it
// replaces the store-side count.
type SendLimiter interface {
	Allow(ctx context.Context, phone string) (retryAfter time.Duration, ok bool, err error)
	Undo(ctx context.Context, phone string) error
}

type SessionIssuer interface {
	IssueSession(phone string) (string, time.Time, error)
}

type OTPSettings struct {
	CodeLength  int
	TTL         time.Duration
	MaxSends    int
	SendWindow  time.Duration
	MaxAttempts int
	BcryptCost  int
}

type IssuedCode struct {
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"-"`
}

type Verification struct {
	Phone        string    `json:"phone"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type OTPService struct {
	codes    repositories.CodeRepository
	sender   CodeSender
	sessions SessionIssuer
	limiter  SendLimiter
	cfg      OTPSettings
	now      func() time.Time
	log      *zap.Logger
}

func NewOTPService(codes repositories.CodeRepository, sender CodeSender, sessions SessionIssuer, cfg OTPSettings, log *zap.Logger) *OTPService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &OTPService{
		codes:    codes,
		sender:   sender,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.OrNop(log),
	}
}

// WithLimiter installs an external send limiter such as RedisSendLimiter.
func (s *OTPService) WithLimiter(l SendLimiter) *OTPService {
	s.limiter = l
	return s
}

// Issue rate-limits, stores a hashed code and dispatches it. A failed
// dispatch deletes the stored code so it does not count against the limit.
func (s *OTPService) Issue(ctx context.Context, rawPhone, carrier string) (*IssuedCode, error) {
	phone, err := utils.NormalizePhone(rawPhone)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "phone must be a 10-digit US number", err)
	}
	if _, err := utils.GatewayAddresses(phone, carrier); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "unsupported carrier", err)
	}

	maxSends := s.cfg.MaxSends
	if s.limiter != nil {
		retry, ok, err := s.limiter.Allow(ctx, phone)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "send limiter unavailable", err)
		}
		if !ok {
			return nil, tooManySends(retry)
		}
		maxSends = 0
	}

	code, err := utils.NewNumericCode(s.cfg.CodeLength)
	if err != nil {
		s.undoLimit(ctx, phone)
		return nil, apperr.Wrap(apperr.Internal, "generate code", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.BcryptCost)
	if err != nil {
		s.undoLimit(ctx, phone)
		return nil, apperr.Wrap(apperr.Internal, "hash code", err)
	}

	vc, err := s.codes.IssueCode(ctx, repositories.IssueCodeParams{
		Phone:    phone,
		CodeHash: string(hash),
		Now:      s.now(),
		TTL:      s.cfg.TTL,
		Window:   s.cfg.SendWindow,
		MaxSends: maxSends,
	})
	if err != nil {
		var limit *repositories.SendLimitError
		if errors.As(err, &limit) {
			s.log.Info("[otp][send] throttled", zap.String("phone", utils.MaskPhone(phone)))
			return nil, tooManySends(limit.RetryAfter)
		}
		s.undoLimit(ctx, phone)
		return nil, apperr.Wrap(apperr.Internal, "store code", err)
	}

	if err := s.sender.SendCode(ctx, phone, carrier, code); err != nil {
		// Context may already be cancelled; rollback must still happen.
		cleanup := context.WithoutCancel(ctx)
		if delErr := s.codes.DeleteCode(cleanup, vc.ID); delErr != nil {
			s.log.Error("[otp][send] rollback failed", zap.String("code_id", vc.ID), zap.Error(delErr))
		}
		s.undoLimit(cleanup, phone)
		s.log.Warn("[otp][send] dispatch failed", zap.String("phone", utils.MaskPhone(phone)), zap.Error(err))
		return nil, apperr.Wrap(apperr.SendFailed, "could not deliver the code, try again or pick another carrier", err)
	}

	s.log.Info("[otp][send] ok", zap.String("phone", utils.MaskPhone(phone)), zap.Time("expires_at", vc.ExpiresAt))
	return &IssuedCode{Phone: phone, ExpiresAt: vc.ExpiresAt, Code: code}, nil
}

func (s *OTPService) undoLimit(ctx context.Context, phone string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Undo(ctx, phone); err != nil {
		s.log.Warn("[otp][send] limiter undo failed", zap.Error(err))
	}
}

func tooManySends(retry time.Duration) error {
	e := apperr.New(apperr.TooManyRequests, "too many codes requested, try again later")
	e.RetryAfter = retry
	return e
}

// Verify checks code against the newest active code for the phone. Wrong
// guesses are counted with a conditional increment; the code is locked once
// MaxAttempts wrong guesses have been recorded.
func (s *OTPService) Verify(ctx context.Context, rawPhone, code string) (*Verification, error) {
	phone, err := utils.NormalizePhone(rawPhone)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "phone must be a 10-digit US number", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.New(apperr.InvalidInput, "code is required")
	}

	vc, err := s.codes.LatestActiveCode(ctx, phone, s.now())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.New(apperr.Expired, "code expired, request a new one")
		}
		return nil, apperr.Wrap(apperr.Internal, "load code", err)
	}
	if vc.Attempts >= s.cfg.MaxAttempts {
		return nil, apperr.New(apperr.TooManyAttempts, "too many attempts, request a new code")
	}

	if bcrypt.CompareHashAndPassword([]byte(vc.CodeHash), []byte(code)) != nil {
		attempts, err := s.codes.RecordFailedAttempt(ctx, vc.ID, s.cfg.MaxAttempts)
		if err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return nil, apperr.New(apperr.TooManyAttempts, "too many attempts, request a new code")
			}
			return nil, apperr.Wrap(apperr.Internal, "record attempt", err)
		}
		remaining := s.cfg.MaxAttempts - attempts
		s.log.Info("[otp][verify] wrong code", zap.String("phone", utils.MaskPhone(phone)), zap.Int("remaining", remaining))
		e := apperr.Newf(apperr.InvalidCode, "invalid code, %d attempts remaining", remaining)
		e.Remaining = &remaining
		return nil, e
	}

	if err := s.codes.ConsumeCode(ctx, vc.ID); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, apperr.New(apperr.Expired, "code already used, request a new one")
		}
		return nil, apperr.Wrap(apperr.Internal, "consume code", err)
	}

	token, exp, err := s.sessions.IssueSession(phone)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "issue session", err)
	}
	s.log.Info("[otp][verify] ok", zap.String("phone", utils.MaskPhone(phone)))
	return &Verification{Phone: phone, SessionToken: token, ExpiresAt: exp}, nil
}
