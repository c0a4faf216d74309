package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlementsam/internal/models"
	"settlementsam/internal/scoring"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write lost its race.
	ErrConflict = errors.New("conflict")
)

// SendLimitError is returned by IssueCode when the phone already used its
// sends for the current window.
type SendLimitError struct {
	RetryAfter time.Duration
}

func (e *SendLimitError) Error() string {
	return fmt.Sprintf("send limit reached, retry after %s", e.RetryAfter.Round(time.Second))
}

type IssueCodeParams struct {
	Phone    string
	CodeHash string
	Now      time.Time
	TTL      time.Duration
	Window   time.Duration
	// MaxSends <= 0 disables the store-side count.
	MaxSends int
}

// Reservation is the outcome of ReserveSlot. Scheduled is false when the
// client has no schedule at all, in which case nothing was reserved.
type Reservation struct {
	ScheduleID string
	Date       string
	Target     int
	Delivered  int
	Scheduled  bool
	Throttled  bool
}

// RecordDeliveryParams describes the atomic write that marks a lead delivered.
type RecordDeliveryParams struct {
	LeadID         string
	ClientID       string
	Method         models.DeliveryMethod
	Status         string
	Errors         []string
	DeliveredAt    time.Time
	ExclusiveUntil time.Time
}

type LeadRepository interface {
	CreateLead(ctx context.Context, lead *models.Lead) error
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	ListLeads(ctx context.Context, f models.LeadFilter) ([]*models.Lead, error)
	FindRecentLeadByPhone(ctx context.Context, phone string, since time.Time) (*models.Lead, error)
	// CreateLeadUnlessRecent atomically inserts lead unless its phone has a
	// lead created at or after since; that older lead is returned instead,
	// with created=false.
	CreateLeadUnlessRecent(ctx context.Context, lead *models.Lead, since time.Time) (stored *models.Lead, created bool, err error)
	SetTierOverride(ctx context.Context, id string, tier scoring.Tier) error
	MarkDisputed(ctx context.Context, id, reason string) error
	// MarkReplaced flags the lead and bumps the owning client's replaced counter.
	MarkReplaced(ctx context.Context, id string) error
	LeadSummary(ctx context.Context) (*models.LeadSummary, error)
}

type ClientRepository interface {
	CreateClient(ctx context.Context, c *models.Client) error
	GetClient(ctx context.Context, id string) (*models.Client, error)
	ListClients(ctx context.Context, limit, offset int) ([]*models.Client, error)
	UpdateClient(ctx context.Context, c *models.Client) error
	ApplyPurchase(ctx context.Context, clientID string, quantity int, amountCents int64) error
}

type CodeRepository interface {
	// IssueCode counts recent sends, invalidates active codes and inserts the
	// new one in a single atomic step.
	IssueCode(ctx context.Context, p IssueCodeParams) (*models.VerificationCode, error)
	DeleteCode(ctx context.Context, id string) error
	LatestActiveCode(ctx context.Context, phone string, now time.Time) (*models.VerificationCode, error)
	// RecordFailedAttempt increments attempts only while the code is unused and
	// below max. It returns ErrConflict when the condition no longer holds.
	RecordFailedAttempt(ctx context.Context, id string, max int) (int, error)
	// ConsumeCode flips used from false to true. ErrConflict when already used.
	ConsumeCode(ctx context.Context, id string) error
}

type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, s *models.DeliverySchedule) error
	LatestSchedule(ctx context.Context, clientID string) (*models.DeliverySchedule, error)
	ReserveSlot(ctx context.Context, clientID, date string) (*Reservation, error)
	ReleaseSlot(ctx context.Context, scheduleID, date string) error
}

type DeliveryRepository interface {
	// RecordDelivery returns ErrConflict when the lead was already delivered.
	RecordDelivery(ctx context.Context, p RecordDeliveryParams) (*models.Delivery, error)
	ListDeliveriesByLead(ctx context.Context, leadID string) ([]*models.Delivery, error)
	ListDeliveriesByClient(ctx context.Context, clientID string, limit int) ([]*models.Delivery, error)
}

// Store is everything the services need from persistence.
type Store interface {
	LeadRepository
	ClientRepository
	CodeRepository
	ScheduleRepository
	DeliveryRepository
	Close() error
}
