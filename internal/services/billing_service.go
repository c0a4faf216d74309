package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/zap"

	"settlementsam/internal/apperr"
	"settlementsam/internal/logger"
	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
	"settlementsam/internal/throttle"
)

const stripeCheckoutCompleted = "checkout.session.completed"

// Purchase is one lead package bought by a client. An empty Mode falls back
// to the client's throttle mode, an empty StartDate to today.
type Purchase struct {
	ClientID    string `json:"client_id"`
	Quantity    int    `json:"quantity"`
	AmountCents int64  `json:"amount_cents"`
	Mode        string `json:"mode"`
	StartDate   string `json:"start_date"`
}

type PurchaseResult struct {
	Client   *models.Client           `json:"client"`
	Schedule *models.DeliverySchedule `json:"schedule"`
}

// ScheduleStatus is the latest schedule together with today's throttle state.
type ScheduleStatus struct {
	*models.DeliverySchedule
	Today          string `json:"today"`
	TodayTarget    int    `json:"today_target"`
	TodayDelivered int    `json:"today_delivered"`
	Throttled      bool   `json:"throttled"`
	Remaining      int    `json:"remaining"`
}

type BillingSettings struct {
	Location      *time.Location
	// MaxPackage caps one purchase; zero or anything above
	// throttle.MaxQuantity means throttle.MaxQuantity.
	MaxPackage    int
	SkipWeekends  bool
	WebhookSecret string
}

type BillingService struct {
	clients   repositories.ClientRepository
	schedules repositories.ScheduleRepository
	cfg       BillingSettings
	now       func() time.Time
	log       *zap.Logger
}

func NewBillingService(clients repositories.ClientRepository, schedules repositories.ScheduleRepository, cfg BillingSettings, log *zap.Logger) *BillingService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxPackage <= 0 || cfg.MaxPackage > throttle.MaxQuantity {
		cfg.MaxPackage = throttle.MaxQuantity
	}
	return &BillingService{
		clients:   clients,
		schedules: schedules,
		cfg:       cfg,
		now:       time.Now,
		log:       logger.OrNop(log),
	}
}

// ApplyPurchase credits the client and lays the package out as a delivery
// schedule starting at the purchase's start date.
func (s *BillingService) ApplyPurchase(ctx context.Context, p Purchase) (*PurchaseResult, error) {
	if p.Quantity <= 0 || p.Quantity > s.cfg.MaxPackage {
		return nil, apperr.Newf(apperr.InvalidInput, "quantity must be between 1 and %d", s.cfg.MaxPackage)
	}
	if p.AmountCents < 0 {
		return nil, apperr.New(apperr.InvalidInput, "amount_cents must not be negative")
	}
	client, err := s.clients.GetClient(ctx, p.ClientID)
	if err != nil {
		return nil, storeErr("client", err)
	}

	modeName := p.Mode
	if strings.TrimSpace(modeName) == "" {
		modeName = client.ThrottleMode
	}
	mode, err := throttle.ParseMode(modeName)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "invalid throttle mode", err)
	}

	start := s.now().In(s.cfg.Location)
	if p.StartDate != "" {
		start, err = time.ParseInLocation(throttle.DateLayout, p.StartDate, s.cfg.Location)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, "start_date must be YYYY-MM-DD", err)
		}
	}
	plan, err := throttle.Generate(p.Quantity, start, mode, nil, throttle.SkipWeekends(s.cfg.SkipWeekends))
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "generate schedule", err)
	}

	if err := s.clients.ApplyPurchase(ctx, client.ID, p.Quantity, p.AmountCents); err != nil {
		return nil, storeErr("client", err)
	}
	ds := &models.DeliverySchedule{
		ClientID:  client.ID,
		Mode:      string(mode),
		Quantity:  p.Quantity,
		StartDate: start.Format(throttle.DateLayout),
		Targets:   plan,
	}
	if err := s.schedules.CreateSchedule(ctx, ds); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "create schedule", err)
	}

	updated, err := s.clients.GetClient(ctx, client.ID)
	if err != nil {
		return nil, storeErr("client", err)
	}
	s.log.Info("[billing][purchase] ok",
		zap.String("client_id", client.ID),
		zap.Int("quantity", p.Quantity),
		zap.Int64("amount_cents", p.AmountCents),
		zap.String("mode", string(mode)),
		zap.Int("days", len(plan)))
	return &PurchaseResult{Client: updated, Schedule: ds}, nil
}

// HandleStripeWebhook verifies the signature and applies completed checkout
// sessions. Other event types are acknowledged and ignored (nil result).
func (s *BillingService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (*PurchaseResult, error) {
	if s.cfg.WebhookSecret == "" {
		return nil, apperr.New(apperr.Internal, "stripe webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, "invalid stripe signature", err)
	}
	if event.Type != stripeCheckoutCompleted {
		s.log.Debug("[billing][webhook] ignored", zap.String("type", string(event.Type)))
		return nil, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "decode checkout session", err)
	}
	p, err := purchaseFromSession(&session)
	if err != nil {
		return nil, err
	}
	s.log.Info("[billing][webhook] checkout completed", zap.String("session_id", session.ID), zap.String("client_id", p.ClientID))
	return s.ApplyPurchase(ctx, p)
}

func purchaseFromSession(session *stripe.CheckoutSession) (Purchase, error) {
	md := session.Metadata
	p := Purchase{
		ClientID:    strings.TrimSpace(md["client_id"]),
		Mode:        md["throttle_mode"],
		AmountCents: session.AmountTotal,
	}
	if p.ClientID == "" {
		return p, apperr.New(apperr.InvalidInput, "checkout session has no client_id metadata")
	}
	qty, err := strconv.Atoi(strings.TrimSpace(md["quantity"]))
	if err != nil {
		return p, apperr.Wrap(apperr.InvalidInput, "checkout session quantity metadata", err)
	}
	p.Quantity = qty
	return p, nil
}

// ScheduleStatus reports the client's latest schedule and whether a delivery
// right now would be throttled.
func (s *BillingService) ScheduleStatus(ctx context.Context, clientID string) (*ScheduleStatus, error) {
	if _, err := s.clients.GetClient(ctx, clientID); err != nil {
		return nil, storeErr("client", err)
	}
	ds, err := s.schedules.LatestSchedule(ctx, clientID)
	if err != nil {
		return nil, storeErr("schedule", err)
	}
	today := throttle.Today(s.now(), s.cfg.Location)
	delivered := 0
	for _, n := range ds.DeliveredByDate {
		delivered += n
	}
	st := &ScheduleStatus{
		DeliverySchedule: ds,
		Today:            today,
		TodayTarget:      ds.Targets[today],
		TodayDelivered:   ds.DeliveredByDate[today],
		Throttled:        throttle.IsThrottled(ds.Targets, today, ds.DeliveredByDate[today]),
		Remaining:        ds.Quantity - delivered,
	}
	return st, nil
}
