package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"settlementsam/internal/apperr"
	"settlementsam/internal/logger"
	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
	"settlementsam/internal/scoring"
	"settlementsam/internal/utils"
)

// Notifier pushes short operator alerts (Telegram in production).
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// EventPublisher fans events out to live admin dashboards.
type EventPublisher interface {
	Publish(event string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

const (
	EventLeadCreated   = "lead.created"
	EventLeadDelivered = "lead.delivered"
)

// LeadSubmission is what the widget posts after the claimant verified their phone.
type LeadSubmission struct {
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	Carrier   string          `json:"carrier"`
	Answers   scoring.Answers `json:"answers"`
}

type LeadDetail struct {
	*models.Lead
	Deliveries []*models.Delivery `json:"deliveries"`
}

type LeadService struct {
	Repo       repositories.LeadRepository
	Deliveries repositories.DeliveryRepository

	notifier     Notifier
	events       EventPublisher
	dedupeWindow time.Duration
	now          func() time.Time
	log          *zap.Logger
}

func NewLeadService(repo repositories.LeadRepository, deliveries repositories.DeliveryRepository, dedupeWindow time.Duration, log *zap.Logger) *LeadService {
	return &LeadService{
		Repo:         repo,
		Deliveries:   deliveries,
		notifier:     nopNotifier{},
		events:       nopPublisher{},
		dedupeWindow: dedupeWindow,
		now:          time.Now,
		log:          logger.OrNop(log),
	}
}

func (s *LeadService) WithNotifier(n Notifier) *LeadService {
	if n != nil {
		s.notifier = n
	}
	return s
}

func (s *LeadService) WithEvents(p EventPublisher) *LeadService {
	if p != nil {
		s.events = p
	}
	return s
}

// storeErr maps repository sentinels onto domain kinds.
func storeErr(what string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.Newf(apperr.NotFound, "%s not found", what)
	}
	return apperr.Wrap(apperr.Internal, what, err)
}

// CreateVerifiedLead scores the answers server-side and stores the lead for a
// phone that has just passed OTP. A lead for the same phone inside the dedupe
// window is returned instead of creating a second one; created reports which
// case happened.
func (s *LeadService) CreateVerifiedLead(ctx context.Context, phone string, sub LeadSubmission) (lead *models.Lead, created bool, err error) {
	sub.FirstName = strings.TrimSpace(sub.FirstName)
	if sub.FirstName == "" {
		return nil, false, apperr.New(apperr.InvalidInput, "first_name is required")
	}
	if err := sub.Answers.Validate(); err != nil {
		return nil, false, apperr.Wrap(apperr.InvalidInput, "invalid answers", err)
	}
	res := scoring.Evaluate(sub.Answers)
	if res.Disqualified {
		return nil, false, apperr.Newf(apperr.InvalidInput, "claim is not eligible: %s", res.Reason)
	}

	now := s.now().UTC()
	a := sub.Answers
	lead = &models.Lead{
		FirstName:         sub.FirstName,
		LastName:          strings.TrimSpace(sub.LastName),
		Phone:             phone,
		Email:             strings.TrimSpace(sub.Email),
		Carrier:           utils.NormalizeCarrier(sub.Carrier),
		State:             strings.ToUpper(strings.TrimSpace(a.State)),
		IncidentType:      a.IncidentType,
		Timeframe:         a.Timeframe,
		InjuryType:        scoring.InjuryBucket(a),
		ReceivedTreatment: a.ReceivedTreatment,
		Hospitalized:      a.Hospitalized,
		Surgery:           a.Surgery,
		StillInTreatment:  a.StillInTreatment,
		MissedWork:        a.MissedWork,
		LostWages:         a.LostWages,
		InsuranceContact:  a.InsuranceContact,
		HasAttorney:       a.HasAttorney,
		Score:             *res.Score,
		Tier:              *res.Tier,
		EstimateLow:       res.Estimate.Low,
		EstimateHigh:      res.Estimate.High,
		Verified:          true,
		CreatedAt:         now,
	}
	if s.dedupeWindow > 0 {
		stored, fresh, err := s.Repo.CreateLeadUnlessRecent(ctx, lead, now.Add(-s.dedupeWindow))
		if err != nil {
			return nil, false, apperr.Wrap(apperr.Internal, "create lead", err)
		}
		if !fresh {
			s.log.Info("[lead][create] duplicate phone, returning existing lead", zap.String("lead_id", stored.ID))
			return stored, false, nil
		}
	} else if err := s.Repo.CreateLead(ctx, lead); err != nil {
		return nil, false, apperr.Wrap(apperr.Internal, "create lead", err)
	}

	s.log.Info("[lead][create] ok", zap.String("lead_id", lead.ID), zap.Int("score", lead.Score), zap.String("tier", string(lead.Tier)))
	s.events.Publish(EventLeadCreated, lead)
	if lead.Tier == scoring.TierHot {
		msg := fmt.Sprintf("HOT lead %s (%s, score %d, est $%d-$%d)", lead.FullName(), lead.State, lead.Score, lead.EstimateLow, lead.EstimateHigh)
		if err := s.notifier.Notify(ctx, msg); err != nil {
			s.log.Warn("[lead][create] notify failed", zap.Error(err))
		}
	}
	return lead, true, nil
}

func (s *LeadService) Get(ctx context.Context, id string) (*LeadDetail, error) {
	lead, err := s.Repo.GetLead(ctx, id)
	if err != nil {
		return nil, storeErr("lead", err)
	}
	deliveries, err := s.Deliveries.ListDeliveriesByLead(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list deliveries", err)
	}
	if deliveries == nil {
		deliveries = []*models.Delivery{}
	}
	return &LeadDetail{Lead: lead, Deliveries: deliveries}, nil
}

func (s *LeadService) List(ctx context.Context, f models.LeadFilter) ([]*models.Lead, error) {
	if f.Tier != "" && !validTier(f.Tier) {
		return nil, apperr.Newf(apperr.InvalidInput, "unknown tier %q", f.Tier)
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	leads, err := s.Repo.ListLeads(ctx, f)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list leads", err)
	}
	if leads == nil {
		leads = []*models.Lead{}
	}
	return leads, nil
}

func validTier(t scoring.Tier) bool {
	return t == scoring.TierHot || t == scoring.TierWarm || t == scoring.TierCold
}

// OverrideTier records an admin tier next to the derived one. An empty tier
// clears the override.
func (s *LeadService) OverrideTier(ctx context.Context, id string, tier string) error {
	t := scoring.Tier(strings.ToUpper(strings.TrimSpace(tier)))
	if t != "" && !validTier(t) {
		return apperr.Newf(apperr.InvalidInput, "unknown tier %q", tier)
	}
	if err := s.Repo.SetTierOverride(ctx, id, t); err != nil {
		return storeErr("lead", err)
	}
	s.log.Info("[lead][tier] override", zap.String("lead_id", id), zap.String("tier", string(t)))
	return nil
}

func (s *LeadService) Dispute(ctx context.Context, id, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.New(apperr.InvalidInput, "reason is required")
	}
	if err := s.Repo.MarkDisputed(ctx, id, reason); err != nil {
		return storeErr("lead", err)
	}
	s.log.Info("[lead][dispute] ok", zap.String("lead_id", id))
	return nil
}

// Replace credits the client for a delivered lead that turned out bad.
func (s *LeadService) Replace(ctx context.Context, id string) error {
	lead, err := s.Repo.GetLead(ctx, id)
	if err != nil {
		return storeErr("lead", err)
	}
	if !lead.Delivered {
		return apperr.New(apperr.InvalidInput, "only delivered leads can be replaced")
	}
	if err := s.Repo.MarkReplaced(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return apperr.New(apperr.InvalidInput, "lead was already replaced")
		}
		return storeErr("lead", err)
	}
	s.log.Info("[lead][replace] ok", zap.String("lead_id", id), zap.String("client_id", lead.ClientID))
	return nil
}
