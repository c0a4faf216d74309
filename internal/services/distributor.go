package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"settlementsam/internal/apperr"
	"settlementsam/internal/logger"
	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
	"settlementsam/internal/throttle"
)

// LeadMailer emails a lead to a client's delivery address.
type LeadMailer interface {
	SendLead(ctx context.Context, client *models.Client, lead *models.Lead) error
}

// SheetWriter appends a lead row to a client's spreadsheet.
type SheetWriter interface {
	AppendLead(ctx context.Context, spreadsheetID string, lead *models.Lead) error
}

type DeliverRequest struct {
	LeadID   string                `json:"lead_id"`
	ClientID string                `json:"client_id"`
	Method   models.DeliveryMethod `json:"method"`
}

type DeliveryResult struct {
	DeliveryID     string                `json:"delivery_id"`
	Method         models.DeliveryMethod `json:"method"`
	ExclusiveUntil *time.Time            `json:"exclusive_until,omitempty"`
	Errors         []string              `json:"errors,omitempty"`
}

type DistributorSettings struct {
	Location        *time.Location
	ExclusivityDays int
}

type Distributor struct {
	store    repositories.Store
	mailer   LeadMailer
	sheets   SheetWriter
	notifier Notifier
	events   EventPublisher
	cfg      DistributorSettings
	now      func() time.Time
	log      *zap.Logger
}

func NewDistributor(store repositories.Store, mailer LeadMailer, sheets SheetWriter, cfg DistributorSettings, log *zap.Logger) *Distributor {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Distributor{
		store:    store,
		mailer:   mailer,
		sheets:   sheets,
		notifier: nopNotifier{},
		events:   nopPublisher{},
		cfg:      cfg,
		now:      time.Now,
		log:      logger.OrNop(log),
	}
}

func (d *Distributor) WithNotifier(n Notifier) *Distributor {
	if n != nil {
		d.notifier = n
	}
	return d
}

func (d *Distributor) WithEvents(p EventPublisher) *Distributor {
	if p != nil {
		d.events = p
	}
	return d
}

// Deliver sends one lead to one client. Preconditions are checked before
// anything is sent; the daily throttle slot is reserved before dispatch and
// given back if nothing could be delivered or another request won the lead.
func (d *Distributor) Deliver(ctx context.Context, req DeliverRequest) (*DeliveryResult, error) {
	method := req.Method
	if method == "" {
		method = models.MethodEmail
	}
	if !method.Valid() {
		return nil, apperr.Newf(apperr.InvalidInput, "method must be email, sheets or both, got %q", req.Method)
	}

	lead, err := d.store.GetLead(ctx, req.LeadID)
	if err != nil {
		return nil, storeErr("lead", err)
	}
	if lead.Delivered {
		return nil, apperr.New(apperr.AlreadyDelivered, "lead was already delivered")
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = lead.ClientID
	}
	if clientID == "" {
		return nil, apperr.New(apperr.NoClient, "client_id is required for an unassigned lead")
	}
	client, err := d.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, storeErr("client", err)
	}

	now := d.now()
	today := throttle.Today(now, d.cfg.Location)
	slot, err := d.store.ReserveSlot(ctx, client.ID, today)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "reserve delivery slot", err)
	}
	if slot.Throttled {
		d.log.Info("[delivery][throttle] exceeded",
			zap.String("client_id", client.ID), zap.String("date", today),
			zap.Int("target", slot.Target), zap.Int("delivered", slot.Delivered))
		return nil, apperr.Newf(apperr.ThrottleExceeded, "daily delivery target reached (%d/%d for %s)", slot.Delivered, slot.Target, today)
	}

	failures, sent := d.dispatch(ctx, method, client, lead)
	if sent == 0 {
		d.release(ctx, slot)
		details := errorStrings(failures)
		d.alert(ctx, fmt.Sprintf("Delivery of lead %s to %s failed: %v", lead.ID, client.Name, details))
		return nil, &apperr.Error{Kind: apperr.DeliveryFailed, Message: "delivery failed", Details: details, Err: failures}
	}

	status := models.DeliveryStatusDelivered
	details := errorStrings(failures)
	if len(details) > 0 {
		status = models.DeliveryStatusPartial
	}
	deliveredAt := now.UTC()
	exclusiveUntil := deliveredAt.AddDate(0, 0, d.cfg.ExclusivityDays)
	rec, err := d.store.RecordDelivery(ctx, repositories.RecordDeliveryParams{
		LeadID:         lead.ID,
		ClientID:       client.ID,
		Method:         method,
		Status:         status,
		Errors:         details,
		DeliveredAt:    deliveredAt,
		ExclusiveUntil: exclusiveUntil,
	})
	if err != nil {
		d.release(ctx, slot)
		switch {
		case errors.Is(err, repositories.ErrConflict):
			d.log.Warn("[delivery][record] lost race, lead delivered concurrently", zap.String("lead_id", lead.ID))
			return nil, apperr.New(apperr.AlreadyDelivered, "lead was already delivered")
		case errors.Is(err, repositories.ErrNotFound):
			return nil, apperr.New(apperr.NotFound, "lead or client disappeared during delivery")
		default:
			return nil, apperr.Wrap(apperr.Internal, "record delivery", err)
		}
	}

	d.log.Info("[delivery][send] ok",
		zap.String("lead_id", lead.ID),
		zap.String("client_id", client.ID),
		zap.String("method", string(method)),
		zap.String("status", status))
	if len(details) > 0 {
		d.alert(ctx, fmt.Sprintf("Lead %s delivered to %s with errors: %v", lead.ID, client.Name, details))
	}
	d.events.Publish(EventLeadDelivered, rec)

	return &DeliveryResult{
		DeliveryID:     rec.ID,
		Method:         method,
		ExclusiveUntil: rec.ExclusiveUntil,
		Errors:         details,
	}, nil
}

// dispatch runs every requested channel and returns the collected failures
// together with the number of channels that succeeded.
func (d *Distributor) dispatch(ctx context.Context, method models.DeliveryMethod, client *models.Client, lead *models.Lead) (*multierror.Error, int) {
	var (
		result *multierror.Error
		sent   int
	)
	if method == models.MethodEmail || method == models.MethodBoth {
		if err := d.sendEmail(ctx, client, lead); err != nil {
			result = multierror.Append(result, fmt.Errorf("email: %w", err))
		} else {
			sent++
		}
	}
	if method == models.MethodSheets || method == models.MethodBoth {
		if err := d.appendSheet(ctx, client, lead); err != nil {
			result = multierror.Append(result, fmt.Errorf("sheets: %w", err))
		} else {
			sent++
		}
	}
	return result, sent
}

func (d *Distributor) sendEmail(ctx context.Context, client *models.Client, lead *models.Lead) error {
	if d.mailer == nil {
		return errors.New("email delivery is not configured")
	}
	if client.DeliveryEmail == "" {
		return errors.New("client has no delivery email")
	}
	return d.mailer.SendLead(ctx, client, lead)
}

func (d *Distributor) appendSheet(ctx context.Context, client *models.Client, lead *models.Lead) error {
	if d.sheets == nil {
		return errors.New("sheets delivery is not configured")
	}
	if client.SheetsID == "" {
		return errors.New("client has no spreadsheet id")
	}
	return d.sheets.AppendLead(ctx, client.SheetsID, lead)
}

func (d *Distributor) release(ctx context.Context, slot *repositories.Reservation) {
	if slot == nil || !slot.Scheduled {
		return
	}
	if err := d.store.ReleaseSlot(context.WithoutCancel(ctx), slot.ScheduleID, slot.Date); err != nil {
		d.log.Error("[delivery][throttle] release slot failed",
			zap.String("schedule_id", slot.ScheduleID), zap.String("date", slot.Date), zap.Error(err))
	}
}

func (d *Distributor) alert(ctx context.Context, text string) {
	if err := d.notifier.Notify(ctx, text); err != nil {
		d.log.Warn("[delivery][notify] failed", zap.Error(err))
	}
}

func errorStrings(result *multierror.Error) []string {
	if result == nil {
		return nil
	}
	out := make([]string, 0, len(result.Errors))
	for _, err := range result.Errors {
		out = append(out, err.Error())
	}
	return out
}
