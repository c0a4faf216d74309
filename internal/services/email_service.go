package services

import (
	"context"
	"fmt"
	"html"
	"io"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"settlementsam/internal/logger"
	"settlementsam/internal/models"
	"settlementsam/internal/pdf"
	"settlementsam/internal/utils"
)

func NewDialer(host string, port int, user, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, user, password)
}

// EmailService delivers leads to law firms with the PDF summary attached.
type EmailService struct {
	sender utils.MailSender
	from   string
	brand  string
	docs   pdf.Generator
	log    *zap.Logger
}

func NewEmailService(sender utils.MailSender, from, brand string, docs pdf.Generator, log *zap.Logger) *EmailService {
	return &EmailService{sender: sender, from: from, brand: brand, docs: docs, log: logger.OrNop(log)}
}

func (s *EmailService) SendLead(ctx context.Context, client *models.Client, lead *models.Lead) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", client.DeliveryEmail)
	m.SetHeader("Subject", fmt.Sprintf("New %s lead: %s (%s)", lead.EffectiveTier(), lead.FullName(), lead.State))

	body := fmt.Sprintf(`
		<h2>New lead for %s</h2>
		<p><strong>%s</strong><br>Phone: %s<br>State: %s</p>
		<p>Incident: %s, %s<br>Score: %d (%s)<br>Estimated value: $%d - $%d</p>
		<p>This lead is exclusive to you. The full case summary is attached.</p>
		<p>%s</p>
	`,
		html.EscapeString(client.Name),
		html.EscapeString(lead.FullName()), lead.Phone, lead.State,
		html.EscapeString(lead.IncidentType), html.EscapeString(lead.Timeframe),
		lead.Score, lead.EffectiveTier(), lead.EstimateLow, lead.EstimateHigh,
		html.EscapeString(s.brand),
	)
	m.SetBody("text/html", body)

	if s.docs != nil {
		doc, err := s.docs.LeadSummary(lead)
		if err != nil {
			return err
		}
		m.Attach(fmt.Sprintf("lead-%s.pdf", lead.ID), gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(doc)
			return err
		}))
	}

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send lead email: %w", err)
	}
	s.log.Info("[email][lead] sent", zap.String("lead_id", lead.ID), zap.String("client_id", client.ID))
	return nil
}
