package services

import (
	"context"

	"settlementsam/internal/apperr"
	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
)

type ClientStat struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	LeadsPurchased int    `json:"leads_purchased"`
	LeadsDelivered int    `json:"leads_delivered"`
	LeadsReplaced  int    `json:"leads_replaced"`
	Owed           int    `json:"owed"`
}

type Summary struct {
	Leads   models.LeadSummary `json:"leads"`
	Clients []ClientStat       `json:"clients"`
}

type ReportService struct {
	leads   repositories.LeadRepository
	clients repositories.ClientRepository
}

func NewReportService(leads repositories.LeadRepository, clients repositories.ClientRepository) *ReportService {
	return &ReportService{leads: leads, clients: clients}
}

const reportClientLimit = 500

// Summary counts leads by effective tier and lifecycle flag, and lists how
// many leads each client is still owed.
func (s *ReportService) Summary(ctx context.Context) (*Summary, error) {
	ls, err := s.leads.LeadSummary(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "lead summary", err)
	}
	clients, err := s.clients.ListClients(ctx, reportClientLimit, 0)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list clients", err)
	}
	out := &Summary{Leads: *ls, Clients: make([]ClientStat, 0, len(clients))}
	for _, c := range clients {
		owed := c.LeadsPurchased + c.LeadsReplaced - c.LeadsDelivered
		if owed < 0 {
			owed = 0
		}
		out.Clients = append(out.Clients, ClientStat{
			ID:             c.ID,
			Name:           c.Name,
			LeadsPurchased: c.LeadsPurchased,
			LeadsDelivered: c.LeadsDelivered,
			LeadsReplaced:  c.LeadsReplaced,
			Owed:           owed,
		})
	}
	return out, nil
}
