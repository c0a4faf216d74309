package services

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"settlementsam/internal/apperr"
	"settlementsam/internal/logger"
	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
	"settlementsam/internal/throttle"
)

type ClientService struct {
	Repo repositories.ClientRepository
	log  *zap.Logger
}

func NewClientService(repo repositories.ClientRepository, log *zap.Logger) *ClientService {
	return &ClientService{Repo: repo, log: logger.OrNop(log)}
}

func validEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}

func normalizeClient(c *models.Client) error {
	c.Name = strings.TrimSpace(c.Name)
	c.ContactEmail = strings.TrimSpace(c.ContactEmail)
	c.DeliveryEmail = strings.TrimSpace(c.DeliveryEmail)
	c.SheetsID = strings.TrimSpace(c.SheetsID)
	if c.Name == "" {
		return apperr.New(apperr.InvalidInput, "name is required")
	}
	if c.DeliveryEmail == "" {
		c.DeliveryEmail = c.ContactEmail
	}
	if c.DeliveryEmail != "" && !validEmail(c.DeliveryEmail) {
		return apperr.Newf(apperr.InvalidInput, "invalid delivery email %q", c.DeliveryEmail)
	}
	if c.ContactEmail != "" && !validEmail(c.ContactEmail) {
		return apperr.Newf(apperr.InvalidInput, "invalid contact email %q", c.ContactEmail)
	}
	mode, err := throttle.ParseMode(c.ThrottleMode)
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, "invalid throttle mode", err)
	}
	c.ThrottleMode = string(mode)
	return nil
}

func (s *ClientService) Create(ctx context.Context, c *models.Client) error {
	if err := normalizeClient(c); err != nil {
		return err
	}
	c.Active = true
	if err := s.Repo.CreateClient(ctx, c); err != nil {
		return apperr.Wrap(apperr.Internal, "create client", err)
	}
	s.log.Info("[client][create] ok", zap.String("client_id", c.ID), zap.String("name", c.Name))
	return nil
}

// Update rewrites the profile fields. Counters and balance only move through
// purchases and deliveries.
func (s *ClientService) Update(ctx context.Context, c *models.Client) error {
	if err := normalizeClient(c); err != nil {
		return err
	}
	if err := s.Repo.UpdateClient(ctx, c); err != nil {
		return storeErr("client", err)
	}
	return nil
}

func (s *ClientService) Get(ctx context.Context, id string) (*models.Client, error) {
	c, err := s.Repo.GetClient(ctx, id)
	if err != nil {
		return nil, storeErr("client", err)
	}
	return c, nil
}

func (s *ClientService) List(ctx context.Context, limit, offset int) ([]*models.Client, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	clients, err := s.Repo.ListClients(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list clients", err)
	}
	if clients == nil {
		clients = []*models.Client{}
	}
	return clients, nil
}
