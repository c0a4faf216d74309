package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"settlementsam/internal/logger"
	"settlementsam/internal/models"
)

// SheetsService appends delivered leads to a client's Google spreadsheet.
type SheetsService struct {
	svc      *sheets.Service
	appendTo string
	log      *zap.Logger
}

// NewSheetsService authenticates with a service-account file. Extra options
// (endpoint, HTTP client) are appended after the credentials.
func NewSheetsService(ctx context.Context, credentialsFile, appendRange string, log *zap.Logger, opts ...option.ClientOption) (*SheetsService, error) {
	var clientOpts []option.ClientOption
	if credentialsFile != "" {
		clientOpts = append(clientOpts,
			option.WithCredentialsFile(credentialsFile),
			option.WithScopes(sheets.SpreadsheetsScope))
	}
	clientOpts = append(clientOpts, opts...)
	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &SheetsService{svc: svc, appendTo: appendRange, log: logger.OrNop(log)}, nil
}

// LeadRow is the column order of the delivery spreadsheet.
func LeadRow(lead *models.Lead) []interface{} {
	return []interface{}{
		lead.CreatedAt.Format("2006-01-02 15:04"),
		lead.FirstName,
		lead.LastName,
		lead.Phone,
		lead.Email,
		lead.State,
		lead.IncidentType,
		lead.Timeframe,
		string(lead.InjuryType),
		lead.Score,
		string(lead.EffectiveTier()),
		lead.EstimateLow,
		lead.EstimateHigh,
		lead.ID,
	}
}

func (s *SheetsService) AppendLead(ctx context.Context, spreadsheetID string, lead *models.Lead) error {
	vr := &sheets.ValueRange{
		MajorDimension: "ROWS",
		Range:          s.appendTo,
		Values:         [][]interface{}{LeadRow(lead)},
	}
	_, err := s.svc.Spreadsheets.Values.
		Append(spreadsheetID, s.appendTo, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		IncludeValuesInResponse(false).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append lead row: %w", err)
	}
	s.log.Info("[sheets][append] ok", zap.String("lead_id", lead.ID), zap.String("spreadsheet", spreadsheetID))
	return nil
}
