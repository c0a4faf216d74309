// Package pdf renders the one-page lead summary attached to delivery emails.
package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"settlementsam/internal/models"
)

// Generator is mocked in service tests.
type Generator interface {
	LeadSummary(lead *models.Lead) ([]byte, error)
}

// SummaryGenerator draws with a UTF-8 TTF when FontPath is set and falls
// back to the built-in Helvetica otherwise.
type SummaryGenerator struct {
	Brand    string
	FontPath string
	fontName string
}

func NewSummaryGenerator(brand, fontPath string) *SummaryGenerator {
	g := &SummaryGenerator{Brand: brand, FontPath: fontPath, fontName: "Helvetica"}
	if fontPath != "" {
		g.fontName = "DejaVu"
	}
	return g
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func humanize(s string) string {
	if s == "" {
		return "-"
	}
	s = strings.ReplaceAll(s, "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

func (g *SummaryGenerator) LeadSummary(lead *models.Lead) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetTitle(fmt.Sprintf("Lead %s", lead.FullName()), false)
	pdf.SetAuthor(g.Brand, false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	if g.FontPath != "" {
		pdf.AddUTF8Font(g.fontName, "", g.FontPath)
		pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
	}
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 18)
	pdf.CellFormat(0, 10, "Case Summary", "", 1, "C", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("%s  |  %s", g.Brand, lead.CreatedAt.Format("Jan 2, 2006")), "", 1, "C", false, 0, "")
	g.hr(pdf)

	g.sectionTitle(pdf, "Claimant")
	g.kvLine(pdf, "Name", lead.FullName())
	g.kvLine(pdf, "Phone", formatPhone(lead.Phone))
	if lead.Email != "" {
		g.kvLine(pdf, "Email", lead.Email)
	}
	g.kvLine(pdf, "State", lead.State)
	g.hr(pdf)

	g.sectionTitle(pdf, "Incident")
	g.kvLine(pdf, "Type", humanize(lead.IncidentType))
	g.kvLine(pdf, "When", humanize(lead.Timeframe))
	g.kvLine(pdf, "Injury", humanize(string(lead.InjuryType)))
	g.kvLine(pdf, "Treatment", humanize(lead.ReceivedTreatment))
	g.kvLine(pdf, "Hospitalized", yesNo(lead.Hospitalized))
	g.kvLine(pdf, "Surgery", yesNo(lead.Surgery))
	g.kvLine(pdf, "Still treating", humanize(lead.StillInTreatment))
	g.kvLine(pdf, "Missed work", humanize(lead.MissedWork))
	if lead.LostWages > 0 {
		g.kvLine(pdf, "Lost wages", fmt.Sprintf("$%d", lead.LostWages))
	}
	g.kvLine(pdf, "Insurance", humanize(lead.InsuranceContact))
	g.kvLine(pdf, "Attorney", humanize(lead.HasAttorney))
	g.hr(pdf)

	g.sectionTitle(pdf, "Assessment")
	g.kvLine(pdf, "Score", fmt.Sprintf("%d", lead.Score))
	g.kvLine(pdf, "Tier", string(lead.EffectiveTier()))
	g.kvLine(pdf, "Estimate", fmt.Sprintf("$%d - $%d", lead.EstimateLow, lead.EstimateHigh))
	if lead.ExclusiveUntil != nil {
		g.kvLine(pdf, "Exclusive until", lead.ExclusiveUntil.Format("Jan 2, 2006"))
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(g.fontName, "", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Generated %s. Estimates are indicative only.", time.Now().UTC().Format(time.RFC1123)),
			"", 0, "C", false, 0, "")
	})

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render lead summary: %w", err)
	}
	return buf.Bytes(), nil
}

func formatPhone(p string) string {
	if len(p) != 10 {
		return p
	}
	return fmt.Sprintf("(%s) %s-%s", p[:3], p[3:6], p[6:])
}

func (g *SummaryGenerator) sectionTitle(pdf *gofpdf.Fpdf, s string) {
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 7, s, "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
}

func (g *SummaryGenerator) kvLine(pdf *gofpdf.Fpdf, key, val string) {
	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(45, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, val, "", 1, "L", false, 0, "")
}

func (g *SummaryGenerator) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(20, y, 196, y)
	pdf.SetY(y + 2)
}
