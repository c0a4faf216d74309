package models

import (
	"time"

	"settlementsam/internal/scoring"
)

// Lead is a claimant's verified case record.
type Lead struct {
	ID        string `json:"id" firestore:"-"`
	FirstName string `json:"first_name" firestore:"firstName"`
	LastName  string `json:"last_name" firestore:"lastName"`
	Phone     string `json:"phone" firestore:"phone"`
	Email     string `json:"email,omitempty" firestore:"email"`
	Carrier   string `json:"carrier,omitempty" firestore:"carrier"`

	State             string             `json:"state" firestore:"state"`
	IncidentType      string             `json:"incident_type" firestore:"incidentType"`
	Timeframe         string             `json:"timeframe" firestore:"timeframe"`
	InjuryType        scoring.InjuryType `json:"injury_type" firestore:"injuryType"`
	ReceivedTreatment string             `json:"received_treatment" firestore:"receivedTreatment"`
	Hospitalized      bool               `json:"hospitalized" firestore:"hospitalized"`
	Surgery           bool               `json:"surgery" firestore:"surgery"`
	StillInTreatment  string             `json:"still_in_treatment" firestore:"stillInTreatment"`
	MissedWork        string             `json:"missed_work" firestore:"missedWork"`
	LostWages         int                `json:"lost_wages" firestore:"lostWages"`
	InsuranceContact  string             `json:"insurance_contact" firestore:"insuranceContact"`
	HasAttorney       string             `json:"has_attorney" firestore:"hasAttorney"`

	Score        int          `json:"score" firestore:"score"`
	Tier         scoring.Tier `json:"tier" firestore:"tier"`
	TierOverride scoring.Tier `json:"tier_override,omitempty" firestore:"tierOverride"`
	EstimateLow  int          `json:"estimate_low" firestore:"estimateLow"`
	EstimateHigh int          `json:"estimate_high" firestore:"estimateHigh"`

	Verified      bool   `json:"verified" firestore:"verified"`
	Delivered     bool   `json:"delivered" firestore:"delivered"`
	Disputed      bool   `json:"disputed" firestore:"disputed"`
	DisputeReason string `json:"dispute_reason,omitempty" firestore:"disputeReason"`
	Replaced      bool   `json:"replaced" firestore:"replaced"`

	ClientID       string     `json:"client_id,omitempty" firestore:"clientId"`
	ExclusiveUntil *time.Time `json:"exclusive_until,omitempty" firestore:"exclusiveUntil"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty" firestore:"deliveredAt"`
	CreatedAt      time.Time  `json:"created_at" firestore:"createdAt"`
}

// EffectiveTier is the admin override when present, else the score-derived tier.
func (l *Lead) EffectiveTier() scoring.Tier {
	if l.TierOverride != "" {
		return l.TierOverride
	}
	return l.Tier
}

func (l *Lead) FullName() string {
	if l.LastName == "" {
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

// LeadFilter narrows admin lead listings. Nil pointers mean "any".
type LeadFilter struct {
	Tier      scoring.Tier
	Verified  *bool
	Delivered *bool
	Disputed  *bool
	ClientID  string
	Limit     int
	Offset    int
}

type LeadSummary struct {
	Total     int `json:"total"`
	Hot       int `json:"hot"`
	Warm      int `json:"warm"`
	Cold      int `json:"cold"`
	Verified  int `json:"verified"`
	Delivered int `json:"delivered"`
	Disputed  int `json:"disputed"`
	Replaced  int `json:"replaced"`
}
