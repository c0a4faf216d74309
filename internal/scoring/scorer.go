// Package scoring turns quiz answers into a lead score, tier and settlement estimate.
package scoring

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Tier string

const (
	TierHot  Tier = "HOT"
	TierWarm Tier = "WARM"
	TierCold Tier = "COLD"
)

const (
	HotThreshold  = 75
	WarmThreshold = 50
)

// Point weights.
const (
	pointsSurgery          = 50
	pointsHospitalized     = 30
	pointsLostWages        = 25
	pointsStillTreating    = 20
	pointsInsuranceContact = 15
	pointsCantWork         = 15
	pointsMissedSomeWork   = 10
	pointsERDoctor         = 10

	lostWagesThreshold = 10_000
)

// Answer values.
const (
	TreatmentERDoctor    = "er_doctor"
	TreatmentUrgentCare  = "urgent_care"
	TreatmentChiro       = "chiropractor"
	TreatmentNone        = "none"
	StillTreatingYes     = "yes"
	StillTreatingNo      = "no"
	StillTreatingDone    = "finished"
	MissedWorkCantWork   = "yes_cant_work"
	MissedWorkSome       = "yes_some"
	MissedWorkNo         = "no"
	InsuranceGotLetter   = "got_letter"
	InsuranceTalked      = "talked_adjuster"
	InsuranceNo          = "no"
	AttorneyYes          = "yes"
	AttorneyNo           = "no"
	AttorneyTalked       = "talked"
	DisqualifiedAtFault  = "at_fault"
	IncidentCar          = "car"
	IncidentTruck        = "truck"
	IncidentMotorcycle   = "motorcycle"
	IncidentPedestrian   = "pedestrian"
	IncidentSlipFall     = "slip_fall"
	IncidentWorkplace    = "workplace"
	IncidentOther        = "other"
	TimeframeUnder6Month = "under_6_months"
	Timeframe6To12Months = "6_12_months"
	Timeframe1To2Years   = "1_2_years"
	TimeframeOver2Years  = "over_2_years"
)

var ErrDisqualified = errors.New("claimant reported being at fault")

// Answers is one completed quiz.
type Answers struct {
	IncidentType      string `json:"incident_type" binding:"required,oneof=car truck motorcycle pedestrian slip_fall workplace other"`
	State             string `json:"state" binding:"required,len=2,alpha"`
	Timeframe         string `json:"timeframe" binding:"required,oneof=under_6_months 6_12_months 1_2_years over_2_years"`
	AtFault           bool   `json:"at_fault"`
	ReceivedTreatment string `json:"received_treatment" binding:"required,oneof=er_doctor urgent_care chiropractor none"`
	Hospitalized      bool   `json:"hospitalized"`
	Surgery           bool   `json:"surgery"`
	StillInTreatment  string `json:"still_in_treatment" binding:"required,oneof=yes no finished"`
	MissedWork        string `json:"missed_work" binding:"required,oneof=yes_cant_work yes_some no"`
	LostWages         int    `json:"lost_wages" binding:"gte=0"`
	InsuranceContact  string `json:"insurance_contact" binding:"required,oneof=got_letter talked_adjuster no"`
	HasAttorney       string `json:"has_attorney" binding:"required,oneof=yes no talked"`
}

// answerValidator runs the same `binding` rules gin applies to request
// bodies, so callers outside HTTP get identical checks.
var answerValidator = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}()

// Validate checks every answer against its binding rules and names the
// failing fields.
func (a Answers) Validate() error {
	err := answerValidator.Struct(a)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	bad := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		bad = append(bad, fe.Field())
	}
	sort.Strings(bad)
	return fmt.Errorf("invalid answers: %s", strings.Join(bad, ", "))
}

// Disqualifier returns "at_fault" when the claim cannot be scored, "" otherwise.
func Disqualifier(a Answers) string {
	if a.AtFault {
		return DisqualifiedAtFault
	}
	return ""
}

// SoftExit is true when the claimant already has an attorney. Scoring still
// happens; callers show a non-sales message.
func SoftExit(a Answers) bool {
	return a.HasAttorney == AttorneyYes
}

// Score sums the fixed weights. The sum is not clamped; the heaviest
// combination reaches 165.
func Score(a Answers) (int, error) {
	if Disqualifier(a) != "" {
		return 0, ErrDisqualified
	}
	score := 0
	if a.Surgery {
		score += pointsSurgery
	}
	if a.Hospitalized {
		score += pointsHospitalized
	}
	if a.LostWages > lostWagesThreshold {
		score += pointsLostWages
	}
	if a.StillInTreatment == StillTreatingYes {
		score += pointsStillTreating
	}
	if a.InsuranceContact == InsuranceGotLetter || a.InsuranceContact == InsuranceTalked {
		score += pointsInsuranceContact
	}
	if a.ReceivedTreatment == TreatmentERDoctor {
		score += pointsERDoctor
	}
	switch a.MissedWork {
	case MissedWorkCantWork:
		score += pointsCantWork
	case MissedWorkSome:
		score += pointsMissedSomeWork
	}
	return score, nil
}

func TierFor(score int) Tier {
	switch {
	case score >= HotThreshold:
		return TierHot
	case score >= WarmThreshold:
		return TierWarm
	default:
		return TierCold
	}
}

// InjuryBucket infers the estimator bucket from the answers.
func InjuryBucket(a Answers) InjuryType {
	switch {
	case a.Surgery:
		return Spinal
	case a.Hospitalized:
		return Fracture
	default:
		return SoftTissue
	}
}

func EstimateFor(a Answers) Range {
	return Estimate(string(InjuryBucket(a)), a.Surgery, a.LostWages)
}

// Result is the full outcome of one quiz. Score, Tier and Estimate are nil
// for disqualified answers.
type Result struct {
	Disqualified bool   `json:"disqualified"`
	Reason       string `json:"reason,omitempty"`
	SoftExit     bool   `json:"soft_exit"`
	Score        *int   `json:"score,omitempty"`
	Tier         *Tier  `json:"tier,omitempty"`
	Estimate     *Range `json:"estimate,omitempty"`
}

func Evaluate(a Answers) Result {
	if reason := Disqualifier(a); reason != "" {
		return Result{Disqualified: true, Reason: reason}
	}
	score, _ := Score(a)
	tier := TierFor(score)
	est := EstimateFor(a)
	return Result{
		SoftExit: SoftExit(a),
		Score:    &score,
		Tier:     &tier,
		Estimate: &est,
	}
}
