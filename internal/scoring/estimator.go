package scoring

import (
	"math"
	"strings"
)

type InjuryType string

const (
	SoftTissue InjuryType = "soft_tissue"
	Fracture   InjuryType = "fracture"
	TBI        InjuryType = "tbi"
	Spinal     InjuryType = "spinal"
	Other      InjuryType = "other"
)

// SurgeryMultiplier scales both bounds of the base range when the claimant had surgery.
const SurgeryMultiplier = 1.5

// Range is a settlement estimate in whole dollars.
type Range struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

var baseRanges = map[InjuryType]Range{
	SoftTissue: {Low: 5_000, High: 25_000},
	Fracture:   {Low: 25_000, High: 100_000},
	TBI:        {Low: 100_000, High: 500_000},
	Spinal:     {Low: 75_000, High: 350_000},
	Other:      {Low: 5_000, High: 30_000},
}

// NormalizeInjuryType maps free-form input onto a known bucket. Unknown keys
// land in Other.
func NormalizeInjuryType(s string) InjuryType {
	t := InjuryType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := baseRanges[t]; ok {
		return t
	}
	return Other
}

// Estimate returns the dollar range for an injury bucket, scaled for surgery
// and shifted by lost wages (negative wages count as zero).
func Estimate(injuryType string, surgery bool, lostWages int) Range {
	base := baseRanges[NormalizeInjuryType(injuryType)]
	low, high := base.Low, base.High
	if surgery {
		low = int(math.Round(float64(low) * SurgeryMultiplier))
		high = int(math.Round(float64(high) * SurgeryMultiplier))
	}
	if lostWages > 0 {
		low += lostWages
		high += lostWages
	}
	return Range{Low: low, High: high}
}
