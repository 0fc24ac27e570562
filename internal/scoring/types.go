package scoring

import (
	"time"
)

// Family identifies one of the five transmission component families
type Family string

const (
	FamilyCurve     Family = "curve"
	FamilyLiquidity Family = "liquidity"
	FamilySupply    Family = "supply"
	FamilyDemand    Family = "demand"
	FamilyPolicy    Family = "policy"
)

// Families lists the five component families in their canonical order
var Families = []Family{FamilyCurve, FamilyLiquidity, FamilySupply, FamilyDemand, FamilyPolicy}

// NeutralSources is the provenance marker recorded when the score is a
// cold-start fallback rather than a real reading. Downstream consumers use
// it to render a "calibrating" state instead of a real value.
const NeutralSources = "neutral fallback, calibrating"

// FamilyScore is the direction-corrected z contribution of one family
type FamilyScore struct {
	Family    Family             `json:"family"`
	Available bool               `json:"available"`
	Z         float64            `json:"z"`
	N         int                `json:"n"`
	Window    int                `json:"window"`
	Detail    map[string]float64 `json:"detail,omitempty"`
}

// Result is the transmission score for one date
type Result struct {
	Date      time.Time     `json:"date"`
	Score     float64       `json:"score"`
	Bucket    string        `json:"regime_bucket"`
	Neutral   bool          `json:"neutral"`
	Sources   string        `json:"sources"`
	Families  []FamilyScore `json:"component_breakdown"`
	Available int           `json:"families_available"`
}

// Regime bucket cut points. The mapping is a deterministic monotone
// function of the score: B0 [0,20) B1 [20,40) B2 [40,60) B3 [60,80)
// B4 [80,100].
func BucketForScore(score float64) string {
	switch {
	case score < 20:
		return "B0"
	case score < 40:
		return "B1"
	case score < 60:
		return "B2"
	case score < 80:
		return "B3"
	default:
		return "B4"
	}
}
