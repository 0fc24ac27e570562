package stress

import (
	"time"
)

// Component names of the stress index
const (
	ComponentTransmission = "transmission"
	ComponentLiquidity    = "liquidity"
	ComponentCurve        = "curve"
	ComponentAuction      = "auction"
	ComponentTurnover     = "turnover"
)

// Metric names persisted under the stress dataset
const (
	MetricIndex        = "stress_index"
	MetricRegimeBucket = "regime_bucket"
	MetricTopDrivers   = "top_drivers"
	MetricGlobalSpread = "global_spread"
	MetricGlobalZ      = "global_spread_z"
)

// Component is one included stress sub-score
type Component struct {
	Name       string  `json:"name"`
	Percentile float64 `json:"percentile"`
	// Weight is the effective weight after renormalization over the
	// available components.
	Weight    float64 `json:"weight"`
	Available bool    `json:"available"`
}

// Driver is one named contributor to the index, signed: positive pushes the
// index above neutral, negative below.
type Driver struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
	Percentile   float64 `json:"percentile"`
}

// Availability records which components entered the composite and whether
// the transmission input was itself a cold-start neutral fallback.
type Availability struct {
	Included            []string `json:"included"`
	Excluded            []string `json:"excluded"`
	TransmissionNeutral bool     `json:"transmission_neutral"`
}

// Result is the stress index for one date
type Result struct {
	Date         time.Time    `json:"date"`
	Index        float64      `json:"stress_index"`
	Bucket       string       `json:"regime_bucket"`
	Components   []Component  `json:"components"`
	Drivers      []Driver     `json:"driver_breakdown"`
	Availability Availability `json:"data_availability"`
}

// BucketForIndex maps the stress index to its regime bucket:
// S0 [0,20) S1 [20,40) S2 [40,60) S3 [60,80) S4 [80,100]. Deterministic and
// monotone in the index.
func BucketForIndex(index float64) string {
	switch {
	case index < 20:
		return "S0"
	case index < 40:
		return "S1"
	case index < 60:
		return "S2"
	case index < 80:
		return "S3"
	default:
		return "S4"
	}
}
