package alerts

import (
	"ratepulse/internal/store"
)

// Alert codes of the known alert families
const (
	CodeLiquiditySpike      = "ALERT_LIQUIDITY_SPIKE"
	CodeCurveBearSteepening = "ALERT_CURVE_BEAR_STEEPENING"
	CodeWeakAuctionDemand   = "ALERT_WEAK_AUCTION_DEMAND"
	CodeTurnoverDrop        = "ALERT_TURNOVER_DROP"
	CodePolicyRateChange    = "ALERT_POLICY_RATE_CHANGE"
	CodeTransmissionJump    = "ALERT_TRANSMISSION_JUMP"
	CodeTransmissionHigh    = "ALERT_TRANSMISSION_HIGH"
	CodeStressHigh          = "ALERT_STRESS_HIGH"
)

// Evidence methods
const (
	MethodZScore   = "zscore"
	MethodAbsolute = "absolute"
	MethodEvent    = "event"
)

// Defaults returns the hard-coded threshold defaults. The engine works on an
// empty configuration store; stored records override these per alert code,
// so alert sensitivity is adjustable without redeploying code.
func Defaults() map[string]store.AlertThreshold {
	return map[string]store.AlertThreshold{
		CodeLiquiditySpike: {
			Code: CodeLiquiditySpike, Enabled: true, Severity: "warning",
			Params: map[string]float64{"zscore": 2.0, "window": 60},
		},
		CodeCurveBearSteepening: {
			Code: CodeCurveBearSteepening, Enabled: true, Severity: "warning",
			Params: map[string]float64{"zscore": 2.0, "window": 252},
		},
		CodeWeakAuctionDemand: {
			Code: CodeWeakAuctionDemand, Enabled: true, Severity: "warning",
			Params: map[string]float64{"zscore": 2.0, "window": 252},
		},
		CodeTurnoverDrop: {
			Code: CodeTurnoverDrop, Enabled: true, Severity: "info",
			Params: map[string]float64{"zscore": 2.0, "window": 252},
		},
		CodePolicyRateChange: {
			Code: CodePolicyRateChange, Enabled: true, Severity: "critical",
			// Smallest policy move that counts as a change, in rate points.
			Params: map[string]float64{"min_change": 0.25},
		},
		CodeTransmissionJump: {
			Code: CodeTransmissionJump, Enabled: true, Severity: "warning",
			// Day-over-day score move, in score points, versus the last
			// available computed day.
			Params: map[string]float64{"jump": 15},
		},
		CodeTransmissionHigh: {
			Code: CodeTransmissionHigh, Enabled: true, Severity: "critical",
			Params: map[string]float64{"level": 80},
		},
		CodeStressHigh: {
			Code: CodeStressHigh, Enabled: true, Severity: "critical",
			Params: map[string]float64{"level": 80},
		},
	}
}
