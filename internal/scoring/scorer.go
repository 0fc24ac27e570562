package scoring

import (
	"context"
	"log/slog"
	"time"

	"ratepulse/internal/config"
	apperrors "ratepulse/internal/errors"
	"ratepulse/internal/rolling"
)

// componentScorer maps raw indicators to direction-corrected z
// contributions. Direction rules per family:
//
//   - liquidity: the overnight rate level; higher level means more stress,
//     no inversion.
//   - curve: slope and curvature extremes in either direction mean more
//     stress, so the family z is a magnitude, not a signed value.
//   - supply (auction): raw = ceiling - bid_to_cover, so weaker demand
//     raises the raw value. The ceiling is a calibration heuristic, not a
//     theoretical bound. Equivalent in z-space to negating z(bid_to_cover).
//   - demand (turnover): -1 x z(volume); thinner markets mean more stress.
//   - policy: the policy anchor level plus the long-end term-premium proxy.
type componentScorer struct {
	calc   *rolling.Calculator
	cfg    config.AnalyticsConfig
	logger *slog.Logger
}

// subZ reads the train-only z-score of one series, dropping the series from
// the family (rather than failing the family) on malformed input.
func (cs *componentScorer) subZ(ctx context.Context, seriesID string, date time.Time, lookback int) (rolling.ZScoreResult, bool, error) {
	result, err := cs.calc.LatestZScore(ctx, seriesID, date, lookback)
	if err != nil {
		if apperrors.IsMalformedInput(err) {
			cs.logger.WarnContext(ctx, "dropping malformed series value",
				"series_id", seriesID,
				"error", err,
			)
			return rolling.ZScoreResult{}, false, nil
		}
		return rolling.ZScoreResult{}, false, err
	}
	return result, result.HasValue && result.OK, nil
}

// scoreLiquidity: overnight rate level plus the interbank spread, both in
// the stress direction already.
func (cs *componentScorer) scoreLiquidity(ctx context.Context, date time.Time) (FamilyScore, error) {
	fs := FamilyScore{Family: FamilyLiquidity, Window: cs.cfg.LiquidityLookback, Detail: map[string]float64{}}

	on, ok, err := cs.subZ(ctx, config.SeriesOvernightRate, date, cs.cfg.LiquidityLookback)
	if err != nil {
		return fs, err
	}
	if !ok {
		// The overnight rate is the family's primary input; without it
		// the family is skipped for this date.
		return fs, nil
	}

	zs := []float64{on.Z}
	fs.Detail["overnight_rate_z"] = on.Z
	fs.N = on.Window.N

	if spread, ok, err := cs.subZ(ctx, config.SeriesInterbankSpread, date, cs.cfg.LiquidityLookback); err != nil {
		return fs, err
	} else if ok {
		zs = append(zs, spread.Z)
		fs.Detail["interbank_spread_z"] = spread.Z
	}

	fs.Z = mean(zs)
	fs.Available = true
	return fs, nil
}

// scoreCurve: magnitude mapping over slope and curvature; very steep and
// very flat or inverted both read as stress.
func (cs *componentScorer) scoreCurve(ctx context.Context, date time.Time) (FamilyScore, error) {
	fs := FamilyScore{Family: FamilyCurve, Window: cs.cfg.CurveLookback, Detail: map[string]float64{}}

	slope, ok, err := cs.subZ(ctx, config.SeriesCurveSlope, date, cs.cfg.CurveLookback)
	if err != nil {
		return fs, err
	}
	if !ok {
		return fs, nil
	}

	zs := []float64{abs(slope.Z)}
	fs.Detail["slope_z"] = slope.Z
	fs.N = slope.Window.N

	if curv, ok, err := cs.subZ(ctx, config.SeriesCurveCurvature, date, cs.cfg.CurveLookback); err != nil {
		return fs, err
	} else if ok {
		zs = append(zs, abs(curv.Z))
		fs.Detail["curvature_z"] = curv.Z
	}

	fs.Z = mean(zs)
	fs.Available = true
	return fs, nil
}

// scoreSupply: auction outcomes. Bid-to-cover enters as ceiling - value so
// weaker coverage raises the contribution; sold amount and cutoff changes
// add when present.
func (cs *componentScorer) scoreSupply(ctx context.Context, date time.Time) (FamilyScore, error) {
	fs := FamilyScore{Family: FamilySupply, Window: cs.cfg.CurveLookback, Detail: map[string]float64{}}

	btc, ok, err := cs.subZ(ctx, config.SeriesAuctionBidToCover, date, cs.cfg.CurveLookback)
	if err != nil {
		return fs, err
	}
	if !ok {
		return fs, nil
	}

	// z(ceiling - x) == -z(x); the raw transform is recorded for evidence.
	zs := []float64{-btc.Z}
	fs.Detail["bid_to_cover_z"] = btc.Z
	fs.Detail["bid_to_cover_raw"] = cs.cfg.BidToCoverCeiling - btc.Value
	fs.N = btc.Window.N

	if sold, ok, err := cs.subZ(ctx, config.SeriesAuctionSoldAmount, date, cs.cfg.CurveLookback); err != nil {
		return fs, err
	} else if ok {
		zs = append(zs, sold.Z)
		fs.Detail["sold_amount_z"] = sold.Z
	}

	if cutoff, ok, err := cs.subZ(ctx, config.SeriesAuctionCutoff, date, cs.cfg.CurveLookback); err != nil {
		return fs, err
	} else if ok {
		zs = append(zs, cutoff.Z)
		fs.Detail["cutoff_z"] = cutoff.Z
	}

	fs.Z = mean(zs)
	fs.Available = true
	return fs, nil
}

// scoreDemand: secondary-market turnover and traded value, inverted; thin
// markets read as stress.
func (cs *componentScorer) scoreDemand(ctx context.Context, date time.Time) (FamilyScore, error) {
	fs := FamilyScore{Family: FamilyDemand, Window: cs.cfg.CurveLookback, Detail: map[string]float64{}}

	turnover, ok, err := cs.subZ(ctx, config.SeriesSecondaryTurnover, date, cs.cfg.CurveLookback)
	if err != nil {
		return fs, err
	}
	if !ok {
		return fs, nil
	}

	zs := []float64{-turnover.Z}
	fs.Detail["turnover_z"] = turnover.Z
	fs.N = turnover.Window.N

	if value, ok, err := cs.subZ(ctx, config.SeriesSecondaryValue, date, cs.cfg.CurveLookback); err != nil {
		return fs, err
	} else if ok {
		zs = append(zs, -value.Z)
		fs.Detail["value_z"] = value.Z
	}

	fs.Z = mean(zs)
	fs.Available = true
	return fs, nil
}

// scorePolicy: the policy anchor level plus the 10y level as a term-premium
// proxy.
func (cs *componentScorer) scorePolicy(ctx context.Context, date time.Time) (FamilyScore, error) {
	fs := FamilyScore{Family: FamilyPolicy, Window: cs.cfg.LiquidityLookback, Detail: map[string]float64{}}

	anchor, ok, err := cs.subZ(ctx, config.SeriesPolicyRate, date, cs.cfg.LiquidityLookback)
	if err != nil {
		return fs, err
	}
	if !ok {
		return fs, nil
	}

	zs := []float64{anchor.Z}
	fs.Detail["policy_rate_z"] = anchor.Z
	fs.N = anchor.Window.N

	if long, ok, err := cs.subZ(ctx, config.SeriesCurve10Y, date, cs.cfg.CurveLookback); err != nil {
		return fs, err
	} else if ok {
		zs = append(zs, long.Z)
		fs.Detail["term_premium_proxy_z"] = long.Z
	}

	fs.Z = mean(zs)
	fs.Available = true
	return fs, nil
}

func (cs *componentScorer) score(ctx context.Context, family Family, date time.Time) (FamilyScore, error) {
	switch family {
	case FamilyCurve:
		return cs.scoreCurve(ctx, date)
	case FamilyLiquidity:
		return cs.scoreLiquidity(ctx, date)
	case FamilySupply:
		return cs.scoreSupply(ctx, date)
	case FamilyDemand:
		return cs.scoreDemand(ctx, date)
	case FamilyPolicy:
		return cs.scorePolicy(ctx, date)
	default:
		return FamilyScore{Family: family}, nil
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
