package config

// Application constants for the RatePulse system
const (
	AppName    = "RatePulse"
	AppVersion = "1.2.0"
)

// Canonical series identifiers. Upstream ingestion providers write raw
// observations under these ids; the engines read them back. Keeping the ids
// here means an engine and its provider can never drift apart silently.
const (
	// Money market
	SeriesOvernightRate   = "overnight_rate"
	SeriesInterbankSpread = "interbank_spread"

	// Yield curve points and derived shape series
	SeriesCurve2Y        = "curve_2y"
	SeriesCurve10Y       = "curve_10y"
	SeriesCurveSlope     = "curve_slope"
	SeriesCurveCurvature = "curve_curvature"

	// Primary market (auctions)
	SeriesAuctionBidToCover = "auction_bid_to_cover"
	SeriesAuctionSoldAmount = "auction_sold_amount"
	SeriesAuctionCutoff     = "auction_cutoff_yield"

	// Secondary market
	SeriesSecondaryTurnover = "secondary_turnover"
	SeriesSecondaryValue    = "secondary_value"

	// Policy
	SeriesPolicyRate = "policy_rate"

	// Optional cross-market comparator, may be absent entirely
	SeriesForeignRefYield = "foreign_ref_yield"
)

// Dataset names used as the metric namespace in the store
const (
	DatasetTransmission = "transmission"
	DatasetStress       = "stress"
)
