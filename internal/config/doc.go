// Package config provides centralized configuration management for RatePulse.
// It handles loading configuration from multiple sources, validation, and a
// type-safe API for accessing configuration values throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration file (YAML)
//	3. Default values (lowest priority)
//
// All environment variables follow the pattern RATEPULSE_* for namespacing:
//
//	RATEPULSE_SERVER_PORT=8080
//	RATEPULSE_DATABASE_PATH=data/ratepulse.db
//	RATEPULSE_LOGGING_LEVEL=info
//
// # Analytics Calibration
//
// The analytics section externalizes every calibration constant used by the
// scoring engines (composite weights, lookback windows, the bid-to-cover
// ceiling, cold-start minimums, winsorization bounds). These are domain
// heuristics, not derived values, so recalibrating them must never require a
// code change.
package config
