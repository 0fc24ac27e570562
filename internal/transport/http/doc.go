// Package http implements the HTTP handlers for the RatePulse API. Handlers
// stay thin: they parse the request, call the store or pipeline, and render
// the result or a structured API error.
//
// A typical request flows:
//
//	HTTP Request → Chi Router → Middleware → Handler → Store/Pipeline
//	                                             ↓
//	HTTP Response ← render.JSON / APIError ←────┘
//
// All analytics endpoints are keyed by calendar date (YYYY-MM-DD). Read
// endpoints serve persisted metrics only; POST /compute runs the per-date
// pipeline.
package http
