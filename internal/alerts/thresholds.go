package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"ratepulse/internal/store"
)

// ThresholdSource reads stored threshold configuration
type ThresholdSource interface {
	ReadThreshold(ctx context.Context, alertCode string) (store.AlertThreshold, bool, error)
}

type cachedThreshold struct {
	threshold store.AlertThreshold
	loadedAt  time.Time
}

// ThresholdProvider resolves the active configuration of each alert rule:
// the stored record when one exists and validates, the hard-coded default
// otherwise. Reads go through a short-lived in-process cache so external
// threshold edits take effect within the TTL without redeploying.
type ThresholdProvider struct {
	source   ThresholdSource
	ttl      time.Duration
	validate *validator.Validate
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedThreshold
}

// NewThresholdProvider creates a threshold provider with the given cache TTL
func NewThresholdProvider(source ThresholdSource, ttl time.Duration, logger *slog.Logger) *ThresholdProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThresholdProvider{
		source:   source,
		ttl:      ttl,
		validate: validator.New(),
		logger:   logger,
		cache:    make(map[string]cachedThreshold),
	}
}

// Get returns the active threshold for an alert code. Store failures and
// invalid records degrade to the default; threshold resolution never fails
// a detection run.
func (p *ThresholdProvider) Get(ctx context.Context, alertCode string) store.AlertThreshold {
	p.mu.Lock()
	entry, ok := p.cache[alertCode]
	p.mu.Unlock()
	if ok && time.Since(entry.loadedAt) < p.ttl {
		return entry.threshold
	}

	threshold := p.resolve(ctx, alertCode)

	p.mu.Lock()
	p.cache[alertCode] = cachedThreshold{threshold: threshold, loadedAt: time.Now()}
	p.mu.Unlock()
	return threshold
}

// Invalidate drops the cached entry for one alert code, forcing the next
// Get to re-read the store.
func (p *ThresholdProvider) Invalidate(alertCode string) {
	p.mu.Lock()
	delete(p.cache, alertCode)
	p.mu.Unlock()
}

func (p *ThresholdProvider) resolve(ctx context.Context, alertCode string) store.AlertThreshold {
	fallback, hasDefault := Defaults()[alertCode]

	stored, found, err := p.source.ReadThreshold(ctx, alertCode)
	if err != nil {
		p.logger.WarnContext(ctx, "threshold read failed, using default",
			"alert_code", alertCode,
			"error", err,
		)
		return fallback
	}
	if !found {
		return fallback
	}

	if err := p.validate.Struct(stored); err != nil {
		p.logger.WarnContext(ctx, "stored threshold invalid, using default",
			"alert_code", alertCode,
			"error", err,
		)
		return fallback
	}

	if hasDefault {
		// Stored params override defaults key by key, so a record that
		// only sets "zscore" keeps the default window.
		merged := make(map[string]float64, len(fallback.Params))
		for k, v := range fallback.Params {
			merged[k] = v
		}
		for k, v := range stored.Params {
			merged[k] = v
		}
		stored.Params = merged
	}
	return stored
}
