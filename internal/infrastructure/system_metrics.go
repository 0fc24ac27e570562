package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeMetrics records Go runtime health gauges.
type RuntimeMetrics struct {
	goroutines    metric.Int64Gauge
	heapAlloc     metric.Int64Gauge
	heapSys       metric.Int64Gauge
	gcPause       metric.Float64Histogram
	processUptime metric.Float64Gauge
}

// NewRuntimeMetrics creates the runtime instruments on the given meter
func NewRuntimeMetrics(meter metric.Meter) (*RuntimeMetrics, error) {
	goroutines, err := meter.Int64Gauge(
		"runtime_goroutines",
		metric.WithDescription("Number of active goroutines"),
	)
	if err != nil {
		return nil, err
	}

	heapAlloc, err := meter.Int64Gauge(
		"runtime_heap_alloc_bytes",
		metric.WithDescription("Heap bytes currently allocated"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	heapSys, err := meter.Int64Gauge(
		"runtime_heap_sys_bytes",
		metric.WithDescription("Heap bytes obtained from the OS"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	gcPause, err := meter.Float64Histogram(
		"runtime_gc_pause_seconds",
		metric.WithDescription("Garbage collection pause duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	processUptime, err := meter.Float64Gauge(
		"runtime_process_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RuntimeMetrics{
		goroutines:    goroutines,
		heapAlloc:     heapAlloc,
		heapSys:       heapSys,
		gcPause:       gcPause,
		processUptime: processUptime,
	}, nil
}

// Collect reads runtime stats and records them
func (rm *RuntimeMetrics) Collect(ctx context.Context, startTime time.Time) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	rm.goroutines.Record(ctx, int64(runtime.NumGoroutine()))
	rm.heapAlloc.Record(ctx, int64(memStats.Alloc))
	rm.heapSys.Record(ctx, int64(memStats.Sys))
	rm.processUptime.Record(ctx, time.Since(startTime).Seconds())

	if memStats.NumGC > 0 {
		lastPause := time.Duration(memStats.PauseNs[(memStats.NumGC+255)%256])
		rm.gcPause.Record(ctx, lastPause.Seconds())
	}
}

// RuntimeCollector periodically samples runtime metrics until its context is
// cancelled or Stop is called.
type RuntimeCollector struct {
	metrics   *RuntimeMetrics
	startTime time.Time
	interval  time.Duration
	stopCh    chan struct{}
}

// NewRuntimeCollector creates a collector that samples at the given interval
func NewRuntimeCollector(meter metric.Meter, interval time.Duration) (*RuntimeCollector, error) {
	metrics, err := NewRuntimeMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("create runtime metrics: %w", err)
	}

	return &RuntimeCollector{
		metrics:   metrics,
		startTime: time.Now(),
		interval:  interval,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start blocks, sampling until Stop or context cancellation. Run it in its
// own goroutine.
func (c *RuntimeCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.metrics.Collect(ctx, c.startTime)

	for {
		select {
		case <-ticker.C:
			c.metrics.Collect(ctx, c.startTime)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop terminates collection
func (c *RuntimeCollector) Stop() {
	close(c.stopCh)
}
