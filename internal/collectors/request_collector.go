package collectors

import (
	"context"

	"load_simulator/internal/window"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestStats is the read side of the sliding request window
type RequestStats interface {
	Aggregate() window.Stats
}

// RequestCollector publishes sliding-window request stats
type RequestCollector struct {
	deps    *CollectorDependencies
	stats   RequestStats
	handled prometheus.Counter

	// Prometheus metrics
	// rps: requests per second over the window
	// responseTime: mean latency over the window in milliseconds
	// errorRate: percentage of 5xx responses over the window
	// samples: requests currently inside the window
	rps          prometheus.Gauge
	responseTime prometheus.Gauge
	errorRate    prometheus.Gauge
	samples      prometheus.Gauge
}

// NewRequestCollector creates a new RequestCollector
// Args:
// - deps: CollectorDependencies
// - stats: the request window to read
// Returns:
// - *RequestCollector: new RequestCollector instance
func NewRequestCollector(deps *CollectorDependencies, stats RequestStats) *RequestCollector {
	return &RequestCollector{
		deps:  deps,
		stats: stats,
		handled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "http_requests_recorded_total",
				Help: "Requests recorded into the sliding window",
			},
		),
		rps: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "window_requests_per_second",
				Help: "Requests per second over the sliding window",
			},
		),
		responseTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "window_response_time_milliseconds",
				Help: "Mean response time over the sliding window",
			},
		),
		errorRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "window_error_rate_percent",
				Help: "Percentage of 5xx responses over the sliding window",
			},
		),
		samples: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "window_samples",
				Help: "Requests currently inside the sliding window",
			},
		),
	}
}

func (c *RequestCollector) Name() string {
	return "requests"
}

func (c *RequestCollector) Describe(ch chan<- *prometheus.Desc) {
	c.handled.Describe(ch)
	c.rps.Describe(ch)
	c.responseTime.Describe(ch)
	c.errorRate.Describe(ch)
	c.samples.Describe(ch)
}

func (c *RequestCollector) Collect(ch chan<- prometheus.Metric) {
	c.handled.Collect(ch)
	c.rps.Collect(ch)
	c.responseTime.Collect(ch)
	c.errorRate.Collect(ch)
	c.samples.Collect(ch)
}

// Observe counts one recorded request
func (c *RequestCollector) Observe() {
	c.handled.Inc()
}

// CollectMetrics copies the current window aggregate into the gauges
func (c *RequestCollector) CollectMetrics(ctx context.Context) error {
	c.deps.Logger.Debug("Collecting request metrics")

	s := c.stats.Aggregate()
	c.rps.Set(s.RPS)
	c.responseTime.Set(s.ResponseTimeMs)
	c.errorRate.Set(s.ErrorRate)
	c.samples.Set(float64(s.Count))
	return nil
}
