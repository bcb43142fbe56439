package collectors

import (
	"context"

	"load_simulator/internal/pressure"
	"load_simulator/internal/profile"

	"github.com/prometheus/client_golang/prometheus"
)

// PressureSource reports the synthetic pressure currently applied
type PressureSource interface {
	Status() pressure.Status
}

type PressureCollector struct {
	deps   *CollectorDependencies
	source PressureSource

	// Prometheus metrics
	level      *prometheus.GaugeVec
	workers    prometheus.Gauge
	memory     prometheus.Gauge
	ioActive   prometheus.Gauge
	ioBursts   prometheus.Gauge
	ioFailures prometheus.Gauge
}

// NewPressureCollector creates a new PressureCollector
// Args:
// - deps: CollectorDependencies
// - source: the load manager
// Returns:
// - *PressureCollector: new PressureCollector instance
func NewPressureCollector(deps *CollectorDependencies, source PressureSource) *PressureCollector {
	return &PressureCollector{
		deps:   deps,
		source: source,
		level: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "load_level_active",
				Help: "Active load level (1 for the active level, 0 otherwise)",
			},
			[]string{"level"},
		),
		workers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "load_cpu_workers",
				Help: "CPU burn workers in the active set",
			},
		),
		memory: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "load_memory_pressure_megabytes",
				Help: "Memory held by the active set in MB",
			},
		),
		ioActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "load_io_burst_active",
				Help: "I/O burst timer scheduled (1) or not (0)",
			},
		),
		ioBursts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "load_io_bursts_total",
				Help: "Completed I/O bursts since start",
			},
		),
		ioFailures: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "load_io_burst_failures_total",
				Help: "Failed I/O bursts since start",
			},
		),
	}
}

func (c *PressureCollector) Name() string {
	return "pressure"
}

func (c *PressureCollector) Describe(ch chan<- *prometheus.Desc) {
	c.level.Describe(ch)
	c.workers.Describe(ch)
	c.memory.Describe(ch)
	c.ioActive.Describe(ch)
	c.ioBursts.Describe(ch)
	c.ioFailures.Describe(ch)
}

func (c *PressureCollector) Collect(ch chan<- prometheus.Metric) {
	c.level.Collect(ch)
	c.workers.Collect(ch)
	c.memory.Collect(ch)
	c.ioActive.Collect(ch)
	c.ioBursts.Collect(ch)
	c.ioFailures.Collect(ch)
}

// CollectMetrics copies the manager status into the gauges
func (c *PressureCollector) CollectMetrics(ctx context.Context) error {
	c.deps.Logger.Debug("Collecting pressure metrics")

	st := c.source.Status()
	for _, l := range profile.Levels {
		active := 0.0
		if l == st.Level {
			active = 1
		}
		c.level.WithLabelValues(string(l)).Set(active)
	}
	c.workers.Set(float64(st.Workers))
	c.memory.Set(float64(st.MemoryMB))
	if st.IOActive {
		c.ioActive.Set(1)
	} else {
		c.ioActive.Set(0)
	}
	c.ioBursts.Set(float64(st.IOBursts))
	c.ioFailures.Set(float64(st.IOFailures))
	return nil
}
