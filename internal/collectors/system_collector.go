package collectors

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	bytesPerMB = 1024 * 1024

	// minElapsed keeps two samples landing in the same instant from
	// dividing by zero
	minElapsed = time.Millisecond
)

// HostSample is one reading of host CPU, memory and disk throughput
type HostSample struct {
	CPUPercent    float64
	MemoryUsedMB  int64
	MemoryTotalMB int64
	MemoryFreeMB  int64
	DiskReadMBps  float64
	DiskWriteMBps float64

	// DiskOK is false when the disk counters could not be read, in which
	// case the throughput fields carry no information
	DiskOK bool
}

// SystemCollector samples host CPU, memory and disk throughput
type SystemCollector struct {
	deps *CollectorDependencies
	now  func() time.Time

	mu       sync.Mutex
	prevCPU  *CPUTimes
	prevDisk *DiskCounters
	prevAt   time.Time

	// Prometheus metrics
	// cpuUsage: host CPU busy percentage since the previous sample
	// memoryUsage: host memory in bytes by type (total, used, free)
	// diskThroughput: disk MB/s by direction (read, write)
	cpuUsage       prometheus.Gauge
	memoryUsage    *prometheus.GaugeVec
	diskThroughput *prometheus.GaugeVec
	sampleErrors   prometheus.Counter
}

// NewSystemCollector creates a new SystemCollector
// Args:
// - deps: CollectorDependencies
// Returns:
// - *SystemCollector: new SystemCollector instance
func NewSystemCollector(deps *CollectorDependencies) *SystemCollector {
	return &SystemCollector{
		deps: deps,
		now:  time.Now,
		cpuUsage: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "system_cpu_usage_percent",
				Help: "Host CPU busy percentage since the previous sample",
			},
		),
		memoryUsage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "system_memory_usage_bytes",
				Help: "Host memory usage in bytes",
			},
			[]string{"type"}, // total, used, free
		),
		diskThroughput: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "system_disk_throughput_mbps",
				Help: "Host disk throughput in MB/s",
			},
			[]string{"direction"}, // read, write
		),
		sampleErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "system_sample_errors_total",
				Help: "Host samples that failed to read OS counters",
			},
		),
	}
}

func (c *SystemCollector) Name() string {
	return "system"
}

// Describe implements the prometheus.Collector interface
func (c *SystemCollector) Describe(ch chan<- *prometheus.Desc) {
	c.cpuUsage.Describe(ch)
	c.memoryUsage.Describe(ch)
	c.diskThroughput.Describe(ch)
	c.sampleErrors.Describe(ch)
}

// Collect implements the prometheus.Collector interface
func (c *SystemCollector) Collect(ch chan<- prometheus.Metric) {
	c.cpuUsage.Collect(ch)
	c.memoryUsage.Collect(ch)
	c.diskThroughput.Collect(ch)
	c.sampleErrors.Collect(ch)
}

// CollectMetrics takes a sample and publishes it to the gauges.
// Failures are logged, never returned, so one bad read does not stop the
// collection loop.
func (c *SystemCollector) CollectMetrics(ctx context.Context) error {
	c.deps.Logger.Debug("Collecting system metrics")

	if _, err := c.Sample(ctx); err != nil {
		c.deps.Logger.Error("Failed to sample host", zap.Error(err))
	}
	return nil
}

// Sample reads CPU and memory at this instant and derives disk throughput
// from the change in cumulative byte counters since the previous call.
// The first call reports zero throughput and only seeds the counters.
// A failed CPU or memory read is returned as an error alongside whatever
// could still be read. A failed disk read only clears DiskOK.
func (c *SystemCollector) Sample(ctx context.Context) (HostSample, error) {
	if err := ctx.Err(); err != nil {
		return HostSample{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		out  HostSample
		errs []error
	)
	now := c.now()

	if cpu, err := c.deps.Host.CPUTimes(); err != nil {
		errs = append(errs, err)
	} else {
		out.CPUPercent = c.cpuPercentLocked(cpu)
		c.prevCPU = &cpu
		c.cpuUsage.Set(out.CPUPercent)
	}

	if mem, err := c.deps.Host.Memory(); err != nil {
		errs = append(errs, err)
	} else {
		out.MemoryTotalMB = toMB(mem.Total)
		out.MemoryUsedMB = toMB(mem.Used())
		out.MemoryFreeMB = toMB(mem.Available)
		if mem.Available == 0 {
			out.MemoryFreeMB = toMB(mem.Free)
		}
		c.memoryUsage.WithLabelValues("total").Set(float64(mem.Total))
		c.memoryUsage.WithLabelValues("used").Set(float64(mem.Used()))
		c.memoryUsage.WithLabelValues("free").Set(float64(mem.Free))
	}

	if disk, err := c.deps.Host.DiskBytes(); err != nil {
		// Throughput is secondary; the next good read re-seeds it.
		c.deps.Logger.Warn("Failed to read disk counters", zap.Error(err))
		c.prevDisk = nil
	} else {
		out.DiskOK = true
		if c.prevDisk != nil {
			elapsed := now.Sub(c.prevAt)
			out.DiskReadMBps = rate(c.prevDisk.ReadBytes, disk.ReadBytes, elapsed)
			out.DiskWriteMBps = rate(c.prevDisk.WrittenBytes, disk.WrittenBytes, elapsed)
		}
		c.prevDisk = &disk
		c.prevAt = now
		c.diskThroughput.WithLabelValues("read").Set(out.DiskReadMBps)
		c.diskThroughput.WithLabelValues("write").Set(out.DiskWriteMBps)
	}

	if len(errs) > 0 {
		c.sampleErrors.Inc()
		return out, errors.Join(errs...)
	}
	return out, nil
}

func (c *SystemCollector) cpuPercentLocked(cur CPUTimes) float64 {
	busy, total := cur.Busy, cur.Total
	if c.prevCPU != nil && cur.Total > c.prevCPU.Total {
		busy -= c.prevCPU.Busy
		total -= c.prevCPU.Total
	}
	if total <= 0 || busy < 0 {
		return 0
	}
	pct := busy / total * 100
	return math.Min(math.Round(pct*10)/10, 100)
}

// rate converts a counter delta into MB/s, clamped at zero for resets
func rate(prev, cur uint64, elapsed time.Duration) float64 {
	if cur < prev {
		return 0
	}
	if elapsed < minElapsed {
		elapsed = minElapsed
	}
	return float64(cur-prev) / bytesPerMB / elapsed.Seconds()
}

func toMB(b uint64) int64 {
	return int64(math.Round(float64(b) / bytesPerMB))
}
