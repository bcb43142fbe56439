package snapshot

import (
	"context"
	"math"
	"strings"
	"time"

	"load_simulator/internal/collectors"
	"load_simulator/internal/profile"
	"load_simulator/internal/window"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Warning thresholds
const (
	LatencyWarnMs     = 300
	ErrorRateWarnPct  = 1.5
	CPUSaturationPct  = 85
	WarningSeparator  = " · "
	warnSlowResponses = "Slow responses"
	warnErrorRate     = "Error rate high"
	warnCPUSaturation = "CPU saturation"
)

// Snapshot is one fully computed metrics reading. Optional fields are
// omitted from JSON when the data behind them is unavailable.
type Snapshot struct {
	Level            profile.Level    `json:"level"`
	RPS              float64          `json:"rps"`
	CPU              float64          `json:"cpu"`
	MemoryMB         int64            `json:"memoryMb"`
	MemoryTotalMB    *int64           `json:"memoryTotalMb,omitempty"`
	MemoryFreeMB     *int64           `json:"memoryFreeMb,omitempty"`
	ResponseTimeMs   float64          `json:"responseTimeMs"`
	ErrorRate        float64          `json:"errorRate"`
	DiskReadMBps     *float64         `json:"diskReadMBps,omitempty"`
	DiskWriteMBps    *float64         `json:"diskWriteMBps,omitempty"`
	Timestamp        int64            `json:"timestamp"`
	Warning          string           `json:"warning,omitempty"`
	MemoryHeadroomMB *int64           `json:"memoryHeadroomMb,omitempty"`
	Profile          *profile.Profile `json:"profile,omitempty"`
}

// RequestStats is the read side of the request window
type RequestStats interface {
	Aggregate() window.Stats
}

// HostSampler reads host CPU, memory and disk throughput
type HostSampler interface {
	Sample(ctx context.Context) (collectors.HostSample, error)
}

// Builder merges request stats, host samples and the active profile
type Builder struct {
	requests RequestStats
	host     HostSampler
	logger   *zap.Logger
	now      func() time.Time

	// declaredMemoryMB is the configured memory capacity, 0 when unknown
	declaredMemoryMB int64
}

func NewBuilder(requests RequestStats, host HostSampler, logger *zap.Logger, declaredMemoryMB int64) *Builder {
	return &Builder{
		requests:         requests,
		host:             host,
		logger:           logger.Named("snapshot"),
		now:              time.Now,
		declaredMemoryMB: declaredMemoryMB,
	}
}

// Build reads the request window and the host concurrently and combines
// them. A failed host read is logged and its fields are left out; the only
// error returned is a cancelled context.
func (b *Builder) Build(ctx context.Context, level profile.Level, p *profile.Profile) (Snapshot, error) {
	var (
		stats   window.Stats
		host    collectors.HostSample
		hostErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats = b.requests.Aggregate()
		return nil
	})
	g.Go(func() error {
		host, hostErr = b.host.Sample(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Level:          level,
		RPS:            round1(stats.RPS),
		CPU:            round1(host.CPUPercent),
		MemoryMB:       host.MemoryUsedMB,
		ResponseTimeMs: math.Round(stats.ResponseTimeMs),
		ErrorRate:      round1(stats.ErrorRate),
		Timestamp:      b.now().UnixMilli(),
		Warning:        Warning(stats.ResponseTimeMs, stats.ErrorRate, host.CPUPercent),
	}

	if hostErr != nil {
		b.logger.Warn("Host sample degraded", zap.Error(hostErr))
	}
	if host.MemoryTotalMB > 0 {
		snap.MemoryTotalMB = ptr(host.MemoryTotalMB)
		snap.MemoryFreeMB = ptr(host.MemoryFreeMB)
	}
	if host.DiskOK {
		snap.DiskReadMBps = ptr(round2(host.DiskReadMBps))
		snap.DiskWriteMBps = ptr(round2(host.DiskWriteMBps))
	}
	if b.declaredMemoryMB > 0 && host.MemoryTotalMB > 0 {
		snap.MemoryHeadroomMB = ptr(max(b.declaredMemoryMB-host.MemoryUsedMB, 0))
	}
	if p != nil {
		cp := *p
		snap.Profile = &cp
	}

	return snap, nil
}

// Warning joins every triggered threshold in a fixed order: latency, error
// rate, CPU. It returns "" when none trigger.
func Warning(responseTimeMs, errorRate, cpu float64) string {
	var flags []string
	if responseTimeMs > LatencyWarnMs {
		flags = append(flags, warnSlowResponses)
	}
	if errorRate > ErrorRateWarnPct {
		flags = append(flags, warnErrorRate)
	}
	if cpu > CPUSaturationPct {
		flags = append(flags, warnCPUSaturation)
	}
	return strings.Join(flags, WarningSeparator)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr[T any](v T) *T {
	return &v
}
