package collectors

import (
	"context"

	"load_simulator/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Collector interface {
	prometheus.Collector
	Name() string
	CollectMetrics(ctx context.Context) error
}

// HostStats reads cumulative host counters at a single point in time
type HostStats interface {
	CPUTimes() (CPUTimes, error)
	Memory() (MemoryInfo, error)
	DiskBytes() (DiskCounters, error)
}

type CollectorDependencies struct {
	Host   HostStats
	Logger *zap.Logger
	Config *config.Config
}
