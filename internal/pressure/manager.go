package pressure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"load_simulator/internal/burn"
	"load_simulator/internal/profile"
	"load_simulator/internal/schedule"

	"go.uber.org/zap"
)

const (
	DefaultChunkMB      = 16
	DefaultIOBurstBytes = 64 * 1024
)

// DefaultScratchFile is where I/O bursts write when no path is configured
func DefaultScratchFile() string {
	return filepath.Join(os.TempDir(), "load-simulator-io.bin")
}

// Options tunes how pressure is applied
type Options struct {
	ScratchFile  string
	IOBurstBytes int
	ChunkMB      int
}

// Status describes the pressure currently applied
type Status struct {
	Level       profile.Level `json:"level"`
	Workers     int           `json:"workers"`
	MemoryMB    int           `json:"memoryMb"`
	IOActive    bool          `json:"ioActive"`
	IOBursts    int64         `json:"ioBursts"`
	IOFailures  int64         `json:"ioFailures"`
	Transitions int64         `json:"transitions"`
}

// activeSet is the one (workers, memory, io timer) triple in effect.
// It is never modified after being published.
type activeSet struct {
	profile profile.Profile
	workers []*burn.Worker
	memory  [][]byte
	io      *schedule.Task
}

// Manager owns the current load level and the pressure that goes with it
type Manager struct {
	logger *zap.Logger
	table  profile.Table
	opts   Options

	// transition serializes SetLevel; readers only touch current
	transition sync.Mutex
	current    atomic.Pointer[activeSet]

	// burst is one IO burst; swapped in tests
	burst func() error

	ioBursts    atomic.Int64
	ioFailures  atomic.Int64
	transitions atomic.Int64
}

// New creates a Manager with the initial level already applied
func New(logger *zap.Logger, table profile.Table, initial profile.Level, opts Options) *Manager {
	if opts.ScratchFile == "" {
		opts.ScratchFile = DefaultScratchFile()
	}
	if opts.IOBurstBytes <= 0 {
		opts.IOBurstBytes = DefaultIOBurstBytes
	}
	if opts.ChunkMB <= 0 {
		opts.ChunkMB = DefaultChunkMB
	}
	if !initial.Valid() {
		initial = profile.Low
	}

	m := &Manager{
		logger: logger.Named("pressure"),
		table:  table,
		opts:   opts,
	}
	m.burst = m.ioBurst
	m.SetLevel(initial)
	return m
}

// SetLevel tears down the current pressure and applies the profile for level.
// Old workers and the old IO timer are told to stop without waiting for
// them, so a worker stuck in a long busy phase or a burst stuck in a slow
// sync may briefly overlap the new set.
// Calling it again with the same level rebuilds the same set.
func (m *Manager) SetLevel(level profile.Level) {
	m.transition.Lock()
	defer m.transition.Unlock()

	p := m.table.Lookup(level)

	if old := m.current.Load(); old != nil {
		m.teardown(old, false)
	}

	next := &activeSet{profile: p}
	next.workers = m.spinWorkers(p)
	next.memory = allocate(p.MemoryPressureMB, m.opts.ChunkMB)
	next.io = m.startIO(p)

	m.current.Store(next)
	m.transitions.Add(1)

	m.logger.Info("Applied load profile",
		zap.String("level", string(p.Level)),
		zap.Int("cpu_workers", p.CPUWorkers),
		zap.Int("busy_ms", p.BusyMs),
		zap.Int("idle_ms", p.IdleMs),
		zap.Int("memory_mb", p.MemoryPressureMB),
		zap.Bool("io_burst", p.IOBurst),
	)
}

// Level returns the active load level
func (m *Manager) Level() profile.Level {
	return m.current.Load().profile.Level
}

// Profile returns a copy of the active profile
func (m *Manager) Profile() profile.Profile {
	return m.current.Load().profile
}

// Status summarizes the active pressure
func (m *Manager) Status() Status {
	cur := m.current.Load()
	mb := 0
	for _, block := range cur.memory {
		mb += len(block) / (1024 * 1024)
	}
	return Status{
		Level:       cur.profile.Level,
		Workers:     len(cur.workers),
		MemoryMB:    mb,
		IOActive:    cur.io != nil,
		IOBursts:    m.ioBursts.Load(),
		IOFailures:  m.ioFailures.Load(),
		Transitions: m.transitions.Load(),
	}
}

// Close stops all pressure. The manager reports an idle low profile afterwards.
func (m *Manager) Close() {
	m.transition.Lock()
	defer m.transition.Unlock()

	if old := m.current.Load(); old != nil {
		m.teardown(old, true)
	}
	m.current.Store(&activeSet{profile: m.table.Lookup(profile.Low)})
	os.Remove(m.opts.ScratchFile)
}

// teardown releases a set. wait blocks until an IO burst in flight returns.
func (m *Manager) teardown(set *activeSet, wait bool) {
	for _, w := range set.workers {
		w.Stop()
	}
	if wait {
		set.io.Stop()
	} else {
		set.io.Cancel()
	}
	// memory is dropped with the set; the GC reclaims it when it gets to it
}

func (m *Manager) spinWorkers(p profile.Profile) []*burn.Worker {
	cfg := burn.Config{
		Busy: time.Duration(p.BusyMs) * time.Millisecond,
		Idle: time.Duration(p.IdleMs) * time.Millisecond,
	}
	workers := make([]*burn.Worker, 0, p.CPUWorkers)
	for i := 0; i < p.CPUWorkers; i++ {
		workers = append(workers, burn.Start(cfg))
	}
	return workers
}

func (m *Manager) startIO(p profile.Profile) *schedule.Task {
	if !p.IOBurst || p.IOIntervalMs <= 0 {
		return nil
	}
	interval := time.Duration(p.IOIntervalMs) * time.Millisecond
	return schedule.Every(context.Background(), interval, func(ctx context.Context) {
		if err := m.burst(); err != nil {
			m.ioFailures.Add(1)
			m.logger.Warn("IO burst failed", zap.String("path", m.opts.ScratchFile), zap.Error(err))
			return
		}
		m.ioBursts.Add(1)
	})
}

// ioBurst writes a buffer to the scratch file, syncs it and reads it back
func (m *Manager) ioBurst() error {
	buf := make([]byte, m.opts.IOBurstBytes)
	fill(buf, byte(time.Now().UnixNano()%255)+1)

	f, err := os.OpenFile(m.opts.ScratchFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open scratch file: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close scratch file: %w", err)
	}

	got, err := os.ReadFile(m.opts.ScratchFile)
	if err != nil {
		return fmt.Errorf("read scratch file: %w", err)
	}
	if len(got) != len(buf) {
		return fmt.Errorf("read scratch file: got %d bytes, want %d", len(got), len(buf))
	}
	return nil
}

// allocate returns blocks summing to totalMB, in chunkMB pieces plus a
// remainder. Every byte is non-zero so the pages are really committed.
func allocate(totalMB, chunkMB int) [][]byte {
	if totalMB <= 0 {
		return nil
	}
	var blocks [][]byte
	full := totalMB / chunkMB
	for i := 0; i < full; i++ {
		b := make([]byte, chunkMB*1024*1024)
		fill(b, byte(i%255)+1)
		blocks = append(blocks, b)
	}
	if rem := totalMB % chunkMB; rem > 0 {
		b := make([]byte, rem*1024*1024)
		fill(b, 1)
		blocks = append(blocks, b)
	}
	return blocks
}

func fill(b []byte, v byte) {
	if len(b) == 0 {
		return
	}
	b[0] = v
	for n := 1; n < len(b); n *= 2 {
		copy(b[n:], b[:n])
	}
}
