package window

import (
	"sync"
	"time"
)

// DefaultWindow is the trailing interval request stats are computed over
const DefaultWindow = 15 * time.Second

type sample struct {
	at         time.Time
	durationMs float64
	isError    bool
}

// Stats is the aggregate of the samples currently inside the window
type Stats struct {
	Count          int
	Errors         int
	RPS            float64
	ResponseTimeMs float64
	ErrorRate      float64
}

// Aggregator keeps a time-ordered log of completed requests.
// Mean latency is not a percentile: a handful of slow outliers move it.
type Aggregator struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	samples []sample
}

type Option func(*Aggregator)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

func New(window time.Duration, opts ...Option) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	a := &Aggregator{
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record appends one completed request. Status codes >= 500 count as errors.
func (a *Aggregator) Record(durationMs float64, statusCode int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.samples = append(a.samples, sample{
		at:         now,
		durationMs: durationMs,
		isError:    statusCode >= 500,
	})
	a.purgeLocked(now)
}

// Aggregate drops expired samples and summarizes the rest
func (a *Aggregator) Aggregate() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.purgeLocked(a.now())

	stats := Stats{Count: len(a.samples)}
	if stats.Count == 0 {
		return stats
	}

	var total float64
	for _, s := range a.samples {
		total += s.durationMs
		if s.isError {
			stats.Errors++
		}
	}

	stats.RPS = float64(stats.Count) / a.window.Seconds()
	stats.ResponseTimeMs = total / float64(stats.Count)
	stats.ErrorRate = 100 * float64(stats.Errors) / float64(stats.Count)
	return stats
}

// Window returns the configured trailing interval
func (a *Aggregator) Window() time.Duration {
	return a.window
}

// purgeLocked trims the prefix of samples at or before now-window.
func (a *Aggregator) purgeLocked(now time.Time) {
	cutoff := now.Add(-a.window)
	i := 0
	for i < len(a.samples) && !a.samples[i].at.After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	if i == len(a.samples) {
		a.samples = a.samples[:0]
		return
	}
	a.samples = a.samples[i:]
}
