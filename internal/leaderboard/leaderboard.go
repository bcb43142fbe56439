package leaderboard

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"load_simulator/internal/profile"
	"load_simulator/internal/snapshot"
)

const (
	DefaultName = "Guest"
	maxNameLen  = 32
	minNameLen  = 2
	topN        = 50

	// unsetBest marks a best latency or error rate with no reading yet.
	// It is the largest integer a float64 holds exactly.
	unsetBest = 1<<53 - 1
)

// Server states, worst first
const (
	StateCritical = "Critical"
	StateUnstable = "Unstable"
	StateMinor    = "Minor Errors"
	StateStable   = "Stable"
	StateUnknown  = "Unknown"
)

type Entry struct {
	Name           string        `json:"name"`
	PeakRPS        float64       `json:"peakRps"`
	BestLatency    float64       `json:"bestLatency"`
	BestErrorRate  float64       `json:"bestErrorRate"`
	StabilityScore int           `json:"stabilityScore"`
	ServerState    string        `json:"serverState"`
	Level          profile.Level `json:"level"`
	UpdatedAt      int64         `json:"updatedAt"`
}

// Board ranks players by the best metrics seen while they were watching
type Board struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

func New() *Board {
	return &Board{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// NormalizeName trims and truncates a candidate name. ok is false when the
// name is too short to use.
func NormalizeName(raw string) (name string, ok bool) {
	name = strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) < minNameLen {
		return DefaultName, false
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		name = string([]rune(name)[:maxNameLen])
	}
	return name, true
}

// Ensure returns the entry for name, creating it at the given level
func (b *Board) Ensure(name string, level profile.Level) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.ensureLocked(name, level)
	e.UpdatedAt = b.now().UnixMilli()
	return *e
}

func (b *Board) ensureLocked(name string, level profile.Level) *Entry {
	if name == "" {
		name = DefaultName
	}
	if e, ok := b.entries[name]; ok {
		return e
	}
	e := &Entry{
		Name:           name,
		BestLatency:    unsetBest,
		BestErrorRate:  unsetBest,
		StabilityScore: 100,
		ServerState:    StateUnknown,
		Level:          level,
		UpdatedAt:      b.now().UnixMilli(),
	}
	b.entries[name] = e
	return e
}

// Update folds a snapshot into the entry for name
func (b *Board) Update(name string, snap snapshot.Snapshot) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.ensureLocked(name, snap.Level)
	e.PeakRPS = math.Max(e.PeakRPS, snap.RPS)
	e.BestLatency = math.Min(e.BestLatency, snap.ResponseTimeMs)
	e.BestErrorRate = math.Min(e.BestErrorRate, snap.ErrorRate)
	e.ServerState = ServerState(snap)
	e.StabilityScore = max(e.StabilityScore, Stability(snap))
	e.Level = snap.Level
	e.UpdatedAt = snap.Timestamp
	return *e
}

// Top returns up to 50 entries by peak RPS, then stability, then latency
func (b *Board) Top() []Entry {
	b.mu.Lock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, *e)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PeakRPS != out[j].PeakRPS {
			return out[i].PeakRPS > out[j].PeakRPS
		}
		if out[i].StabilityScore != out[j].StabilityScore {
			return out[i].StabilityScore > out[j].StabilityScore
		}
		if out[i].BestLatency != out[j].BestLatency {
			return out[i].BestLatency < out[j].BestLatency
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// ServerState labels a snapshot
func ServerState(s snapshot.Snapshot) string {
	switch {
	case s.Level == profile.Overload || s.ErrorRate >= 8 || s.ResponseTimeMs >= 550:
		return StateCritical
	case s.ErrorRate >= 3.5 || s.ResponseTimeMs >= 400:
		return StateUnstable
	case s.ErrorRate >= 1.5 || s.ResponseTimeMs >= 320:
		return StateMinor
	default:
		return StateStable
	}
}

// Stability scores a snapshot from 0 to 100, penalizing errors, latency
// above 120ms and CPU above 75%.
func Stability(s snapshot.Snapshot) int {
	penalty := s.ErrorRate*10 +
		math.Max(s.ResponseTimeMs-120, 0)/6 +
		math.Max(s.CPU-75, 0)/2.5
	score := int(math.Round(100 - penalty))
	return min(max(score, 0), 100)
}
