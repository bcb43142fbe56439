package profile

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Level is the operator-selected load intensity
type Level string

const (
	Low      Level = "low"
	Normal   Level = "normal"
	Peak     Level = "peak"
	Overload Level = "overload"
)

// Levels lists every level from least to most intense
var Levels = []Level{Low, Normal, Peak, Overload}

var ErrUnknownLevel = errors.New("unknown load level")

// ParseLevel converts user input into a Level
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
	return l, nil
}

func (l Level) Valid() bool {
	return l.index() >= 0
}

func (l Level) index() int {
	for i, candidate := range Levels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Profile is the resource-pressure configuration for one level.
// It is a plain value: copies never alias table state.
type Profile struct {
	Level            Level  `json:"level" yaml:"level"`
	CPUWorkers       int    `json:"cpuWorkers" yaml:"cpu_workers"`
	BusyMs           int    `json:"busyMs" yaml:"busy_ms"`
	IdleMs           int    `json:"idleMs" yaml:"idle_ms"`
	MemoryPressureMB int    `json:"memoryPressureMb" yaml:"memory_pressure_mb"`
	IOBurst          bool   `json:"ioBurst" yaml:"io_burst"`
	IOIntervalMs     int    `json:"ioIntervalMs" yaml:"io_interval_ms"`
	Notes            string `json:"notes,omitempty" yaml:"notes"`
}

// Table maps every Level to its Profile. It is built once and only read.
type Table struct {
	profiles [4]Profile
}

// NewTable builds the profile table for a host with the given parallelism.
// Worker counts never exceed max(cores-1, 1) so one core stays free whenever
// the host has more than one.
func NewTable(cores int) Table {
	bound := cores - 1
	if bound < 1 {
		bound = 1
	}

	return Table{profiles: [4]Profile{
		{
			Level:            Low,
			CPUWorkers:       0,
			BusyMs:           80,
			IdleMs:           420,
			MemoryPressureMB: 0,
			IOBurst:          false,
			IOIntervalMs:     3000,
			Notes:            "Warmup stage, cache priming",
		},
		{
			Level:            Normal,
			CPUWorkers:       min(1, bound),
			BusyMs:           220,
			IdleMs:           180,
			MemoryPressureMB: 64,
			IOBurst:          false,
			IOIntervalMs:     2200,
			Notes:            "Steady traffic baseline",
		},
		{
			Level:            Peak,
			CPUWorkers:       min(3, bound),
			BusyMs:           520,
			IdleMs:           120,
			MemoryPressureMB: 128,
			IOBurst:          true,
			IOIntervalMs:     1600,
			Notes:            "Peak push, CPU near saturation",
		},
		{
			Level:            Overload,
			CPUWorkers:       min(4, bound),
			BusyMs:           900,
			IdleMs:           80,
			MemoryPressureMB: 256,
			IOBurst:          true,
			IOIntervalMs:     900,
			Notes:            "Intentional overload, triggers warnings",
		},
	}}
}

// HostTable builds the table for the current host
func HostTable() Table {
	return NewTable(runtime.NumCPU())
}

// Lookup returns the profile for l. Unknown levels resolve to Low.
func (t Table) Lookup(l Level) Profile {
	i := l.index()
	if i < 0 {
		i = 0
	}
	return t.profiles[i]
}

// All returns the profiles ordered from least to most intense
func (t Table) All() []Profile {
	out := make([]Profile, len(t.profiles))
	copy(out, t.profiles[:])
	return out
}
