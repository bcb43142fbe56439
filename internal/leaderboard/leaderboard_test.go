package leaderboard

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"load_simulator/internal/profile"
	"load_simulator/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	name, ok := NormalizeName("  ada ")
	assert.True(t, ok)
	assert.Equal(t, "ada", name)

	name, ok = NormalizeName("x")
	assert.False(t, ok)
	assert.Equal(t, DefaultName, name)

	name, ok = NormalizeName(strings.Repeat("가", 40))
	assert.True(t, ok)
	assert.Equal(t, 32, len([]rune(name)))
}

func TestServerState(t *testing.T) {
	cases := []struct {
		snap snapshot.Snapshot
		want string
	}{
		{snapshot.Snapshot{Level: profile.Overload}, StateCritical},
		{snapshot.Snapshot{Level: profile.Low, ErrorRate: 8}, StateCritical},
		{snapshot.Snapshot{Level: profile.Low, ResponseTimeMs: 550}, StateCritical},
		{snapshot.Snapshot{Level: profile.Peak, ErrorRate: 3.5}, StateUnstable},
		{snapshot.Snapshot{Level: profile.Peak, ResponseTimeMs: 400}, StateUnstable},
		{snapshot.Snapshot{Level: profile.Normal, ErrorRate: 1.5}, StateMinor},
		{snapshot.Snapshot{Level: profile.Normal, ResponseTimeMs: 320}, StateMinor},
		{snapshot.Snapshot{Level: profile.Normal, ResponseTimeMs: 100}, StateStable},
	}
	for i, tc := range cases {
		assert.Equal(t, tc.want, ServerState(tc.snap), "case %d", i)
	}
}

func TestStability(t *testing.T) {
	assert.Equal(t, 100, Stability(snapshot.Snapshot{ResponseTimeMs: 100, CPU: 50}))
	// 1*10 + (180-120)/6 + (85-75)/2.5 = 10 + 10 + 4
	assert.Equal(t, 76, Stability(snapshot.Snapshot{ErrorRate: 1, ResponseTimeMs: 180, CPU: 85}))
	assert.Equal(t, 0, Stability(snapshot.Snapshot{ErrorRate: 50}))
}

func TestUpdateKeepsBests(t *testing.T) {
	b := New()

	b.Update("ada", snapshot.Snapshot{Level: profile.Peak, RPS: 10, ResponseTimeMs: 200, ErrorRate: 2, Timestamp: 1})
	e := b.Update("ada", snapshot.Snapshot{Level: profile.Normal, RPS: 4, ResponseTimeMs: 90, ErrorRate: 3, Timestamp: 2})

	assert.Equal(t, 10.0, e.PeakRPS)
	assert.Equal(t, 90.0, e.BestLatency)
	assert.Equal(t, 2.0, e.BestErrorRate)
	assert.Equal(t, 100, e.StabilityScore)
	assert.Equal(t, profile.Normal, e.Level)
	assert.EqualValues(t, 2, e.UpdatedAt)
	assert.Equal(t, StateMinor, e.ServerState)
}

func TestNewEntryBestsAreUnset(t *testing.T) {
	b := New()

	e := b.Ensure("ada", profile.Low)
	assert.Equal(t, float64(9007199254740991), e.BestLatency)
	assert.Equal(t, float64(9007199254740991), e.BestErrorRate)

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bestLatency":9007199254740991`)

	e = b.Update("ada", snapshot.Snapshot{Level: profile.Low, ResponseTimeMs: 40, ErrorRate: 0})
	assert.Equal(t, 40.0, e.BestLatency)
	assert.Zero(t, e.BestErrorRate)
}

func TestTopOrdering(t *testing.T) {
	b := New()
	b.Update("slow", snapshot.Snapshot{RPS: 5, ResponseTimeMs: 300})
	b.Update("fast", snapshot.Snapshot{RPS: 5, ResponseTimeMs: 100})
	b.Update("busy", snapshot.Snapshot{RPS: 9, ResponseTimeMs: 500})
	b.Ensure("idle", profile.Low)

	top := b.Top()
	require.Len(t, top, 4)
	assert.Equal(t, []string{"busy", "fast", "slow", "idle"}, []string{top[0].Name, top[1].Name, top[2].Name, top[3].Name})
}

func TestTopLimit(t *testing.T) {
	b := New()
	for i := 0; i < 60; i++ {
		b.Update(fmt.Sprintf("p%02d", i), snapshot.Snapshot{RPS: float64(i)})
	}
	top := b.Top()
	require.Len(t, top, 50)
	assert.Equal(t, "p59", top[0].Name)
}
