package attack

import (
	"strings"
	"testing"
	"time"

	"load_simulator/internal/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixedLevel profile.Level

func (f fixedLevel) Level() profile.Level { return profile.Level(f) }

func newTestSimulator(t *testing.T, capacity int) *Simulator {
	t.Helper()
	s := New(zaptest.NewLogger(t), fixedLevel(profile.Peak), capacity)
	t.Cleanup(s.Stop)
	return s
}

func TestTickEmitsMetrics(t *testing.T) {
	s := newTestSimulator(t, 200)
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Tick()

	ev := <-events
	require.Equal(t, "metrics", ev.Kind)
	require.NotNil(t, ev.Data)
	assert.Equal(t, profile.Peak, ev.Data.Level)
	assert.GreaterOrEqual(t, ev.Data.CPU, 10.0)
	assert.Less(t, ev.Data.CPU, 20.0)
}

func TestDDoSRaisesLoad(t *testing.T) {
	s := newTestSimulator(t, 200)
	s.StartDDoS()
	s.Tick()

	logs := s.RecentLogs()
	require.GreaterOrEqual(t, len(logs), 3)
	assert.Equal(t, DDoS, logs[0].Type)
	assert.Equal(t, SeverityError, logs[0].Severity)
	assert.NotEmpty(t, logs[0].ID)

	m := s.sampleLocked(s.now())
	assert.GreaterOrEqual(t, m.CPU, 70.0)
	assert.LessOrEqual(t, m.CPU, 99.0)
	assert.Greater(t, m.NetIn, 1600)

	s.StopDDoS()
	assert.Equal(t, "DDOS attack stopped", s.RecentLogs()[len(s.RecentLogs())-1].Message)
}

func TestPortScanWraps(t *testing.T) {
	s := newTestSimulator(t, 2000)
	s.TriggerPortScan()

	for i := 0; i < 43; i++ {
		s.Tick()
	}

	var ports int
	for _, e := range s.RecentLogs() {
		if e.Type == PortScan && strings.HasPrefix(e.Message, "Port scan on ") {
			ports++
		}
	}
	assert.Equal(t, 43*portsPerTick, ports)
	assert.Equal(t, 43*portsPerTick-maxPort+1, s.portCursor)
}

func TestTimedAttacksExpire(t *testing.T) {
	s := newTestSimulator(t, 200)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.TriggerSQLInjection()
	s.Tick()
	before := len(s.RecentLogs())
	assert.Equal(t, 2, before)

	now = now.Add(9 * time.Second)
	s.Tick()
	assert.Equal(t, before, len(s.RecentLogs()))
}

func TestLogCapacity(t *testing.T) {
	s := newTestSimulator(t, 5)
	for i := 0; i < 12; i++ {
		s.TriggerBruteForce()
	}
	assert.Len(t, s.RecentLogs(), 5)
}

func TestUnsubscribeClosesStream(t *testing.T) {
	s := newTestSimulator(t, 200)
	events, unsubscribe := s.Subscribe()
	unsubscribe()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)
	s.Tick()
}

func TestStartTicks(t *testing.T) {
	s := newTestSimulator(t, 200)
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Start(5 * time.Millisecond)
	select {
	case ev := <-events:
		assert.Equal(t, "metrics", ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no tick")
	}
}
