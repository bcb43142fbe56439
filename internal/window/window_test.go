package window

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestAggregateEmpty(t *testing.T) {
	a := New(DefaultWindow, WithClock(newFakeClock().Now))

	stats := a.Aggregate()
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.RPS)
	assert.Zero(t, stats.ResponseTimeMs)
	assert.Zero(t, stats.ErrorRate)
}

func TestAggregateRPSIsCountOverWindow(t *testing.T) {
	for _, n := range []int{1, 7, 15, 150, 1000} {
		clock := newFakeClock()
		a := New(DefaultWindow, WithClock(clock.Now))
		for i := 0; i < n; i++ {
			a.Record(10, 200)
			clock.Advance(10 * time.Millisecond)
		}

		stats := a.Aggregate()
		require.Equal(t, n, stats.Count)
		assert.InDelta(t, float64(n)/15, stats.RPS, 1e-9)
	}
}

func TestAggregateMeanAndErrorRate(t *testing.T) {
	clock := newFakeClock()
	a := New(DefaultWindow, WithClock(clock.Now))

	a.Record(100, 200)
	a.Record(200, 404)
	a.Record(300, 500)
	a.Record(400, 503)

	stats := a.Aggregate()
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 2, stats.Errors)
	assert.InDelta(t, 250, stats.ResponseTimeMs, 1e-9)
	assert.InDelta(t, 50, stats.ErrorRate, 1e-9)
}

func TestAggregateBoundary(t *testing.T) {
	clock := newFakeClock()
	a := New(DefaultWindow, WithClock(clock.Now))

	a.Record(10, 200) // will sit exactly on the cutoff
	clock.Advance(time.Millisecond)
	a.Record(20, 200) // will sit 1ms inside the window
	clock.Advance(DefaultWindow - time.Millisecond)

	stats := a.Aggregate()
	require.Equal(t, 1, stats.Count)
	assert.InDelta(t, 20, stats.ResponseTimeMs, 1e-9)

	clock.Advance(time.Millisecond)
	assert.Zero(t, a.Aggregate().Count)
}

func TestRecordPurgesExpired(t *testing.T) {
	clock := newFakeClock()
	a := New(time.Second, WithClock(clock.Now))

	for i := 0; i < 100; i++ {
		a.Record(1, 500)
	}
	clock.Advance(2 * time.Second)
	a.Record(5, 200)

	stats := a.Aggregate()
	assert.Equal(t, 1, stats.Count)
	assert.Zero(t, stats.ErrorRate)
	assert.InDelta(t, 1.0, stats.RPS, 1e-9)
}

func TestConcurrentRecord(t *testing.T) {
	a := New(DefaultWindow)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				a.Record(1, 200)
				if i%50 == 0 {
					a.Aggregate()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4000, a.Aggregate().Count)
}
