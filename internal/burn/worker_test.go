package burn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerCyclesAndStops(t *testing.T) {
	w := Start(Config{Busy: 2 * time.Millisecond, Idle: 2 * time.Millisecond})

	require.Eventually(t, func() bool { return w.Cycles() >= 3 }, 2*time.Second, time.Millisecond)

	select {
	case <-w.Stop():
	case <-time.After(time.Second):
		t.Fatal("worker did not acknowledge stop")
	}
}

func TestWorkerReconfigure(t *testing.T) {
	w := Start(Config{Busy: time.Millisecond, Idle: 50 * time.Millisecond})
	defer w.Stop()

	next := Config{Busy: 3 * time.Millisecond, Idle: time.Millisecond}
	w.Reconfigure(next)

	require.Eventually(t, func() bool { return w.Config() == next }, time.Second, time.Millisecond)

	before := w.Cycles()
	require.Eventually(t, func() bool { return w.Cycles() > before+5 }, 2*time.Second, time.Millisecond)
}

func TestStopDuringLongBurn(t *testing.T) {
	w := Start(Config{Busy: time.Hour})
	time.Sleep(5 * time.Millisecond)

	select {
	case <-w.Stop():
	case <-time.After(time.Second):
		t.Fatal("stop was not observed inside the busy phase")
	}
}

func TestStopDuringLongIdle(t *testing.T) {
	w := Start(Config{Busy: time.Millisecond, Idle: time.Hour})
	time.Sleep(5 * time.Millisecond)

	select {
	case <-w.Stop():
	case <-time.After(time.Second):
		t.Fatal("stop was not observed inside the idle phase")
	}
}

func TestReconfigureAfterStopDoesNotBlock(t *testing.T) {
	w := Start(Config{Busy: time.Millisecond, Idle: time.Millisecond})
	<-w.Stop()

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			w.Reconfigure(Config{Busy: time.Millisecond})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Reconfigure blocked on a stopped worker")
	}
	assert.NotNil(t, w.Done())
}
