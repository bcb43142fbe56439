package burn

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Config is a busy/idle duty cycle
type Config struct {
	Busy time.Duration
	Idle time.Duration
}

type messageKind int

const (
	msgReconfigure messageKind = iota
	msgStop
)

type message struct {
	kind messageKind
	cfg  Config
}

// Worker burns CPU for Busy, sleeps for Idle, and repeats until stopped.
// It is controlled only through its message channel.
type Worker struct {
	msgs     chan message
	done     chan struct{}
	stopping atomic.Bool
	cycles   atomic.Int64

	mu  sync.Mutex
	cfg Config

	// acc keeps the arithmetic observable so it is not optimized away
	acc float64
}

// Start launches a worker goroutine with the given duty cycle
func Start(cfg Config) *Worker {
	w := &Worker{
		msgs: make(chan message, 8),
		done: make(chan struct{}),
		cfg:  cfg,
		acc:  1,
	}
	go w.run()
	return w
}

// Reconfigure swaps the duty cycle without restarting the worker.
// It is a no-op once the worker has exited.
func (w *Worker) Reconfigure(cfg Config) {
	select {
	case w.msgs <- message{kind: msgReconfigure, cfg: cfg}:
	case <-w.done:
	}
}

// Stop asks the worker to exit and returns immediately. The returned
// channel is closed once the loop has acknowledged the stop.
func (w *Worker) Stop() <-chan struct{} {
	w.stopping.Store(true)
	select {
	case w.msgs <- message{kind: msgStop}:
	default:
	}
	return w.done
}

// Done is closed when the worker has exited
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Config returns the duty cycle currently in effect
func (w *Worker) Config() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// Cycles returns how many busy/idle iterations have completed
func (w *Worker) Cycles() int64 {
	return w.cycles.Load()
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		if !w.drain() {
			return
		}

		cfg := w.Config()
		w.burn(cfg.Busy)
		if w.stopping.Load() {
			return
		}

		if cfg.Idle > 0 && !w.idle(cfg.Idle) {
			return
		}
		w.cycles.Add(1)
	}
}

// drain applies queued messages without blocking. It reports false on stop.
func (w *Worker) drain() bool {
	for {
		select {
		case m := <-w.msgs:
			if !w.apply(m) {
				return false
			}
		default:
			return !w.stopping.Load()
		}
	}
}

// idle sleeps for d while still reacting to messages
func (w *Worker) idle(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case m := <-w.msgs:
			if !w.apply(m) {
				return false
			}
		case <-timer.C:
			return true
		}
	}
}

func (w *Worker) apply(m message) bool {
	switch m.kind {
	case msgStop:
		return false
	case msgReconfigure:
		w.mu.Lock()
		w.cfg = m.cfg
		w.mu.Unlock()
	}
	return true
}

// burn spins on deterministic floating point work until d has elapsed or a
// stop is requested.
func (w *Worker) burn(d time.Duration) {
	if d <= 0 {
		return
	}
	end := time.Now().Add(d)
	acc := w.acc
	for time.Now().Before(end) {
		for i := 0; i < 2000; i++ {
			acc = math.Sqrt(acc*1.0001 + 12345)
			if acc > 1e6 {
				acc = math.Mod(acc, 1000)
			}
		}
		if w.stopping.Load() {
			break
		}
	}
	w.acc = acc
}
