package schedule

import (
	"context"
	"sync"
	"time"
)

// Task runs a function on a fixed interval until stopped
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every starts calling fn every interval. The first call happens after one
// interval has elapsed. A run that overlaps the next tick delays it; runs
// never overlap each other.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()

	return t
}

// Stop cancels the task and waits for the loop to exit. Safe to call more
// than once and on a nil Task.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
	<-t.done
}

// Cancel stops the task without waiting for a run in progress to return.
// Safe to call more than once and on a nil Task.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
}

// Done is closed once the loop has exited
func (t *Task) Done() <-chan struct{} {
	return t.done
}
