package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsUntilStopped(t *testing.T) {
	var runs atomic.Int64
	task := Every(context.Background(), 5*time.Millisecond, func(context.Context) {
		runs.Add(1)
	})

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)

	task.Stop()
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())

	select {
	case <-task.Done():
	default:
		t.Fatal("loop still running after Stop")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	task := Every(context.Background(), time.Hour, func(context.Context) {})
	task.Stop()
	task.Stop()

	var nilTask *Task
	nilTask.Stop()
}

func TestParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Every(ctx, time.Millisecond, func(context.Context) {})
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task ignored parent cancellation")
	}
}

func TestCancelDoesNotWaitForRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	task := Every(context.Background(), time.Millisecond, func(context.Context) {
		once.Do(func() { close(started) })
		<-release
	})
	<-started

	returned := make(chan struct{})
	go func() {
		task.Cancel()
		task.Cancel()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Cancel blocked on the running call")
	}
	select {
	case <-task.Done():
		t.Fatal("loop exited while a call was still running")
	default:
	}

	close(release)
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after the call returned")
	}

	var nilTask *Task
	nilTask.Cancel()
}
