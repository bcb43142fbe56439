package pressure

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"load_simulator/internal/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T, initial profile.Level) *Manager {
	t.Helper()
	m := New(zaptest.NewLogger(t), profile.NewTable(4), initial, Options{
		ScratchFile: filepath.Join(t.TempDir(), "io.bin"),
	})
	t.Cleanup(m.Close)
	return m
}

func TestStartsLow(t *testing.T) {
	m := newTestManager(t, "")

	assert.Equal(t, profile.Low, m.Level())
	st := m.Status()
	assert.Zero(t, st.Workers)
	assert.Zero(t, st.MemoryMB)
	assert.False(t, st.IOActive)
}

func TestSetLevelAppliesProfile(t *testing.T) {
	m := newTestManager(t, profile.Low)
	table := profile.NewTable(4)

	for _, level := range profile.Levels {
		m.SetLevel(level)
		want := table.Lookup(level)

		st := m.Status()
		assert.Equal(t, level, st.Level)
		assert.Equal(t, want.CPUWorkers, st.Workers, level)
		assert.Equal(t, want.MemoryPressureMB, st.MemoryMB, level)
		assert.Equal(t, want.IOBurst, st.IOActive, level)
		assert.Equal(t, want, m.Profile())
	}
}

func TestSetLevelIdempotent(t *testing.T) {
	m := newTestManager(t, profile.Low)

	m.SetLevel(profile.Peak)
	first := m.current.Load()
	m.SetLevel(profile.Peak)
	second := m.current.Load()

	require.NotSame(t, first, second)
	assert.Len(t, second.workers, profile.NewTable(4).Lookup(profile.Peak).CPUWorkers)

	for _, w := range first.workers {
		select {
		case <-w.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("worker from the replaced set is still running")
		}
	}
	for _, w := range second.workers {
		select {
		case <-w.Done():
			t.Fatal("active worker exited")
		default:
		}
	}
	select {
	case <-first.io.Done():
	default:
		t.Fatal("io timer from the replaced set is still scheduled")
	}
}

func TestProfileIsCopy(t *testing.T) {
	m := newTestManager(t, profile.Normal)

	p := m.Profile()
	p.CPUWorkers = 42
	p.Notes = "changed"

	assert.Equal(t, 1, m.Profile().CPUWorkers)
	assert.NotEqual(t, "changed", m.Profile().Notes)
}

func TestAllocateChunksNonZero(t *testing.T) {
	blocks := allocate(40, 16)
	require.Len(t, blocks, 3)

	total := 0
	for _, b := range blocks {
		total += len(b)
		assert.NotZero(t, b[0])
		assert.NotZero(t, b[len(b)/2])
		assert.NotZero(t, b[len(b)-1])
	}
	assert.Equal(t, 40*1024*1024, total)
	assert.Len(t, blocks[2], 8*1024*1024)

	assert.Nil(t, allocate(0, 16))
}

func TestIOBurstWritesScratchFile(t *testing.T) {
	m := newTestManager(t, profile.Low)

	require.NoError(t, m.ioBurst())
	info, err := os.Stat(m.opts.ScratchFile)
	require.NoError(t, err)
	assert.EqualValues(t, DefaultIOBurstBytes, info.Size())
}

func TestIOBurstFailureIsCounted(t *testing.T) {
	table := profile.NewTable(4)
	m := New(zaptest.NewLogger(t), table, profile.Low, Options{
		ScratchFile: filepath.Join(t.TempDir(), "missing", "dir", "io.bin"),
	})
	defer m.Close()

	m.SetLevel(profile.Overload)

	require.Eventually(t, func() bool {
		return m.Status().IOFailures > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, m.Status().IOActive, "timer keeps running after a failed burst")
}

func TestTransitionDoesNotWaitForSlowBurst(t *testing.T) {
	m := newTestManager(t, profile.Low)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	var once sync.Once
	m.burst = func() error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}

	m.SetLevel(profile.Overload)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no IO burst started")
	}

	switched := make(chan struct{})
	go func() {
		m.SetLevel(profile.Low)
		close(switched)
	}()

	select {
	case <-switched:
	case <-time.After(time.Second):
		t.Fatal("SetLevel waited on the in-flight IO burst")
	}
	assert.Equal(t, profile.Low, m.Level())
	assert.False(t, m.Status().IOActive)
}

func TestConcurrentTransitionsAreNotTorn(t *testing.T) {
	m := newTestManager(t, profile.Low)
	table := profile.NewTable(4)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			st := m.Status()
			want := table.Lookup(st.Level)
			if st.Workers != want.CPUWorkers || st.MemoryMB != want.MemoryPressureMB {
				t.Errorf("torn read: %+v", st)
				return
			}
		}
	}()

	for i := 0; i < 8; i++ {
		m.SetLevel(profile.Levels[i%len(profile.Levels)])
	}
	close(stop)
	wg.Wait()
}
