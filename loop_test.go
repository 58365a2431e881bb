package uloop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Done() })
	return l
}

// TestNew_SingleActiveLoop covers spec.md §3: at most one loop instance may
// be active in a process at a time.
func TestNew_SingleActiveLoop(t *testing.T) {
	l1 := newTestLoop(t)

	_, err := New()
	assert.ErrorIs(t, err, ErrLoopAlreadyActive)

	require.NoError(t, l1.Done())

	l2, err := New()
	require.NoError(t, err)
	require.NoError(t, l2.Done())
}

// TestDone_Idempotent covers spec.md §4.6: done releases resources and may
// be called more than once without error.
func TestDone_Idempotent(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	require.NoError(t, l.Done())
	require.NoError(t, l.Done())
}

// TestRun_TimerOrdering covers scenario S1: timers fire in deadline order,
// earliest first, and Run returns once cancelled.
func TestRun_TimerOrdering(t *testing.T) {
	l := newTestLoop(t)

	var mu sync.Mutex
	var fired []string

	record := func(name string) func(*Timeout) {
		return func(*Timeout) {
			mu.Lock()
			fired = append(fired, name)
			mu.Unlock()
		}
	}

	third := &Timeout{Callback: record("third")}
	first := &Timeout{Callback: record("first")}
	second := &Timeout{Callback: record("second")}

	require.NoError(t, l.TimeoutSet(third, 30*time.Millisecond))
	require.NoError(t, l.TimeoutSet(first, 10*time.Millisecond))
	require.NoError(t, l.TimeoutSet(second, 20*time.Millisecond))

	last := &Timeout{Callback: func(*Timeout) { l.End() }}
	require.NoError(t, l.TimeoutSet(last, 40*time.Millisecond))

	status, err := l.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, fired)
}

// TestRunTimeout_DeadlineReached covers spec.md §4.1/§4.6: RunTimeout returns
// once its own deadline elapses even if nothing cancels the loop.
func TestRunTimeout_DeadlineReached(t *testing.T) {
	l := newTestLoop(t)

	start := time.Now()
	status, err := l.RunTimeout(30 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

// TestCancel_ClearCancelled covers scenario S4: a cancelled loop can be
// restarted after ClearCancelled.
func TestCancel_ClearCancelled(t *testing.T) {
	l := newTestLoop(t)

	t0 := &Timeout{}
	t0.Callback = func(*Timeout) { l.Cancel() }
	require.NoError(t, l.TimeoutSet(t0, 5*time.Millisecond))

	_, err := l.Run()
	require.NoError(t, err)
	assert.False(t, l.Cancelling()) // Cancelling is only true mid-unwind, never after Run returns

	l.ClearCancelled()

	ran := false
	t1 := &Timeout{Callback: func(*Timeout) {
		ran = true
		l.End()
	}}
	require.NoError(t, l.TimeoutSet(t1, 5*time.Millisecond))
	_, err = l.Run()
	require.NoError(t, err)
	assert.True(t, ran)
}

// TestRunTimeout_NestedSameGoroutine covers scenario S6: a callback running
// on the loop's own goroutine may invoke RunTimeout again.
func TestRunTimeout_NestedSameGoroutine(t *testing.T) {
	l := newTestLoop(t)

	var innerRan bool
	outer := &Timeout{}
	outer.Callback = func(*Timeout) {
		inner := &Timeout{Callback: func(*Timeout) {
			innerRan = true
			l.End()
		}}
		require.NoError(t, l.TimeoutSet(inner, 5*time.Millisecond))
		_, err := l.RunTimeout(time.Second)
		assert.NoError(t, err)
		l.End()
	}
	require.NoError(t, l.TimeoutSet(outer, 5*time.Millisecond))

	_, err := l.Run()
	require.NoError(t, err)
	assert.True(t, innerRan)
}

// TestRun_ReentrantCrossGoroutine covers spec.md §5: a concurrent Run call
// from a different goroutine while the loop is already running is rejected.
func TestRun_ReentrantCrossGoroutine(t *testing.T) {
	l := newTestLoop(t)

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := &Timeout{}
	blocker.Callback = func(*Timeout) {
		close(started)
		<-release
		l.End()
	}
	require.NoError(t, l.TimeoutSet(blocker, 5*time.Millisecond))

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_, _ = l.Run()
	}()

	<-started
	_, err := l.Run()
	assert.ErrorIs(t, err, ErrReentrantRun)
	close(release)
	<-runDone
}

// TestRun_ClosedLoop covers spec.md §4.6: operations after Done return
// ErrClosed.
func TestRun_ClosedLoop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	require.NoError(t, l.Done())

	_, err = l.Run()
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, l.FdAdd(&FdWatcher{Fd: 0}, EventRead), ErrClosed)
}

// TestState_Lifecycle covers the loop's observable lifecycle transitions.
func TestState_Lifecycle(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	assert.Equal(t, StateInit, l.State())

	t0 := &Timeout{Callback: func(*Timeout) { l.End() }}
	require.NoError(t, l.TimeoutSet(t0, time.Millisecond))
	_, err = l.Run()
	require.NoError(t, err)
	assert.Equal(t, StateRunning, l.State())

	require.NoError(t, l.Done())
	assert.Equal(t, StateDone, l.State())
}
