package uloop

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSignalAdd_DeliversOnSelfSignal covers scenario S3: a registered signal
// watcher's callback fires when the process receives that signal.
func TestSignalAdd_DeliversOnSelfSignal(t *testing.T) {
	l := newTestLoop(t)

	delivered := make(chan struct{}, 1)
	w := &SignalWatcher{Signo: syscall.SIGUSR1}
	w.Callback = func(*SignalWatcher) {
		select {
		case delivered <- struct{}{}:
		default:
		}
		l.End()
	}
	require.NoError(t, l.SignalAdd(w))
	assert.True(t, w.Pending())

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	}()

	_, err := l.RunTimeout(5 * time.Second)
	require.NoError(t, err)

	select {
	case <-delivered:
	default:
		t.Fatal("signal watcher callback never ran")
	}
}

func TestSignalAdd_AlreadyPending(t *testing.T) {
	l := newTestLoop(t)
	w := &SignalWatcher{Signo: syscall.SIGUSR2}
	require.NoError(t, l.SignalAdd(w))
	assert.ErrorIs(t, l.SignalAdd(w), ErrAlreadyPending)
}

func TestSignalDelete_NotPending(t *testing.T) {
	l := newTestLoop(t)
	assert.ErrorIs(t, l.SignalDelete(&SignalWatcher{Signo: syscall.SIGUSR2}), ErrNotPending)
}

// TestSignalDelete_StopsFurtherDelivery covers spec.md §4.3: once a watcher
// is deleted, its signal no longer reaches it.
func TestSignalDelete_StopsFurtherDelivery(t *testing.T) {
	l := newTestLoop(t)

	var calls int
	w := &SignalWatcher{Signo: syscall.SIGUSR2}
	w.Callback = func(*SignalWatcher) { calls++ }
	require.NoError(t, l.SignalAdd(w))
	require.NoError(t, l.SignalDelete(w))

	done := &Timeout{Callback: func(*Timeout) { l.End() }}
	require.NoError(t, l.TimeoutSet(done, 30*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR2)
	}()

	_, err := l.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

// TestSignalSetEqual covers the subscription-diff helper directly.
func TestSignalSetEqual(t *testing.T) {
	a := map[syscall.Signal]struct{}{syscall.SIGINT: {}, syscall.SIGTERM: {}}
	b := map[syscall.Signal]struct{}{syscall.SIGTERM: {}, syscall.SIGINT: {}}
	c := map[syscall.Signal]struct{}{syscall.SIGINT: {}}

	assert.True(t, signalSetEqual(a, b))
	assert.False(t, signalSetEqual(a, c))
}
