package uloop

import (
	"runtime"
	"sync/atomic"
	"time"
)

// backend is the pluggable fd-readiness driver: epollBackend on Linux,
// kqueueBackend on Darwin.
type backend interface {
	register(w *FdWatcher, flags EventFlags) error
	unregister(w *FdWatcher) error
	fetch(timeoutMS int, batch []fdEvent) (int, error)
	close() error
}

// Loop is the single-threaded, cooperative dispatch core. Exactly one
// goroutine may call Run/RunTimeout at a time; all registration
// methods (FdAdd, FdDelete, TimeoutSet, TimeoutAdd, TimeoutCancel,
// ProcessAdd, ProcessDelete, SignalAdd, SignalDelete) must only be called
// from that goroutine. The zero value is not usable; construct with New.
type Loop struct {
	opts   *loopOptions
	logger Logger
	state  LoopState

	backend backend

	timeouts  *Timeout
	processes *ProcessWatcher
	signals   *SignalWatcher
	sig       signalBridge

	batch       [maxBatchEvents]fdEvent
	batchCursor int
	batchLen    int
	frameStack  []fdFrame

	depth      int
	runningGID uint64

	cancelled atomic.Bool
	status    atomic.Int32
	needsReap atomic.Bool

	closed bool
}

// New constructs and initializes a Loop, installing the backend and the
// signal bridge. Only one Loop may be active in a process at a time; New
// returns ErrLoopAlreadyActive otherwise.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		opts:   cfg,
		logger: cfg.logger,
	}
	l.sig.pipeRead, l.sig.pipeWrite = -1, -1

	if !activeLoop.CompareAndSwap(nil, l) {
		return nil, ErrLoopAlreadyActive
	}

	b, err := newBackend()
	if err != nil {
		activeLoop.CompareAndSwap(l, nil)
		return nil, WrapError("init: backend", err)
	}
	l.backend = b

	if err := l.initSignalBridge(); err != nil {
		_ = b.close()
		activeLoop.CompareAndSwap(l, nil)
		return nil, err
	}

	l.logger.Log(LogLevelInfo, "init")
	return l, nil
}

// Done releases all resources held by the loop: closes the backend and the
// self-pipe, restores signal state this loop owned, and clears all lists.
// Idempotent.
func (l *Loop) Done() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.state = StateDone

	l.closeSignalBridge()

	var err error
	if l.backend != nil {
		err = l.backend.close()
	}

	l.timeouts = nil
	l.processes = nil
	l.signals = nil
	l.frameStack = nil

	activeLoop.CompareAndSwap(l, nil)
	l.logger.Log(LogLevelInfo, "done")
	return err
}

// Run blocks until cancelled, equivalent to RunTimeout with no deadline.
func (l *Loop) Run() (int, error) {
	return l.run(-1, false)
}

// RunTimeout blocks until cancelled or until d elapses, whichever comes
// first. Supports nested invocation from within a callback running on the
// loop's own goroutine; a concurrent call from a different goroutine while
// the loop is already running returns ErrReentrantRun.
func (l *Loop) RunTimeout(d time.Duration) (int, error) {
	ms := int(d.Milliseconds())
	if ms < 0 {
		ms = 0
	}
	return l.run(ms, true)
}

// Cancelling reports whether the loop is currently unwinding: depth > 0 and
// cancelled is set.
func (l *Loop) Cancelling() bool {
	return l.depth > 0 && l.cancelled.Load()
}

// Status returns the last cancelling signal number, or 0.
func (l *Loop) Status() int {
	return int(l.status.Load())
}

// State returns the loop's current lifecycle state.
func (l *Loop) State() LoopState {
	return l.state
}

// Cancel sets the sticky cancelled flag and wakes the loop via the
// self-pipe if it is blocked in the backend.
func (l *Loop) Cancel() {
	l.cancelled.Store(true)
	l.wake()
}

// End is an alias of Cancel.
func (l *Loop) End() {
	l.Cancel()
}

// ClearCancelled resets cancelled and status. Callers must do this between
// a cancelled Run/RunTimeout and a fresh one.
func (l *Loop) ClearCancelled() {
	l.cancelled.Store(false)
	l.status.Store(0)
}

func (l *Loop) run(ms int, hasDeadline bool) (int, error) {
	if l.closed {
		return 0, ErrClosed
	}

	gid := getGoroutineID()
	if l.depth > 0 && l.runningGID != gid {
		return 0, ErrReentrantRun
	}
	if l.depth == 0 {
		l.runningGID = gid
	}
	l.depth++
	defer func() {
		l.depth--
		if l.depth == 0 {
			l.runningGID = 0
		}
	}()

	var deadlineReached bool
	var sentinel *Timeout
	if hasDeadline {
		sentinel = &Timeout{Callback: func(*Timeout) { deadlineReached = true }}
		if err := l.TimeoutSet(sentinel, time.Duration(ms)*time.Millisecond); err != nil {
			return int(l.status.Load()), err
		}
		defer func() {
			if sentinel.Pending() {
				_ = l.TimeoutCancel(sentinel)
			}
		}()
	}

	l.state = StateRunning
	for {
		if l.needsReap.Load() {
			l.needsReap.Store(false)
			l.reapChildren()
		}
		if l.cancelled.Load() {
			break
		}

		nextMS, hasNext := l.runTimers(monotonicNow())
		if deadlineReached || l.cancelled.Load() {
			break
		}

		timeoutMS := -1
		if hasNext {
			timeoutMS = nextMS
		}
		if err := l.poll(timeoutMS); err != nil {
			l.logger.Log(LogLevelError, "poll", "error", err)
		}
	}

	return int(l.status.Load()), nil
}

// poll consumes one pending batch entry if available, otherwise blocks in
// the backend for up to timeoutMS and refills the batch before consuming
// one entry.
func (l *Loop) poll(timeoutMS int) error {
	if l.dispatchOneFdEvent() {
		return nil
	}
	n, err := l.backend.fetch(timeoutMS, l.batch[:])
	if err != nil {
		return err
	}
	l.batchCursor = 0
	l.batchLen = n
	l.dispatchOneFdEvent()
	return nil
}

// wake writes a byte the bridge will observe as pipe-readable but that
// matches no registered signal (0 is not a valid signal number), purely to
// unblock a backend fetch() call in progress.
func (l *Loop) wake() {
	if l.sig.pipeWrite >= 0 {
		writeSignalByte(l.sig.pipeWrite, 0)
	}
}

// getGoroutineID extracts the calling goroutine's id from its stack trace
// header, used only to distinguish legitimate same-goroutine nested Run
// calls from a concurrent cross-goroutine misuse.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
