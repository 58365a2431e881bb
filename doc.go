// Package uloop provides a single-threaded, cooperative Unix event loop:
// file descriptor readiness multiplexing, a monotonic timeout queue,
// a self-pipe signal bridge, and SIGCHLD child reaping.
//
// # Architecture
//
// A [Loop] owns one fd-readiness backend ([epollBackend] on Linux,
// [kqueueBackend] on Darwin/BSD), one insertion-sorted timeout list, one
// signal bridge, and one process-reap list. All of these are driven from a
// single call to [Loop.Run] or [Loop.RunTimeout] — there is no internal
// locking, because there is exactly one goroutine touching loop state at a
// time (see "Thread Safety" below).
//
// # Platform Support
//
// Fd readiness is implemented using platform-native readiness backends:
//   - Linux: epoll, with optional timerfd-backed interval timers
//   - Darwin/BSD: kqueue
//
// Windows is out of scope: the self-pipe signal bridge and SIGCHLD reaping
// this package is built around have no IOCP equivalent worth emulating.
//
// # Thread Safety
//
// Unlike a thread-pool scheduler, a [Loop] is NOT safe for concurrent use.
// Exactly one goroutine may call [Loop.Run] or [Loop.RunTimeout] at a time,
// and [FdAdd], [FdDelete], [TimeoutSet], [TimeoutAdd], [TimeoutCancel],
// [ProcessAdd], [ProcessDelete], [SignalAdd], and [SignalDelete] must only
// be called from that same goroutine — including from within callbacks
// invoked by the loop itself, which is the common case. The one exception
// is the signal bridge's internal forwarder goroutine, which communicates
// with the loop exclusively through a self-pipe write, never by touching
// loop state directly.
//
// # Execution Model
//
// Each iteration of [Loop.RunTimeout] performs, in order:
//  1. Reap any exited children registered via [ProcessAdd] (if SIGCHLD
//     handling is enabled).
//  2. Fire every [Timeout] whose deadline has elapsed, earliest first.
//  3. Block in the backend for at most the time remaining until the next
//     timeout (or indefinitely if there is none), then dispatch a single
//     ready fd event to its [FdWatcher.Callback]; the rest of a fetched
//     batch is dispatched one event per later iteration.
//
// A loop that has been told to stop via [Loop.End] checks for it after
// reaping and after each fired timeout: a callback that is already running
// completes, but no further timeouts fire and the backend is not polled
// again before Run/RunTimeout returns.
//
// # Usage
//
//	loop, err := uloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Done()
//
//	t := &uloop.Timeout{
//	    Callback: func(t *uloop.Timeout) {
//	        fmt.Println("fired after 100ms")
//	        loop.End()
//	    },
//	}
//	loop.TimeoutSet(t, 100*time.Millisecond)
//
//	if _, err := loop.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Errors
//
// Operations that can fail return one of the sentinel errors in errors.go
// ([ErrClosed], [ErrAlreadyPending], [ErrNotPending], [ErrReentrantRun],
// [ErrLoopAlreadyActive]), or, where a backend syscall is the underlying
// cause, that syscall's error wrapped with context via [WrapError].
// [ErrFDNotRegistered] and [ErrBackendClosed] are declared but no
// operation returns them. Callers
// should use errors.Is against these sentinels rather than matching on
// message text.
package uloop
