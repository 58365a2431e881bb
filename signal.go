package uloop

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// activeLoop is the process-wide pointer to the Loop currently between New
// and Done: at most one loop instance is active in a process, owning global
// handler state between init and done; New enforces this by CAS-ing into
// activeLoop and failing if one is already set.
var activeLoop atomic.Pointer[Loop]

// SignalWatcher is a caller-owned registration of interest in a process-wide
// signal. The zero value is ready to use with SignalAdd once Signo is set.
type SignalWatcher struct {
	// Signo is the target signal. Must be in the range 1-64 (the bridge's
	// bitset limit) and set before SignalAdd.
	Signo syscall.Signal
	// Callback is invoked once per bridge drain in which Signo was seen.
	// The watcher is not removed by delivery; it remains registered until
	// SignalDelete.
	Callback func(w *SignalWatcher)

	pending bool
	next    *SignalWatcher
}

// Pending reports whether w is currently registered.
func (w *SignalWatcher) Pending() bool { return w.pending }

// signalBridge is the self-pipe plus os/signal.Notify forwarding that turns
// async signal delivery into a readable fd the backend observes. Raw
// sigaction installation is unreachable from pure Go without cgo; this
// rides os/signal's own internal self-pipe trick instead of re-implementing
// it, via one dedicated forwarder goroutine per Loop.
type signalBridge struct {
	pipeRead, pipeWrite int
	watcher             *FdWatcher
	sigCh               chan os.Signal
	doneCh              chan struct{}
	subscribed          map[syscall.Signal]struct{}
	sigpipeIgnored      bool
	seen                uint64
}

func (l *Loop) initSignalBridge() error {
	readFD, writeFD, err := createSelfPipe()
	if err != nil {
		return WrapError("init: self-pipe", err)
	}
	l.sig.pipeRead = readFD
	l.sig.pipeWrite = writeFD
	l.sig.sigCh = make(chan os.Signal, 16)
	l.sig.doneCh = make(chan struct{})

	l.sig.watcher = &FdWatcher{Fd: readFD, Callback: l.bridgeCallback}
	if err := l.FdAdd(l.sig.watcher, EventRead); err != nil {
		_ = closeFD(readFD)
		_ = closeFD(writeFD)
		return err
	}

	l.syncSignalSubscriptions()

	signal.Ignore(syscall.SIGPIPE)
	l.sig.sigpipeIgnored = true

	go l.forwardSignals()
	return nil
}

func (l *Loop) closeSignalBridge() {
	close(l.sig.doneCh)
	signal.Stop(l.sig.sigCh)
	if l.sig.sigpipeIgnored {
		signal.Reset(syscall.SIGPIPE)
		l.sig.sigpipeIgnored = false
	}
	if l.sig.watcher != nil {
		_ = l.FdDelete(l.sig.watcher)
		l.sig.watcher = nil
	}
	if l.sig.pipeRead >= 0 {
		_ = closeFD(l.sig.pipeRead)
	}
	if l.sig.pipeWrite >= 0 {
		_ = closeFD(l.sig.pipeWrite)
	}
	l.sig.pipeRead, l.sig.pipeWrite = -1, -1
}

// SignalAdd installs the bridge handler for w.Signo (idempotently; it may
// already be subscribed on behalf of another watcher or the loop's own
// SIGINT/SIGTERM/SIGCHLD handling) and links w into the ascending-signo
// watcher list.
func (l *Loop) SignalAdd(w *SignalWatcher) error {
	if w.pending {
		return ErrAlreadyPending
	}
	w.pending = true
	w.next = nil

	if l.signals == nil || w.Signo < l.signals.Signo {
		w.next = l.signals
		l.signals = w
	} else {
		cur := l.signals
		for cur.next != nil && cur.next.Signo <= w.Signo {
			cur = cur.next
		}
		w.next = cur.next
		cur.next = w
	}

	l.syncSignalSubscriptions()
	return nil
}

// SignalDelete unregisters w, unsubscribing the bridge from w.Signo iff no
// other watcher (nor the loop's own reserved SIGINT/SIGTERM/SIGCHLD needs)
// still wants it, adapted to os/signal.Notify's multiplexed subscription
// model.
func (l *Loop) SignalDelete(w *SignalWatcher) error {
	if !w.pending {
		return ErrNotPending
	}
	w.pending = false
	if l.signals == w {
		l.signals = w.next
	} else {
		for cur := l.signals; cur != nil; cur = cur.next {
			if cur.next == w {
				cur.next = w.next
				break
			}
		}
	}
	w.next = nil

	l.syncSignalSubscriptions()
	return nil
}

// syncSignalSubscriptions recomputes the full desired signal set (the
// loop's reserved SIGINT/SIGTERM/SIGCHLD plus every pending watcher's Signo)
// and re-subscribes only if it changed.
func (l *Loop) syncSignalSubscriptions() {
	wanted := map[syscall.Signal]struct{}{
		syscall.SIGINT:  {},
		syscall.SIGTERM: {},
	}
	if l.opts.handleSIGCHLD {
		wanted[syscall.SIGCHLD] = struct{}{}
	}
	for w := l.signals; w != nil; w = w.next {
		wanted[w.Signo] = struct{}{}
	}

	if signalSetEqual(wanted, l.sig.subscribed) {
		return
	}

	signal.Stop(l.sig.sigCh)
	sigs := make([]os.Signal, 0, len(wanted))
	for s := range wanted {
		sigs = append(sigs, s)
	}
	if len(sigs) > 0 {
		signal.Notify(l.sig.sigCh, sigs...)
	}
	l.sig.subscribed = wanted
}

func signalSetEqual(a, b map[syscall.Signal]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for s := range a {
		if _, ok := b[s]; !ok {
			return false
		}
	}
	return true
}

// forwardSignals is the one dedicated goroutine that plays the role of an
// async-signal-safe trampoline: for each signal Go's runtime delivers, it
// sets cancelled/status or needsReap (all atomics, since this goroutine
// runs concurrently with the loop's own goroutine — the one deliberate
// cross-thread intrusion into otherwise single-goroutine state), then
// writes one byte (the signal number) to the self-pipe, retrying on
// EINTR/EAGAIN. No allocation, no logging: the same minimal duty a real
// signal handler must keep to.
func (l *Loop) forwardSignals() {
	for {
		select {
		case s, ok := <-l.sig.sigCh:
			if !ok {
				return
			}
			sig, ok := s.(syscall.Signal)
			if !ok || sig < 1 || sig > 64 {
				continue
			}
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				l.status.Store(int32(sig))
				l.cancelled.Store(true)
			}
			if sig == syscall.SIGCHLD {
				l.needsReap.Store(true)
			}
			writeSignalByte(l.sig.pipeWrite, byte(sig))
		case <-l.sig.doneCh:
			return
		}
	}
}

func writeSignalByte(fd int, b byte) {
	buf := [1]byte{b}
	for {
		_, err := writeFD(fd, buf[:])
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		return
	}
}

// bridgeCallback drains the self-pipe, OR-ing each byte into a 64-bit
// "signals seen" bitset, then walks the registered signal-watcher list once,
// invoking the callback for every watcher whose signo was seen. N
// deliveries of the same signal between two drains coalesce into one
// callback invocation.
func (l *Loop) bridgeCallback(w *FdWatcher, events EventFlags) {
	var buf [32]byte
	for {
		n, err := readFD(l.sig.pipeRead, buf[:])
		if n > 0 {
			for i := 0; i < n; i++ {
				l.sig.seen |= 1 << (uint64(buf[i]) - 1)
			}
		}
		if err != nil || n < len(buf) {
			break
		}
	}
	if l.sig.seen == 0 {
		return
	}
	seen := l.sig.seen
	l.sig.seen = 0
	for sw := l.signals; sw != nil; sw = sw.next {
		bit := uint64(1) << (uint64(sw.Signo) - 1)
		if seen&bit != 0 && sw.Callback != nil {
			sw.Callback(sw)
		}
	}
}
