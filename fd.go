package uloop

const maxBatchEvents = 10

// EventFlags is a bitset of fd readiness request/delivery flags.
type EventFlags uint32

const (
	// EventRead requests (or reports) read readiness.
	EventRead EventFlags = 1 << iota
	// EventWrite requests (or reports) write readiness.
	EventWrite
	// EventEdgeTrigger requests edge-triggered delivery instead of level-triggered.
	EventEdgeTrigger
	// EventBlocking opts the fd out of the default switch-to-nonblocking behavior
	// fd_add performs on first registration.
	EventBlocking
	// EventEOF is set on a delivered event when the peer has closed its end.
	EventEOF
	// EventError is set on a delivered event when the fd has an error condition.
	EventError

	// eventBuffered marks a reentrancy-stack frame as having accumulated a
	// fresh event while its callback was already running. Not exposed; only
	// meaningful on frame.events, never on a watcher's Flags.
	eventBuffered EventFlags = 1 << 31
)

// requestMask is the subset of flags that matters to fd_add's register/delete decision.
const requestMask = EventRead | EventWrite

// FdWatcher is a caller-owned registration of interest in a file descriptor's
// readiness. The zero value is ready to use with FdAdd.
type FdWatcher struct {
	// Fd is the file descriptor to watch. Must be set before FdAdd.
	Fd int
	// Flags is the current request mask (EventRead/EventWrite/EventEdgeTrigger/
	// EventBlocking). Mutated by the loop; treat as read-only once registered.
	Flags EventFlags
	// Callback is invoked with the delivered flags (EventRead/EventWrite/
	// EventEOF/EventError) whenever the backend reports readiness.
	Callback func(w *FdWatcher, events EventFlags)

	registered bool
	eof        bool
	err        bool
}

// Registered reports whether the watcher is currently known to the backend.
func (w *FdWatcher) Registered() bool { return w.registered }

// EOF reports whether the most recent delivered event carried EventEOF.
func (w *FdWatcher) EOF() bool { return w.eof }

// Err reports whether the most recent delivered event carried EventError.
func (w *FdWatcher) Err() bool { return w.err }

// fdEvent is one entry of a backend-fetched readiness batch.
type fdEvent struct {
	watcher *FdWatcher
	events  EventFlags
}

// fdFrame is a reentrancy-guard stack frame: while watcher's callback is
// running, further events for the same fd are folded into events rather
// than re-entering the callback.
type fdFrame struct {
	watcher *FdWatcher
	events  EventFlags
	gone    bool // set by FdDelete if this watcher is deleted mid-callback
}

// FdAdd registers w with the loop's backend. If flags has neither
// EventRead nor EventWrite set, this is equivalent to FdDelete. On first
// registration, unless EventBlocking is set, the fd is switched to
// non-blocking mode.
func (l *Loop) FdAdd(w *FdWatcher, flags EventFlags) error {
	if l.closed {
		return ErrClosed
	}
	if flags&requestMask == 0 {
		return l.FdDelete(w)
	}

	if !w.registered && flags&EventBlocking == 0 {
		if err := setNonblock(w.Fd); err != nil {
			return WrapError("fd_add: set nonblocking", err)
		}
	}

	if err := l.backend.register(w, flags); err != nil {
		return WrapError("fd_add: backend register", err)
	}

	w.Flags = flags
	w.registered = true
	w.eof = false
	w.err = false

	if l.opts.fdSetCallback != nil {
		l.opts.fdSetCallback(w, flags)
	}
	l.logger.Log(LogLevelDebug, "fd_add", "fd", w.Fd, "flags", uint32(flags))
	return nil
}

// FdDelete unregisters w. Safe to call from inside w's own callback: it
// nulls any pending batch entries referencing w, and marks any active
// reentrancy frame for w as gone so the re-invoke loop in deliverFdEvent
// terminates.
func (l *Loop) FdDelete(w *FdWatcher) error {
	if !w.registered {
		return nil
	}

	for i := l.batchCursor; i < l.batchLen; i++ {
		if l.batch[i].watcher == w {
			l.batch[i].watcher = nil
		}
	}
	for i := range l.frameStack {
		if l.frameStack[i].watcher == w {
			l.frameStack[i].gone = true
		}
	}

	w.registered = false
	if l.opts.fdSetCallback != nil {
		l.opts.fdSetCallback(w, 0)
	}

	err := l.backend.unregister(w)
	w.Flags = 0
	if err != nil {
		return WrapError("fd_delete: backend unregister", err)
	}
	l.logger.Log(LogLevelDebug, "fd_delete", "fd", w.Fd)
	return nil
}

// dispatchOneFdEvent consumes exactly one entry from the current batch and
// delivers it, applying the edge-trigger reentrancy fold. Returns true if
// an event was dispatched.
func (l *Loop) dispatchOneFdEvent() bool {
	for l.batchCursor < l.batchLen {
		ev := l.batch[l.batchCursor]
		l.batchCursor++
		if ev.watcher == nil {
			continue // nulled by a concurrent-within-callback FdDelete
		}
		l.deliverFdEvent(ev.watcher, ev.events)
		return true
	}
	return false
}

// deliverFdEvent runs w's callback, applying the edge-trigger fold: if w is
// already on the reentrancy stack (an outer invocation of its own callback
// is running), the new events are OR-ed into that frame and buffered instead
// of recursing. Otherwise a fresh frame is pushed and the callback is called
// in a tight loop until no new events accumulate on the frame.
func (l *Loop) deliverFdEvent(w *FdWatcher, events EventFlags) {
	if events&EventEOF != 0 {
		w.eof = true
	}
	if events&EventError != 0 {
		w.err = true
	}

	if w.Flags&EventEdgeTrigger != 0 {
		for i := range l.frameStack {
			if l.frameStack[i].watcher == w {
				l.frameStack[i].events |= events | eventBuffered
				return
			}
		}
		l.frameStack = append(l.frameStack, fdFrame{watcher: w, events: events})
		idx := len(l.frameStack) - 1
		for {
			frame := l.frameStack[idx]
			l.frameStack[idx].events = 0
			if frame.watcher.Callback != nil {
				frame.watcher.Callback(frame.watcher, frame.events&^eventBuffered)
			}
			if l.frameStack[idx].gone || l.frameStack[idx].events&eventBuffered == 0 {
				break
			}
		}
		l.frameStack = l.frameStack[:idx]
		return
	}

	// Level-triggered: no fold, no recursion guard; the kernel will re-report.
	if w.Callback != nil {
		w.Callback(w, events)
	}
}
