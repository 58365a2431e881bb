package uloop

import (
	"golang.org/x/sys/unix"
)

// ProcessWatcher is a caller-owned registration of interest in a child
// process's termination. The zero value is ready to use with ProcessAdd
// once Pid is set.
type ProcessWatcher struct {
	// Pid is the target process id. Must be set before ProcessAdd.
	Pid int
	// Callback is invoked with the watcher and the raw wait status (as
	// returned by wait(2), decode with the syscall.WaitStatus helpers) once
	// the process has been reaped.
	Callback func(w *ProcessWatcher, status int)

	pending bool
	next    *ProcessWatcher
}

// Pending reports whether w is currently registered.
func (w *ProcessWatcher) Pending() bool { return w.pending }

// ProcessAdd registers w, keeping the loop's process list sorted ascending
// by PID. Multiple watchers may share the same PID; they are notified in
// registration order on reap.
func (l *Loop) ProcessAdd(w *ProcessWatcher) error {
	if w.pending {
		return ErrAlreadyPending
	}
	w.pending = true
	w.next = nil

	if l.processes == nil || w.Pid < l.processes.Pid {
		w.next = l.processes
		l.processes = w
		return nil
	}
	cur := l.processes
	for cur.next != nil && cur.next.Pid <= w.Pid {
		cur = cur.next
	}
	w.next = cur.next
	cur.next = w
	return nil
}

// ProcessDelete unregisters w. Returns ErrNotPending if it was not registered.
func (l *Loop) ProcessDelete(w *ProcessWatcher) error {
	if !w.pending {
		return ErrNotPending
	}
	w.pending = false
	if l.processes == w {
		l.processes = w.next
		w.next = nil
		return nil
	}
	for cur := l.processes; cur != nil; cur = cur.next {
		if cur.next == w {
			cur.next = w.next
			w.next = nil
			return nil
		}
	}
	return nil
}

// reapChildren drains exited children via non-blocking wait4(-1, ...),
// matching each against the PID-sorted watcher list. A single SIGCHLD can
// coalesce several child exits; the reap loop continues until wait4 reports
// no more children.
func (l *Loop) reapChildren() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			return
		}
		l.dispatchReap(pid, int(status))
	}
}

// dispatchReap walks the PID-sorted list: skips lower PIDs, then removes and
// invokes every watcher with an exact PID match (there may be more than
// one), stopping at the first greater PID or the end of the list.
func (l *Loop) dispatchReap(pid int, status int) {
	var prev *ProcessWatcher
	cur := l.processes
	for cur != nil {
		switch {
		case cur.Pid < pid:
			prev = cur
			cur = cur.next
		case cur.Pid > pid:
			return
		default:
			next := cur.next
			if prev == nil {
				l.processes = next
			} else {
				prev.next = next
			}
			cur.next = nil
			cur.pending = false
			if cur.Callback != nil {
				cur.Callback(cur, status)
			}
			cur = next
		}
	}
}
