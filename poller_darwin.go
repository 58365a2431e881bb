//go:build darwin

package uloop

import (
	"golang.org/x/sys/unix"
)

// kqueueBackend is the Darwin fd-readiness backend, built on
// golang.org/x/sys/unix's kqueue wrappers. Like epollBackend, it carries no
// internal locking and keeps its registry in a plain map: the loop has
// exactly one mutator (the loop goroutine).
type kqueueBackend struct {
	kq       int
	fds      map[int]*FdWatcher
	eventBuf [maxBatchEvents]unix.Kevent_t
}

func newBackend() (backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueueBackend{kq: kq, fds: make(map[int]*FdWatcher)}, nil
}

func (b *kqueueBackend) register(w *FdWatcher, flags EventFlags) error {
	addFlags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	if flags&EventEdgeTrigger != 0 {
		addFlags |= unix.EV_CLEAR
	}

	var kevents []unix.Kevent_t
	if flags&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(w.Fd), Filter: unix.EVFILT_READ, Flags: addFlags})
	}
	if flags&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(w.Fd), Filter: unix.EVFILT_WRITE, Flags: addFlags})
	}
	if prev, ok := b.fds[w.Fd]; ok {
		if prev.Flags&EventRead != 0 && flags&EventRead == 0 {
			kevents = append(kevents, unix.Kevent_t{Ident: uint64(w.Fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
		}
		if prev.Flags&EventWrite != 0 && flags&EventWrite == 0 {
			kevents = append(kevents, unix.Kevent_t{Ident: uint64(w.Fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
		}
	}

	if len(kevents) > 0 {
		if _, err := unix.Kevent(b.kq, kevents, nil, nil); err != nil {
			return err
		}
	}
	b.fds[w.Fd] = w
	return nil
}

func (b *kqueueBackend) unregister(w *FdWatcher) error {
	prev, ok := b.fds[w.Fd]
	if !ok {
		return nil
	}
	delete(b.fds, w.Fd)

	var kevents []unix.Kevent_t
	if prev.Flags&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(w.Fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if prev.Flags&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(w.Fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	if len(kevents) > 0 {
		_, _ = unix.Kevent(b.kq, kevents, nil, nil)
	}
	return nil
}

func (b *kqueueBackend) fetch(timeoutMS int, batch []fdEvent) (int, error) {
	var ts *unix.Timespec
	if timeoutMS >= 0 {
		ts = &unix.Timespec{Sec: int64(timeoutMS / 1000), Nsec: int64((timeoutMS % 1000) * 1000000)}
	}
	n, err := unix.Kevent(b.kq, nil, b.eventBuf[:len(batch)], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for i := 0; i < n; i++ {
		kev := &b.eventBuf[i]
		w, ok := b.fds[int(kev.Ident)]
		if !ok {
			continue
		}
		var f EventFlags
		switch kev.Filter {
		case unix.EVFILT_READ:
			f |= EventRead
		case unix.EVFILT_WRITE:
			f |= EventWrite
		}
		if kev.Flags&unix.EV_EOF != 0 {
			f |= EventEOF
		}
		if kev.Flags&unix.EV_ERROR != 0 {
			f |= EventError
		}
		batch[count] = fdEvent{watcher: w, events: f}
		count++
	}
	return count, nil
}

func (b *kqueueBackend) close() error {
	return unix.Close(b.kq)
}
