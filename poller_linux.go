//go:build linux

package uloop

import (
	"golang.org/x/sys/unix"
)

// epollBackend is the Linux fd-readiness backend, built on
// golang.org/x/sys/unix's epoll wrappers. It carries no internal locking:
// the loop has exactly one mutator (the loop goroutine), so a plain map
// suffices without a guarding mutex or atomics.
type epollBackend struct {
	epfd     int
	fds      map[int]*FdWatcher
	eventBuf [maxBatchEvents]unix.EpollEvent
}

func newBackend() (backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{epfd: fd, fds: make(map[int]*FdWatcher)}, nil
}

func (b *epollBackend) register(w *FdWatcher, flags EventFlags) error {
	op := unix.EPOLL_CTL_ADD
	if _, exists := b.fds[w.Fd]; exists {
		op = unix.EPOLL_CTL_MOD
	}
	ev := unix.EpollEvent{Events: flagsToEpoll(flags), Fd: int32(w.Fd)}
	if err := unix.EpollCtl(b.epfd, op, w.Fd, &ev); err != nil {
		return err
	}
	b.fds[w.Fd] = w
	return nil
}

func (b *epollBackend) unregister(w *FdWatcher) error {
	if _, exists := b.fds[w.Fd]; !exists {
		return nil
	}
	delete(b.fds, w.Fd)
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, w.Fd, nil); err != nil &&
		err != unix.ENOENT && err != unix.EBADF {
		return err
	}
	return nil
}

func (b *epollBackend) fetch(timeoutMS int, batch []fdEvent) (int, error) {
	n, err := unix.EpollWait(b.epfd, b.eventBuf[:len(batch)], timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for i := 0; i < n; i++ {
		fd := int(b.eventBuf[i].Fd)
		w, ok := b.fds[fd]
		if !ok {
			continue
		}
		batch[count] = fdEvent{watcher: w, events: epollToFlags(b.eventBuf[i].Events)}
		count++
	}
	return count, nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.epfd)
}

func flagsToEpoll(flags EventFlags) uint32 {
	var e uint32
	if flags&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if flags&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	if flags&EventEdgeTrigger != 0 {
		e |= unix.EPOLLET
	}
	return e
}

func epollToFlags(e uint32) EventFlags {
	var f EventFlags
	if e&unix.EPOLLIN != 0 {
		f |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		f |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		f |= EventError
	}
	if e&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		f |= EventEOF
	}
	return f
}
