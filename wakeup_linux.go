//go:build linux

package uloop

import (
	"golang.org/x/sys/unix"
)

// createSelfPipe creates a true two-ended pipe(2), both ends close-on-exec
// and non-blocking, used by the signal bridge. This deliberately does not
// use Linux's eventfd here even though it's a cheaper single-fd wake
// primitive: the bridge must carry a byte-per-signal payload, which an
// eventfd's 8-byte counter cannot represent.
func createSelfPipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}
