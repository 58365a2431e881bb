//go:build darwin

package uloop

import (
	"golang.org/x/sys/unix"
)

// createSelfPipe creates a true two-ended pipe(2), both ends close-on-exec
// and non-blocking, used by the signal bridge. Darwin has no Pipe2, so the
// flags are applied after creation.
func createSelfPipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}

	cleanup := func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	}

	if err := unix.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return -1, -1, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return -1, -1, err
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	return fds[0], fds[1], nil
}
