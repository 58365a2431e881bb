//go:build linux || darwin

package uloop

import (
	"golang.org/x/sys/unix"
)

// closeFD closes a file descriptor.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// readFD reads from a file descriptor.
func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// writeFD writes to a file descriptor.
func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// setNonblock switches fd to non-blocking mode (FdAdd's default behavior
// unless EventBlocking is requested).
func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
