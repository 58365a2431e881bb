// Package uloop provides sentinel errors for the dispatch core.
package uloop

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the public entry points. Every op in the
// fd/timeout/process/signal add-delete contract returns one of these (or a
// wrapped backend error), never a bare -1 as the C original does.
var (
	// ErrClosed is returned when an operation is attempted on a Loop after Done.
	ErrClosed = errors.New("uloop: loop is closed")

	// ErrAlreadyPending is returned when adding a watcher/timeout that is
	// already linked into its list (pending == true).
	ErrAlreadyPending = errors.New("uloop: already pending")

	// ErrNotPending is returned when cancelling/deleting a watcher/timeout
	// that is not currently linked into its list.
	ErrNotPending = errors.New("uloop: not pending")

	// ErrFDNotRegistered names the "fd not registered" condition. No
	// operation in this package returns it: FdDelete on a watcher that is
	// not registered returns nil.
	ErrFDNotRegistered = errors.New("uloop: fd not registered")

	// ErrReentrantRun is returned when Run/RunTimeout is invoked from a
	// different goroutine while the loop is already running. Nested calls
	// from a callback on the loop's own goroutine are allowed.
	ErrReentrantRun = errors.New("uloop: Run called from another goroutine while the loop is running")

	// ErrBackendClosed names the "backend closed" condition. No operation in
	// this package returns it: after Done, Run and FdAdd return ErrClosed.
	ErrBackendClosed = errors.New("uloop: backend is closed")

	// ErrLoopAlreadyActive is returned by New when another Loop is
	// already active in this process: at most one loop instance may be
	// active at a time, since it owns global signal handler state between
	// init and done.
	ErrLoopAlreadyActive = errors.New("uloop: another loop is already active in this process")
)

// WrapError wraps an error with a message, preserving the cause chain for
// errors.Is/errors.As.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
