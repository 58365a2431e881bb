//go:build linux

package uloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// intervalStart arms a kernel timerfd and registers it as a READ-only
// FdWatcher, preferring a real kernel primitive over userspace re-arming.
func (l *Loop) intervalStart(iv *Interval) error {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return WrapError("interval_set: timerfd_create", err)
	}

	period := time.Duration(iv.periodMS) * time.Millisecond
	spec := &unix.ItimerSpec{
		Value:    unix.NsecToTimespec(period.Nanoseconds()),
		Interval: unix.NsecToTimespec(period.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(fd, 0, spec, nil); err != nil {
		_ = unix.Close(fd)
		return WrapError("interval_set: timerfd_settime", err)
	}

	iv.fd = fd
	iv.watcher = &FdWatcher{
		Fd: fd,
		Callback: func(w *FdWatcher, events EventFlags) {
			var buf [8]byte
			_, _ = unix.Read(fd, buf[:])
			if iv.Callback != nil {
				iv.Callback(iv)
			}
		},
	}
	if err := l.FdAdd(iv.watcher, EventRead); err != nil {
		_ = unix.Close(fd)
		iv.fd = -1
		iv.watcher = nil
		return err
	}
	return nil
}

func (l *Loop) intervalStop(iv *Interval) {
	if iv.watcher != nil {
		_ = l.FdDelete(iv.watcher)
		iv.watcher = nil
	}
	if iv.fd >= 0 {
		_ = unix.Close(iv.fd)
		iv.fd = -1
	}
}

func (iv *Interval) remaining() (time.Duration, bool) {
	if iv.fd < 0 {
		return 0, false
	}
	spec, err := unix.TimerfdGettime(iv.fd)
	if err != nil {
		return 0, false
	}
	return time.Duration(spec.Value.Sec)*time.Second + time.Duration(spec.Value.Nsec), true
}
