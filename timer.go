package uloop

import (
	"math"
	"time"
)

// Timeout is a caller-owned one-shot deadline. The zero value is ready to
// use with TimeoutSet.
type Timeout struct {
	// Callback is invoked with the timeout itself once its deadline elapses.
	// By the time it runs, the timeout has already been unlinked (Pending
	// is false).
	Callback func(t *Timeout)

	deadline time.Time
	pending  bool
	next     *Timeout
}

// Pending reports whether t is currently linked into a loop's timeout list.
func (t *Timeout) Pending() bool { return t.pending }

// Deadline returns the absolute monotonic deadline last set for t. Only
// meaningful while Pending is true.
func (t *Timeout) Deadline() time.Time { return t.deadline }

// TimeoutAdd inserts t, which must already have Deadline set (e.g. via
// TimeoutSet on a fresh value then manual Deadline manipulation is not
// supported — use TimeoutSet for the common case), into the loop's
// insertion-sorted timeout list. Ties break FIFO: t is inserted after any
// existing entry with an equal deadline.
func (l *Loop) TimeoutAdd(t *Timeout) error {
	if t.pending {
		return ErrAlreadyPending
	}
	l.timeoutInsert(t)
	return nil
}

// TimeoutSet cancels any prior pending state for t, computes a new deadline
// of now+d on the monotonic clock, and inserts it.
func (l *Loop) TimeoutSet(t *Timeout, d time.Duration) error {
	if t.pending {
		l.timeoutUnlink(t)
	}
	t.deadline = monotonicNow().Add(d)
	l.timeoutInsert(t)
	return nil
}

// TimeoutCancel unlinks t if pending. Returns ErrNotPending if it was not.
func (l *Loop) TimeoutCancel(t *Timeout) error {
	if !t.pending {
		return ErrNotPending
	}
	l.timeoutUnlink(t)
	return nil
}

// TimeoutRemaining returns the milliseconds until t's deadline, saturated to
// the int32 range, or (-1, false) if t is not pending. The -1 value alone
// is ambiguous with "one ms in the past"; the bool return tells the two
// apart.
func (l *Loop) TimeoutRemaining(t *Timeout) (int32, bool) {
	if !t.pending {
		return -1, false
	}
	ms := t.deadline.Sub(monotonicNow()).Milliseconds()
	switch {
	case ms > math.MaxInt32:
		return math.MaxInt32, true
	case ms < math.MinInt32:
		return math.MinInt32, true
	default:
		return int32(ms), true
	}
}

// TimeoutRemaining64 is the unsaturated 64-bit counterpart to
// TimeoutRemaining: the bool is false iff t is not pending.
func (l *Loop) TimeoutRemaining64(t *Timeout) (int64, bool) {
	if !t.pending {
		return -1, false
	}
	return t.deadline.Sub(monotonicNow()).Milliseconds(), true
}

// timeoutInsert links t into l.timeouts in ascending-deadline, FIFO-on-tie order.
func (l *Loop) timeoutInsert(t *Timeout) {
	t.pending = true
	t.next = nil

	if l.timeouts == nil || t.deadline.Before(l.timeouts.deadline) {
		t.next = l.timeouts
		l.timeouts = t
		return
	}

	cur := l.timeouts
	for cur.next != nil && !t.deadline.Before(cur.next.deadline) {
		cur = cur.next
	}
	t.next = cur.next
	cur.next = t
}

// timeoutUnlink removes t from l.timeouts. t must currently be linked.
func (l *Loop) timeoutUnlink(t *Timeout) {
	t.pending = false
	if l.timeouts == t {
		l.timeouts = t.next
		t.next = nil
		return
	}
	for cur := l.timeouts; cur != nil; cur = cur.next {
		if cur.next == t {
			cur.next = t.next
			t.next = nil
			return
		}
	}
}

// runTimers fires every timeout whose deadline has elapsed, earliest first,
// unlinking each before invoking its callback. It returns the milliseconds
// until the next remaining deadline, and false if there is none. If a
// callback cancels the loop, it stops at once and returns (0, false),
// leaving any other elapsed timeouts linked and unfired.
func (l *Loop) runTimers(now time.Time) (int, bool) {
	for l.timeouts != nil && !l.timeouts.deadline.After(now) {
		t := l.timeouts
		l.timeouts = t.next
		t.next = nil
		t.pending = false
		if t.Callback != nil {
			t.Callback(t)
		}
		if l.cancelled.Load() {
			return 0, false
		}
	}
	if l.timeouts == nil {
		return 0, false
	}
	remaining := l.timeouts.deadline.Sub(now).Milliseconds()
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining), true
}

// monotonicNow is the single call site for "now" used by the timer queue,
// kept as a function so tests can substitute a paused clock.
var monotonicNow = time.Now
