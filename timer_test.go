package uloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutSet_RepeatedReschedules(t *testing.T) {
	l := newTestLoop(t)

	tm := &Timeout{}
	require.NoError(t, l.TimeoutSet(tm, 100*time.Millisecond))
	first := tm.Deadline()

	require.NoError(t, l.TimeoutSet(tm, 10*time.Millisecond))
	assert.True(t, tm.Deadline().Before(first))
	assert.True(t, tm.Pending())
}

func TestTimeoutAdd_AlreadyPending(t *testing.T) {
	l := newTestLoop(t)

	tm := &Timeout{}
	require.NoError(t, l.TimeoutSet(tm, 10*time.Millisecond))
	assert.ErrorIs(t, l.TimeoutAdd(tm), ErrAlreadyPending)
}

func TestTimeoutCancel_NotPending(t *testing.T) {
	l := newTestLoop(t)
	assert.ErrorIs(t, l.TimeoutCancel(&Timeout{}), ErrNotPending)
}

func TestTimeoutRemaining(t *testing.T) {
	l := newTestLoop(t)

	tm := &Timeout{}
	ms, ok := l.TimeoutRemaining(tm)
	assert.False(t, ok)
	assert.Equal(t, int32(-1), ms)

	require.NoError(t, l.TimeoutSet(tm, 50*time.Millisecond))
	ms, ok = l.TimeoutRemaining(tm)
	assert.True(t, ok)
	assert.True(t, ms > 0 && ms <= 50)

	ms64, ok := l.TimeoutRemaining64(tm)
	assert.True(t, ok)
	assert.True(t, ms64 > 0 && ms64 <= 50)
}

// TestRunTimers_TieBreakFIFO covers timeoutInsert's FIFO-on-tie ordering:
// two timeouts sharing a deadline fire in insertion order.
func TestRunTimers_TieBreakFIFO(t *testing.T) {
	l := newTestLoop(t)

	var order []int
	deadline := monotonicNow().Add(5 * time.Millisecond)

	a := &Timeout{deadline: deadline}
	a.Callback = func(*Timeout) { order = append(order, 1) }
	b := &Timeout{deadline: deadline}
	b.Callback = func(*Timeout) { order = append(order, 2) }

	l.timeoutInsert(a)
	l.timeoutInsert(b)

	_, hasNext := l.runTimers(deadline)
	assert.False(t, hasNext)
	assert.Equal(t, []int{1, 2}, order)
}

// TestRunTimers_StopsOnCancel covers spec.md §4.1 step 3: a callback that
// cancels the loop stops further timer firing within the same pass.
func TestRunTimers_StopsOnCancel(t *testing.T) {
	l := newTestLoop(t)

	var fired []int
	deadline := monotonicNow()

	first := &Timeout{deadline: deadline}
	first.Callback = func(*Timeout) {
		fired = append(fired, 1)
		l.cancelled.Store(true)
	}
	second := &Timeout{deadline: deadline}
	second.Callback = func(*Timeout) { fired = append(fired, 2) }

	l.timeoutInsert(first)
	l.timeoutInsert(second)

	l.runTimers(deadline)
	assert.Equal(t, []int{1}, fired)
}

func TestIntervalSet_FiresRepeatedly(t *testing.T) {
	l := newTestLoop(t)

	iv := &Interval{}
	count := 0
	iv.Callback = func(*Interval) {
		count++
		if count >= 3 {
			l.End()
		}
	}
	require.NoError(t, l.IntervalSet(iv, 5))
	assert.True(t, iv.Registered())

	_, err := l.RunTimeout(2 * time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 3)

	require.NoError(t, l.IntervalCancel(iv))
	assert.False(t, iv.Registered())
}

func TestIntervalCancel_NotPending(t *testing.T) {
	l := newTestLoop(t)
	assert.ErrorIs(t, l.IntervalCancel(&Interval{}), ErrNotPending)
}
