package uloop

// LoopState represents the current lifecycle state of a Loop.
//
// This is a plain field, not an atomic CAS machine: state is mutated
// only by the loop's owning goroutine (in Run/RunTimeout and Done), so
// there is no concurrent writer to guard against. The type exists for
// observability (Loop.State), not cross-goroutine sync.
type LoopState int

const (
	// StateInit indicates the loop has been constructed but Run/RunTimeout
	// has not yet been entered.
	StateInit LoopState = iota
	// StateRunning indicates Run/RunTimeout has been entered. The state is
	// not reset when Run/RunTimeout returns; it stays StateRunning until
	// Done.
	StateRunning
	// StateDone indicates Done has been called; all resources are released.
	StateDone
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateRunning:
		return "Running"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}
