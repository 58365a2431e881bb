package uloop

// loopOptions holds configuration resolved at New.
type loopOptions struct {
	handleSIGCHLD bool
	fdSetCallback func(w *FdWatcher, flags EventFlags)
	logger        Logger
}

// LoopOption configures a Loop instance constructed by New.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithHandleSIGCHLD controls whether the loop installs its own SIGCHLD
// bridge handler at New. Defaults to true. Callers that reap children
// themselves (e.g. via os/exec.Cmd.Wait) should disable this to avoid
// racing the loop's reaper for the same pid.
func WithHandleSIGCHLD(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.handleSIGCHLD = enabled
		return nil
	}}
}

// WithFDSetCallback installs an observer invoked on every FdAdd/FdDelete,
// e.g. for a forking library that needs to track which fds belong to the
// loop across fork/exec.
func WithFDSetCallback(cb func(w *FdWatcher, flags EventFlags)) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.fdSetCallback = cb
		return nil
	}}
}

// WithLogger sets the structured logger used for the loop's own lifecycle
// events (init, shutdown, poll errors, fd registration changes). Signal
// delivery and child reaping are not logged. Defaults to a no-op logger.
func WithLogger(logger Logger) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		handleSIGCHLD: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = NewNoopLogger()
	}
	return cfg, nil
}
