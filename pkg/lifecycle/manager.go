package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/pktreplay/pkg/errs"
	"github.com/bft-labs/pktreplay/pkg/log"
)

// Common lifecycle errors. They are wrapped as errs.InvalidState.
var (
	ErrNotRunning      = errors.New("not running")
	ErrAlreadyRunning  = errors.New("already running")
	ErrShutdownTimeout = errors.New("shutdown timeout")
)

// ShutdownTimeout is the default maximum time to wait for a loop to exit.
const ShutdownTimeout = 5 * time.Second

// Manager implements the state machine for one loop.
type Manager struct {
	mu           sync.RWMutex
	state        State
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       log.Logger
	eventEmitter EventEmitter
}

// NewManager creates a new lifecycle manager. emitter may be nil.
func NewManager(logger log.Logger, emitter EventEmitter) *Manager {
	return &Manager{
		state:        StateStopped,
		logger:       log.OrNoop(logger),
		eventEmitter: emitter,
	}
}

// State returns the current lifecycle state.
func (l *Manager) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo attempts to transition to a new state.
// Returns an error if the transition is not valid.
func (l *Manager) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	var bad error
	switch oldState {
	case StateStopped:
		if newState != StateStarting {
			bad = ErrNotRunning
		}
	case StateStarting:
		if newState != StateRunning && newState != StateCrashed {
			bad = ErrAlreadyRunning
		}
	case StateRunning:
		if newState != StateStopping && newState != StateCrashed {
			bad = ErrAlreadyRunning
		}
	case StateStopping:
		if newState != StateStopped && newState != StateCrashed {
			bad = ErrAlreadyRunning
		}
	case StateCrashed:
		if newState != StateStarting {
			bad = ErrNotRunning
		}
	}
	if bad != nil {
		l.mu.Unlock()
		return errs.E(errs.InvalidState, "lifecycle."+newState.String(), bad)
	}

	l.state = newState
	l.mu.Unlock()

	// Emit event outside of lock
	if l.eventEmitter != nil {
		l.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	l.logger.Debug("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

// CanStart returns true if Run can be called.
func (l *Manager) CanStart() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateStopped || l.state == StateCrashed
}

// Running reports whether a loop is active.
func (l *Manager) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateRunning || l.state == StateStarting
}

// Run executes loop on the calling goroutine and returns its error. Only
// one loop may run at a time; a second call fails with ErrAlreadyRunning.
// A loop that returns nil or a context error ends Stopped; any other error
// leaves the manager Crashed.
func (l *Manager) Run(ctx context.Context, name string, loop func(context.Context) error) error {
	if err := l.TransitionTo(StateStarting, name); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.setCancel(cancel)
	l.wg.Add(1)
	defer l.wg.Done()

	if err := l.TransitionTo(StateRunning, name); err != nil {
		return err
	}

	err := loop(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		l.logger.Error("loop crashed", log.String("loop", name), log.Err(err))
		_ = l.TransitionTo(StateCrashed, err.Error())
		return err
	}
	_ = l.TransitionTo(StateStopping, name)
	_ = l.TransitionTo(StateStopped, name)
	return nil
}

func (l *Manager) setCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

// Cancel asks a running loop to exit.
func (l *Manager) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Shutdown cancels the loop and waits for it to return.
func (l *Manager) Shutdown(timeout time.Duration) error {
	l.Cancel()
	return l.WaitWithTimeout(timeout)
}

// WaitWithTimeout waits for the loop to finish with a timeout.
// Returns ErrShutdownTimeout if the timeout expires.
func (l *Manager) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("shutdown timeout",
			log.Duration("timeout", timeout),
		)
		return ErrShutdownTimeout
	}
}
