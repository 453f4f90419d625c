package walk

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/willothy/khacks-0.3/pkg/policy"
)

var (
	ErrRunning    = errors.New("walk loop already running")
	ErrNotRunning = errors.New("walk loop not running")
)

// Status is a snapshot of the runner.
type Status struct {
	Running bool   `json:"running"`
	State   string `json:"state"`
	Ticks   int    `json:"ticks"`
	Skipped int    `json:"skipped"`
	LastErr string `json:"last_error,omitempty"`
}

// Runner runs at most one walk loop at a time in the background.
type Runner struct {
	robot     Robot
	newPolicy func(Config) Policy
	logger    *slog.Logger

	mu      sync.Mutex
	loop    *Loop
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewRunner creates a runner. newPolicy builds the policy for each run;
// nil selects an HTTP client on the configured endpoint.
func NewRunner(r Robot, newPolicy func(Config) Policy, logger *slog.Logger) *Runner {
	if newPolicy == nil {
		newPolicy = func(cfg Config) Policy {
			return policy.NewClient(cfg.InferenceEndpoint, cfg.InferenceTimeout)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{robot: r, newPolicy: newPolicy, logger: logger}
}

// Start starts a loop with cfg. The loop outlives the caller's request;
// it ends on Stop or when its duration elapses.
func (r *Runner) Start(cfg Config) (*Loop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running() {
		return nil, ErrRunning
	}

	cfg = cfg.withDefaults()
	loop, err := New(r.robot, r.newPolicy(cfg), cfg, r.logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.loop, r.cancel, r.done, r.lastErr = loop, cancel, done, nil

	go func() {
		defer close(done)
		err := loop.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.mu.Lock()
			r.lastErr = err
			r.mu.Unlock()
		}
	}()
	return loop, nil
}

// Stop cancels the running loop and waits for its current tick to end.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.running() {
		r.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Wait blocks until the current loop, if any, has stopped.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Status reports the current or last loop.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{Running: r.running(), State: Stopped.String()}
	if r.loop != nil {
		s.State = r.loop.State().String()
		s.Ticks = r.loop.Ticks()
		s.Skipped = r.loop.Skipped()
	}
	if r.lastErr != nil {
		s.LastErr = r.lastErr.Error()
	}
	return s
}

// running must be called with mu held.
func (r *Runner) running() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}
