package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/willothy/khacks-0.3/pkg/kos"
)

// DefaultRPCTimeout bounds a single actuator service call.
const DefaultRPCTimeout = 50 * time.Millisecond

// Link is the single guarded handle to the actuator service. Its only
// operations are the RPCs themselves; each holds the link exclusively for
// the duration of one call and releases it before returning.
type Link struct {
	mu      sync.Mutex
	svc     kos.ActuatorService
	timeout time.Duration
}

// NewLink wraps an actuator service. A non-positive timeout selects
// DefaultRPCTimeout.
func NewLink(svc kos.ActuatorService, timeout time.Duration) *Link {
	if timeout <= 0 {
		timeout = DefaultRPCTimeout
	}
	return &Link{svc: svc, timeout: timeout}
}

// Dial opens an actuator service with open and wraps it in a Link. Open
// failures are Connect errors.
func Dial[S kos.ActuatorService](open func() (S, error), timeout time.Duration) (*Link, S, error) {
	svc, err := open()
	if err != nil {
		var zero S
		return nil, zero, &RPCError{Kind: Connect, Op: "dial", Err: err}
	}
	return NewLink(svc, timeout), svc, nil
}

func (l *Link) call(ctx context.Context, op string, fn func(context.Context) error) error {
	l.mu.Lock()
	// The deadline starts once the link is ours, not while queued.
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	err := fn(callCtx)
	cancel()
	l.mu.Unlock()

	if err != nil {
		return &RPCError{Kind: Transient, Op: op, Err: err}
	}
	return nil
}

// Configure configures one actuator.
func (l *Link) Configure(ctx context.Context, req kos.ConfigureRequest) error {
	return l.call(ctx, "configure", func(ctx context.Context) error {
		return l.svc.ConfigureActuator(ctx, req)
	})
}

// CommandBatch sends all commands in one request: either every actuator
// received it or none did.
func (l *Link) CommandBatch(ctx context.Context, cmds []kos.ActuatorCommand) error {
	return l.call(ctx, "command", func(ctx context.Context) error {
		return l.svc.CommandActuators(ctx, cmds)
	})
}

// ReadStates reads fresh states for ids. The result is aligned with ids
// whatever order the service answered in.
func (l *Link) ReadStates(ctx context.Context, ids []ActuatorID) ([]kos.ActuatorState, error) {
	raw := make([]int, len(ids))
	for i, id := range ids {
		raw[i] = int(id)
	}

	var states []kos.ActuatorState
	err := l.call(ctx, "read states", func(ctx context.Context) error {
		var err error
		states, err = l.svc.GetActuatorsState(ctx, raw)
		return err
	})
	if err != nil {
		return nil, err
	}

	aligned, err := align(raw, states)
	if err != nil {
		return nil, &RPCError{Kind: Transient, Op: "read states", Err: err}
	}
	return aligned, nil
}

func align(ids []int, states []kos.ActuatorState) ([]kos.ActuatorState, error) {
	if len(states) != len(ids) {
		return nil, fmt.Errorf("got %d states for %d actuators", len(states), len(ids))
	}

	byID := make(map[int]kos.ActuatorState, len(states))
	for _, s := range states {
		if _, dup := byID[s.ActuatorID]; dup {
			return nil, fmt.Errorf("actuator %d reported twice", s.ActuatorID)
		}
		byID[s.ActuatorID] = s
	}

	out := make([]kos.ActuatorState, len(ids))
	for i, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("no state for actuator %d", id)
		}
		out[i] = s
	}
	return out, nil
}
