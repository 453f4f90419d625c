package robot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/willothy/khacks-0.3/pkg/kos"
)

// Command holds the targets for one joint. Nil fields mean no change is
// requested for that channel; an empty Command is a valid no-op.
type Command struct {
	Position *float64 `json:"position,omitempty"` // degrees
	Velocity *float64 `json:"velocity,omitempty"`
	Torque   *float64 `json:"torque,omitempty"`
}

// PositionCommand returns a Command that only sets a position target.
func PositionCommand(deg float64) Command {
	return Command{Position: &deg}
}

// JointTarget is one element of a multi-joint command.
type JointTarget struct {
	Joint   Joint
	Axis    Axis
	Command Command
}

// DispatchMode selects how CommandMany sends a resolved batch.
type DispatchMode int

const (
	// DispatchBatched sends the whole batch as one request.
	DispatchBatched DispatchMode = iota
	// DispatchConcurrent sends one request per joint concurrently.
	DispatchConcurrent
)

// Options configure a Robot.
type Options struct {
	Dispatch DispatchMode
	// Gains and Limits are applied by Initialize, keyed by actuator id.
	Gains  map[ActuatorID]kos.Gains
	Limits map[ActuatorID]kos.Limits
	Logger *slog.Logger
}

// Robot is the single entry point joints are commanded through.
type Robot struct {
	link *Link

	imuMu sync.Mutex
	imu   kos.IMUService

	opts   Options
	logger *slog.Logger
}

// New creates a Robot on an actuator link and an IMU service.
func New(link *Link, imu kos.IMUService, opts Options) *Robot {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Robot{
		link:   link,
		imu:    imu,
		opts:   opts,
		logger: logger.With("component", "robot"),
	}
}

func toActuatorCommand(id ActuatorID, c Command) kos.ActuatorCommand {
	return kos.ActuatorCommand{
		ActuatorID: int(id),
		Position:   c.Position,
		Velocity:   c.Velocity,
		Torque:     c.Torque,
	}
}

// CommandJoint sends a command to a single joint axis.
func (r *Robot) CommandJoint(ctx context.Context, joint Joint, axis Axis, cmd Command) error {
	id, err := Resolve(joint, axis)
	if err != nil {
		return &ControlError{Op: "command joint", Err: err}
	}
	if err := r.link.CommandBatch(ctx, []kos.ActuatorCommand{toActuatorCommand(id, cmd)}); err != nil {
		return &ControlError{Op: "command joint", Err: err}
	}
	return nil
}

// CommandMany commands several joints. Every target is resolved before
// anything is sent, so a batch with an unknown joint dispatches nothing.
// It returns only after every dispatch finished. A non-nil error means
// some actuators may have moved while others did not.
func (r *Robot) CommandMany(ctx context.Context, targets []JointTarget) error {
	cmds := make([]kos.ActuatorCommand, 0, len(targets))
	for _, t := range targets {
		id, err := Resolve(t.Joint, t.Axis)
		if err != nil {
			return &ControlError{Op: "command many", Err: err}
		}
		cmds = append(cmds, toActuatorCommand(id, t.Command))
	}
	if len(cmds) == 0 {
		return nil
	}

	var err error
	switch r.opts.Dispatch {
	case DispatchConcurrent:
		err = r.dispatchConcurrent(ctx, cmds)
	default:
		err = r.link.CommandBatch(ctx, cmds)
	}
	if err != nil {
		return &ControlError{Op: "command many", Err: err}
	}
	return nil
}

func (r *Robot) dispatchConcurrent(ctx context.Context, cmds []kos.ActuatorCommand) error {
	errs := make([]error, len(cmds))

	var wg sync.WaitGroup
	for i, cmd := range cmds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = r.link.CommandBatch(ctx, []kos.ActuatorCommand{cmd})
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Initialize enables torque on every actuator in registry order. Any
// failure aborts: the robot is not safe to command unless every actuator
// was configured.
func (r *Robot) Initialize(ctx context.Context) error {
	for _, id := range AllIDs() {
		req := kos.ConfigureRequest{ActuatorID: int(id), TorqueEnabled: true}
		if g, ok := r.opts.Gains[id]; ok {
			req.Gains = &g
		}
		if l, ok := r.opts.Limits[id]; ok {
			req.Limits = &l
		}

		if err := r.link.Configure(ctx, req); err != nil {
			joint, axis, _ := Lookup(id)
			return &ControlError{
				Op:  fmt.Sprintf("initialize actuator %d (%s/%s)", id, joint, axis),
				Err: err,
			}
		}
	}
	r.logger.Info("actuators configured", "count", len(AllIDs()))
	return nil
}

// Shutdown disables torque on every actuator. It keeps going past
// failures and returns them joined.
func (r *Robot) Shutdown(ctx context.Context) error {
	var errs []error
	for _, id := range AllIDs() {
		if err := r.link.Configure(ctx, kos.ConfigureRequest{ActuatorID: int(id)}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.logger.Warn("torque disable failed", "error", err)
		return &ControlError{Op: "shutdown", Err: err}
	}
	r.logger.Info("torque disabled")
	return nil
}

// ReadStates reads fresh actuator states aligned with ids.
func (r *Robot) ReadStates(ctx context.Context, ids []ActuatorID) ([]kos.ActuatorState, error) {
	return r.link.ReadStates(ctx, ids)
}

// ReadIMU reads one IMU sample.
func (r *Robot) ReadIMU(ctx context.Context) (kos.IMUValues, error) {
	ctx, cancel := context.WithTimeout(ctx, r.link.timeout)
	defer cancel()

	r.imuMu.Lock()
	v, err := r.imu.GetImuValues(ctx)
	r.imuMu.Unlock()

	if err != nil {
		return kos.IMUValues{}, &RPCError{Kind: Transient, Op: "imu", Err: err}
	}
	return v, nil
}
