// Package walk runs the closed-loop walking controller: every tick it
// reads the IMU and joint states, asks the policy service for targets and
// commands all joints at once.
package walk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/willothy/khacks-0.3/pkg/kos"
	"github.com/willothy/khacks-0.3/pkg/policy"
	"github.com/willothy/khacks-0.3/pkg/robot"
)

// Robot is the part of robot.Robot the loop drives.
type Robot interface {
	ReadIMU(ctx context.Context) (kos.IMUValues, error)
	ReadStates(ctx context.Context, ids []robot.ActuatorID) ([]kos.ActuatorState, error)
	CommandMany(ctx context.Context, targets []robot.JointTarget) error
}

// Policy runs one inference step.
type Policy interface {
	Infer(ctx context.Context, obs policy.Observation) (policy.Output, error)
}

var (
	_ Robot  = (*robot.Robot)(nil)
	_ Policy = (*policy.Client)(nil)
)

// State is the loop's lifecycle state.
type State int32

const (
	Armed State = iota
	Ticking
	Stopped
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Ticking:
		return "ticking"
	default:
		return "stopped"
	}
}

// Reasons a tick did not dispatch.
const (
	SkipIMU       = "imu read"
	SkipStates    = "state read"
	SkipInference = "inference"
)

// Tick describes one completed control tick.
type Tick struct {
	Index     int
	Time      time.Time
	Positions map[string]float64 // degrees, by DOF name
	Targets   map[string]float64 // degrees, by DOF name
	Skipped   string             // empty if commands were dispatched
	Err       error
	Latency   time.Duration
}

// Loop is the walk controller. Run it once; it ends in Stopped.
type Loop struct {
	robot  Robot
	policy Policy
	cfg    Config
	ids    []robot.ActuatorID
	logger *slog.Logger

	state   atomic.Int32
	ticks   atomic.Int64
	skipped atomic.Int64

	// actions is the previous tick's policy output, in policy units. Only
	// the loop goroutine touches it.
	actions []float64

	tickCh chan Tick
	logCh  chan string
}

// New creates a loop. The DOF set, endpoint and timing come from cfg;
// zero fields take DefaultConfig values.
func New(r Robot, p Policy, cfg Config, logger *slog.Logger) (*Loop, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("walk config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loop{
		robot:   r,
		policy:  p,
		cfg:     cfg,
		ids:     robot.IDs(cfg.DOFSet),
		logger:  logger.With("component", "walk"),
		actions: make([]float64, len(cfg.DOFSet)),
		tickCh:  make(chan Tick, 1),
		logCh:   make(chan string, 10),
	}
	l.state.Store(int32(Armed))
	return l, nil
}

// Config returns the effective configuration.
func (l *Loop) Config() Config {
	return l.cfg
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Ticks returns the number of completed ticks.
func (l *Loop) Ticks() int {
	return int(l.ticks.Load())
}

// Skipped returns the number of ticks that did not dispatch.
func (l *Loop) Skipped() int {
	return int(l.skipped.Load())
}

// TickUpdates returns a channel that receives every tick, dropping stale
// ones when nobody is reading.
func (l *Loop) TickUpdates() <-chan Tick {
	return l.tickCh
}

// Logs returns a channel that receives log messages.
func (l *Loop) Logs() <-chan string {
	return l.logCh
}

func (l *Loop) log(level slog.Level, msg string, args ...any) {
	l.logger.Log(context.Background(), level, msg, args...)

	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", args[i], args[i+1])
	}
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), sb.String())
	select {
	case l.logCh <- line:
	default:
		// Drop if channel full
	}
}

// Run ticks until ctx is cancelled or the configured duration elapses.
// Cancellation is only observed between ticks, and a stop that lands
// during a tick ends the loop before the next one starts. Run returns nil
// when the duration elapsed and ctx.Err() when cancelled. The Logs and
// TickUpdates channels are closed when Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if l.State() == Stopped {
		return fmt.Errorf("walk loop already stopped")
	}
	defer func() {
		l.state.Store(int32(Stopped))
		close(l.tickCh)
		close(l.logCh)
	}()

	runCtx := ctx
	if l.cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.cfg.Duration)
		defer cancel()
	}

	l.log(slog.LevelInfo, "walk started",
		"period", l.cfg.TickPeriod, "dofs", len(l.cfg.DOFSet), "endpoint", l.cfg.InferenceEndpoint)

	ticker := time.NewTicker(l.cfg.TickPeriod)
	defer ticker.Stop()

	// A tick in progress always completes; per-call timeouts bound it.
	tickCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-runCtx.Done():
			return l.finish(ctx)
		case <-ticker.C:
			// The ticker may be due together with a stop that arrived
			// during the last tick; the stop wins.
			if runCtx.Err() != nil {
				return l.finish(ctx)
			}
			l.sendTick(l.step(tickCtx))
		}
	}
}

// finish logs the end of a run. ctx is the caller's context, not the one
// carrying the duration.
func (l *Loop) finish(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		l.log(slog.LevelInfo, "walk stopped", "ticks", l.Ticks(), "skipped", l.Skipped())
		return err
	}
	l.log(slog.LevelInfo, "walk finished", "ticks", l.Ticks(), "skipped", l.Skipped())
	return nil
}

// step runs one tick: IMU read, state read, inference, dispatch.
func (l *Loop) step(ctx context.Context) Tick {
	l.state.Store(int32(Ticking))
	defer l.state.Store(int32(Armed))

	start := time.Now()
	t := Tick{Index: int(l.ticks.Add(1)), Time: start}

	skip := func(reason string, err error) Tick {
		l.skipped.Add(1)
		l.log(slog.LevelWarn, "tick skipped", "tick", t.Index, "reason", reason, "error", err)
		t.Skipped, t.Err, t.Latency = reason, err, time.Since(start)
		return t
	}

	imu, err := l.robot.ReadIMU(ctx)
	if err != nil {
		return skip(SkipIMU, err)
	}

	states, err := l.robot.ReadStates(ctx, l.ids)
	if err != nil {
		return skip(SkipStates, err)
	}

	t.Positions = make(map[string]float64, len(states))
	for i, s := range states {
		t.Positions[l.cfg.DOFSet[i].Name] = s.Position
	}

	obs := l.observe(imu, states)

	inferCtx, cancel := context.WithTimeout(ctx, l.cfg.InferenceTimeout)
	out, err := l.policy.Infer(inferCtx, obs)
	cancel()
	if err != nil {
		return skip(SkipInference, err)
	}

	actions, err := out.Targets(l.cfg.DOFSet)
	if err != nil {
		return skip(SkipInference, err)
	}
	l.actions = actions

	targets := make([]robot.JointTarget, len(actions))
	t.Targets = make(map[string]float64, len(actions))
	for i, a := range actions {
		d := l.cfg.DOFSet[i]
		deg := l.fromPolicy(a)
		targets[i] = robot.JointTarget{Joint: d.Joint, Axis: d.Axis, Command: robot.PositionCommand(deg)}
		t.Targets[d.Name] = deg
	}

	if err := l.robot.CommandMany(ctx, targets); err != nil {
		l.log(slog.LevelError, "dispatch failed", "tick", t.Index, "error", err)
		t.Err = err
	}

	t.Latency = time.Since(start)
	return t
}

// observe assembles the policy input. Vectors follow the DOF set order.
func (l *Loop) observe(imu kos.IMUValues, states []kos.ActuatorState) policy.Observation {
	n := len(states)
	obs := policy.Observation{
		BaseAngVel:       [3]float64{imu.GyroX, imu.GyroY, imu.GyroZ},
		ProjectedGravity: normalize([3]float64{imu.AccelX, imu.AccelY, imu.AccelZ}),
		Commands:         l.cfg.Command,
		DOFPos:           make([]float64, n),
		DOFVel:           make([]float64, n),
		Actions:          make([]float64, n),
	}
	for i, s := range states {
		obs.DOFPos[i] = l.toPolicy(s.Position)
		obs.DOFVel[i] = l.toPolicy(s.Velocity)
	}
	copy(obs.Actions, l.actions)
	return obs
}

func (l *Loop) toPolicy(deg float64) float64 {
	if l.cfg.PolicyRadians {
		return deg * math.Pi / 180
	}
	return deg
}

func (l *Loop) fromPolicy(v float64) float64 {
	if l.cfg.PolicyRadians {
		return v * 180 / math.Pi
	}
	return v
}

func normalize(v [3]float64) [3]float64 {
	norm := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if norm == 0 {
		return v
	}
	return [3]float64{v[0] / norm, v[1] / norm, v[2] / norm}
}

func (l *Loop) sendTick(t Tick) {
	select {
	case l.tickCh <- t:
	default:
		// Drop old tick if channel full, replace with new
		select {
		case <-l.tickCh:
		default:
		}
		select {
		case l.tickCh <- t:
		default:
		}
	}
}
