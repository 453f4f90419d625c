package kos

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Sim is an in-memory actuator and IMU service. Positions follow commands
// instantly; velocity is the last commanded delta over the time since the
// previous command. It is used for dry runs and tests.
type Sim struct {
	// Latency is added to every call.
	Latency time.Duration
	// ReverseStates returns GetActuatorsState results in reverse order.
	ReverseStates bool

	// Failure hooks, consulted on every call when set.
	ConfigureErr func(id int) error
	CommandErr   func(cmds []ActuatorCommand) error
	StateErr     func(ids []int) error
	IMUErr       func() error

	mu         sync.Mutex
	imu        IMUValues
	actuators  map[int]*simActuator
	batches    [][]ActuatorCommand
	configured []ConfigureRequest
	inFlight   int
	maxFlight  int
}

type simActuator struct {
	position float64
	velocity float64
	updated  time.Time
}

var (
	_ ActuatorService = (*Sim)(nil)
	_ IMUService      = (*Sim)(nil)
)

// NewSim creates a simulator with the given actuators at position zero,
// standing upright.
func NewSim(ids ...int) *Sim {
	s := &Sim{
		imu:       IMUValues{AccelZ: 9.81},
		actuators: make(map[int]*simActuator, len(ids)),
	}
	for _, id := range ids {
		s.actuators[id] = &simActuator{}
	}
	return s
}

func (s *Sim) enter(ctx context.Context) error {
	s.mu.Lock()
	s.inFlight++
	s.maxFlight = max(s.maxFlight, s.inFlight)
	s.mu.Unlock()

	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			s.exit()
			return ctx.Err()
		}
	}
	return nil
}

func (s *Sim) exit() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

// ConfigureActuator implements ActuatorService.
func (s *Sim) ConfigureActuator(ctx context.Context, req ConfigureRequest) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.exit()

	if s.ConfigureErr != nil {
		if err := s.ConfigureErr(req.ActuatorID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actuators[req.ActuatorID]; !ok {
		return fmt.Errorf("actuator %d not found", req.ActuatorID)
	}
	s.configured = append(s.configured, req)
	return nil
}

// CommandActuators implements ActuatorService.
func (s *Sim) CommandActuators(ctx context.Context, cmds []ActuatorCommand) error {
	if err := s.enter(ctx); err != nil {
		return err
	}
	defer s.exit()

	if s.CommandErr != nil {
		if err := s.CommandErr(cmds); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cmd := range cmds {
		if _, ok := s.actuators[cmd.ActuatorID]; !ok {
			return fmt.Errorf("actuator %d not found", cmd.ActuatorID)
		}
	}

	now := time.Now()
	for _, cmd := range cmds {
		a := s.actuators[cmd.ActuatorID]
		if cmd.Position != nil {
			if !a.updated.IsZero() {
				if dt := now.Sub(a.updated).Seconds(); dt > 0 {
					a.velocity = (*cmd.Position - a.position) / dt
				}
			}
			a.position = *cmd.Position
			a.updated = now
		}
	}
	s.batches = append(s.batches, slices.Clone(cmds))
	return nil
}

// GetActuatorsState implements ActuatorService.
func (s *Sim) GetActuatorsState(ctx context.Context, ids []int) ([]ActuatorState, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	defer s.exit()

	if s.StateErr != nil {
		if err := s.StateErr(ids); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]ActuatorState, 0, len(ids))
	for _, id := range ids {
		a, ok := s.actuators[id]
		if !ok {
			return nil, fmt.Errorf("actuator %d not found", id)
		}
		states = append(states, ActuatorState{ActuatorID: id, Position: a.position, Velocity: a.velocity})
	}
	if s.ReverseStates {
		slices.Reverse(states)
	}
	return states, nil
}

// GetImuValues implements IMUService.
func (s *Sim) GetImuValues(ctx context.Context) (IMUValues, error) {
	if err := s.enter(ctx); err != nil {
		return IMUValues{}, err
	}
	defer s.exit()

	if s.IMUErr != nil {
		if err := s.IMUErr(); err != nil {
			return IMUValues{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imu, nil
}

// SetIMU sets the values returned by GetImuValues.
func (s *Sim) SetIMU(v IMUValues) {
	s.mu.Lock()
	s.imu = v
	s.mu.Unlock()
}

// SetState overrides an actuator's reported state.
func (s *Sim) SetState(id int, position, velocity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actuators[id]
	if !ok {
		a = &simActuator{}
		s.actuators[id] = a
	}
	a.position = position
	a.velocity = velocity
}

// Batches returns every successful CommandActuators call in order.
func (s *Sim) Batches() [][]ActuatorCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.batches)
}

// Configured returns every successful ConfigureActuator call in order.
func (s *Sim) Configured() []ConfigureRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.configured)
}

// MaxInFlight reports the highest number of calls that were ever running
// at the same time.
func (s *Sim) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxFlight
}

// StaticIMU always reports the same sample. It stands in for a robot
// without an IMU attached.
type StaticIMU IMUValues

var _ IMUService = StaticIMU{}

// Level is a StaticIMU at rest and upright.
var Level = StaticIMU{AccelZ: 9.81}

// GetImuValues implements IMUService.
func (s StaticIMU) GetImuValues(ctx context.Context) (IMUValues, error) {
	return IMUValues(s), nil
}
