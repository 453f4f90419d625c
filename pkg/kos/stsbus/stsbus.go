// Package stsbus implements the actuator service on a Feetech STS serial
// bus, talking to the servos directly instead of through a remote daemon.
package stsbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/willothy/khacks-0.3/pkg/kos"
)

// DefaultBaudRate is the STS bus speed the Z-Bot servos ship with.
const DefaultBaudRate = 1_000_000

// Config holds the bus settings.
type Config struct {
	Port        string
	BaudRate    int
	Timeout     time.Duration
	Calibration Calibration
	Logger      *slog.Logger
}

type sample struct {
	deg float64
	at  time.Time
}

// Service is a kos.ActuatorService on a Feetech bus. Positions are in
// joint degrees through the per-servo calibration. STS servos run in
// position mode, so velocity and torque targets are ignored.
//
// Service is not safe for concurrent use; wrap it in a robot.Link.
type Service struct {
	bus    *feetech.Bus
	cal    Calibration
	last   map[int]sample
	logger *slog.Logger
}

var _ kos.ActuatorService = (*Service)(nil)

// Open opens the serial bus.
func Open(cfg Config) (*Service, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	cal := make(Calibration, len(cfg.Calibration))
	for id, sc := range cfg.Calibration {
		cal[id] = sc
	}

	return &Service{
		bus:    bus,
		cal:    cal,
		last:   make(map[int]sample),
		logger: logger.With("component", "stsbus", "port", cfg.Port),
	}, nil
}

// Close closes the bus connection.
func (s *Service) Close() error {
	return s.bus.Close()
}

// Scan lists the servos answering on the bus with IDs in [first, last].
func (s *Service) Scan(ctx context.Context, first, last int) ([]feetech.FoundServo, error) {
	return s.bus.Scan(ctx, first, last)
}

// ConfigureActuator implements kos.ActuatorService.
func (s *Service) ConfigureActuator(ctx context.Context, req kos.ConfigureRequest) error {
	if req.Limits != nil {
		s.cal[req.ActuatorID] = s.cal.For(req.ActuatorID).withLimits(req.Limits.Min, req.Limits.Max)
	}
	if req.Gains != nil {
		s.logger.Debug("gains ignored, servo uses firmware PID", "id", req.ActuatorID)
	}

	group := feetech.NewServoGroupByIDs(s.bus, req.ActuatorID)
	if req.TorqueEnabled {
		if err := group.EnableAll(ctx); err != nil {
			return fmt.Errorf("enable servo %d: %w", req.ActuatorID, err)
		}
		return nil
	}
	if err := group.DisableAll(ctx); err != nil {
		return fmt.Errorf("disable servo %d: %w", req.ActuatorID, err)
	}
	return nil
}

// CommandActuators implements kos.ActuatorService with a single sync
// write of every position target.
func (s *Service) CommandActuators(ctx context.Context, cmds []kos.ActuatorCommand) error {
	raw := make(feetech.PositionMap, len(cmds))
	ids := make([]int, 0, len(cmds))
	for _, cmd := range cmds {
		if cmd.Velocity != nil || cmd.Torque != nil {
			s.logger.Debug("velocity/torque target ignored", "id", cmd.ActuatorID)
		}
		if cmd.Position == nil {
			continue
		}
		raw[cmd.ActuatorID] = s.cal.For(cmd.ActuatorID).Raw(*cmd.Position)
		ids = append(ids, cmd.ActuatorID)
	}
	if len(ids) == 0 {
		return nil
	}

	group := feetech.NewServoGroupByIDs(s.bus, ids...)
	if err := group.SetPositions(ctx, raw); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// GetActuatorsState implements kos.ActuatorService with a single sync
// read. Velocity is derived from the previous read of the same servo.
func (s *Service) GetActuatorsState(ctx context.Context, ids []int) ([]kos.ActuatorState, error) {
	group := feetech.NewServoGroupByIDs(s.bus, ids...)
	rawPositions, err := group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	now := time.Now()
	states := make([]kos.ActuatorState, 0, len(ids))
	for _, id := range ids {
		raw, ok := rawPositions[id]
		if !ok {
			return nil, fmt.Errorf("servo %d did not answer", id)
		}
		deg := s.cal.For(id).Degrees(raw)

		var vel float64
		if prev, ok := s.last[id]; ok {
			if dt := now.Sub(prev.at).Seconds(); dt > 0 {
				vel = (deg - prev.deg) / dt
			}
		}
		s.last[id] = sample{deg: deg, at: now}

		states = append(states, kos.ActuatorState{ActuatorID: id, Position: deg, Velocity: vel})
	}
	return states, nil
}
