package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/willothy/khacks-0.3/pkg/config"
	"github.com/willothy/khacks-0.3/pkg/kos"
	"github.com/willothy/khacks-0.3/pkg/kos/serialimu"
	"github.com/willothy/khacks-0.3/pkg/kos/stsbus"
	"github.com/willothy/khacks-0.3/pkg/robot"
)

// session is a connected and initialized robot.
type session struct {
	cfg     *config.Config
	robot   *robot.Robot
	sim     *kos.Sim
	logger  *slog.Logger
	closers []io.Closer
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(opts.Config)
	if errors.Is(err, os.ErrNotExist) && opts.Sim {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// connect opens the actuator bus and IMU, then enables every actuator.
// With quiet set, logs only go to a file output; the terminal belongs to
// the TUI.
func connect(ctx context.Context, quiet bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg}
	logger, logCloser, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	s.closers = append(s.closers, logCloser)
	if quiet && !strings.EqualFold(cfg.Log.Output, "file") {
		logger = slog.New(slog.DiscardHandler)
	}
	s.logger = logger
	slog.SetDefault(logger)

	robotOpts, err := cfg.RobotOptions()
	if err != nil {
		return nil, err
	}
	robotOpts.Logger = logger
	timeout := time.Duration(cfg.Control.RPCTimeout)

	var (
		link *robot.Link
		imu  kos.IMUService
	)
	if opts.Sim {
		ids := make([]int, 0)
		for _, id := range robot.AllIDs() {
			ids = append(ids, int(id))
		}
		s.sim = kos.NewSim(ids...)
		link, imu = robot.NewLink(s.sim, timeout), s.sim
	} else {
		if cfg.Bus.Port == "" {
			return nil, errors.New("no servo bus configured; run 'zbot setup' first")
		}
		var bus *stsbus.Service
		link, bus, err = robot.Dial(func() (*stsbus.Service, error) {
			return stsbus.Open(stsbus.Config{
				Port:        cfg.Bus.Port,
				BaudRate:    cfg.Bus.BaudRate,
				Timeout:     time.Duration(cfg.Bus.Timeout),
				Calibration: cfg.Bus.Calibration,
				Logger:      logger,
			})
		}, timeout)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, bus)

		imu = kos.Level
		if cfg.IMU.Port != "" {
			serialIMU, err := serialimu.Open(cfg.IMU.Port, cfg.IMU.BaudRate)
			if err != nil {
				s.Close()
				return nil, &robot.RPCError{Kind: robot.Connect, Op: "imu", Err: err}
			}
			s.closers = append(s.closers, serialIMU)
			imu = serialIMU
		} else {
			logger.Warn("no IMU configured, reporting level")
		}
	}

	s.robot = robot.New(link, imu, robotOpts)
	if err := s.robot.Initialize(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close disables torque and releases the ports.
func (s *session) Close() {
	if s.robot != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.robot.Shutdown(ctx)
		cancel()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i].Close()
	}
}

// mustConnect connects or exits: a robot that failed to connect or
// initialize must not be commanded.
func mustConnect(ctx context.Context, quiet bool) *session {
	s, err := connect(ctx, quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to robot: %v\n", err)
		os.Exit(1)
	}
	return s
}
