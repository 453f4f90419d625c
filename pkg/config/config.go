// Package config loads and saves the zbot configuration file. Files are
// JSON unless their name ends in .yaml or .yml.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/willothy/khacks-0.3/pkg/kos"
	"github.com/willothy/khacks-0.3/pkg/kos/serialimu"
	"github.com/willothy/khacks-0.3/pkg/kos/stsbus"
	"github.com/willothy/khacks-0.3/pkg/policy"
	"github.com/willothy/khacks-0.3/pkg/robot"
	"github.com/willothy/khacks-0.3/pkg/walk"
)

const DefaultConfigFile = "zbot.json"

// Config holds the robot configuration
type Config struct {
	Bus     BusConfig     `json:"bus" yaml:"bus"`
	IMU     IMUConfig     `json:"imu" yaml:"imu"`
	Control ControlConfig `json:"control" yaml:"control"`
	Walk    WalkConfig    `json:"walk" yaml:"walk"`
	Admin   AdminConfig   `json:"admin" yaml:"admin"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// BusConfig is the actuator bus.
type BusConfig struct {
	Port        string             `json:"port" yaml:"port"`
	BaudRate    int                `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	Timeout     Duration           `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Calibration stsbus.Calibration `json:"calibration,omitempty" yaml:"calibration,omitempty"`
}

// IsCalibrated returns true if the bus has calibration data
func (b *BusConfig) IsCalibrated() bool {
	return len(b.Calibration) > 0
}

// IMUConfig is the serial IMU. An empty port means no IMU is attached and
// the robot reports itself level.
type IMUConfig struct {
	Port     string `json:"port,omitempty" yaml:"port,omitempty"`
	BaudRate int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
}

// ControlConfig tunes the robot controller.
type ControlConfig struct {
	RPCTimeout Duration `json:"rpc_timeout,omitempty" yaml:"rpc_timeout,omitempty"`
	// Dispatch is "batched" or "concurrent".
	Dispatch string             `json:"dispatch,omitempty" yaml:"dispatch,omitempty"`
	Gains    map[int]kos.Gains  `json:"gains,omitempty" yaml:"gains,omitempty"`
	Limits   map[int]kos.Limits `json:"limits,omitempty" yaml:"limits,omitempty"`
}

// WalkConfig is the file form of walk.Config.
type WalkConfig struct {
	Duration          Duration   `json:"duration,omitempty" yaml:"duration,omitempty"`
	DOFSet            []string   `json:"dof_set,omitempty" yaml:"dof_set,omitempty"`
	InferenceEndpoint string     `json:"inference_endpoint,omitempty" yaml:"inference_endpoint,omitempty"`
	TickPeriod        Duration   `json:"tick_period,omitempty" yaml:"tick_period,omitempty"`
	InferenceTimeout  Duration   `json:"inference_timeout,omitempty" yaml:"inference_timeout,omitempty"`
	Command           [3]float64 `json:"command" yaml:"command"`
	PolicyRadians     bool       `json:"policy_radians,omitempty" yaml:"policy_radians,omitempty"`
}

// AdminConfig is the admin HTTP server.
type AdminConfig struct {
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			BaudRate: stsbus.DefaultBaudRate,
			Timeout:  Duration(100 * time.Millisecond),
		},
		IMU: IMUConfig{BaudRate: serialimu.DefaultBaudRate},
		Control: ControlConfig{
			RPCTimeout: Duration(robot.DefaultRPCTimeout),
			Dispatch:   "batched",
		},
		Walk: WalkConfig{
			InferenceEndpoint: policy.DefaultEndpoint,
			TickPeriod:        Duration(20 * time.Millisecond),
			InferenceTimeout:  Duration(15 * time.Millisecond),
		},
		Admin: AdminConfig{Listen: ":3000"},
		Log:   LogConfig{Level: "info", Format: "text", Output: "stderr"},
	}
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom loads configuration from a specific file. Fields missing from
// the file keep their Default values.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Exists returns true if the config file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Validate checks the configuration without touching any hardware.
func (c *Config) Validate() error {
	var errs []error

	if c.Bus.BaudRate < 0 || c.IMU.BaudRate < 0 {
		errs = append(errs, errors.New("baud rate must not be negative"))
	}
	if c.Control.RPCTimeout < 0 {
		errs = append(errs, errors.New("rpc timeout must not be negative"))
	}
	if _, err := c.Dispatch(); err != nil {
		errs = append(errs, err)
	}
	for id := range c.Control.Gains {
		if _, _, ok := robot.Lookup(robot.ActuatorID(id)); !ok {
			errs = append(errs, fmt.Errorf("gains for unknown actuator %d", id))
		}
	}
	for id, l := range c.Control.Limits {
		if _, _, ok := robot.Lookup(robot.ActuatorID(id)); !ok {
			errs = append(errs, fmt.Errorf("limits for unknown actuator %d", id))
		}
		if l.Min >= l.Max {
			errs = append(errs, fmt.Errorf("actuator %d: limit min %g not below max %g", id, l.Min, l.Max))
		}
	}
	if _, err := c.WalkConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Dispatch returns the configured dispatch mode.
func (c *Config) Dispatch() (robot.DispatchMode, error) {
	switch strings.ToLower(c.Control.Dispatch) {
	case "", "batched":
		return robot.DispatchBatched, nil
	case "concurrent":
		return robot.DispatchConcurrent, nil
	}
	return 0, fmt.Errorf("unknown dispatch mode %q", c.Control.Dispatch)
}

// RobotOptions builds the controller options. The logger is left for the
// caller to set.
func (c *Config) RobotOptions() (robot.Options, error) {
	mode, err := c.Dispatch()
	if err != nil {
		return robot.Options{}, err
	}

	opts := robot.Options{Dispatch: mode}
	if len(c.Control.Gains) > 0 {
		opts.Gains = make(map[robot.ActuatorID]kos.Gains, len(c.Control.Gains))
		for id, g := range c.Control.Gains {
			opts.Gains[robot.ActuatorID(id)] = g
		}
	}
	if len(c.Control.Limits) > 0 {
		opts.Limits = make(map[robot.ActuatorID]kos.Limits, len(c.Control.Limits))
		for id, l := range c.Control.Limits {
			opts.Limits[robot.ActuatorID(id)] = l
		}
	}
	return opts, nil
}

// WalkConfig converts the walk section into a walk.Config.
func (c *Config) WalkConfig() (walk.Config, error) {
	dofs, err := robot.ParseDOFSet(c.Walk.DOFSet)
	if err != nil {
		return walk.Config{}, fmt.Errorf("walk dof set: %w", err)
	}

	wc := walk.Config{
		Duration:          time.Duration(c.Walk.Duration),
		DOFSet:            dofs,
		InferenceEndpoint: c.Walk.InferenceEndpoint,
		TickPeriod:        time.Duration(c.Walk.TickPeriod),
		InferenceTimeout:  time.Duration(c.Walk.InferenceTimeout),
		Command:           c.Walk.Command,
		PolicyRadians:     c.Walk.PolicyRadians,
	}

	// Zero values take the loop's defaults, so only validate what is set.
	d := walk.DefaultConfig()
	check := wc
	if check.InferenceEndpoint == "" {
		check.InferenceEndpoint = d.InferenceEndpoint
	}
	if check.TickPeriod == 0 {
		check.TickPeriod = d.TickPeriod
	}
	if check.InferenceTimeout == 0 {
		check.InferenceTimeout = d.InferenceTimeout
	}
	if err := check.Validate(); err != nil {
		return walk.Config{}, fmt.Errorf("walk: %w", err)
	}
	return wc, nil
}
