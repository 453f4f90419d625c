package walk

import (
	"errors"
	"fmt"
	"time"

	"github.com/willothy/khacks-0.3/pkg/policy"
	"github.com/willothy/khacks-0.3/pkg/robot"
)

// Config holds the walk loop parameters.
type Config struct {
	// Duration stops the loop after this long. Zero runs until cancelled.
	Duration time.Duration
	// DOFSet is the ordered set of joints observed and commanded. Empty
	// selects robot.CanonicalDOFs.
	DOFSet []robot.DOF
	// InferenceEndpoint is the policy service URL.
	InferenceEndpoint string
	// TickPeriod is the control period.
	TickPeriod time.Duration
	// InferenceTimeout bounds a single inference call.
	InferenceTimeout time.Duration
	// Command is the velocity intent sent to the policy: vx, vy, yaw rate.
	Command [3]float64
	// PolicyRadians converts joint angles to radians on the way to the
	// policy and targets back to degrees on the way out.
	PolicyRadians bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DOFSet:            robot.CanonicalDOFs(),
		InferenceEndpoint: policy.DefaultEndpoint,
		TickPeriod:        20 * time.Millisecond,
		InferenceTimeout:  15 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.TickPeriod <= 0 {
		return errors.New("tick period must be positive")
	}
	if c.InferenceTimeout <= 0 {
		return errors.New("inference timeout must be positive")
	}
	if c.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	if c.InferenceEndpoint == "" {
		return errors.New("inference endpoint is required")
	}

	seen := make(map[robot.ActuatorID]bool, len(c.DOFSet))
	for _, d := range c.DOFSet {
		if seen[d.ID] {
			return fmt.Errorf("dof %s listed twice", d.Name)
		}
		seen[d.ID] = true
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.DOFSet) == 0 {
		c.DOFSet = d.DOFSet
	}
	if c.InferenceEndpoint == "" {
		c.InferenceEndpoint = d.InferenceEndpoint
	}
	if c.TickPeriod == 0 {
		c.TickPeriod = d.TickPeriod
	}
	if c.InferenceTimeout == 0 {
		c.InferenceTimeout = d.InferenceTimeout
	}
	return c
}
