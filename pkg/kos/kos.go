// Package kos defines the contract of the actuator and IMU service the
// robot runs on, plus an in-memory simulator of it.
//
// Backends live in subpackages: stsbus drives a Feetech STS serial bus
// directly and serialimu reads an IMU over a serial line.
package kos

import "context"

// ActuatorCommand is one actuator's entry in a CommandActuators call.
// Nil fields leave that channel unchanged.
type ActuatorCommand struct {
	ActuatorID int      `json:"actuator_id"`
	Position   *float64 `json:"position,omitempty"` // degrees
	Velocity   *float64 `json:"velocity,omitempty"`
	Torque     *float64 `json:"torque,omitempty"`
}

// Gains are the actuator's position loop gains.
type Gains struct {
	Kp float64 `json:"kp" yaml:"kp"`
	Kd float64 `json:"kd" yaml:"kd"`
}

// Limits bound an actuator's commanded position, in degrees.
type Limits struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// ConfigureRequest configures a single actuator.
type ConfigureRequest struct {
	ActuatorID    int
	TorqueEnabled bool
	Gains         *Gains
	Limits        *Limits
}

// ActuatorState is an actuator's reported position and velocity at the
// time of the query.
type ActuatorState struct {
	ActuatorID int     `json:"actuator_id"`
	Position   float64 `json:"position"` // degrees
	Velocity   float64 `json:"velocity"` // degrees per second
}

// IMUValues is one IMU sample.
type IMUValues struct {
	GyroX  float64 `json:"gyro_x"` // rad/s
	GyroY  float64 `json:"gyro_y"`
	GyroZ  float64 `json:"gyro_z"`
	AccelX float64 `json:"accel_x"` // m/s²
	AccelY float64 `json:"accel_y"`
	AccelZ float64 `json:"accel_z"`
}

// ActuatorService is the remote actuator service.
//
// Implementations are not required to be safe for concurrent use; callers
// serialize access (see robot.Link).
type ActuatorService interface {
	ConfigureActuator(ctx context.Context, req ConfigureRequest) error
	// CommandActuators applies all commands in a single request.
	CommandActuators(ctx context.Context, cmds []ActuatorCommand) error
	// GetActuatorsState returns one state per requested id.
	GetActuatorsState(ctx context.Context, ids []int) ([]ActuatorState, error)
}

// IMUService is the remote IMU service.
type IMUService interface {
	GetImuValues(ctx context.Context) (IMUValues, error)
}
