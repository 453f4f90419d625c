package robot

import (
	"errors"
	"fmt"
)

// ErrUnknownJoint is returned when a joint axis has no actuator.
// It is a caller error and is never retried.
var ErrUnknownJoint = errors.New("unknown joint")

// RPCKind classifies actuator service failures.
type RPCKind int

const (
	// Transient failures happen during steady-state operation.
	Transient RPCKind = iota
	// Connect failures happen while establishing the link and are fatal.
	Connect
)

func (k RPCKind) String() string {
	if k == Connect {
		return "connect"
	}
	return "transient"
}

// RPCError is a transport or remote failure of the actuator or IMU
// service.
type RPCError struct {
	Kind RPCKind
	Op   string
	Err  error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s rpc %s: %v", e.Kind, e.Op, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// ControlError is returned by the Robot's command and configure
// operations. Err is ErrUnknownJoint (possibly wrapped), an *RPCError or a
// join of several *RPCError.
type ControlError struct {
	Op  string
	Err error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ControlError) Unwrap() error { return e.Err }
