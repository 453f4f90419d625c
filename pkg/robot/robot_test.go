package robot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/willothy/khacks-0.3/pkg/kos"
)

func newTestRobot(opts Options) (*kos.Sim, *Robot) {
	sim := newSim()
	return sim, New(NewLink(sim, time.Second), sim, opts)
}

func TestCommandJoint(t *testing.T) {
	sim, r := newTestRobot(Options{})

	if err := r.CommandJoint(context.Background(), LeftKnee, Pitch, PositionCommand(30)); err != nil {
		t.Fatalf("CommandJoint: %v", err)
	}
	batches := sim.Batches()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("batches = %+v, want one single-command batch", batches)
	}
	cmd := batches[0][0]
	if cmd.ActuatorID != 34 || *cmd.Position != 30 || cmd.Velocity != nil || cmd.Torque != nil {
		t.Errorf("command = %+v", cmd)
	}

	err := r.CommandJoint(context.Background(), LeftKnee, Roll, PositionCommand(1))
	if !errors.Is(err, ErrUnknownJoint) {
		t.Errorf("unknown axis error = %v, want ErrUnknownJoint", err)
	}
	if len(sim.Batches()) != 1 {
		t.Error("unknown joint reached the actuator service")
	}
}

func TestCommandMany_Validation(t *testing.T) {
	for _, mode := range []DispatchMode{DispatchBatched, DispatchConcurrent} {
		sim, r := newTestRobot(Options{Dispatch: mode})

		err := r.CommandMany(context.Background(), []JointTarget{
			{LeftHip, Yaw, PositionCommand(1)},
			{RightGripper, Pitch, PositionCommand(2)},
		})
		var ce *ControlError
		if !errors.As(err, &ce) || !errors.Is(err, ErrUnknownJoint) {
			t.Errorf("mode %d: error = %v, want ControlError wrapping ErrUnknownJoint", mode, err)
		}
		if n := len(sim.Batches()); n != 0 {
			t.Errorf("mode %d: %d batches dispatched for an invalid request", mode, n)
		}

		if err := r.CommandMany(context.Background(), nil); err != nil {
			t.Errorf("mode %d: empty batch = %v", mode, err)
		}
		if n := len(sim.Batches()); n != 0 {
			t.Errorf("mode %d: empty batch dispatched", mode)
		}
	}
}

func TestCommandMany_Batched(t *testing.T) {
	sim, r := newTestRobot(Options{})

	targets := []JointTarget{
		{LeftShoulder, Pitch, PositionCommand(-90)},
		{RightShoulder, Pitch, PositionCommand(90)},
		{LeftGripper, AxisNone, Command{}},
	}
	if err := r.CommandMany(context.Background(), targets); err != nil {
		t.Fatalf("CommandMany: %v", err)
	}

	batches := sim.Batches()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	wantIDs := []int{12, 22, 14}
	for i, cmd := range batches[0] {
		if cmd.ActuatorID != wantIDs[i] {
			t.Errorf("cmd[%d] actuator = %d, want %d", i, cmd.ActuatorID, wantIDs[i])
		}
	}
	if batches[0][2].Position != nil {
		t.Error("empty command carried a position")
	}
}

func TestCommandMany_Concurrent(t *testing.T) {
	sim, r := newTestRobot(Options{Dispatch: DispatchConcurrent})
	sim.Latency = time.Millisecond

	targets := make([]JointTarget, 0)
	for _, d := range CanonicalDOFs() {
		targets = append(targets, JointTarget{d.Joint, d.Axis, PositionCommand(5)})
	}
	if err := r.CommandMany(context.Background(), targets); err != nil {
		t.Fatalf("CommandMany: %v", err)
	}

	if n := len(sim.Batches()); n != len(targets) {
		t.Errorf("got %d batches, want %d", n, len(targets))
	}
	if n := sim.MaxInFlight(); n != 1 {
		t.Errorf("max in-flight calls = %d, want 1", n)
	}
	states, err := r.ReadStates(context.Background(), IDs(CanonicalDOFs()))
	if err != nil {
		t.Fatalf("ReadStates: %v", err)
	}
	for _, s := range states {
		if s.Position != 5 {
			t.Errorf("actuator %d at %f, want 5", s.ActuatorID, s.Position)
		}
	}
}

func TestCommandMany_ConcurrentPartialFailure(t *testing.T) {
	sim, r := newTestRobot(Options{Dispatch: DispatchConcurrent})
	sim.CommandErr = func(cmds []kos.ActuatorCommand) error {
		if cmds[0].ActuatorID == 33 || cmds[0].ActuatorID == 43 {
			return errors.New("servo overload")
		}
		return nil
	}

	targets := make([]JointTarget, 0)
	for _, d := range CanonicalDOFs() {
		targets = append(targets, JointTarget{d.Joint, d.Axis, PositionCommand(1)})
	}
	err := r.CommandMany(context.Background(), targets)

	var ce *ControlError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ControlError", err)
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Errorf("error does not carry an RPCError: %v", err)
	}
	// Everything else still went out
	if n := len(sim.Batches()); n != len(targets)-2 {
		t.Errorf("got %d successful dispatches, want %d", n, len(targets)-2)
	}
}

func TestInitialize(t *testing.T) {
	sim, r := newTestRobot(Options{
		Gains:  map[ActuatorID]kos.Gains{34: {Kp: 32, Kd: 1}},
		Limits: map[ActuatorID]kos.Limits{34: {Min: -10, Max: 120}},
	})

	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	configured := sim.Configured()
	ids := AllIDs()
	if len(configured) != len(ids) {
		t.Fatalf("configured %d actuators, want %d", len(configured), len(ids))
	}
	for i, req := range configured {
		if req.ActuatorID != int(ids[i]) {
			t.Errorf("configure[%d] = %d, want %d", i, req.ActuatorID, ids[i])
		}
		if !req.TorqueEnabled {
			t.Errorf("actuator %d configured without torque", req.ActuatorID)
		}
		if req.ActuatorID == 34 {
			if req.Gains == nil || req.Gains.Kp != 32 || req.Limits == nil || req.Limits.Max != 120 {
				t.Errorf("actuator 34 gains/limits = %+v/%+v", req.Gains, req.Limits)
			}
		} else if req.Gains != nil || req.Limits != nil {
			t.Errorf("actuator %d got gains or limits", req.ActuatorID)
		}
	}
}

func TestInitialize_Abort(t *testing.T) {
	sim, r := newTestRobot(Options{})
	sim.ConfigureErr = func(id int) error {
		if id == 31 {
			return errors.New("no response")
		}
		return nil
	}

	err := r.Initialize(context.Background())
	var ce *ControlError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want ControlError", err)
	}
	// Arms configured, legs not reached past the failure
	configured := sim.Configured()
	if len(configured) != 8 {
		t.Errorf("configured %d actuators before abort, want 8", len(configured))
	}
	for _, req := range configured {
		if req.ActuatorID >= 31 {
			t.Errorf("actuator %d configured after the failure", req.ActuatorID)
		}
	}
}

func TestShutdown(t *testing.T) {
	sim, r := newTestRobot(Options{})
	sim.ConfigureErr = func(id int) error {
		if id == 14 {
			return errors.New("gripper stuck")
		}
		return nil
	}

	err := r.Shutdown(context.Background())
	if err == nil {
		t.Fatal("Shutdown ignored a failure")
	}
	configured := sim.Configured()
	if len(configured) != len(AllIDs())-1 {
		t.Errorf("disabled %d actuators, want %d", len(configured), len(AllIDs())-1)
	}
	for _, req := range configured {
		if req.TorqueEnabled {
			t.Errorf("actuator %d left with torque", req.ActuatorID)
		}
	}
}

func TestReadIMU(t *testing.T) {
	sim, r := newTestRobot(Options{})
	sim.SetIMU(kos.IMUValues{GyroX: 0.5, AccelZ: 9.7})

	v, err := r.ReadIMU(context.Background())
	if err != nil {
		t.Fatalf("ReadIMU: %v", err)
	}
	if v.GyroX != 0.5 || v.AccelZ != 9.7 {
		t.Errorf("imu = %+v", v)
	}

	sim.IMUErr = func() error { return errors.New("i2c nack") }
	_, err = r.ReadIMU(context.Background())
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Op != "imu" {
		t.Errorf("error = %v, want imu RPCError", err)
	}
}
