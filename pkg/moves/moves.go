// Package moves holds canned joint sequences, such as the "muscles" and
// "dab" poses, played through the robot controller.
package moves

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/willothy/khacks-0.3/pkg/robot"
)

// ErrUnknownMove is returned by Play for a name that is not registered.
var ErrUnknownMove = errors.New("unknown move")

// Commander sends a batch of joint commands.
type Commander interface {
	CommandMany(ctx context.Context, targets []robot.JointTarget) error
}

// Frame is one pose of a move, held for Hold before the next frame.
type Frame struct {
	Targets []robot.JointTarget
	Hold    time.Duration
}

// Move is a named sequence of frames.
type Move struct {
	Name        string
	Description string
	Frames      []Frame
}

func pos(j robot.Joint, a robot.Axis, deg float64) robot.JointTarget {
	return robot.JointTarget{Joint: j, Axis: a, Command: robot.PositionCommand(deg)}
}

func zeroPose() []robot.JointTarget {
	dofs := robot.AllDOFs()
	targets := make([]robot.JointTarget, 0, len(dofs))
	for _, d := range dofs {
		targets = append(targets, pos(d.Joint, d.Axis, 0))
	}
	return targets
}

var (
	armsDown = []robot.JointTarget{
		pos(robot.LeftShoulder, robot.Pitch, 0),
		pos(robot.LeftShoulder, robot.Yaw, 0),
		pos(robot.LeftElbow, robot.Yaw, 0),
		pos(robot.RightShoulder, robot.Pitch, 0),
		pos(robot.RightShoulder, robot.Yaw, 0),
		pos(robot.RightElbow, robot.Yaw, 0),
	}

	standLegs = []robot.JointTarget{
		pos(robot.LeftHip, robot.Yaw, 0),
		pos(robot.LeftHip, robot.Roll, 0),
		pos(robot.LeftHip, robot.Pitch, -15),
		pos(robot.LeftKnee, robot.Pitch, 30),
		pos(robot.LeftAnkle, robot.Pitch, -15),
		pos(robot.RightHip, robot.Yaw, 0),
		pos(robot.RightHip, robot.Roll, 0),
		pos(robot.RightHip, robot.Pitch, 15),
		pos(robot.RightKnee, robot.Pitch, -30),
		pos(robot.RightAnkle, robot.Pitch, 15),
	}
)

var registry = map[string]Move{
	"zero": {
		Name:        "zero",
		Description: "every joint to zero degrees",
		Frames:      []Frame{{Targets: zeroPose(), Hold: 500 * time.Millisecond}},
	},
	"stand": {
		Name:        "stand",
		Description: "arms down, knees slightly bent",
		Frames:      []Frame{{Targets: append(slices.Clone(armsDown), standLegs...), Hold: time.Second}},
	},
	"muscles": {
		Name:        "muscles",
		Description: "both arms up and flexed",
		Frames: []Frame{
			{Targets: []robot.JointTarget{
				pos(robot.LeftShoulder, robot.Yaw, 90),
				pos(robot.RightShoulder, robot.Yaw, -90),
			}, Hold: 400 * time.Millisecond},
			{Targets: []robot.JointTarget{
				pos(robot.LeftElbow, robot.Yaw, 90),
				pos(robot.RightElbow, robot.Yaw, -90),
			}, Hold: 1500 * time.Millisecond},
			{Targets: armsDown, Hold: 500 * time.Millisecond},
		},
	},
	"dab": {
		Name:        "dab",
		Description: "left arm up and out, right arm across the face",
		Frames: []Frame{
			{Targets: []robot.JointTarget{
				pos(robot.LeftShoulder, robot.Pitch, 135),
				pos(robot.LeftShoulder, robot.Yaw, 30),
				pos(robot.LeftElbow, robot.Yaw, 0),
				pos(robot.RightShoulder, robot.Pitch, 90),
				pos(robot.RightShoulder, robot.Yaw, -45),
				pos(robot.RightElbow, robot.Yaw, -120),
			}, Hold: 1500 * time.Millisecond},
			{Targets: armsDown, Hold: 500 * time.Millisecond},
		},
	},
	"wave": {
		Name:        "wave",
		Description: "raise the right arm and wave three times",
		Frames:      waveFrames(3),
	},
}

func waveFrames(n int) []Frame {
	frames := []Frame{{Targets: []robot.JointTarget{
		pos(robot.RightShoulder, robot.Pitch, 150),
		pos(robot.RightElbow, robot.Yaw, -30),
	}, Hold: 500 * time.Millisecond}}
	for range n {
		frames = append(frames,
			Frame{Targets: []robot.JointTarget{pos(robot.RightElbow, robot.Yaw, -60)}, Hold: 300 * time.Millisecond},
			Frame{Targets: []robot.JointTarget{pos(robot.RightElbow, robot.Yaw, 0)}, Hold: 300 * time.Millisecond},
		)
	}
	return append(frames, Frame{Targets: armsDown, Hold: 500 * time.Millisecond})
}

// Names returns the registered move names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Get returns a registered move.
func Get(name string) (Move, bool) {
	m, ok := registry[name]
	return m, ok
}

// Play runs a move frame by frame. It stops at the first failed frame or
// when ctx is cancelled between frames.
func Play(ctx context.Context, c Commander, name string) error {
	m, ok := registry[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMove, name)
	}
	return m.Play(ctx, c)
}

// Play runs the move's frames in order.
func (m Move) Play(ctx context.Context, c Commander) error {
	for i, f := range m.Frames {
		if err := c.CommandMany(ctx, f.Targets); err != nil {
			return fmt.Errorf("move %s frame %d: %w", m.Name, i, err)
		}
		if f.Hold <= 0 {
			continue
		}

		timer := time.NewTimer(f.Hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
