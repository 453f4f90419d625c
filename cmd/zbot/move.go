package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/willothy/khacks-0.3/pkg/moves"
	"github.com/willothy/khacks-0.3/pkg/robot"
)

type MoveCommand struct {
	Velocity *float64 `long:"velocity" description:"Velocity target"`
	Torque   *float64 `long:"torque" description:"Torque target"`

	Args struct {
		Joint    string  `positional-arg-name:"joint" description:"Joint name, e.g. right_shoulder"`
		Axis     string  `positional-arg-name:"axis" description:"pitch, yaw, roll or none"`
		Position float64 `positional-arg-name:"degrees" description:"Position target in degrees"`
	} `positional-args:"yes" required:"yes"`
}

func (c *MoveCommand) Execute(args []string) error {
	joint, err := robot.ParseJoint(c.Args.Joint)
	if err != nil {
		return err
	}
	axis, err := robot.ParseAxis(c.Args.Axis)
	if err != nil {
		return err
	}
	// Fail before touching the hardware
	if _, err := robot.Resolve(joint, axis); err != nil {
		return err
	}

	ctx := context.Background()
	s := mustConnect(ctx, false)
	defer s.Close()

	cmd := robot.Command{Position: &c.Args.Position, Velocity: c.Velocity, Torque: c.Torque}
	if err := s.robot.CommandJoint(ctx, joint, axis, cmd); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("%s/%s -> %.1f°", joint, axis, c.Args.Position)))
	return nil
}

type PlayCommand struct {
	Args struct {
		Name string `positional-arg-name:"move" description:"Move name"`
	} `positional-args:"yes" required:"yes"`
}

func (c *PlayCommand) Execute(args []string) error {
	if _, ok := moves.Get(c.Args.Name); !ok {
		return fmt.Errorf("%w %q (have: %s)", moves.ErrUnknownMove, c.Args.Name, strings.Join(moves.Names(), ", "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := mustConnect(ctx, false)
	defer s.Close()

	fmt.Printf("Playing %s...\n", headerStyle.Render(c.Args.Name))
	if err := moves.Play(ctx, s.robot, c.Args.Name); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("Done."))
	return nil
}
