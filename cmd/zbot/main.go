package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `short:"c" long:"config" default:"zbot.json" description:"Configuration file (.json, .yaml or .yml)"`
	Sim    bool   `long:"sim" description:"Run against the in-memory simulator instead of the serial bus"`

	Setup SetupCommand `command:"setup" description:"Find the servo bus and IMU, then calibrate"`
	Info  InfoCommand  `command:"info" description:"Scan serial ports and list the servos found"`
	Move  MoveCommand  `command:"move" description:"Command a single joint"`
	Play  PlayCommand  `command:"play" description:"Play a canned move (muscles, dab, wave, stand, zero)"`
	Walk  WalkCommand  `command:"walk" description:"Run the walking policy with a live monitor"`
	Serve ServeCommand `command:"serve" description:"Start the admin HTTP server"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "zbot - joint control and walking client for the Z-Bot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
