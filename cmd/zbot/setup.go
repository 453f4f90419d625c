package main

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/willothy/khacks-0.3/pkg/config"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	SkipCalibration bool `long:"skip-calibration" description:"Only pick the ports, keep any existing calibration"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Z-Bot Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━"))
	fmt.Println()

	// Keep whatever the existing file already configures
	cfg, err := config.LoadFrom(opts.Config)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return err
	}

	// Step 1: Find the servo bus
	fmt.Println("Scanning for the servo bus...")
	fmt.Println()
	b, err := pickBus(cfg.Bus.BaudRate)
	if err != nil {
		return err
	}
	defer b.bus.Close()
	cfg.Bus.Port = b.port

	if missing := missingIDs(b.servos); len(missing) > 0 {
		fmt.Printf("Warning: %d joint(s) did not answer:", len(missing))
		for _, id := range missing {
			fmt.Printf(" %d", id)
		}
		fmt.Println()
	}

	// Step 2: Pick the IMU port
	fmt.Println()
	imuPort, err := pickIMU(b.port, cfg.IMU.Port)
	if err != nil {
		return err
	}
	cfg.IMU.Port = imuPort

	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	// Step 3: Calibrate
	if !c.SkipCalibration {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Calibrating ━━━"))
		fmt.Println()
		cal, err := calibrate(b)
		if err != nil {
			return err
		}
		cfg.Bus.Calibration = cal

		if err := cfg.SaveTo(opts.Config); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Try a move with: " + headerStyle.Render("zbot play wave"))

	return nil
}

func pickBus(baudRate int) (busInfo, error) {
	buses := findBuses(baudRate)
	if len(buses) == 0 {
		return busInfo{}, errors.New("no Z-Bot servos found; make sure the robot is connected and powered on")
	}
	if len(buses) == 1 {
		return buses[0], nil
	}

	options := make([]huh.Option[string], 0, len(buses))
	for _, b := range buses {
		label := fmt.Sprintf("%s (%d servos)", b.port, len(b.servos))
		options = append(options, huh.NewOption(label, b.port))
	}

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the servo bus?").
				Description("More than one port answered").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return busInfo{}, err
	}

	var chosen busInfo
	for _, b := range buses {
		if b.port == port {
			chosen = b
			continue
		}
		b.bus.Close()
	}
	return chosen, nil
}

func pickIMU(busPort, current string) (string, error) {
	ports, err := listPorts()
	if err != nil {
		return "", err
	}
	ports = slices.DeleteFunc(ports, func(p string) bool { return p == busPort })

	options := []huh.Option[string]{huh.NewOption("No IMU (report level)", "")}
	for _, p := range ports {
		options = append(options, huh.NewOption(p, p).Selected(p == current))
	}

	port := current
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the IMU on?").
				Description("The walking policy needs gyro and accelerometer readings").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return port, nil
}
