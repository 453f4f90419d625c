package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/willothy/khacks-0.3/pkg/kos/stsbus"
	"github.com/willothy/khacks-0.3/pkg/robot"
)

// Servo ids of the Z-Bot fall in this range
const (
	firstServoID = 11
	lastServoID  = 45
)

type busInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

// listPorts returns the serial ports worth probing.
func listPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	out := ports[:0]
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		out = append(out, port)
	}
	return out, nil
}

func openBus(port string, baudRate int) (*feetech.Bus, error) {
	if baudRate == 0 {
		baudRate = stsbus.DefaultBaudRate
	}
	return feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
}

// findBuses probes every port for servos with Z-Bot ids. The returned
// buses are open; the caller closes them.
func findBuses(baudRate int) []busInfo {
	ports, err := listPorts()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var buses []busInfo
	for _, port := range ports {
		bus, err := openBus(port, baudRate)
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		servos, err := bus.Scan(ctx, firstServoID, lastServoID)
		cancel()

		if err != nil || countKnown(servos) == 0 {
			bus.Close()
			continue
		}
		fmt.Printf("  Found %d servo(s) on %s\n", len(servos), port)
		buses = append(buses, busInfo{port: port, servos: servos, bus: bus})
	}
	return buses
}

// countKnown counts the servos that belong to the joint registry.
func countKnown(servos []feetech.FoundServo) int {
	n := 0
	for _, s := range servos {
		if _, _, ok := robot.Lookup(robot.ActuatorID(s.ID)); ok {
			n++
		}
	}
	return n
}

// missingIDs lists the registry actuators that did not answer.
func missingIDs(servos []feetech.FoundServo) []robot.ActuatorID {
	found := make(map[int]bool, len(servos))
	for _, s := range servos {
		found[s.ID] = true
	}
	var missing []robot.ActuatorID
	for _, id := range robot.AllIDs() {
		if !found[int(id)] {
			missing = append(missing, id)
		}
	}
	return missing
}

func jointLabel(id int) string {
	joint, axis, ok := robot.Lookup(robot.ActuatorID(id))
	if !ok {
		return "-"
	}
	if axis == robot.AxisNone {
		return joint.String()
	}
	return joint.String() + "/" + axis.String()
}
