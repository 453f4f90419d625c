package stsbus

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// StepsPerRevolution is the resolution of an STS servo's encoder.
const StepsPerRevolution = 4096

// ServoCalibration maps one servo's raw encoder steps to joint degrees.
type ServoCalibration struct {
	// DriveMode 1 inverts the direction of rotation.
	DriveMode int `json:"drive_mode" yaml:"drive_mode"`
	// HomingOffset is the raw step reading at zero degrees.
	HomingOffset int `json:"homing_offset" yaml:"homing_offset"`
	// RangeMin and RangeMax bound commanded raw positions when both are set.
	RangeMin int `json:"range_min" yaml:"range_min"`
	RangeMax int `json:"range_max" yaml:"range_max"`
}

// DefaultCalibration is used for servos missing from a Calibration:
// centered, no inversion, full range.
var DefaultCalibration = ServoCalibration{HomingOffset: StepsPerRevolution / 2}

// Calibration holds calibration data for all servos, keyed by servo ID.
type Calibration map[int]ServoCalibration

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}
	return cal, nil
}

// For returns the calibration of a servo, or DefaultCalibration.
func (c Calibration) For(id int) ServoCalibration {
	if sc, ok := c[id]; ok {
		return sc
	}
	return DefaultCalibration
}

// Degrees converts a raw servo position to joint degrees.
func (c ServoCalibration) Degrees(raw int) float64 {
	deg := float64(raw-c.HomingOffset) * 360 / StepsPerRevolution
	if c.DriveMode == 1 {
		deg = -deg
	}
	return deg
}

// Raw converts joint degrees to a raw servo position, clamped to the
// calibrated range.
func (c ServoCalibration) Raw(deg float64) int {
	if c.DriveMode == 1 {
		deg = -deg
	}
	raw := int(math.Round(deg*StepsPerRevolution/360)) + c.HomingOffset
	return c.clamp(raw)
}

func (c ServoCalibration) clamp(raw int) int {
	if c.RangeMax <= c.RangeMin {
		return raw
	}
	return min(max(raw, c.RangeMin), c.RangeMax)
}

// withLimits narrows the calibrated range to a degree window.
func (c ServoCalibration) withLimits(minDeg, maxDeg float64) ServoCalibration {
	lo, hi := c.Raw(minDeg), c.Raw(maxDeg)
	if lo > hi {
		lo, hi = hi, lo
	}
	c.RangeMin, c.RangeMax = lo, hi
	return c
}
