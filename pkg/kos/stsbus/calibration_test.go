package stsbus

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestServoCalibration_Degrees(t *testing.T) {
	cal := ServoCalibration{HomingOffset: 2048}

	tests := []struct {
		raw      int
		expected float64
	}{
		{2048, 0},        // home -> 0
		{3072, 90},       // quarter turn
		{1024, -90},      // quarter turn back
		{4096, 180},      // half turn
		{2048 + 512, 45}, // eighth turn
	}

	for _, tt := range tests {
		got := cal.Degrees(tt.raw)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("Degrees(%d) = %f, want %f", tt.raw, got, tt.expected)
		}
	}
}

func TestServoCalibration_DriveMode(t *testing.T) {
	cal := ServoCalibration{HomingOffset: 2048, DriveMode: 1}

	if got := cal.Degrees(3072); math.Abs(got+90) > 0.001 {
		t.Errorf("Degrees(3072) = %f, want -90", got)
	}
	if got := cal.Raw(-90); got != 3072 {
		t.Errorf("Raw(-90) = %d, want 3072", got)
	}
}

func TestServoCalibration_RawClamp(t *testing.T) {
	cal := ServoCalibration{HomingOffset: 2048, RangeMin: 1500, RangeMax: 2500}

	tests := []struct {
		deg      float64
		expected int
	}{
		{0, 2048},
		{180, 2500},  // above range
		{-180, 1500}, // below range
	}

	for _, tt := range tests {
		if got := cal.Raw(tt.deg); got != tt.expected {
			t.Errorf("Raw(%f) = %d, want %d", tt.deg, got, tt.expected)
		}
	}
}

func TestServoCalibration_RoundTrip(t *testing.T) {
	cal := ServoCalibration{HomingOffset: 1900}

	// Test round-trip: raw -> degrees -> raw
	for raw := 0; raw < StepsPerRevolution; raw += 100 {
		deg := cal.Degrees(raw)
		back := cal.Raw(deg)
		if back != raw {
			t.Errorf("Round-trip failed: %d -> %f -> %d", raw, deg, back)
		}
	}
}

func TestServoCalibration_WithLimits(t *testing.T) {
	cal := DefaultCalibration.withLimits(-45, 45)

	if cal.RangeMin != 2048-512 || cal.RangeMax != 2048+512 {
		t.Fatalf("withLimits(-45, 45) range = [%d, %d], want [1536, 2560]", cal.RangeMin, cal.RangeMax)
	}
	if got := cal.Raw(90); got != 2560 {
		t.Errorf("Raw(90) = %d, want 2560", got)
	}

	// Inverted servos still produce an ordered range
	inv := ServoCalibration{HomingOffset: 2048, DriveMode: 1}.withLimits(-45, 45)
	if inv.RangeMin > inv.RangeMax {
		t.Errorf("inverted range not ordered: [%d, %d]", inv.RangeMin, inv.RangeMax)
	}
}

func TestCalibration_For(t *testing.T) {
	cal := Calibration{
		31: ServoCalibration{HomingOffset: 2000},
	}

	if got := cal.For(31); got.HomingOffset != 2000 {
		t.Errorf("For(31) = %+v, want homing offset 2000", got)
	}
	if got := cal.For(99); got != DefaultCalibration {
		t.Errorf("For(99) = %+v, want default", got)
	}
}

func TestLoadCalibration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	data := `{"31": {"drive_mode": 1, "homing_offset": 2100, "range_min": 1000, "range_max": 3000}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cal, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	sc, ok := cal[31]
	if !ok {
		t.Fatal("servo 31 missing")
	}
	if sc.DriveMode != 1 || sc.HomingOffset != 2100 || sc.RangeMin != 1000 || sc.RangeMax != 3000 {
		t.Errorf("calibration = %+v", sc)
	}

	if _, err := LoadCalibration(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
