package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/willothy/khacks-0.3/pkg/kos"
	"github.com/willothy/khacks-0.3/pkg/kos/stsbus"
	"github.com/willothy/khacks-0.3/pkg/robot"
)

func TestLoadFrom_JSONDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zbot.json")
	data := `{
		"bus": {"port": "/dev/ttyUSB0", "calibration": {"34": {"homing_offset": 2000, "range_min": 1000, "range_max": 3000}}},
		"walk": {"tick_period": "10ms", "dof_set": ["L_Knee_Pitch", "R_Knee_Pitch"], "command": [0.3, 0, 0]}
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Bus.Port != "/dev/ttyUSB0" {
		t.Errorf("port = %q", cfg.Bus.Port)
	}
	if cfg.Bus.BaudRate != stsbus.DefaultBaudRate {
		t.Errorf("baud rate = %d, want default %d", cfg.Bus.BaudRate, stsbus.DefaultBaudRate)
	}
	if !cfg.Bus.IsCalibrated() || cfg.Bus.Calibration[34].HomingOffset != 2000 {
		t.Errorf("calibration = %+v", cfg.Bus.Calibration)
	}
	if time.Duration(cfg.Walk.TickPeriod) != 10*time.Millisecond {
		t.Errorf("tick period = %v, want 10ms", cfg.Walk.TickPeriod)
	}
	if cfg.Admin.Listen != ":3000" {
		t.Errorf("listen = %q, want default", cfg.Admin.Listen)
	}

	wc, err := cfg.WalkConfig()
	if err != nil {
		t.Fatalf("WalkConfig: %v", err)
	}
	if len(wc.DOFSet) != 2 || wc.DOFSet[0].ID != 34 || wc.DOFSet[1].ID != 44 {
		t.Errorf("dof set = %+v", wc.DOFSet)
	}
	if wc.Command != [3]float64{0.3, 0, 0} {
		t.Errorf("command = %v", wc.Command)
	}
}

func TestSaveLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zbot.yaml")

	cfg := Default()
	cfg.Bus.Port = "/dev/ttyACM0"
	cfg.Bus.Calibration = stsbus.Calibration{31: {DriveMode: 1, HomingOffset: 2100}}
	cfg.Control.Dispatch = "concurrent"
	cfg.Control.Gains = map[int]kos.Gains{34: {Kp: 20, Kd: 0.5}}
	cfg.Walk.Duration = Duration(5 * time.Second)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "duration: 5s") {
		t.Errorf("yaml output missing duration:\n%s", data)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got.Bus.Port != "/dev/ttyACM0" || got.Bus.Calibration[31].DriveMode != 1 {
		t.Errorf("bus = %+v", got.Bus)
	}
	if time.Duration(got.Walk.Duration) != 5*time.Second {
		t.Errorf("duration = %v", got.Walk.Duration)
	}

	opts, err := got.RobotOptions()
	if err != nil {
		t.Fatalf("RobotOptions: %v", err)
	}
	if opts.Dispatch != robot.DispatchConcurrent {
		t.Errorf("dispatch = %v, want concurrent", opts.Dispatch)
	}
	if opts.Gains[34].Kp != 20 {
		t.Errorf("gains = %+v", opts.Gains)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFrom(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want ErrNotExist", err)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"walk": {"tick_period": 20}}`), 0644)
	if _, err := LoadFrom(bad); err == nil {
		t.Error("numeric duration accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"bad dispatch", func(c *Config) { c.Control.Dispatch = "sometimes" }, true},
		{"unknown gains id", func(c *Config) { c.Control.Gains = map[int]kos.Gains{99: {}} }, true},
		{"inverted limits", func(c *Config) { c.Control.Limits = map[int]kos.Limits{34: {Min: 10, Max: -10}} }, true},
		{"unknown dof", func(c *Config) { c.Walk.DOFSet = []string{"L_Tail_Yaw"} }, true},
		{"negative duration", func(c *Config) { c.Walk.Duration = Duration(-time.Second) }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"zero walk timing", func(c *Config) { c.Walk.TickPeriod, c.Walk.InferenceTimeout = 0, 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogConfig_Handler(t *testing.T) {
	var buf bytes.Buffer
	c := LogConfig{Format: "json"}
	logger := slog.New(c.handler(&buf, slog.LevelWarn))

	logger.Info("hidden")
	logger.Warn("shown", "joint", "left_knee")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record passed a warn handler: %s", out)
	}
	if !strings.Contains(out, `"joint":"left_knee"`) {
		t.Errorf("json output = %s", out)
	}
}

func TestLogConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "zbot.log")
	logger, closer, err := LogConfig{Level: "debug", Output: "file", OutputPath: path}.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("tick", "index", 1)
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "msg=tick") {
		t.Errorf("log file = %q", data)
	}
}
