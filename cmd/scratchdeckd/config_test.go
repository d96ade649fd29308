package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig_Valid tests that the shipped defaults pass validation.
func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

// TestLoadConfigFile_OverridesAndDefaults tests that file values land and
// unset fields keep their defaults.
func TestLoadConfigFile_OverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
touch:
  devices: ["/dev/input/event7"]
  pivot_x: 960
  pivot_y: 540
gesture:
  max_rate: 3.0
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	if len(cfg.Touch.Devices) != 1 || cfg.Touch.Devices[0] != "/dev/input/event7" {
		t.Errorf("expected touch device override, got %v", cfg.Touch.Devices)
	}
	if cfg.Touch.PivotX != 960 || cfg.Touch.PivotY != 540 {
		t.Errorf("expected pivot (960, 540), got (%v, %v)", cfg.Touch.PivotX, cfg.Touch.PivotY)
	}
	if cfg.Gesture.MaxRate != 3.0 {
		t.Errorf("expected max_rate 3.0, got %v", cfg.Gesture.MaxRate)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Logging.Level)
	}

	// Unset fields keep defaults.
	if cfg.Gesture.DeadzoneRad != defaultDeadzoneRad {
		t.Errorf("expected default deadzone, got %v", cfg.Gesture.DeadzoneRad)
	}
	if cfg.Transport.Mode != "ws" {
		t.Errorf("expected default transport mode ws, got %q", cfg.Transport.Mode)
	}
	if !cfg.Gesture.Scrub.Enabled {
		t.Error("expected scrub enabled by default")
	}
}

// TestLoadConfigFile_RejectsUnknownFields tests the typo guard.
func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
gesture:
  max_rte: 3.0
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// TestConfigValidate_Errors tests a sample of validation failures.
func TestConfigValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad transport mode", func(c *Config) { c.Transport.Mode = "tcp" }},
		{"empty ws url", func(c *Config) { c.Transport.WsURL = "" }},
		{"zero update hz", func(c *Config) { c.Transport.UpdateHz = 0 }},
		{"max rate below 1", func(c *Config) { c.Gesture.MaxRate = 0.5 }},
		{"negative deadzone", func(c *Config) { c.Gesture.DeadzoneRad = -0.1 }},
		{"scrub exit above enter", func(c *Config) {
			c.Gesture.Scrub.ExitRadPerS = 30
		}},
		{"zero step size", func(c *Config) { c.Gesture.FwdStepDeg = 0 }},
		{"zero dir switch", func(c *Config) { c.Gesture.DirSwitchDeg = 0 }},
		{"empty touch devices in ws mode", func(c *Config) { c.Touch.Devices = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

// TestConfigValidate_LocalModeWithoutTouch tests that local mode may run
// IPC-only without touch hardware.
func TestConfigValidate_LocalModeWithoutTouch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.Mode = "local"
	cfg.Touch.Devices = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected local mode without touch devices to validate: %v", err)
	}
}

// TestFlagOverrides_Apply tests that only non-nil overrides land.
func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()

	dev := "/dev/input/event9"
	maxRate := 2.0
	scrubOff := false

	o := FlagOverrides{
		TouchDevice:  &dev,
		MaxRate:      &maxRate,
		ScrubEnabled: &scrubOff,
	}
	o.Apply(&cfg)

	if len(cfg.Touch.Devices) != 1 || cfg.Touch.Devices[0] != dev {
		t.Errorf("expected touch device override, got %v", cfg.Touch.Devices)
	}
	if cfg.Gesture.MaxRate != 2.0 {
		t.Errorf("expected max rate override, got %v", cfg.Gesture.MaxRate)
	}
	if cfg.Gesture.Scrub.Enabled {
		t.Error("expected scrub disabled by override")
	}

	// Untouched fields keep their values.
	if cfg.Gesture.DeadzoneRad != defaultDeadzoneRad {
		t.Errorf("expected untouched deadzone, got %v", cfg.Gesture.DeadzoneRad)
	}
}

// TestToGestureConfig tests the file -> core config conversion.
func TestToGestureConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gesture.Scrub.ExitHoldMS = 450

	gc := cfg.ToGestureConfig()
	if gc.ScrubExitHold != 450*time.Millisecond {
		t.Errorf("expected 450ms exit hold, got %v", gc.ScrubExitHold)
	}
	if gc.MinDt != minSampleDt {
		t.Errorf("expected MinDt %v, got %v", minSampleDt, gc.MinDt)
	}
	if gc.MaxRate != cfg.Gesture.MaxRate {
		t.Errorf("expected max rate carried over, got %v", gc.MaxRate)
	}
}

// TestEventEnvelope_RoundTrip tests the IPC wire format for a representative
// pair of events.
func TestEventEnvelope_RoundTrip(t *testing.T) {
	data, err := MarshalEvent(DragMove{X: 12.5, Y: -3})
	if err != nil {
		t.Fatal(err)
	}
	ev, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatal(err)
	}
	dm, ok := ev.(DragMove)
	if !ok {
		t.Fatalf("expected DragMove, got %T", ev)
	}
	if dm.X != 12.5 || dm.Y != -3 {
		t.Errorf("expected (12.5, -3), got (%v, %v)", dm.X, dm.Y)
	}

	// Payload-free event.
	data, err = MarshalEvent(ResetDeck{})
	if err != nil {
		t.Fatal(err)
	}
	ev, err = UnmarshalEvent(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.(ResetDeck); !ok {
		t.Fatalf("expected ResetDeck, got %T", ev)
	}

	// Observations are daemon-internal and must be rejected on the wire.
	if _, err := UnmarshalEvent([]byte(`{"type":"transport_position_observed"}`)); err == nil {
		t.Error("expected unknown event type to be rejected")
	}
}
