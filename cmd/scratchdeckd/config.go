package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the scratchdeck daemon.
//
// Design goals:
//   - Make the config file the primary configuration surface.
//   - Keep flags for small overrides and for environments where a file is
//     awkward.
//   - Centralize defaults and validation so the rest of the code can assume
//     a well-formed config.
type Config struct {
	// Touch input configuration
	Touch TouchConfig `yaml:"touch"`

	// Transport sink configuration
	Transport TransportConfig `yaml:"transport"`

	// Gesture core configuration
	Gesture GestureFileConfig `yaml:"gesture"`

	// IPC configuration
	IPC IPCConfig `yaml:"ipc"`

	// State WebSocket server configuration
	StateWS StateWSConfig `yaml:"state_ws"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type TouchConfig struct {
	Devices []string `yaml:"devices,omitempty"` // Input devices to monitor

	// Initial platter center in device coordinates. Updatable at runtime via
	// the pivot_moved IPC event.
	PivotX float64 `yaml:"pivot_x"`
	PivotY float64 `yaml:"pivot_y"`
}

type TransportConfig struct {
	// Mode selects the sink: "ws" (remote player websocket) or "local"
	// (in-process playback of File).
	Mode string `yaml:"mode"`

	WsURL     string `yaml:"ws_url"`
	TimeoutMS int    `yaml:"timeout_ms"`

	// File is the media file for local mode. Optional; without it the local
	// sink reports no loaded media and all seeks stay suppressed.
	File string `yaml:"file,omitempty"`

	UpdateHz int `yaml:"update_hz"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// GestureFileConfig is the user-facing gesture configuration as represented
// in YAML. It maps 1:1 to GestureConfig but uses YAML-friendly types
// (durations in milliseconds).
type GestureFileConfig struct {
	DeadzoneRad    float64 `yaml:"deadzone_rad"`
	MaxRate        float64 `yaml:"max_rate"`
	RateGainPerRad float64 `yaml:"rate_gain_per_rad"`

	Scrub ScrubFileConfig `yaml:"scrub"`

	FwdStepDeg  float64 `yaml:"fwd_step_deg"`
	FwdStepSec  float64 `yaml:"fwd_step_sec"`
	BackStepDeg float64 `yaml:"back_step_deg"`
	BackStepSec float64 `yaml:"back_step_sec"`

	DirSwitchDeg float64 `yaml:"dir_switch_deg"`
}

// ScrubFileConfig is the optional fast-scrub profile. Disabled, all clockwise
// rotation is speed adjustment.
type ScrubFileConfig struct {
	Enabled       bool    `yaml:"enabled"`
	EnterRadPerS  float64 `yaml:"enter_rad_per_sec"`
	ExitRadPerS   float64 `yaml:"exit_rad_per_sec"`
	ExitHoldMS    int     `yaml:"exit_hold_ms"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Touch: TouchConfig{
			Devices: []string{"/dev/input/event4"},
			PivotX:  512,
			PivotY:  512,
		},
		Transport: TransportConfig{
			Mode:      "ws",
			WsURL:     "ws://127.0.0.1:9900",
			TimeoutMS: defaultReadTimeoutMS,
			UpdateHz:  defaultUpdateHz,
		},
		Gesture: GestureFileConfig{
			DeadzoneRad:    defaultDeadzoneRad,
			MaxRate:        defaultMaxRate,
			RateGainPerRad: defaultRateGainPerRad,
			Scrub: ScrubFileConfig{
				Enabled:      true,
				EnterRadPerS: defaultScrubEnterRadPerS,
				ExitRadPerS:  defaultScrubExitRadPerS,
				ExitHoldMS:   defaultScrubExitHoldMS,
			},
			FwdStepDeg:   defaultFwdStepDeg,
			FwdStepSec:   defaultFwdStepSec,
			BackStepDeg:  defaultBackStepDeg,
			BackStepSec:  defaultBackStepSec,
			DirSwitchDeg: defaultDirSwitchDeg,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/scratchdeck.sock",
		},
		StateWS: StateWSConfig{
			Port: 3002,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
//   - Only whitespace/comments are allowed after the document.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// Flags pass pointers; each override is only applied if the pointer is
// non-nil. This keeps the config file as the primary source while still
// allowing ad-hoc overrides for debugging/systemd drop-ins.
type FlagOverrides struct {
	TouchDevice *string
	PivotX      *float64
	PivotY      *float64

	TransportMode      *string
	TransportWsURL     *string
	TransportTimeoutMS *int
	TransportFile      *string
	UpdateHz           *int

	DeadzoneRad    *float64
	MaxRate        *float64
	RateGainPerRad *float64

	ScrubEnabled      *bool
	ScrubEnterRadPerS *float64
	ScrubExitRadPerS  *float64
	ScrubExitHoldMS   *int

	FwdStepDeg  *float64
	FwdStepSec  *float64
	BackStepDeg *float64
	BackStepSec *float64

	DirSwitchDeg *float64

	IPCSocketPath *string
	StateWSPort   *int

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is
// ignored; a non-nil pointer is applied even for zero values.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.TouchDevice != nil {
		cfg.Touch.Devices = []string{*o.TouchDevice}
	}
	if o.PivotX != nil {
		cfg.Touch.PivotX = *o.PivotX
	}
	if o.PivotY != nil {
		cfg.Touch.PivotY = *o.PivotY
	}

	if o.TransportMode != nil {
		cfg.Transport.Mode = *o.TransportMode
	}
	if o.TransportWsURL != nil {
		cfg.Transport.WsURL = *o.TransportWsURL
	}
	if o.TransportTimeoutMS != nil {
		cfg.Transport.TimeoutMS = *o.TransportTimeoutMS
	}
	if o.TransportFile != nil {
		cfg.Transport.File = *o.TransportFile
	}
	if o.UpdateHz != nil {
		cfg.Transport.UpdateHz = *o.UpdateHz
	}

	if o.DeadzoneRad != nil {
		cfg.Gesture.DeadzoneRad = *o.DeadzoneRad
	}
	if o.MaxRate != nil {
		cfg.Gesture.MaxRate = *o.MaxRate
	}
	if o.RateGainPerRad != nil {
		cfg.Gesture.RateGainPerRad = *o.RateGainPerRad
	}

	if o.ScrubEnabled != nil {
		cfg.Gesture.Scrub.Enabled = *o.ScrubEnabled
	}
	if o.ScrubEnterRadPerS != nil {
		cfg.Gesture.Scrub.EnterRadPerS = *o.ScrubEnterRadPerS
	}
	if o.ScrubExitRadPerS != nil {
		cfg.Gesture.Scrub.ExitRadPerS = *o.ScrubExitRadPerS
	}
	if o.ScrubExitHoldMS != nil {
		cfg.Gesture.Scrub.ExitHoldMS = *o.ScrubExitHoldMS
	}

	if o.FwdStepDeg != nil {
		cfg.Gesture.FwdStepDeg = *o.FwdStepDeg
	}
	if o.FwdStepSec != nil {
		cfg.Gesture.FwdStepSec = *o.FwdStepSec
	}
	if o.BackStepDeg != nil {
		cfg.Gesture.BackStepDeg = *o.BackStepDeg
	}
	if o.BackStepSec != nil {
		cfg.Gesture.BackStepSec = *o.BackStepSec
	}

	if o.DirSwitchDeg != nil {
		cfg.Gesture.DirSwitchDeg = *o.DirSwitchDeg
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StateWSPort != nil {
		cfg.StateWS.Port = *o.StateWSPort
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Touch
	if len(c.Touch.Devices) == 0 && c.Transport.Mode != "local" {
		// Local mode can run IPC-only (no touch hardware) for development.
		return errors.New("touch.devices must not be empty")
	}
	for i, dev := range c.Touch.Devices {
		if dev == "" {
			return fmt.Errorf("touch.devices[%d] is empty", i)
		}
	}

	// Transport
	switch c.Transport.Mode {
	case "ws":
		if c.Transport.WsURL == "" {
			return errors.New("transport.ws_url must not be empty")
		}
	case "local":
		// File is optional; without it seeks stay suppressed.
	default:
		return fmt.Errorf("transport.mode must be %q or %q", "ws", "local")
	}
	if c.Transport.TimeoutMS <= 0 {
		return errors.New("transport.timeout_ms must be > 0")
	}
	if c.Transport.UpdateHz <= 0 || c.Transport.UpdateHz > 1000 {
		return errors.New("transport.update_hz must be between 1 and 1000")
	}

	// Gesture
	if c.Gesture.DeadzoneRad < 0 {
		return errors.New("gesture.deadzone_rad must be >= 0")
	}
	if c.Gesture.MaxRate < 1.0 {
		return errors.New("gesture.max_rate must be >= 1.0")
	}
	if c.Gesture.RateGainPerRad < 0 {
		return errors.New("gesture.rate_gain_per_rad must be >= 0")
	}
	if c.Gesture.Scrub.Enabled {
		if c.Gesture.Scrub.EnterRadPerS <= 0 {
			return errors.New("gesture.scrub.enter_rad_per_sec must be > 0")
		}
		if c.Gesture.Scrub.ExitRadPerS <= 0 {
			return errors.New("gesture.scrub.exit_rad_per_sec must be > 0")
		}
		if c.Gesture.Scrub.ExitRadPerS >= c.Gesture.Scrub.EnterRadPerS {
			return errors.New("gesture.scrub.exit_rad_per_sec must be < gesture.scrub.enter_rad_per_sec")
		}
		if c.Gesture.Scrub.ExitHoldMS < 0 {
			return errors.New("gesture.scrub.exit_hold_ms must be >= 0")
		}
	}
	if c.Gesture.FwdStepDeg <= 0 || c.Gesture.BackStepDeg <= 0 {
		return errors.New("gesture step sizes must be > 0 degrees")
	}
	if c.Gesture.FwdStepSec <= 0 || c.Gesture.BackStepSec <= 0 {
		return errors.New("gesture step seconds must be > 0")
	}
	if c.Gesture.DirSwitchDeg <= 0 {
		return errors.New("gesture.dir_switch_deg must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToGestureConfig converts the file config into the internal core config.
func (c *Config) ToGestureConfig() GestureConfig {
	return GestureConfig{
		DeadzoneRad:    c.Gesture.DeadzoneRad,
		MaxRate:        c.Gesture.MaxRate,
		RateGainPerRad: c.Gesture.RateGainPerRad,

		ScrubEnabled:      c.Gesture.Scrub.Enabled,
		ScrubEnterRadPerS: c.Gesture.Scrub.EnterRadPerS,
		ScrubExitRadPerS:  c.Gesture.Scrub.ExitRadPerS,
		ScrubExitHold:     time.Duration(c.Gesture.Scrub.ExitHoldMS) * time.Millisecond,

		FwdStepDeg:  c.Gesture.FwdStepDeg,
		FwdStepSec:  c.Gesture.FwdStepSec,
		BackStepDeg: c.Gesture.BackStepDeg,
		BackStepSec: c.Gesture.BackStepSec,

		DirSwitchDeg: c.Gesture.DirSwitchDeg,

		MinDt: minSampleDt,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
// Handy for config values like transport.file.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
