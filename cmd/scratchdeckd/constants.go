package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_ABS = 0x03

	SYN_REPORT = 0x00

	BTN_TOUCH = 0x14a

	ABS_X = 0x00
	ABS_Y = 0x01

	// Multitouch position codes; single-touch panels report ABS_X/ABS_Y,
	// protocol-B panels report these for the first contact as well.
	ABS_MT_POSITION_X = 0x35
	ABS_MT_POSITION_Y = 0x36
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
)

// Gesture core configuration defaults
const (
	defaultUpdateHz = 60 // Update loop frequency (Hz)

	defaultDeadzoneRad    = 0.04 // Accepted deltas need |delta| >= this (rad)
	defaultMaxRate        = 4.0  // Playback-rate multiplier clamp
	defaultRateGainPerRad = 0.25 // Rate gained per radian of clockwise rotation

	// Scrub (fast clockwise seek) hysteresis: enter high, exit low, and only
	// after the velocity has stayed low for the hold duration.
	defaultScrubEnterRadPerS = 22.0
	defaultScrubExitRadPerS  = 10.0
	defaultScrubExitHoldMS   = 300

	// Step quantization. Forward scrubbing is coarse, backward scrubbing is
	// precise.
	defaultFwdStepDeg  = 30.0
	defaultFwdStepSec  = 10.0
	defaultBackStepDeg = 15.0
	defaultBackStepSec = 5.0

	// Opposite rotation needed to release the direction lock (degrees).
	defaultDirSwitchDeg = 20.0

	// Velocity dt clamp for duplicate/backwards timestamps.
	minSampleDt = time.Millisecond

	defaultReadTimeoutMS = 500 // Default timeout for transport websocket responses (ms)
)

// Observed-state polling cadence
const (
	positionPollInterval = 500 * time.Millisecond
	durationPollInterval = time.Second
)
