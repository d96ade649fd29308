package main

import (
	"math"
	"time"
)

// This file implements the gesture interpretation core: the pure functions
// that turn angular samples on the platter into playback-rate and seek
// decisions.
//
// Design rules:
//   - Everything here is pure: no I/O, no time.Now. Timestamps arrive on the
//     samples, so velocity and hold-timer behavior is deterministic in tests.
//   - Anomalies (duplicate timestamps, clock going backwards) degrade to
//     clamps or no-ops. A scratch gesture must never take playback down.
//
// Sign convention: sampleAngle uses atan2(y-py, x-px) in screen coordinates
// (y grows downward), so a positive wrapped delta is a clockwise turn of the
// platter. This convention is fixed here and nowhere inferred from rendering.

// GestureMode is the arbiter state for an active drag.
//
// Direction lock is derived from the mode (ModeCwSpeed/ModeCwSeek lock
// clockwise, ModeCcwSeek locks counter-clockwise), so a "scrubbing while
// locked counter-clockwise" combination is unrepresentable.
type GestureMode int

const (
	// ModeIdle: session active but no accepted delta yet, or no session.
	ModeIdle GestureMode = iota

	// ModeCwSpeed: clockwise rotation integrates into a playback-rate multiplier.
	ModeCwSpeed

	// ModeCwSeek: fast clockwise rotation ("scrub") performs stepped forward seeks.
	ModeCwSeek

	// ModeCcwSeek: counter-clockwise rotation performs stepped backward seeks.
	ModeCcwSeek
)

func (m GestureMode) String() string {
	switch m {
	case ModeCwSpeed:
		return "cw_speed"
	case ModeCwSeek:
		return "cw_seek"
	case ModeCcwSeek:
		return "ccw_seek"
	default:
		return "idle"
	}
}

// GestureConfig contains all tunable parameters for the gesture core.
//
// These are static for the lifetime of the daemon; they come from the YAML
// config plus flag overrides (see config.go).
type GestureConfig struct {
	// DeadzoneRad: accepted deltas must have |delta| >= DeadzoneRad.
	// Smaller deltas are jitter; only timestamp bookkeeping advances.
	DeadzoneRad float64

	// MaxRate is the upper clamp for the clockwise speed multiplier.
	MaxRate float64

	// RateGainPerRad controls how much |delta| raises the rate in ModeCwSpeed.
	RateGainPerRad float64

	// Scrub (fast clockwise seek) sub-mode. When disabled, all clockwise
	// rotation is speed adjustment regardless of velocity.
	ScrubEnabled      bool
	ScrubEnterRadPerS float64       // enter ModeCwSeek at velocity >= this
	ScrubExitRadPerS  float64       // exit candidate at velocity <= this
	ScrubExitHold     time.Duration // velocity must stay below exit threshold this long

	// Step quantization. Forward is deliberately coarser than backward:
	// fast scrub-forward vs precise scrub-back.
	FwdStepDeg  float64
	FwdStepSec  float64
	BackStepDeg float64
	BackStepSec float64

	// DirSwitchDeg is the opposite-rotation magnitude (degrees) required to
	// release the direction lock.
	DirSwitchDeg float64

	// MinDt guards velocity against duplicate or backwards timestamps.
	MinDt time.Duration
}

// DragSession is the state of one continuous press-drag-release interaction.
//
// The reducer owns the session value inside DeckState; applySample returns a
// new session rather than mutating, so the reducer stays pure.
type DragSession struct {
	Active       bool
	LastAngle    float64
	LastSampleAt time.Time

	Mode GestureMode

	// Rate is the clockwise speed multiplier, clamped to [1, MaxRate].
	// Monotonically non-decreasing until drag release, explicit reset, or a
	// confirmed direction switch. Preserved across a scrub excursion.
	Rate float64

	// ScrubExitStart is when velocity last dropped to the exit threshold
	// while scrubbing. Zero means the exit hold timer is not running.
	ScrubExitStart time.Time

	// Step accumulators in degrees. Never negative; drained only by whole
	// step multiples, remainder carries to the next sample.
	CwStepAccumDeg  float64
	CcwStepAccumDeg float64

	// OppositeAccumDeg integrates rotation against the current direction
	// lock. Cleared by any accepted same-direction delta.
	OppositeAccumDeg float64
}

// gestureEmit is what one accepted sample asks of the transport.
//
// Rate is nil when no rate change is requested. SeekSec is a relative offset
// in seconds (sign carries direction); zero means no seek. The reducer turns
// these into coalesced intents and clamps against the observed transport
// state; the core never talks to the sink.
type gestureEmit struct {
	Rate    *float64
	SeekSec float64
}

func emitRate(r float64) gestureEmit {
	return gestureEmit{Rate: &r}
}

// sampleAngle computes the signed angle of a pointer position around a pivot.
// Pure; the pivot is re-read per sample so mid-drag layout changes are fine.
func sampleAngle(x, y, pivotX, pivotY float64) float64 {
	return math.Atan2(y-pivotY, x-pivotX)
}

// wrapDelta returns the short-path signed delta between two angles,
// correcting the +-2*pi discontinuity. Result is in (-pi, pi].
func wrapDelta(prev, next float64) float64 {
	d := next - prev
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// angularVelocity returns |delta| / dt in rad/s. dt is clamped to minDt so a
// duplicate-timestamp or backwards-clock sample cannot produce a velocity
// spike that falsely enters scrub mode.
func angularVelocity(deltaRad float64, dt, minDt time.Duration) float64 {
	if minDt <= 0 {
		minDt = time.Millisecond
	}
	if dt < minDt {
		dt = minDt
	}
	return math.Abs(deltaRad) / dt.Seconds()
}

// beginDrag starts a fresh session from the first sample of a press.
// All accumulators start at zero; the mode stays Idle until the first
// accepted delta fixes a direction.
func beginDrag(angle float64, at time.Time) DragSession {
	return DragSession{
		Active:       true,
		LastAngle:    angle,
		LastSampleAt: at,
		Mode:         ModeIdle,
		Rate:         1.0,
	}
}

// endDrag tears the session down on release. The transport position is left
// where the gesture put it; only the rate snaps back to normal.
func endDrag(s DragSession) (DragSession, gestureEmit) {
	_ = s
	return DragSession{Rate: 1.0}, emitRate(1.0)
}

const degPerRad = 180.0 / math.Pi

// applySample advances the session with one angular sample and returns the
// transport request it produced. This is the whole mode arbiter:
//
//	deadzone -> direction classification -> direction-lock hysteresis ->
//	scrub Schmitt trigger -> speed accumulation / step quantization
//
// Exactly one transition is taken per accepted sample.
func applySample(s DragSession, angle float64, at time.Time, cfg GestureConfig) (DragSession, gestureEmit) {
	if !s.Active {
		return s, gestureEmit{}
	}

	delta := wrapDelta(s.LastAngle, angle)
	dt := at.Sub(s.LastSampleAt)

	// Timestamp bookkeeping always advances, even for discarded samples.
	// Otherwise jitter would stall the dt of the next real delta.
	s.LastAngle = angle
	s.LastSampleAt = at

	if math.Abs(delta) < cfg.DeadzoneRad {
		return s, gestureEmit{}
	}

	vel := angularVelocity(delta, dt, cfg.MinDt)

	switch s.Mode {
	case ModeIdle:
		// First accepted delta of the drag fixes the direction lock.
		if delta > 0 {
			s.Mode = ModeCwSpeed
			return applyClockwise(s, delta, vel, at, cfg)
		}
		s.Mode = ModeCcwSeek
		return applyCounterClockwise(s, delta, cfg)

	case ModeCwSpeed, ModeCwSeek:
		if delta < 0 {
			return applyOpposite(s, delta, cfg, ModeCcwSeek)
		}
		s.OppositeAccumDeg = 0
		return applyClockwise(s, delta, vel, at, cfg)

	case ModeCcwSeek:
		if delta > 0 {
			return applyOpposite(s, delta, cfg, ModeCwSpeed)
		}
		s.OppositeAccumDeg = 0
		return applyCounterClockwise(s, delta, cfg)
	}

	return s, gestureEmit{}
}

// applyOpposite handles an accepted delta that runs against the direction
// lock. Below the release threshold the sample is a no-op beyond timestamp
// bookkeeping; crossing it confirms the switch, resets the rate and all
// accumulators, and re-enters the arbiter in the new direction with an empty
// accumulator (the confirming delta itself is spent on the switch).
func applyOpposite(s DragSession, delta float64, cfg GestureConfig, next GestureMode) (DragSession, gestureEmit) {
	s.OppositeAccumDeg += math.Abs(delta) * degPerRad
	if s.OppositeAccumDeg < cfg.DirSwitchDeg {
		return s, gestureEmit{}
	}

	s.Mode = next
	s.Rate = 1.0
	s.OppositeAccumDeg = 0
	s.CwStepAccumDeg = 0
	s.CcwStepAccumDeg = 0
	s.ScrubExitStart = time.Time{}

	return s, emitRate(1.0)
}

// applyClockwise handles an accepted clockwise delta: scrub hysteresis first,
// then either step seeking (scrub) or speed accumulation.
func applyClockwise(s DragSession, delta, vel float64, at time.Time, cfg GestureConfig) (DragSession, gestureEmit) {
	if cfg.ScrubEnabled {
		s = stepScrubHysteresis(s, vel, at, cfg)
	}

	if s.Mode == ModeCwSeek {
		// Scrubbing: rate pinned to 1.0 (stored multiplier preserved),
		// rotation magnitude drains into forward steps.
		var steps int
		s.CwStepAccumDeg, steps = drainSteps(s.CwStepAccumDeg+math.Abs(delta)*degPerRad, cfg.FwdStepDeg)
		em := emitRate(1.0)
		em.SeekSec = float64(steps) * cfg.FwdStepSec
		return s, em
	}

	s.Rate += math.Abs(delta) * cfg.RateGainPerRad
	if s.Rate > cfg.MaxRate {
		s.Rate = cfg.MaxRate
	}
	return s, emitRate(s.Rate)
}

// applyCounterClockwise handles an accepted counter-clockwise delta:
// backward step seeking at normal rate.
func applyCounterClockwise(s DragSession, delta float64, cfg GestureConfig) (DragSession, gestureEmit) {
	var steps int
	s.CcwStepAccumDeg, steps = drainSteps(s.CcwStepAccumDeg+math.Abs(delta)*degPerRad, cfg.BackStepDeg)
	em := emitRate(1.0)
	em.SeekSec = -float64(steps) * cfg.BackStepSec
	return s, em
}

// stepScrubHysteresis advances the two-threshold-plus-hold Schmitt trigger
// between ModeCwSpeed and ModeCwSeek.
//
// Enter is immediate at the enter threshold. Exit requires the velocity to
// stay at or below the exit threshold continuously for ScrubExitHold; a
// sample above the exit threshold restarts the hold timer. This keeps
// borderline velocities from toggling speed/seek behavior per sample.
func stepScrubHysteresis(s DragSession, vel float64, at time.Time, cfg GestureConfig) DragSession {
	switch s.Mode {
	case ModeCwSpeed:
		if vel >= cfg.ScrubEnterRadPerS {
			s.Mode = ModeCwSeek
			s.ScrubExitStart = time.Time{}
		}

	case ModeCwSeek:
		if vel > cfg.ScrubExitRadPerS {
			s.ScrubExitStart = time.Time{}
			return s
		}
		if s.ScrubExitStart.IsZero() {
			s.ScrubExitStart = at
			return s
		}
		if at.Sub(s.ScrubExitStart) >= cfg.ScrubExitHold {
			s.Mode = ModeCwSpeed
			s.ScrubExitStart = time.Time{}
		}
	}
	return s
}

// drainSteps removes whole steps from an accumulator and returns the
// remainder plus the step count. The remainder carries forward so
// quantization stays smooth across samples.
func drainSteps(accumDeg, stepDeg float64) (remainder float64, steps int) {
	if stepDeg <= 0 {
		return accumDeg, 0
	}
	steps = int(math.Floor(accumDeg / stepDeg))
	if steps < 0 {
		steps = 0
	}
	return accumDeg - float64(steps)*stepDeg, steps
}
