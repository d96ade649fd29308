package main

import (
	"math"
	"testing"
	"time"
)

func testGestureConfig() GestureConfig {
	return GestureConfig{
		DeadzoneRad:    defaultDeadzoneRad,
		MaxRate:        defaultMaxRate,
		RateGainPerRad: defaultRateGainPerRad,

		ScrubEnabled:      true,
		ScrubEnterRadPerS: defaultScrubEnterRadPerS,
		ScrubExitRadPerS:  defaultScrubExitRadPerS,
		ScrubExitHold:     defaultScrubExitHoldMS * time.Millisecond,

		FwdStepDeg:  defaultFwdStepDeg,
		FwdStepSec:  defaultFwdStepSec,
		BackStepDeg: defaultBackStepDeg,
		BackStepSec: defaultBackStepSec,

		DirSwitchDeg: defaultDirSwitchDeg,

		MinDt: minSampleDt,
	}
}

var testBase = time.Unix(1700000000, 0)

// step advances a session with a relative angular delta (radians) applied
// after the given elapsed time.
func step(t *testing.T, s DragSession, deltaRad float64, elapsed time.Duration, cfg GestureConfig) (DragSession, gestureEmit) {
	t.Helper()
	next, em := applySample(s, s.LastAngle+deltaRad, s.LastSampleAt.Add(elapsed), cfg)
	return next, em
}

func radFromDeg(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// TestWrapDelta_ShortPath tests that angle deltas take the short path across
// the +-pi discontinuity.
func TestWrapDelta_ShortPath(t *testing.T) {
	// Crossing pi going counter-clockwise in angle space: 3.1 -> -3.1 is a
	// small positive (clockwise) rotation, not a -6.2 jump.
	d := wrapDelta(3.1, -3.1)
	if math.Abs(d-(2*math.Pi-6.2)) > 1e-9 {
		t.Errorf("expected small positive delta, got %v", d)
	}

	// The reverse crossing is a small negative rotation.
	d = wrapDelta(-3.1, 3.1)
	if math.Abs(d-(6.2-2*math.Pi)) > 1e-9 {
		t.Errorf("expected small negative delta, got %v", d)
	}

	// No wrap needed.
	d = wrapDelta(0.5, 0.7)
	if math.Abs(d-0.2) > 1e-9 {
		t.Errorf("expected 0.2, got %v", d)
	}
}

// TestAngularVelocity_DtClamp tests that duplicate or backwards timestamps
// cannot produce a velocity spike.
func TestAngularVelocity_DtClamp(t *testing.T) {
	// dt of zero clamps to MinDt: velocity is finite.
	v := angularVelocity(0.1, 0, time.Millisecond)
	if v != 0.1/0.001 {
		t.Errorf("expected clamped velocity %v, got %v", 0.1/0.001, v)
	}

	// Negative dt clamps the same way.
	v = angularVelocity(0.1, -time.Second, time.Millisecond)
	if v != 0.1/0.001 {
		t.Errorf("expected clamped velocity for negative dt, got %v", v)
	}

	// Normal dt divides through.
	v = angularVelocity(0.5, time.Second, time.Millisecond)
	if v != 0.5 {
		t.Errorf("expected 0.5 rad/s, got %v", v)
	}
}

// TestApplySample_DeadzoneAdvancesBookkeepingOnly tests that a sub-deadzone
// delta produces no emission and no mode change, but still advances the
// timestamp so the next real delta has a sane dt.
func TestApplySample_DeadzoneAdvancesBookkeepingOnly(t *testing.T) {
	cfg := testGestureConfig()
	s := beginDrag(0, testBase)

	next, em := step(t, s, 0.01, 16*time.Millisecond, cfg)
	if em.Rate != nil || em.SeekSec != 0 {
		t.Errorf("expected no emission for sub-deadzone delta, got %+v", em)
	}
	if next.Mode != ModeIdle {
		t.Errorf("expected mode to stay idle, got %v", next.Mode)
	}
	if next.LastAngle != 0.01 {
		t.Errorf("expected LastAngle to advance to 0.01, got %v", next.LastAngle)
	}
	if !next.LastSampleAt.Equal(testBase.Add(16 * time.Millisecond)) {
		t.Errorf("expected LastSampleAt to advance, got %v", next.LastSampleAt)
	}

	// Deadzone handling is idempotent: feeding more jitter changes nothing
	// but the bookkeeping.
	again, em2 := step(t, next, -0.02, 16*time.Millisecond, cfg)
	if em2.Rate != nil || em2.SeekSec != 0 {
		t.Errorf("expected no emission for repeated jitter, got %+v", em2)
	}
	if again.Mode != ModeIdle || again.Rate != 1.0 {
		t.Errorf("expected untouched session, got mode=%v rate=%v", again.Mode, again.Rate)
	}
}

// TestApplySample_SpeedMonotonicAndClamped tests that clockwise rotation only
// ever raises the rate, and that the rate saturates at MaxRate.
func TestApplySample_SpeedMonotonicAndClamped(t *testing.T) {
	cfg := testGestureConfig()
	s := beginDrag(0, testBase)

	prevRate := 1.0
	for i := 0; i < 40; i++ {
		var em gestureEmit
		// Slow rotation (0.5 rad over 1s) stays far below the scrub threshold.
		s, em = step(t, s, 0.5, time.Second, cfg)

		if s.Rate < prevRate {
			t.Fatalf("rate decreased during clockwise drag: %v -> %v", prevRate, s.Rate)
		}
		if em.Rate == nil {
			t.Fatalf("expected a rate emission on sample %d", i)
		}
		prevRate = s.Rate
	}

	if s.Rate != cfg.MaxRate {
		t.Errorf("expected rate clamped to %v after sustained rotation, got %v", cfg.MaxRate, s.Rate)
	}
	if s.Mode != ModeCwSpeed {
		t.Errorf("expected cw_speed mode, got %v", s.Mode)
	}

	// One more sample must hold the clamp exactly.
	s, em := step(t, s, 0.5, time.Second, cfg)
	if s.Rate != cfg.MaxRate || *em.Rate != cfg.MaxRate {
		t.Errorf("expected clamp to hold at %v, got state=%v emit=%v", cfg.MaxRate, s.Rate, *em.Rate)
	}
}

// TestApplySample_RateGain tests the rate increment math for a single sample.
func TestApplySample_RateGain(t *testing.T) {
	cfg := testGestureConfig()
	s := beginDrag(0, testBase)

	s, em := step(t, s, 0.5, time.Second, cfg)
	want := 1.0 + 0.5*cfg.RateGainPerRad
	if math.Abs(s.Rate-want) > 1e-9 {
		t.Errorf("expected rate %v, got %v", want, s.Rate)
	}
	if em.Rate == nil || math.Abs(*em.Rate-want) > 1e-9 {
		t.Errorf("expected rate emission %v, got %+v", want, em)
	}
}

// TestEndDrag_ResetsRate tests the release guarantee: the session resets and
// rate 1.0 is requested regardless of what the drag built up.
func TestEndDrag_ResetsRate(t *testing.T) {
	cfg := testGestureConfig()
	s := beginDrag(0, testBase)
	s, _ = step(t, s, 0.8, time.Second, cfg)
	if s.Rate <= 1.0 {
		t.Fatalf("expected rate above 1.0 before release, got %v", s.Rate)
	}

	next, em := endDrag(s)
	if next.Active {
		t.Error("expected inactive session after release")
	}
	if next.Rate != 1.0 {
		t.Errorf("expected rate reset to 1.0, got %v", next.Rate)
	}
	if next.Mode != ModeIdle {
		t.Errorf("expected idle mode after release, got %v", next.Mode)
	}
	if em.Rate == nil || *em.Rate != 1.0 {
		t.Errorf("expected rate 1.0 emission on release, got %+v", em)
	}
}

// TestApplySample_BackwardSteps_RemainderCarry tests backward step
// quantization: 37 degrees at 15 deg/step yields exactly two 5s steps with a
// 7 degree remainder that carries.
func TestApplySample_BackwardSteps_RemainderCarry(t *testing.T) {
	cfg := testGestureConfig()
	s := beginDrag(0, testBase)

	s, em := step(t, s, -radFromDeg(37), 100*time.Millisecond, cfg)
	if s.Mode != ModeCcwSeek {
		t.Fatalf("expected ccw_seek mode, got %v", s.Mode)
	}
	if em.SeekSec != -2*cfg.BackStepSec {
		t.Errorf("expected seek of %v s, got %v", -2*cfg.BackStepSec, em.SeekSec)
	}
	if em.Rate == nil || *em.Rate != 1.0 {
		t.Errorf("expected rate pinned to 1.0 during backward seek, got %+v", em)
	}
	if math.Abs(s.CcwStepAccumDeg-7.0) > 1e-9 {
		t.Errorf("expected 7 degree remainder, got %v", s.CcwStepAccumDeg)
	}

	// 8 more degrees tops the remainder up to 15: exactly one more step.
	s, em = step(t, s, -radFromDeg(8), 100*time.Millisecond, cfg)
	if em.SeekSec != -cfg.BackStepSec {
		t.Errorf("expected one more step (%v s), got %v", -cfg.BackStepSec, em.SeekSec)
	}
	if math.Abs(s.CcwStepAccumDeg) > 1e-9 {
		t.Errorf("expected empty accumulator, got %v", s.CcwStepAccumDeg)
	}
}

// TestApplySample_DirectionLock_HoldsBelowThreshold tests that opposite
// rotation below the release threshold does not switch direction and emits
// nothing.
func TestApplySample_DirectionLock_HoldsBelowThreshold(t *testing.T) {
	cfg := testGestureConfig()
	s := beginDrag(0, testBase)
	s, _ = step(t, s, 0.5, time.Second, cfg) // lock clockwise

	s, em := step(t, s, -radFromDeg(19), 100*time.Millisecond, cfg)
	if s.Mode != ModeCwSpeed {
		t.Errorf("expected lock to hold at 19 degrees, got mode %v", s.Mode)
	}
	if em.Rate != nil || em.SeekSec != 0 {
		t.Errorf("expected no emission while lock holds, got %+v", em)
	}
	if math.Abs(s.OppositeAccumDeg-19) > 1e-9 {
		t.Errorf("expected opposite accumulator at 19, got %v", s.OppositeAccumDeg)
	}
}

// TestApplySample_DirectionLock_ReleasesAtThreshold tests that crossing the
// threshold switches direction, resets the rate, and clears accumulators.
func TestApplySample_DirectionLock_ReleasesAtThreshold(t *testing.T) {
	cfg := testGestureConfig()
	s := beginDrag(0, testBase)
	s, _ = step(t, s, 0.5, time.Second, cfg) // lock clockwise, rate > 1.0

	s, em := step(t, s, -radFromDeg(21), 100*time.Millisecond, cfg)
	if s.Mode != ModeCcwSeek {
		t.Errorf("expected switch to ccw_seek at 21 degrees, got %v", s.Mode)
	}
	if s.Rate != 1.0 {
		t.Errorf("expected rate reset to 1.0 on direction switch, got %v", s.Rate)
	}
	if em.Rate == nil || *em.Rate != 1.0 {
		t.Errorf("expected rate 1.0 emission on switch, got %+v", em)
	}
	if em.SeekSec != 0 {
		t.Errorf("expected no seek on the switching sample, got %v", em.SeekSec)
	}
	if s.OppositeAccumDeg != 0 || s.CwStepAccumDeg != 0 || s.CcwStepAccumDeg != 0 {
		t.Errorf("expected cleared accumulators, got opp=%v cw=%v ccw=%v",
			s.OppositeAccumDeg, s.CwStepAccumDeg, s.CcwStepAccumDeg)
	}
}

// TestApplySample_DirectionLock_SameDirectionResetsOpposite tests that an
// accepted same-direction delta clears partial opposite accumulation, so a
// wobble cannot slowly bank up a direction switch.
func TestApplySample_DirectionLock_SameDirectionResetsOpposite(t *testing.T) {
	cfg := testGestureConfig()
	s := beginDrag(0, testBase)
	s, _ = step(t, s, 0.5, time.Second, cfg)

	s, _ = step(t, s, -radFromDeg(15), 100*time.Millisecond, cfg)
	if s.OppositeAccumDeg != 15 {
		t.Fatalf("expected opposite accumulator at 15, got %v", s.OppositeAccumDeg)
	}

	// Clockwise again: wobble forgiven.
	s, _ = step(t, s, 0.3, time.Second, cfg)
	if s.OppositeAccumDeg != 0 {
		t.Errorf("expected opposite accumulator cleared, got %v", s.OppositeAccumDeg)
	}

	// A fresh 15 degrees opposite still doesn't release.
	s, _ = step(t, s, -radFromDeg(15), 100*time.Millisecond, cfg)
	if s.Mode != ModeCwSpeed {
		t.Errorf("expected lock to hold after wobble, got mode %v", s.Mode)
	}
}

// TestApplySample_ScrubEnter tests that fast clockwise rotation enters scrub
// immediately and that scrub emits stepped seeks at rate 1.0 while the stored
// multiplier is preserved.
func TestApplySample_ScrubEnter(t *testing.T) {
	cfg := testGestureConfig()
	s := beginDrag(0, testBase)

	// Build some rate first at slow speed.
	s, _ = step(t, s, 0.8, time.Second, cfg)
	storedRate := s.Rate
	if storedRate <= 1.0 {
		t.Fatalf("expected stored rate above 1.0, got %v", storedRate)
	}

	// 0.5 rad in 10ms = 50 rad/s: well above the enter threshold.
	s, em := step(t, s, 0.5, 10*time.Millisecond, cfg)
	if s.Mode != ModeCwSeek {
		t.Fatalf("expected cw_seek after fast rotation, got %v", s.Mode)
	}
	if em.Rate == nil || *em.Rate != 1.0 {
		t.Errorf("expected emitted rate pinned to 1.0 during scrub, got %+v", em)
	}
	if s.Rate != storedRate {
		t.Errorf("expected stored rate preserved across scrub entry, got %v (want %v)", s.Rate, storedRate)
	}

	// Keep scrubbing until a step drains: ~28.6 deg per 0.5 rad sample,
	// 30 deg per forward step.
	s, em = step(t, s, 0.5, 10*time.Millisecond, cfg)
	if em.SeekSec != cfg.FwdStepSec {
		t.Errorf("expected one forward step of %v s, got %v", cfg.FwdStepSec, em.SeekSec)
	}
}

// TestApplySample_ScrubExit_DipRestartsHold tests the exit hold timer: slow
// rotation for less than the hold keeps scrubbing, a dip above the exit
// threshold restarts the timer, and only a full continuous hold leaves scrub.
func TestApplySample_ScrubExit_DipRestartsHold(t *testing.T) {
	cfg := testGestureConfig()
	s := beginDrag(0, testBase)
	s, _ = step(t, s, 0.8, time.Second, cfg)          // cw lock, some rate
	s, _ = step(t, s, 0.5, 10*time.Millisecond, cfg)  // enter scrub
	storedRate := s.Rate

	// Slow samples: 0.1 rad over 50ms = 2 rad/s, below the exit threshold.
	// First slow sample arms the timer; 200ms total is not enough to exit.
	for i := 0; i < 4; i++ {
		s, _ = step(t, s, 0.1, 50*time.Millisecond, cfg)
	}
	if s.Mode != ModeCwSeek {
		t.Fatalf("expected still scrubbing after 200ms below exit threshold, got %v", s.Mode)
	}

	// Dip: 0.3 rad over 20ms = 15 rad/s, above exit (10) but below enter (22).
	// This restarts the hold timer.
	s, _ = step(t, s, 0.3, 20*time.Millisecond, cfg)
	if s.Mode != ModeCwSeek {
		t.Fatalf("expected dip to keep scrub active, got %v", s.Mode)
	}
	if !s.ScrubExitStart.IsZero() {
		t.Error("expected dip to clear the exit hold timer")
	}

	// Now hold slow for a full 300ms+: first slow sample arms, the sample at
	// or past the hold boundary exits.
	for i := 0; i < 7; i++ {
		s, _ = step(t, s, 0.1, 50*time.Millisecond, cfg)
	}
	if s.Mode != ModeCwSpeed {
		t.Errorf("expected exit to cw_speed after full hold, got %v", s.Mode)
	}

	// Stored rate survived the whole excursion and resumes growing.
	if s.Rate < storedRate {
		t.Errorf("expected stored rate preserved through scrub, got %v (want >= %v)", s.Rate, storedRate)
	}
}

// TestApplySample_ScrubDisabled tests that with the scrub profile off, even
// very fast clockwise rotation stays in speed mode.
func TestApplySample_ScrubDisabled(t *testing.T) {
	cfg := testGestureConfig()
	cfg.ScrubEnabled = false

	s := beginDrag(0, testBase)
	s, em := step(t, s, 0.5, 10*time.Millisecond, cfg) // 50 rad/s
	if s.Mode != ModeCwSpeed {
		t.Errorf("expected cw_speed with scrub disabled, got %v", s.Mode)
	}
	if em.SeekSec != 0 {
		t.Errorf("expected no seek with scrub disabled, got %v", em.SeekSec)
	}
	if em.Rate == nil || *em.Rate <= 1.0 {
		t.Errorf("expected rate emission above 1.0, got %+v", em)
	}
}

// TestDrainSteps tests the quantization helper directly.
func TestDrainSteps(t *testing.T) {
	rem, steps := drainSteps(37, 15)
	if steps != 2 || math.Abs(rem-7) > 1e-9 {
		t.Errorf("drainSteps(37, 15): expected (7, 2), got (%v, %d)", rem, steps)
	}

	rem, steps = drainSteps(14.9, 15)
	if steps != 0 || math.Abs(rem-14.9) > 1e-9 {
		t.Errorf("drainSteps(14.9, 15): expected (14.9, 0), got (%v, %d)", rem, steps)
	}

	rem, steps = drainSteps(90, 30)
	if steps != 3 || math.Abs(rem) > 1e-9 {
		t.Errorf("drainSteps(90, 30): expected (0, 3), got (%v, %d)", rem, steps)
	}

	// Degenerate step size is a no-op rather than a division blowup.
	rem, steps = drainSteps(10, 0)
	if steps != 0 || rem != 10 {
		t.Errorf("drainSteps(10, 0): expected (10, 0), got (%v, %d)", rem, steps)
	}
}

// TestApplySample_InactiveSessionIsNoOp tests that samples against a released
// session do nothing.
func TestApplySample_InactiveSessionIsNoOp(t *testing.T) {
	cfg := testGestureConfig()
	s := DragSession{Rate: 1.0}

	next, em := applySample(s, 1.0, testBase, cfg)
	if next != s {
		t.Errorf("expected unchanged session, got %+v", next)
	}
	if em.Rate != nil || em.SeekSec != 0 {
		t.Errorf("expected no emission, got %+v", em)
	}
}
