package main

import (
	"math"
	"time"
)

// This file implements the reducer-style architecture building blocks:
//
//   - Events: inputs to the reducer (gesture actions, time ticks, transport
//     observations, command failures)
//   - Commands: side effects requested by the reducer (transport sink calls)
//   - Reduce(): computes next state + commands + broadcasts, without I/O
//
// The reducer must be pure. All gesture state lives in DeckState.Session and
// is advanced via the pure transition functions in gesture.go. The daemon
// loop executes Commands and feeds observations back as Events.

// ReduceResult is the output of Reduce(): next state plus Commands to execute
// and StateBroadcasts to fan out to WS clients.
//
// Commands are coalesced by the reducer: multiple rate intents in one tick
// collapse into a single CmdSetRate with the latest value, and seek intents
// sum into a single clamped CmdSeekTo.
type ReduceResult struct {
	State      *DeckState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer.
//
// Rules:
//   - Must not perform I/O
//   - Must not block
//   - Must not read the wall clock (timestamps ride on events)
//
// The daemon loop must execute Commands, translate sink responses into
// Events, and feed those back into Reduce().
func Reduce(s *DeckState, e Event, cfg GestureConfig) ReduceResult {
	if s == nil {
		s = &DeckState{}
	}

	var cmds []Command
	var bcasts []StateBroadcast

	switch ev := e.(type) {
	case Tick:
		cmds = reduceTick(s, ev)

	case TimedEvent:
		bcasts = reduceAction(s, ev.Event, ev.At, cfg)

	case TransportPositionObserved:
		prevKnown := s.Transport.PositionKnown
		prev := roundTo(s.Transport.PositionSec, 0.1)
		s.SetObservedPosition(ev.Seconds, ev.At)

		next := roundTo(ev.Seconds, 0.1)
		if !prevKnown || next != prev {
			bcasts = append(bcasts, BroadcastPositionChanged{PositionSec: next, At: ev.At})
		}

	case TransportDurationObserved:
		s.SetObservedDuration(ev.Seconds, ev.Known, ev.At)

	case TransportRateObserved:
		prevKnown := s.Transport.RateKnown
		prev := roundTo(s.Transport.Rate, 0.01)
		s.SetObservedRate(ev.Rate, ev.At)

		next := roundTo(ev.Rate, 0.01)
		if !prevKnown || next != prev {
			bcasts = append(bcasts, BroadcastRateChanged{Rate: next, At: ev.At})
		}

	case TransportCommandFailed:
		// Keep state as-is. The next poll re-syncs observed state; gesture
		// availability matters more than strict reporting here.
		_ = ev

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishStateSnapshot{
			Snapshot: s.Snapshot(),
			Reply:    ev.Reply,
		})

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{State: s, Commands: cmds, Broadcasts: bcasts}
}

// reduceAction handles a timestamped payload event (gesture or IPC action).
func reduceAction(s *DeckState, e Event, at time.Time, cfg GestureConfig) []StateBroadcast {
	var bcasts []StateBroadcast
	prevMode := s.Session.Mode
	prevActive := s.Session.Active

	switch a := e.(type) {
	case DragStart:
		if !s.Pivot.Known {
			// No pivot, no angle. Defensive: ignore rather than guess.
			return nil
		}
		s.Session = beginDrag(sampleAngle(a.X, a.Y, s.Pivot.X, s.Pivot.Y), at)

	case DragMove:
		if !s.Session.Active || !s.Pivot.Known {
			return nil
		}
		angle := sampleAngle(a.X, a.Y, s.Pivot.X, s.Pivot.Y)
		next, em := applySample(s.Session, angle, at, cfg)
		s.Session = next
		applyEmit(s, em)

	case DragEnd:
		if !s.Session.Active {
			return nil
		}
		next, em := endDrag(s.Session)
		s.Session = next
		applyEmit(s, em)

	case PivotMoved:
		s.Pivot = PivotState{X: a.X, Y: a.Y, Known: true}

	case ResetDeck:
		s.Session = DragSession{Rate: 1.0}
		s.SetDesiredRate(1.0)
		s.Intent.PendingSeekSec = 0
		s.Intent.RewindPending = true

	case SetRateAbsolute:
		// Absolute set cancels the gesture's rate authority for this tick.
		rate := a.Rate
		if rate < 1.0 {
			rate = 1.0
		}
		if rate > cfg.MaxRate {
			rate = cfg.MaxRate
		}
		s.SetDesiredRate(rate)

	case SeekRelative:
		s.AddPendingSeek(a.Seconds)

	default:
		// no-op
	}

	if s.Session.Mode != prevMode || s.Session.Active != prevActive {
		bcasts = append(bcasts, BroadcastModeChanged{Mode: s.Session.Mode.String(), At: at})
	}
	return bcasts
}

// applyEmit folds a gesture emission into the intent set.
func applyEmit(s *DeckState, em gestureEmit) {
	if em.Rate != nil {
		s.SetDesiredRate(*em.Rate)
	}
	if em.SeekSec != 0 {
		s.AddPendingSeek(em.SeekSec)
	}
}

// reduceTick runs idle normalization, observed-state polling, and flushes
// intents into coalesced commands.
func reduceTick(s *DeckState, ev Tick) []Command {
	var cmds []Command

	// Idle normalization: while no drag is active, the effective rate must
	// settle back to 1.0. Idempotent; a no-op during an active drag so the
	// normalizer never fights the arbiter.
	if !s.Session.Active && s.Intent.DesiredRate == nil &&
		s.Transport.RateKnown && s.Transport.Rate != 1.0 {
		s.SetDesiredRate(1.0)
	}

	// Poll the sink so clamping and snapshots work from fresh state.
	// Throttled on the attempt time, not the observation time: a dead sink is
	// not hammered every tick, and observation timestamps stay honest.
	if s.Poll.PositionAt.IsZero() || ev.Now.Sub(s.Poll.PositionAt) >= positionPollInterval {
		cmds = append(cmds, CmdGetPosition{})
		s.Poll.PositionAt = ev.Now
	}
	if !s.Transport.DurationKnown &&
		(s.Poll.DurationAt.IsZero() || ev.Now.Sub(s.Poll.DurationAt) >= durationPollInterval) {
		cmds = append(cmds, CmdGetDuration{})
		s.Poll.DurationAt = ev.Now
	}
	if !s.Transport.RateKnown &&
		(s.Poll.RateAt.IsZero() || ev.Now.Sub(s.Poll.RateAt) >= durationPollInterval) {
		cmds = append(cmds, CmdGetRate{})
		s.Poll.RateAt = ev.Now
	}

	// No loaded media: every transport intent is a silent no-op. Intents are
	// dropped, not deferred; a gesture against nothing should not replay
	// against the next loaded track.
	if !s.Transport.DurationKnown {
		s.Intent.DesiredRate = nil
		s.Intent.PendingSeekSec = 0
		s.Intent.RewindPending = false
		return cmds
	}

	// Flush intents into commands (coalesced latest-wins).
	if s.Intent.RewindPending {
		s.Intent.RewindPending = false
		s.Intent.PendingSeekSec = 0
		cmds = append(cmds, CmdSeekTo{Seconds: 0})
	}

	if s.Intent.DesiredRate != nil {
		r := *s.Intent.DesiredRate
		s.Intent.DesiredRate = nil
		// Suppress no-op rate commands; keeps repeated normalization silent.
		if !s.Transport.RateKnown || roundTo(s.Transport.Rate, 0.001) != roundTo(r, 0.001) {
			cmds = append(cmds, CmdSetRate{Rate: r})
		}
	}

	if s.Intent.PendingSeekSec != 0 {
		delta := s.Intent.PendingSeekSec
		s.Intent.PendingSeekSec = 0

		if s.Transport.PositionKnown {
			target := s.Transport.PositionSec + delta
			if target < 0 {
				target = 0
			}
			if target > s.Transport.DurationSec {
				target = s.Transport.DurationSec
			}
			cmds = append(cmds, CmdSeekTo{Seconds: target})
		}
	}

	return cmds
}

// roundTo rounds v to the given precision step (0.1, 0.01, ...).
func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}
