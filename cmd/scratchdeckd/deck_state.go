package main

import "time"

// DeckState is the top-level, daemon-owned state container.
//
// Goals:
//   - Keep all reducer-owned state in one place (pure reducer, no external
//     mutation).
//   - Provide a single place for observed state (what the transport reported)
//     and intent (what we want to apply).
//   - Make it easy to publish a coherent snapshot to other clients (IPC/WS).
type DeckState struct {
	// Transport is the cached view of the sink. We never own playback state;
	// we cache what we last observed so seeks can be clamped and snapshots
	// can be served without I/O.
	Transport TransportObservedState

	// Session is the reducer-owned drag session (the gesture state machine
	// value). Mutated only through gesture.go transition functions.
	Session DragSession

	// Pivot is the current platter center in input coordinates.
	Pivot PivotState

	// Intent contains desired changes that should be applied by the daemon's
	// centralized effects stage (the only place that talks to the sink).
	Intent DeckIntent

	// Poll tracks when each sink query was last attempted. Kept separate from
	// the observation timestamps so a sink that stops answering cannot make
	// stale data look freshly observed.
	Poll PollState
}

// PollState is back-off bookkeeping for the periodic sink queries issued on
// Tick.
type PollState struct {
	PositionAt time.Time
	DurationAt time.Time
	RateAt     time.Time
}

// PivotState is the platter center. Comes from config at startup and from
// PivotMoved events afterwards; re-read per gesture sample so layout changes
// mid-drag are tolerated.
type PivotState struct {
	X, Y  float64
	Known bool
}

// TransportObservedState is the daemon's cached view of the transport sink.
//
// This is "observed" state: it is updated when we successfully query the sink
// or when a command returns a value confirming the new state.
type TransportObservedState struct {
	PositionSec   float64
	PositionKnown bool
	PositionAt    time.Time

	// DurationKnown is false until the sink has loaded media. While false,
	// all seek intents are suppressed.
	DurationSec   float64
	DurationKnown bool
	DurationAt    time.Time

	Rate      float64
	RateKnown bool
	RateAt    time.Time
}

// DeckIntent captures pending intents. Applied by the centralized side-effect
// stage on the next Tick, coalesced latest-wins (rate) / summed (seek).
type DeckIntent struct {
	// DesiredRate, if non-nil, is the playback rate to apply.
	DesiredRate *float64

	// PendingSeekSec sums relative seek requests since the last flush.
	PendingSeekSec float64

	// RewindPending requests an absolute seek to zero (explicit reset).
	RewindPending bool
}

// SetDesiredRate records a desired playback rate intent (latest wins).
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DeckState) SetDesiredRate(rate float64) {
	s.Intent.DesiredRate = &rate
}

// AddPendingSeek accumulates a relative seek intent.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DeckState) AddPendingSeek(seconds float64) {
	s.Intent.PendingSeekSec += seconds
}

// SetObservedPosition updates the cached playback position.
func (s *DeckState) SetObservedPosition(seconds float64, now time.Time) {
	s.Transport.PositionSec = seconds
	s.Transport.PositionKnown = true
	s.Transport.PositionAt = now
}

// SetObservedDuration updates the cached media duration.
func (s *DeckState) SetObservedDuration(seconds float64, known bool, now time.Time) {
	s.Transport.DurationSec = seconds
	s.Transport.DurationKnown = known
	s.Transport.DurationAt = now
}

// SetObservedRate updates the cached playback rate.
func (s *DeckState) SetObservedRate(rate float64, now time.Time) {
	s.Transport.Rate = rate
	s.Transport.RateKnown = true
	s.Transport.RateAt = now
}

// Snapshot produces a coherent copy of the externally visible state.
func (s *DeckState) Snapshot() StateSnapshot {
	return StateSnapshot{
		PositionSec:   s.Transport.PositionSec,
		PositionKnown: s.Transport.PositionKnown,
		PositionAt:    s.Transport.PositionAt,

		DurationSec:   s.Transport.DurationSec,
		DurationKnown: s.Transport.DurationKnown,

		Rate:      s.Transport.Rate,
		RateKnown: s.Transport.RateKnown,
		RateAt:    s.Transport.RateAt,

		DragActive: s.Session.Active,
		Mode:       s.Session.Mode.String(),
	}
}

// StateSnapshot is the externally consumable state view (state WS "state_init",
// IPC queries). Decoupled from internal state; expand over time.
type StateSnapshot struct {
	PositionSec   float64   `json:"position_sec"`
	PositionKnown bool      `json:"position_known"`
	PositionAt    time.Time `json:"position_at"`

	DurationSec   float64 `json:"duration_sec"`
	DurationKnown bool    `json:"duration_known"`

	Rate      float64   `json:"rate"`
	RateKnown bool      `json:"rate_known"`
	RateAt    time.Time `json:"rate_at"`

	DragActive bool   `json:"drag_active"`
	Mode       string `json:"mode"`
}

// ============================================================================
// State broadcasts (reducer -> state WS clients)
// ============================================================================

// StateBroadcast is a reducer-emitted notification of externally visible
// state change, fanned out by the WS broadcaster.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastRateChanged is emitted when the observed rate changes at 0.01
// precision.
type BroadcastRateChanged struct {
	Rate float64
	At   time.Time
}

func (BroadcastRateChanged) broadcastMarker() {}

// BroadcastPositionChanged is emitted when the observed position changes at
// 0.1 s precision. Bursty during scrubbing; the broadcaster coalesces.
type BroadcastPositionChanged struct {
	PositionSec float64
	At          time.Time
}

func (BroadcastPositionChanged) broadcastMarker() {}

// BroadcastModeChanged is emitted when the gesture mode transitions.
type BroadcastModeChanged struct {
	Mode string
	At   time.Time
}

func (BroadcastModeChanged) broadcastMarker() {}
