package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events - inputs to the reducer
// ============================================================================
// Events represent intent from various sources (touch devices, IPC, state WS
// clients) plus transport observations fed back by the effects layer. The
// central daemon loop consumes these and applies policy via Reduce().
// ============================================================================

// Event is the input to the reducer. It can be a gesture action, a Tick, or a
// response/error from the transport sink.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at a fixed cadence.
// Dt is wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// TimedEvent wraps a payload event with the daemon-assigned receive time.
// External sources (IPC, input translation) send payload events only; the
// daemon stamps them so the reducer never calls time.Now.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// ============================================================================
// Gesture actions
// ============================================================================

// DragStart begins a drag session at a pointer position.
// Coordinates share the pivot's coordinate space.
type DragStart struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (DragStart) eventMarker() {}

// DragMove is one pointer sample during an active drag.
type DragMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (DragMove) eventMarker() {}

// DragEnd releases the drag session.
type DragEnd struct{}

func (DragEnd) eventMarker() {}

// PivotMoved updates the platter center, e.g. after the control surface is
// resized or recalibrated. May arrive mid-drag.
type PivotMoved struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (PivotMoved) eventMarker() {}

// ResetDeck clears the session like a release and additionally rewinds the
// transport to zero (new file loaded, or user-initiated reset).
type ResetDeck struct{}

func (ResetDeck) eventMarker() {}

// SetRateAbsolute requests a specific playback rate (IPC/debugging surface).
type SetRateAbsolute struct {
	Rate   float64 `json:"rate"`
	Origin string  `json:"origin"` // e.g. "deck-ctl", "ipc"
}

func (SetRateAbsolute) eventMarker() {}

// SeekRelative requests a relative seek in seconds (IPC/debugging surface).
// Subject to the same clamping and duration-unknown suppression as gesture
// seeks.
type SeekRelative struct {
	Seconds float64 `json:"seconds"`
	Origin  string  `json:"origin"`
}

func (SeekRelative) eventMarker() {}

// ============================================================================
// Transport observations (emitted by the effects layer)
// ============================================================================

// TransportPositionObserved is emitted after a successful GetPosition/SeekTo.
type TransportPositionObserved struct {
	Seconds float64
	At      time.Time
}

func (TransportPositionObserved) eventMarker() {}

// TransportDurationObserved is emitted after a successful GetDuration.
// Known is false when the sink has no loaded media yet.
type TransportDurationObserved struct {
	Seconds float64
	Known   bool
	At      time.Time
}

func (TransportDurationObserved) eventMarker() {}

// TransportRateObserved is emitted after a successful GetRate/SetRate.
type TransportRateObserved struct {
	Rate float64
	At   time.Time
}

func (TransportRateObserved) eventMarker() {}

// TransportCommandFailed is emitted when executing a Command fails.
type TransportCommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (TransportCommandFailed) eventMarker() {}

// RequestStateSnapshot asks the reducer for a coherent state snapshot,
// delivered through the effects layer so the reducer stays pure.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps events for IPC serialization. Since Go doesn't have
// union types, we use a type discriminator.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
// Only externally-injectable payload events are accepted here; observations
// and Tick are daemon-internal.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "drag_start":
		var a DragStart
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal DragStart: %w", err)
		}
		return a, nil

	case "drag_move":
		var a DragMove
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal DragMove: %w", err)
		}
		return a, nil

	case "drag_end":
		return DragEnd{}, nil

	case "pivot_moved":
		var a PivotMoved
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal PivotMoved: %w", err)
		}
		return a, nil

	case "reset_deck":
		return ResetDeck{}, nil

	case "set_rate_absolute":
		var a SetRateAbsolute
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetRateAbsolute: %w", err)
		}
		return a, nil

	case "seek_relative":
		var a SeekRelative
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SeekRelative: %w", err)
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator.
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case DragStart:
		env.Type = "drag_start"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal DragStart: %w", err)
		}
		env.Data = data

	case DragMove:
		env.Type = "drag_move"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal DragMove: %w", err)
		}
		env.Data = data

	case DragEnd:
		env.Type = "drag_end"

	case PivotMoved:
		env.Type = "pivot_moved"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal PivotMoved: %w", err)
		}
		env.Data = data

	case ResetDeck:
		env.Type = "reset_deck"

	case SetRateAbsolute:
		env.Type = "set_rate_absolute"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetRateAbsolute: %w", err)
		}
		env.Data = data

	case SeekRelative:
		env.Type = "seek_relative"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SeekRelative: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
