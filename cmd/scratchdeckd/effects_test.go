package main

import (
	"errors"
	"log/slog"
	"testing"
)

// mockSink is a TransportSink that records calls and returns canned values.
type mockSink struct {
	setRateCalls []float64
	seekToCalls  []float64

	position float64
	duration float64
	durKnown bool
	rate     float64

	err error
}

func (m *mockSink) SetRate(rate float64) (float64, error) {
	m.setRateCalls = append(m.setRateCalls, rate)
	if m.err != nil {
		return 0, m.err
	}
	m.rate = rate
	return rate, nil
}

func (m *mockSink) SeekTo(seconds float64) (float64, error) {
	m.seekToCalls = append(m.seekToCalls, seconds)
	if m.err != nil {
		return 0, m.err
	}
	m.position = seconds
	return seconds, nil
}

func (m *mockSink) GetPosition() (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.position, nil
}

func (m *mockSink) GetDuration() (float64, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	return m.duration, m.durKnown, nil
}

func (m *mockSink) GetRate() (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.rate, nil
}

func (m *mockSink) Close() error { return nil }

func collectEvents() (func(Event), *[]Event) {
	var events []Event
	return func(e Event) { events = append(events, e) }, &events
}

// TestRunEffect_SetRateEmitsRateObserved tests the success feedback loop.
func TestRunEffect_SetRateEmitsRateObserved(t *testing.T) {
	sink := &mockSink{}
	onEvent, events := collectEvents()

	runEffect(sink, CmdSetRate{Rate: 1.5}, slog.Default(), onEvent)

	if len(sink.setRateCalls) != 1 || sink.setRateCalls[0] != 1.5 {
		t.Fatalf("expected SetRate(1.5), got %v", sink.setRateCalls)
	}
	if len(*events) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(*events))
	}
	obs, ok := (*events)[0].(TransportRateObserved)
	if !ok {
		t.Fatalf("expected TransportRateObserved, got %T", (*events)[0])
	}
	if obs.Rate != 1.5 {
		t.Errorf("expected observed rate 1.5, got %v", obs.Rate)
	}
}

// TestRunEffect_SeekToEmitsPositionObserved tests the seek feedback loop.
func TestRunEffect_SeekToEmitsPositionObserved(t *testing.T) {
	sink := &mockSink{}
	onEvent, events := collectEvents()

	runEffect(sink, CmdSeekTo{Seconds: 42}, slog.Default(), onEvent)

	if len(sink.seekToCalls) != 1 || sink.seekToCalls[0] != 42 {
		t.Fatalf("expected SeekTo(42), got %v", sink.seekToCalls)
	}
	obs, ok := (*events)[0].(TransportPositionObserved)
	if !ok {
		t.Fatalf("expected TransportPositionObserved, got %T", (*events)[0])
	}
	if obs.Seconds != 42 {
		t.Errorf("expected observed position 42, got %v", obs.Seconds)
	}
}

// TestRunEffect_GetDurationNoMedia tests that an empty player reports
// known=false rather than an error.
func TestRunEffect_GetDurationNoMedia(t *testing.T) {
	sink := &mockSink{durKnown: false}
	onEvent, events := collectEvents()

	runEffect(sink, CmdGetDuration{}, slog.Default(), onEvent)

	obs, ok := (*events)[0].(TransportDurationObserved)
	if !ok {
		t.Fatalf("expected TransportDurationObserved, got %T", (*events)[0])
	}
	if obs.Known {
		t.Error("expected Known=false for empty player")
	}
}

// TestRunEffect_SinkErrorEmitsCommandFailed tests the failure feedback loop.
func TestRunEffect_SinkErrorEmitsCommandFailed(t *testing.T) {
	sink := &mockSink{err: errors.New("connection lost")}
	onEvent, events := collectEvents()

	runEffect(sink, CmdSetRate{Rate: 2.0}, slog.Default(), onEvent)

	if len(*events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(*events))
	}
	fail, ok := (*events)[0].(TransportCommandFailed)
	if !ok {
		t.Fatalf("expected TransportCommandFailed, got %T", (*events)[0])
	}
	if fail.Err == nil {
		t.Error("expected error carried on failure event")
	}
	if _, ok := fail.Command.(CmdSetRate); !ok {
		t.Errorf("expected failed command to be CmdSetRate, got %T", fail.Command)
	}
}

// TestRunEffect_NilSink tests that a missing sink degrades to a failure event
// instead of a panic.
func TestRunEffect_NilSink(t *testing.T) {
	onEvent, events := collectEvents()

	runEffect(nil, CmdGetPosition{}, slog.Default(), onEvent)

	if len(*events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(*events))
	}
	if _, ok := (*events)[0].(TransportCommandFailed); !ok {
		t.Fatalf("expected TransportCommandFailed, got %T", (*events)[0])
	}
}

// TestRunEffect_PublishSnapshotDeliversToReply tests snapshot delivery and
// the non-blocking guarantee.
func TestRunEffect_PublishSnapshotDeliversToReply(t *testing.T) {
	onEvent, _ := collectEvents()

	reply := make(chan StateSnapshot, 1)
	snap := StateSnapshot{Rate: 1.5, RateKnown: true, Mode: "cw_speed"}

	runEffect(&mockSink{}, CmdPublishStateSnapshot{Snapshot: snap, Reply: reply}, slog.Default(), onEvent)

	select {
	case got := <-reply:
		if got.Rate != 1.5 || got.Mode != "cw_speed" {
			t.Errorf("expected delivered snapshot, got %+v", got)
		}
	default:
		t.Fatal("expected snapshot delivered to reply channel")
	}

	// A full reply channel must not block the effects stage.
	full := make(chan StateSnapshot) // unbuffered, no reader
	runEffect(&mockSink{}, CmdPublishStateSnapshot{Snapshot: snap, Reply: full}, slog.Default(), onEvent)
}
