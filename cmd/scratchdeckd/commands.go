package main

import "fmt"

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon
// loop. In this codebase, those are primarily transport sink calls.
type Command interface {
	commandMarker()
	String() string
}

// CmdSetRate requests setting the playback rate on the transport.
type CmdSetRate struct {
	Rate float64
}

func (CmdSetRate) commandMarker() {}
func (c CmdSetRate) String() string {
	return fmt.Sprintf("CmdSetRate(rate=%.3f)", c.Rate)
}

// CmdSeekTo requests an absolute seek. The reducer has already clamped the
// target to [0, duration]; the sink never sees an out-of-range request.
type CmdSeekTo struct {
	Seconds float64
}

func (CmdSeekTo) commandMarker() {}
func (c CmdSeekTo) String() string {
	return fmt.Sprintf("CmdSeekTo(seconds=%.3f)", c.Seconds)
}

// CmdGetPosition requests the current playback position from the transport.
type CmdGetPosition struct{}

func (CmdGetPosition) commandMarker() {}
func (CmdGetPosition) String() string { return "CmdGetPosition()" }

// CmdGetDuration requests the loaded media duration from the transport.
type CmdGetDuration struct{}

func (CmdGetDuration) commandMarker() {}
func (CmdGetDuration) String() string { return "CmdGetDuration()" }

// CmdGetRate requests the current playback rate from the transport.
type CmdGetRate struct{}

func (CmdGetRate) commandMarker() {}
func (CmdGetRate) String() string { return "CmdGetRate()" }

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a waiting
// requester. Keeping the channel send in the effects layer keeps Reduce pure.
type CmdPublishStateSnapshot struct {
	Snapshot StateSnapshot
	Reply    chan StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
