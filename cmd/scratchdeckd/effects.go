package main

import (
	"log/slog"
	"time"
)

// runEffect executes a single reducer-emitted Command (side effect) against
// the transport sink and emits an observation Event via onEvent.
//
// Design rules:
//   - This function is allowed to perform I/O.
//   - It must never call Reduce() directly; it only emits Events to be
//     reduced by the daemon loop.
//   - The daemon loop is responsible for sequencing:
//     Reduce -> Commands -> runEffect -> Events -> Reduce.
func runEffect(
	sink TransportSink,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		// No place to report observations/errors; nothing sensible to do.
		return
	}

	if sink == nil {
		onEvent(TransportCommandFailed{
			Command: cmd,
			Err:     errNoSink{},
			At:      time.Now(),
		})
		return
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdSetRate:
		rate, err := sink.SetRate(c.Rate)
		if err != nil {
			logger.Error("transport SetRate failed", "error", err, "rate", c.Rate)
			onEvent(TransportCommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(TransportRateObserved{Rate: rate, At: now})

	case CmdSeekTo:
		pos, err := sink.SeekTo(c.Seconds)
		if err != nil {
			logger.Error("transport SeekTo failed", "error", err, "seconds", c.Seconds)
			onEvent(TransportCommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(TransportPositionObserved{Seconds: pos, At: now})

	case CmdGetPosition:
		pos, err := sink.GetPosition()
		if err != nil {
			logger.Error("transport GetPosition failed", "error", err)
			onEvent(TransportCommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(TransportPositionObserved{Seconds: pos, At: now})

	case CmdGetDuration:
		dur, known, err := sink.GetDuration()
		if err != nil {
			logger.Error("transport GetDuration failed", "error", err)
			onEvent(TransportCommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(TransportDurationObserved{Seconds: dur, Known: known, At: now})

	case CmdGetRate:
		rate, err := sink.GetRate()
		if err != nil {
			logger.Error("transport GetRate failed", "error", err)
			onEvent(TransportCommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(TransportRateObserved{Rate: rate, At: now})

	case CmdPublishStateSnapshot:
		// Deliver reducer-produced snapshot to the requester. Keeping the
		// channel send here keeps the reducer pure.
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the effects stage.
		select {
		case c.Reply <- c.Snapshot:
			// delivered
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		// Unknown command: record failure so the reducer can react (if desired).
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(TransportCommandFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

// errNoSink indicates the daemon was asked to execute a command without a
// transport sink.
type errNoSink struct{}

func (errNoSink) Error() string { return "no transport sink" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
