package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ============================================================================
// deck-ctl - Command-line IPC Client
// ============================================================================
// This tool sends gesture and transport events to the scratchdeckd daemon
// via IPC.
//
// Usage:
//   deck-ctl drag-start 640 480
//   deck-ctl drag-move 650 470
//   deck-ctl drag-end
//   deck-ctl pivot 960 540
//   deck-ctl set-rate 1.5
//   deck-ctl seek -10
//   deck-ctl reset
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/scratchdeck.sock)
// ============================================================================

// Event types (duplicated from the daemon package for standalone binary)
type Event interface{}

type DragStart struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type DragMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type DragEnd struct{}

type PivotMoved struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ResetDeck struct{}

type SetRateAbsolute struct {
	Rate   float64 `json:"rate"`
	Origin string  `json:"origin"`
}

type SeekRelative struct {
	Seconds float64 `json:"seconds"`
	Origin  string  `json:"origin"`
}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	socketPath := "/tmp/scratchdeck.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Parse command
	var event Event

	switch args[0] {
	case "drag-start":
		x, y, err := parseXY(args[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: drag-start: %v\n", err)
			os.Exit(1)
		}
		event = DragStart{X: x, Y: y}

	case "drag-move":
		x, y, err := parseXY(args[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: drag-move: %v\n", err)
			os.Exit(1)
		}
		event = DragMove{X: x, Y: y}

	case "drag-end":
		event = DragEnd{}

	case "pivot":
		x, y, err := parseXY(args[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: pivot: %v\n", err)
			os.Exit(1)
		}
		event = PivotMoved{X: x, Y: y}

	case "reset":
		event = ResetDeck{}

	case "set-rate", "rate":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: set-rate requires a rate value\n")
			os.Exit(1)
		}
		rate, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid rate value: %v\n", err)
			os.Exit(1)
		}
		event = SetRateAbsolute{Rate: rate, Origin: "deck-ctl"}

	case "seek":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: seek requires a seconds value\n")
			os.Exit(1)
		}
		seconds, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid seconds value: %v\n", err)
			os.Exit(1)
		}
		event = SeekRelative{Seconds: seconds, Origin: "deck-ctl"}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err := sendEvent(socketPath, event); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

func parseXY(args []string) (float64, float64, error) {
	if len(args) < 2 {
		return 0, 0, fmt.Errorf("requires X and Y coordinates")
	}
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid X value: %w", err)
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid Y value: %w", err)
	}
	return x, y, nil
}

func sendEvent(socketPath string, event Event) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := marshalEvent(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Send event (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}

	return nil
}

func marshalEvent(event Event) ([]byte, error) {
	var env EventEnvelope

	switch e := event.(type) {
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
		return nil, fmt.Errorf("unknown event type: %T", event)
	}

	return json.Marshal(env)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `deck-ctl - Control scratchdeckd daemon via IPC

Usage:
  deck-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/scratchdeck.sock)

Commands:
  drag-start <x> <y>      Begin a synthetic drag at device coordinates
  drag-move <x> <y>       Move the synthetic drag pointer
  drag-end                Release the drag
  pivot <x> <y>           Update the platter center
  reset                   Reset the deck (rate 1.0, rewind to start)
  set-rate, rate <rate>   Set absolute playback rate (e.g., 1.5)
  seek <seconds>          Relative seek in seconds (e.g., -10)
  help, -h, --help        Show this help message

Examples:
  deck-ctl reset
  deck-ctl set-rate 2.0
  deck-ctl -socket /var/run/scratchdeck.sock seek -30
`)
}
