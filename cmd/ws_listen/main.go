package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ws_listen - debug listener for the scratchdeckd state WebSocket.
// Connects to /state, prints the initial snapshot and every state event
// (rate_changed, position_changed, mode_changed) as it arrives.

// envelope mirrors the daemon's WS wire format: {type, ts, data}.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type snapshotData struct {
	PositionSec   float64 `json:"position_sec"`
	PositionKnown bool    `json:"position_known"`
	DurationSec   float64 `json:"duration_sec"`
	DurationKnown bool    `json:"duration_known"`
	Rate          float64 `json:"rate"`
	RateKnown     bool    `json:"rate_known"`
	DragActive    bool    `json:"drag_active"`
	Mode          string  `json:"mode"`
}

type rateData struct {
	Rate float64 `json:"rate"`
}

type positionData struct {
	PositionSec float64 `json:"position_sec"`
}

type modeData struct {
	Mode string `json:"mode"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/state", "scratchdeckd state websocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON frames instead of formatted output")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The server pings us on a fixed period; answer with pongs and keep a
	// read deadline so a dead server doesn't hang us forever.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	// Message reading loop
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}

			if messageType != websocket.TextMessage {
				continue
			}

			if *raw {
				fmt.Printf("%s\n", string(message))
				continue
			}

			handleTextMessage(message)
		}
	}()

	// Wait for shutdown signal or connection close
	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage formats a single state event for the terminal.
func handleTextMessage(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	switch env.Type {
	case "state_init":
		var snap snapshotData
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			fmt.Printf("[STATE_INIT] %s\n", string(env.Data))
			return
		}
		pos := "?"
		if snap.PositionKnown {
			pos = fmt.Sprintf("%.1fs", snap.PositionSec)
		}
		dur := "?"
		if snap.DurationKnown {
			dur = fmt.Sprintf("%.1fs", snap.DurationSec)
		}
		rate := "?"
		if snap.RateKnown {
			rate = fmt.Sprintf("%.2fx", snap.Rate)
		}
		fmt.Printf("[STATE_INIT] pos=%s dur=%s rate=%s mode=%s drag=%v\n",
			pos, dur, rate, snap.Mode, snap.DragActive)

	case "rate_changed":
		var d rateData
		if err := json.Unmarshal(env.Data, &d); err == nil {
			fmt.Printf("[RATE] %.2fx\n", d.Rate)
		}

	case "position_changed":
		var d positionData
		if err := json.Unmarshal(env.Data, &d); err == nil {
			fmt.Printf("[POSITION] %.1fs\n", d.PositionSec)
		}

	case "mode_changed":
		var d modeData
		if err := json.Unmarshal(env.Data, &d); err == nil {
			fmt.Printf("[MODE] %s\n", d.Mode)
		}

	default:
		pretty, _ := json.MarshalIndent(env, "", "  ")
		fmt.Printf("[EVENT]\n%s\n\n", string(pretty))
	}
}
