package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// Unix-socket IPC. External clients (deck-ctl, platter UIs, scripts) inject
// payload events as line-delimited JSON envelopes; the daemon answers each
// line with {"status":"ok"} or {"status":"error","error":"..."}. Timestamps
// are assigned daemon-side via TimedEvent, never trusted from the wire.

// IPCResponse is the per-line reply to an IPC client.
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// runIPCServer owns the listening socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, logger *slog.Logger) error {
	// A previous run may have left the socket file behind.
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	// Unprivileged clients must be able to connect.
	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("ipc listening", "socket", socketPath)

	// Canceling ctx closes the listener, which unblocks Accept below.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("ipc listener closed")
				return nil
			}
			logger.Error("ipc accept failed", "error", err)
			continue
		}
		go handleIPCConnection(conn, events, logger)
	}
}

// handleIPCConnection serves one client: one JSON envelope per line, one
// reply per envelope.
func handleIPCConnection(conn net.Conn, events chan<- Event, logger *slog.Logger) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("ipc received", "line", line)

		ev, err := UnmarshalEvent([]byte(line))
		if err != nil {
			ipcReply(enc, logger, IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)})
			continue
		}

		// Non-blocking: a wedged daemon queue must not hang IPC clients.
		select {
		case events <- ev:
			ipcReply(enc, logger, IPCResponse{Status: "ok"})
		default:
			ipcReply(enc, logger, IPCResponse{Status: "error", Error: "event queue full"})
		}
	}

	logger.Debug("ipc connection closed")
}

func ipcReply(enc *json.Encoder, logger *slog.Logger, resp IPCResponse) {
	if err := enc.Encode(resp); err != nil {
		logger.Error("ipc reply failed", "error", err)
	}
}

// SendIPCEvent is the client side of the protocol: one event, one reply.
// deck-ctl carries its own standalone copy; keep the two in sync.
func SendIPCEvent(socketPath string, ev Event) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(string(data))); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}
	return nil
}
