package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State WebSocket: hub, per-client pumps, broadcaster.
//
// The hub fans reducer-emitted broadcasts out to subscribed clients as JSON
// text frames with a {type, ts, data} envelope. Each client gets its own
// write pump so a stalled subscriber never blocks the rest; a client whose
// send queue fills is evicted. The first frame after connect is "state_init"
// carrying a StateSnapshot, obtained through the reducer/event loop because
// DeckState stays daemon-owned. position_changed is bursty during scrubbing
// and is coalesced latest-wins before fanout.

// wsRateChangedData is the JSON `data` payload for "rate_changed".
type wsRateChangedData struct {
	Rate float64 `json:"rate"`
}

// wsPositionChangedData is the JSON `data` payload for "position_changed".
type wsPositionChangedData struct {
	PositionSec float64 `json:"position_sec"`
}

// wsModeChangedData is the JSON `data` payload for "mode_changed".
type wsModeChangedData struct {
	Mode string `json:"mode"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // optional timestamp; zero means "omit" or use now
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string      `json:"type"`
	Ts   *time.Time  `json:"ts,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	// Configuration
	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	// If zero, a conservative default is used.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	// If zero, a conservative default is used.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("state ws hub running")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("state ws hub stopped")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("state ws client joined", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect stalled clients under the lock, evict after releasing
			// it (removeClient takes the lock itself).
			var stalled []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					stalled = append(stalled, c)
				}
			}
			h.mu.Unlock()

			for _, c := range stalled {
				h.removeClient(c, "send queue full")
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send tells the write pump to exit. The close may race a
		// second removal path, so swallow a double close.
		safeCloseChan(c.send)

		h.logger.Info("state ws client left", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON frame for fanout. Never
// blocks; a full hub queue drops the frame.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("state ws broadcast queue full, dropping frame", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait = 5 * time.Second

	// Keepalive: a ping every pingPeriod, client must pong within pongWait.
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsPositionCoalesceWindow is the maximum time window during which bursty position
// updates are coalesced (latest-wins) before broadcasting to clients.
const wsPositionCoalesceWindow = 50 * time.Millisecond

// logPumpExit records why a pump stopped. A close after we already sent one
// is routine and stays silent.
func (c *Client) logPumpExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.logger.Info("state ws pump done", "pump", pump, "remote_addr", c.remoteAddr, "code", ce.Code, "reason", ce.Text)
		return
	}
	c.logger.Info("state ws pump done", "pump", pump, "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the send queue onto the websocket and keeps the
// connection alive with pings. Exits on write error or when send closes.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub evicted us; say goodbye.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logPumpExit("write", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logPumpExit("write", err)
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is pong handling and noticing
// disconnects, which it reports to the hub.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logPumpExit("read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP Handler + server wiring helpers
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Required for initial snapshot request on connect (through reducer/event loop).
	events chan<- Event
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the WS state server components. Call Register on a mux,
// start hub.Run(ctx), and start broadcaster loop.
func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	hub := NewHub(logger, cfg.Hub)
	return &Server{
		logger: logger,
		hub:    hub,
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// State frames are read-only; any origin may subscribe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// Pumps must not run under r.Context(): net/http cancels it when this
	// handler returns, which would kill the connection with an abnormal
	// closure. Lifetime is managed by the hub and by read/write errors.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	// Request snapshot for initial state_init message (through reducer/event loop).
	// Use the HTTP request context here so it cancels if the client disconnects
	// during the snapshot round-trip.
	if s.events != nil {
		reply := make(chan StateSnapshot, 1)

		select {
		case <-r.Context().Done():
			return
		case s.events <- RequestStateSnapshot{Reply: reply}:
		}

		waitCtx := r.Context()
		if _, has := r.Context().Deadline(); !has {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
		}

		select {
		case <-waitCtx.Done():
			if !errors.Is(waitCtx.Err(), context.Canceled) {
				s.logger.Warn("ws snapshot request failed", "error", waitCtx.Err())
			}
			return

		case snap := <-reply:
			now := time.Now().UTC()
			initMsg, mErr := json.Marshal(envelope{
				Type: "state_init",
				Ts:   &now,
				Data: snap,
			})
			if mErr == nil {
				// Enqueue init message; if client is already slow, disconnect.
				select {
				case client.send <- initMsg:
				default:
					s.hub.unregister <- client
					return
				}
			}
		}
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads reducer-emitted StateBroadcast events, marshals them, and broadcasts
// them to all hub clients. Intended to run as a single goroutine.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	// Rate-limit bursty position updates: flush latest pending position at most
	// once every wsPositionCoalesceWindow, even if updates keep arriving (no
	// debounce-on-silence).
	var pendingPos *wsOutboundEvent
	var posTimer *time.Timer
	var posTimerCh <-chan time.Time

	flushPendingPos := func() {
		if pendingPos == nil {
			return
		}

		ts := pendingPos.At
		if ts.IsZero() {
			ts = time.Now().UTC()
		}

		msg, err := json.Marshal(envelope{
			Type: pendingPos.Type,
			Ts:   &ts,
			Data: pendingPos.Data,
		})
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", pendingPos.Type)
			// Drop the pending item so we don't retry-marshal forever.
			pendingPos = nil
			return
		}

		hub.BroadcastBytes(msg)
		pendingPos = nil
	}

	stopPosTimer := func() {
		if posTimer == nil {
			posTimerCh = nil
			return
		}
		if !posTimer.Stop() {
			// Drain if needed.
			select {
			case <-posTimer.C:
			default:
			}
		}
		posTimerCh = nil
		posTimer = nil
	}

	startPosTimerIfNeeded := func() {
		if posTimer != nil {
			return
		}
		posTimer = time.NewTimer(wsPositionCoalesceWindow)
		posTimerCh = posTimer.C
	}

	resetPosTimer := func() {
		// Timer must already exist.
		if posTimer == nil {
			return
		}
		if !posTimer.Stop() {
			select {
			case <-posTimer.C:
			default:
			}
		}
		posTimer.Reset(wsPositionCoalesceWindow)
		posTimerCh = posTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			// Best-effort: flush pending position update before exit.
			flushPendingPos()
			stopPosTimer()
			return

		case <-posTimerCh:
			// Timer tick: flush latest pending position if present.
			flushPendingPos()
			// Keep ticking only if more position updates are pending; otherwise stop.
			if pendingPos == nil {
				stopPosTimer()
			} else {
				resetPosTimer()
			}

		case b, ok := <-src:
			if !ok {
				// If the source ends, flush any pending coalesced position update then stop.
				flushPendingPos()
				stopPosTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				// Unknown broadcasts are dropped.
				continue
			}

			// Rate-limit only position_changed; do NOT reset the timer on each update.
			// Latest-wins: replace pending event and ensure the periodic timer is running.
			if ev.Type == "position_changed" {
				copyEv := ev
				pendingPos = &copyEv
				startPosTimerIfNeeded()
				continue
			}

			// Non-position event: flush pending position first, then emit this event immediately.
			flushPendingPos()
			stopPosTimer()

			ts := ev.At
			if ts.IsZero() {
				ts = time.Now().UTC()
			}

			msg, err := json.Marshal(envelope{
				Type: ev.Type,
				Ts:   &ts,
				Data: ev.Data,
			})
			if err != nil {
				logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
				continue
			}

			hub.BroadcastBytes(msg)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastRateChanged:
		return wsOutboundEvent{
			Type: "rate_changed",
			Data: wsRateChangedData{Rate: ev.Rate},
			At:   ev.At,
		}, true

	case BroadcastPositionChanged:
		return wsOutboundEvent{
			Type: "position_changed",
			Data: wsPositionChangedData{PositionSec: ev.PositionSec},
			At:   ev.At,
		}, true

	case BroadcastModeChanged:
		return wsOutboundEvent{
			Type: "mode_changed",
			Data: wsModeChangedData{Mode: ev.Mode},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
