package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TransportSink is the playback engine the deck issues commands against.
// The daemon never owns playback state; it observes it through the getters
// and steers it through SetRate/SeekTo.
//
// Implementations: PlayerWSClient (remote player over websocket) and
// LocalSink (in-process beep pipeline).
type TransportSink interface {
	SetRate(rate float64) (float64, error)
	SeekTo(seconds float64) (float64, error)
	GetPosition() (float64, error)
	// GetDuration returns (seconds, known). known is false while the player
	// has no loaded media.
	GetDuration() (float64, bool, error)
	GetRate() (float64, error)
	Close() error
}

// PlayerWSClient manages WebSocket communication with a remote player that
// speaks the deck control protocol: JSON text frames, one request per frame,
// `{"SetRate": 1.25}` / `"GetPosition"` style commands with
// `{"Cmd": {"result": "Ok", "value": ...}}` responses.
type PlayerWSClient struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	url         string
	logger      *slog.Logger
	readTimeout time.Duration
}

// NewPlayerWSClient creates a player client and establishes the initial
// connection.
func NewPlayerWSClient(wsURL string, logger *slog.Logger, readTimeoutMS int) (*PlayerWSClient, error) {
	if _, err := url.Parse(wsURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}

	client := &PlayerWSClient{
		url:         wsURL,
		logger:      logger,
		readTimeout: time.Duration(readTimeoutMS) * time.Millisecond,
	}

	if err := client.connectWithRetry(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect establishes a WebSocket connection to the player.
func (c *PlayerWSClient) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid ws url: %w", err)
	}

	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
	}

	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		return err
	}

	c.conn = conn
	return nil
}

// connectWithRetry attempts to connect with bounded retry.
func (c *PlayerWSClient) connectWithRetry() error {
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		err := c.connect()
		if err == nil {
			c.logger.Info("connected to player", "url", c.url)
			return nil
		}
		lastErr = err
		c.logger.Warn("connection failed; retrying...", "error", err, "attempt", attempt+1)
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("failed to connect after 10 attempts: %w", lastErr)
}

// ensureConnected checks connection and reconnects if necessary.
func (c *PlayerWSClient) ensureConnected() error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.logger.Warn("connection lost; reconnecting...")
	return c.connectWithRetry()
}

// sendAndRead sends a request frame and waits for the response frame.
func (c *PlayerWSClient) sendAndRead(v any) ([]byte, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("no websocket connection")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.conn = nil // Mark connection as broken
		return nil, err
	}

	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		c.conn = nil // Mark connection as broken
		return nil, err
	}

	return message, nil
}

// Close closes the WebSocket connection.
func (c *PlayerWSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// valueResponse is the shared response shape for value-returning commands.
type valueResponse struct {
	Result string  `json:"result"`
	Value  float64 `json:"value"`
}

// SetRate sets the playback rate and returns the applied rate.
func (c *PlayerWSClient) SetRate(rate float64) (float64, error) {
	cmd := map[string]any{"SetRate": rate}

	response, err := c.sendAndRead(cmd)
	if err != nil {
		return 0, fmt.Errorf("set rate: %w", err)
	}

	var resp struct {
		SetRate valueResponse `json:"SetRate"`
	}
	if err := json.Unmarshal(response, &resp); err != nil {
		c.logger.Warn("failed to parse SetRate response", "error", err)
		return rate, nil // Assume success
	}

	c.logger.Debug("SetRate", "rate", rate, "result", resp.SetRate.Result)

	return rate, nil
}

// SeekTo seeks to an absolute position and returns the resulting position.
// The caller has already clamped the target to [0, duration].
func (c *PlayerWSClient) SeekTo(seconds float64) (float64, error) {
	cmd := map[string]any{"SeekTo": seconds}

	response, err := c.sendAndRead(cmd)
	if err != nil {
		return 0, fmt.Errorf("seek to: %w", err)
	}

	var resp struct {
		SeekTo valueResponse `json:"SeekTo"`
	}
	if err := json.Unmarshal(response, &resp); err != nil {
		c.logger.Warn("failed to parse SeekTo response", "error", err)
		return seconds, nil // Assume success
	}

	c.logger.Debug("SeekTo", "seconds", seconds, "result", resp.SeekTo.Result)

	if resp.SeekTo.Result == "Ok" {
		return resp.SeekTo.Value, nil
	}
	return seconds, nil
}

// GetPosition queries the player for the current playback position.
func (c *PlayerWSClient) GetPosition() (float64, error) {
	response, err := c.sendAndRead("GetPosition")
	if err != nil {
		return 0, fmt.Errorf("get position: %w", err)
	}

	var resp struct {
		GetPosition valueResponse `json:"GetPosition"`
	}
	if err := json.Unmarshal(response, &resp); err != nil {
		c.logger.Warn("failed to parse GetPosition response", "error", err)
		return 0, err
	}

	return resp.GetPosition.Value, nil
}

// GetDuration queries the player for the loaded media duration.
// A "NoMedia" result maps to known=false rather than an error.
func (c *PlayerWSClient) GetDuration() (float64, bool, error) {
	response, err := c.sendAndRead("GetDuration")
	if err != nil {
		return 0, false, fmt.Errorf("get duration: %w", err)
	}

	var resp struct {
		GetDuration valueResponse `json:"GetDuration"`
	}
	if err := json.Unmarshal(response, &resp); err != nil {
		c.logger.Warn("failed to parse GetDuration response", "error", err)
		return 0, false, err
	}

	if resp.GetDuration.Result != "Ok" {
		return 0, false, nil
	}

	return resp.GetDuration.Value, true, nil
}

// GetRate queries the player for the current playback rate.
func (c *PlayerWSClient) GetRate() (float64, error) {
	response, err := c.sendAndRead("GetRate")
	if err != nil {
		return 0, fmt.Errorf("get rate: %w", err)
	}

	var resp struct {
		GetRate valueResponse `json:"GetRate"`
	}
	if err := json.Unmarshal(response, &resp); err != nil {
		c.logger.Warn("failed to parse GetRate response", "error", err)
		return 0, err
	}

	return resp.GetRate.Value, nil
}
