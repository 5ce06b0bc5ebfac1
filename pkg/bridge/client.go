// Package bridge forwards listener callbacks to a host process (a game
// engine editor, a streaming tool) over a WebSocket client connection.
//
// The host runs a WebSocket server; go-mocap dials it and sends activate,
// blendshape_names, blendshape_values and head_rotation messages. The host
// may send control messages back to pause or resume the tracker.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-mocap/pkg/protocol"
)

const (
	// DefaultBackoff is the fixed delay between reconnect attempts.
	DefaultBackoff = 2 * time.Second

	// DefaultQueueSize bounds messages waiting for the connection.
	DefaultQueueSize = 256

	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 2 * pingPeriod
)

// ErrNotConnected is returned by Send while no host connection is open.
var ErrNotConnected = errors.New("bridge: not connected")

// Option configures a Client.
type Option func(*Client)

// WithBackoff sets the reconnect delay.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// WithHeader adds handshake headers, e.g. an Authorization token.
func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

// WithQueueSize sets the outbound queue depth.
func WithQueueSize(n int) Option {
	return func(c *Client) { c.queueSize = n }
}

// WithControlHandler is called with "stop" or "restart" when the host sends
// a control message.
func WithControlHandler(fn func(action string)) Option {
	return func(c *Client) { c.onControl = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Stats counts bridge activity.
type Stats struct {
	Connected  bool   `json:"connected"`
	Sent       uint64 `json:"sent"`
	Dropped    uint64 `json:"dropped"`
	Reconnects uint64 `json:"reconnects"`
	Controls   uint64 `json:"controls"`
}

// Client is a facetrack.Listener that relays every callback to the host.
// Callbacks never block: when the queue is full, messages are dropped.
type Client struct {
	url       string
	header    http.Header
	backoff   time.Duration
	queueSize int
	onControl func(action string)
	logger    *slog.Logger

	outbox chan []byte

	// Activation and names are replayed on every (re)connect so the host
	// can interpret values that follow.
	mu       sync.Mutex
	activate []byte
	names    []byte

	wsMu sync.Mutex // serializes writes
	ws   *websocket.Conn

	connected  atomic.Bool
	sent       atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64
	controls   atomic.Uint64
}

// NewClient creates a bridge to the host WebSocket at url. Call Run to
// connect.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:       url,
		backoff:   DefaultBackoff,
		queueSize: DefaultQueueSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.queueSize < 1 {
		c.queueSize = 1
	}
	c.outbox = make(chan []byte, c.queueSize)
	c.logger = c.logger.With("component", "bridge", "url", url)
	return c
}

// Run connects and keeps reconnecting with a fixed backoff until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	first := true
	for {
		if !first {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			c.reconnects.Add(1)
		}
		first = false

		ws, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("host connect failed", "error", err, "retry_in", c.backoff)
			continue
		}

		c.logger.Info("host connected")
		err = c.serve(ctx, ws)
		c.logger.Info("host disconnected", "error", err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to host: %w", err)
	}
	return ws, nil
}

// serve runs one connection until it fails or ctx is done.
func (c *Client) serve(ctx context.Context, ws *websocket.Conn) error {
	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()

	// Retained messages stored after this point are queued instead.
	c.mu.Lock()
	c.connected.Store(true)
	retained := c.retainedLocked()
	c.mu.Unlock()

	defer func() {
		c.connected.Store(false)
		c.wsMu.Lock()
		c.ws = nil
		c.wsMu.Unlock()
		ws.Close()
		c.drain()
	}()

	for _, data := range retained {
		if err := c.write(ws, data); err != nil {
			return err
		}
	}

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(ws) }()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.wsMu.Lock()
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			c.wsMu.Unlock()
			return ctx.Err()

		case err := <-readErr:
			return err

		case data := <-c.outbox:
			if err := c.write(ws, data); err != nil {
				return err
			}

		case <-ticker.C:
			c.wsMu.Lock()
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.wsMu.Unlock()
			if err != nil {
				return err
			}
		}
	}
}

// drain discards queued messages; they belong to the closed connection.
func (c *Client) drain() {
	for {
		select {
		case <-c.outbox:
			c.dropped.Add(1)
		default:
			return
		}
	}
}

func (c *Client) write(ws *websocket.Conn, data []byte) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.sent.Add(1)
	return nil
}

func (c *Client) readLoop(ws *websocket.Conn) error {
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(ws, data)
	}
}

func (c *Client) handleMessage(ws *websocket.Conn, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.logger.Debug("ignoring host message", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeControl:
		ctl, err := msg.GetControlData()
		if err != nil {
			return
		}
		c.controls.Add(1)
		c.logger.Info("host control", "action", ctl.Action)
		if c.onControl != nil {
			c.onControl(ctl.Action)
		}

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage("", msg.Timestamp, time.Now().UnixMilli())
		if err != nil {
			return
		}
		if data, err := pong.Bytes(); err == nil {
			c.write(ws, data)
		}

	default:
		c.logger.Debug("unexpected host message", "type", msg.Type)
	}
}

func (c *Client) retainedLocked() [][]byte {
	var out [][]byte
	if c.activate != nil {
		out = append(out, c.activate)
	}
	if c.names != nil {
		out = append(out, c.names)
	}
	return out
}

func encode(msg *protocol.Message, err error) []byte {
	if err != nil {
		return nil
	}
	data, err := msg.Bytes()
	if err != nil {
		return nil
	}
	return data
}

// queue hands data to the writer. Live messages are dropped while no host
// is connected.
func (c *Client) queue(data []byte) {
	if data == nil {
		return
	}
	if !c.connected.Load() {
		c.dropped.Add(1)
		return
	}
	select {
	case c.outbox <- data:
	default:
		c.dropped.Add(1)
	}
}

func (c *Client) retain(slot *[]byte, data []byte) {
	if data == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	*slot = data
	if c.connected.Load() {
		select {
		case c.outbox <- data:
		default:
			c.dropped.Add(1)
		}
	}
}

// Send writes a message directly. It fails when no host is connected.
func (c *Client) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	c.wsMu.Lock()
	ws := c.ws
	c.wsMu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return c.write(ws, data)
}

// OnActivate relays activation. It is replayed to later connections.
func (c *Client) OnActivate(activated bool) {
	c.retain(&c.activate, encode(protocol.NewActivateMessage(activated)))
}

// OnBlendShapeNames relays the names. They are replayed to later connections.
func (c *Client) OnBlendShapeNames(names []string) {
	c.retain(&c.names, encode(protocol.NewBlendshapeNamesMessage(names)))
}

func (c *Client) OnBlendShapeValues(values []float64) {
	c.queue(encode(protocol.NewBlendshapeValuesMessage(values)))
}

func (c *Client) OnHeadRotation(x, y, z, w float64) {
	c.queue(encode(protocol.NewHeadRotationMessage(x, y, z, w)))
}

// Connected reports whether a host connection is open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// GetStats returns bridge statistics
func (c *Client) GetStats() Stats {
	return Stats{
		Connected:  c.connected.Load(),
		Sent:       c.sent.Load(),
		Dropped:    c.dropped.Load(),
		Reconnects: c.reconnects.Load(),
		Controls:   c.controls.Load(),
	}
}
