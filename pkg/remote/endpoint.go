// Package remote accepts face trackers running in another process (a phone
// app, a MediaPipe sidecar, an engine plugin) over WebSocket and exposes them
// as a facetrack.Resource.
//
// A producer connects to /ws/tracker, sends its blendshape names once, then a
// frame or lost message per camera frame. go-mocap answers pings and sends
// control messages when the tracker is paused or resumed. Only the earliest
// connected producer is forwarded; later ones are accepted and counted.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-mocap/pkg/facetrack"
	"github.com/teslashibe/go-mocap/pkg/pose"
	"github.com/teslashibe/go-mocap/pkg/protocol"
)

// ErrNoTracker is returned when no producer is connected.
var ErrNoTracker = errors.New("remote: no tracker connected")

// ErrAttached is returned when a second Resource is requested while one is live.
var ErrAttached = errors.New("remote: tracker already attached")

// Producer is one connected external tracker.
type Producer struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex // guards writes and the fields below
	lastSeen time.Time
	names    []string
	frames   uint64
}

// Send writes a message to the producer
func (p *Producer) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Conn.WriteMessage(websocket.TextMessage, data)
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithWaitForProducer makes Factory wait up to d for a producer to connect,
// failing with ErrNoTracker when none does. Zero (the default) attaches
// immediately and forwards whichever producer connects later.
func WithWaitForProducer(d time.Duration) Option {
	return func(e *Endpoint) { e.wait = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Endpoint) { e.logger = l }
}

// Endpoint manages producer connections and the attached Resource.
type Endpoint struct {
	logger *slog.Logger
	wait   time.Duration

	mu        sync.RWMutex
	producers map[string]*Producer
	order     []string // connection order; order[0] is forwarded
	session   *Tracker
	arrived   chan struct{}

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesForwarded  atomic.Uint64
	framesIgnored    atomic.Uint64
	parseErrors      atomic.Uint64
}

// NewEndpoint creates an endpoint with no producers.
func NewEndpoint(opts ...Option) *Endpoint {
	e := &Endpoint{
		logger:    slog.Default(),
		producers: make(map[string]*Producer),
		arrived:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "remote.endpoint")
	return e
}

// RegisterRoutes registers the producer WebSocket endpoint.
func (e *Endpoint) RegisterRoutes(router fiber.Router) {
	router.Use("/ws/tracker", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws/tracker", websocket.New(e.handleProducer))
	router.Get("/ws/tracker/:id", websocket.New(e.handleProducer))
}

// Factory attaches a Resource to this endpoint. Pass it to
// facetrack.NewController.
func (e *Endpoint) Factory(ctx context.Context, hooks facetrack.Hooks) (facetrack.Resource, error) {
	if e.wait > 0 {
		if err := e.awaitProducer(ctx); err != nil {
			return nil, err
		}
	}

	t := &Tracker{endpoint: e, hooks: hooks}

	e.mu.Lock()
	if e.session != nil {
		e.mu.Unlock()
		return nil, ErrAttached
	}
	e.session = t
	var names []string
	if p := e.primaryLocked(); p != nil {
		p.mu.Lock()
		names = slices.Clone(p.names)
		p.mu.Unlock()
	}
	e.mu.Unlock()

	if names != nil {
		t.announce(names)
	}
	e.logger.Info("remote tracker attached", "producers", e.ProducerCount())
	return t, nil
}

func (e *Endpoint) awaitProducer(ctx context.Context) error {
	timer := time.NewTimer(e.wait)
	defer timer.Stop()
	for {
		e.mu.RLock()
		n, arrived := len(e.order), e.arrived
		e.mu.RUnlock()
		if n > 0 {
			return nil
		}

		select {
		case <-arrived:
		case <-timer.C:
			return fmt.Errorf("%w after %v", ErrNoTracker, e.wait)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Endpoint) detach(t *Tracker) {
	e.mu.Lock()
	if e.session == t {
		e.session = nil
	}
	e.mu.Unlock()
}

// primaryLocked returns the forwarded producer. e.mu must be held.
func (e *Endpoint) primaryLocked() *Producer {
	if len(e.order) == 0 {
		return nil
	}
	return e.producers[e.order[0]]
}

// handleProducer handles one producer WebSocket connection
func (e *Endpoint) handleProducer(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	p := &Producer{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		lastSeen:  time.Now(),
	}

	e.mu.Lock()
	if _, dup := e.producers[id]; dup {
		e.mu.Unlock()
		e.logger.Warn("duplicate producer id rejected", "producer", id)
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "duplicate id"))
		return
	}
	e.producers[id] = p
	e.order = append(e.order, id)
	count := len(e.order)
	close(e.arrived)
	e.arrived = make(chan struct{})
	paused := e.session != nil && e.session.paused.Load()
	e.mu.Unlock()

	e.logger.Info("producer connected", "producer", id, "producers", count)

	// A producer joining a paused tracker should not stream.
	if paused {
		e.sendControl(p, protocol.ActionStop)
	}

	defer func() {
		e.mu.Lock()
		delete(e.producers, id)
		e.order = slices.DeleteFunc(e.order, func(s string) bool { return s == id })
		count := len(e.order)
		e.mu.Unlock()
		e.logger.Info("producer disconnected", "producer", id, "producers", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			e.logger.Debug("producer read ended", "producer", id, "error", err)
			return
		}

		p.mu.Lock()
		p.lastSeen = time.Now()
		p.mu.Unlock()

		e.messagesReceived.Add(1)
		e.handleMessage(p, data)
	}
}

// handleMessage processes an incoming message from a producer
func (e *Endpoint) handleMessage(p *Producer, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		e.parseErrors.Add(1)
		e.logger.Debug("parse error", "producer", p.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeNames:
		nd, err := msg.GetNamesData()
		if err != nil {
			e.parseErrors.Add(1)
			return
		}
		names := nd.Names
		if names == nil {
			names = []string{}
		}
		p.mu.Lock()
		p.names = slices.Clone(names)
		p.mu.Unlock()

		if t := e.forwardTo(p); t != nil {
			t.announce(names)
		}

	case protocol.TypeFrame:
		e.framesReceived.Add(1)
		fd, err := msg.GetFrameData()
		if err != nil {
			e.parseErrors.Add(1)
			return
		}
		p.mu.Lock()
		p.frames++
		names := p.names
		p.mu.Unlock()

		e.forward(p, fd.Seq, fd.Width, fd.Height, toTracked(names, fd))

	case protocol.TypeLost:
		e.framesReceived.Add(1)
		ld, _ := msg.GetLostData()
		var seq uint64
		if ld != nil {
			seq = ld.Seq
		}
		e.forward(p, seq, 0, 0, facetrack.Lost{})

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage("", msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			e.send(p, pong)
		}

	default:
		e.logger.Debug("unexpected message", "producer", p.ID, "type", msg.Type)
	}
}

// forwardTo returns the attached tracker if p is the forwarded producer.
func (e *Endpoint) forwardTo(p *Producer) *Tracker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil || e.primaryLocked() != p {
		return nil
	}
	return e.session
}

func (e *Endpoint) forward(p *Producer, seq uint64, w, h int, r facetrack.Result) {
	t := e.forwardTo(p)
	if t == nil || !t.deliver(seq, w, h, r) {
		e.framesIgnored.Add(1)
		return
	}
	e.framesForwarded.Add(1)
}

// toTracked zips producer names with frame values. Values past the end of
// the name list get empty names; the dispatcher counts the mismatch.
func toTracked(names []string, fd *protocol.FrameData) facetrack.Tracked {
	shapes := make([]facetrack.Blendshape, len(fd.Values))
	for i, v := range fd.Values {
		shapes[i].Value = v
		if i < len(names) {
			shapes[i].Name = names[i]
		}
	}
	r := fd.Rotation
	return facetrack.Tracked{
		Blendshapes: shapes,
		Rotation:    pose.NewQuaternion(r[0], r[1], r[2], r[3]),
	}
}

func (e *Endpoint) send(p *Producer, msg *protocol.Message) error {
	e.messagesSent.Add(1)
	return p.Send(msg)
}

func (e *Endpoint) sendControl(p *Producer, action string) {
	msg, err := protocol.NewControlMessage(action)
	if err != nil {
		return
	}
	if err := e.send(p, msg); err != nil {
		e.logger.Warn("control send failed", "producer", p.ID, "action", action, "error", err)
	}
}

// broadcastControl sends a control action to every producer.
func (e *Endpoint) broadcastControl(action string) {
	for _, p := range e.Producers() {
		e.sendControl(p, action)
	}
}

// SendControl sends a control action to one producer.
func (e *Endpoint) SendControl(id, action string) error {
	e.mu.RLock()
	p, ok := e.producers[id]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTracker, id)
	}
	msg, err := protocol.NewControlMessage(action)
	if err != nil {
		return err
	}
	return e.send(p, msg)
}

// Producers returns connected producers in connection order.
func (e *Endpoint) Producers() []*Producer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Producer, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.producers[id])
	}
	return out
}

// Producer returns a producer by ID, or nil.
func (e *Endpoint) Producer(id string) *Producer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.producers[id]
}

// ProducerCount returns the number of connected producers
func (e *Endpoint) ProducerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.order)
}

// Stats contains endpoint statistics
type Stats struct {
	Producers        int    `json:"producers"`
	Attached         bool   `json:"attached"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesForwarded  uint64 `json:"frames_forwarded"`
	FramesIgnored    uint64 `json:"frames_ignored"`
	ParseErrors      uint64 `json:"parse_errors"`
}

// GetStats returns endpoint statistics
func (e *Endpoint) GetStats() Stats {
	e.mu.RLock()
	attached := e.session != nil
	producers := len(e.order)
	e.mu.RUnlock()

	return Stats{
		Producers:        producers,
		Attached:         attached,
		MessagesReceived: e.messagesReceived.Load(),
		MessagesSent:     e.messagesSent.Load(),
		FramesReceived:   e.framesReceived.Load(),
		FramesForwarded:  e.framesForwarded.Load(),
		FramesIgnored:    e.framesIgnored.Load(),
		ParseErrors:      e.parseErrors.Load(),
	}
}

// ProducerInfo contains info about a connected producer
type ProducerInfo struct {
	ID        string    `json:"id"`
	Primary   bool      `json:"primary"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Names     int       `json:"names"`
	Frames    uint64    `json:"frames"`
}

// GetProducerInfos returns info about all connected producers
func (e *Endpoint) GetProducerInfos() []ProducerInfo {
	producers := e.Producers()
	infos := make([]ProducerInfo, 0, len(producers))
	for i, p := range producers {
		p.mu.Lock()
		infos = append(infos, ProducerInfo{
			ID:        p.ID,
			Primary:   i == 0,
			Connected: p.Connected,
			LastSeen:  p.lastSeen,
			Names:     len(p.names),
			Frames:    p.frames,
		})
		p.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for producer management
func (e *Endpoint) RegisterAPIRoutes(api fiber.Router) {
	producers := api.Group("/producers")

	producers.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"producers": e.GetProducerInfos(),
			"count":     e.ProducerCount(),
		})
	})

	producers.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(e.GetStats())
	})

	producers.Post("/:id/control", func(c *fiber.Ctx) error {
		var cmd protocol.ControlData
		if err := c.BodyParser(&cmd); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if cmd.Action != protocol.ActionStop && cmd.Action != protocol.ActionRestart {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "action must be stop or restart"})
		}

		if err := e.SendControl(c.Params("id"), cmd.Action); err != nil {
			status := fiber.StatusInternalServerError
			if errors.Is(err, ErrNoTracker) {
				status = fiber.StatusNotFound
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "sent"})
	})
}
