// Package web provides the live dashboard and HTTP control API for go-mocap.
// The Server is a facetrack.Listener: register it with the plugin and it
// streams names, values and rotations to browser clients.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-mocap/pkg/camera"
	"github.com/teslashibe/go-mocap/pkg/facetrack"
	"github.com/teslashibe/go-mocap/pkg/hub"
	"github.com/teslashibe/go-mocap/pkg/pose"
	"github.com/teslashibe/go-mocap/pkg/protocol"
	"github.com/teslashibe/go-mocap/pkg/tracking"
)

// Controls is the tracker lifecycle surface driven by the API.
// *mocap.Plugin implements it.
type Controls interface {
	CreateTracker(ctx context.Context) error
	Pause() error
	Resume() error
	Destroy() error
	State() facetrack.State
	Stats() facetrack.Stats
	Names() []string
}

// Tuner is the live tuning surface of the webcam tracker.
type Tuner interface {
	GetTuningParams() tracking.TuningParams
	SetTuningParams(tracking.TuningParams)
}

// TrackerState is the dashboard's view of the tracker
type TrackerState struct {
	Activated bool               `json:"activated"`
	State     string             `json:"state"`
	Names     int                `json:"names"`
	Tracking  bool               `json:"tracking"`
	Frames    uint64             `json:"frames"`
	Rotation  [4]float64         `json:"rotation"` // x, y, z, w
	Sliders   map[string]float64 `json:"sliders"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// LogEntry represents a log line for the dashboard
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, lifecycle, error
	Message string `json:"message"`
}

const maxLogs = 500

// Option configures a Server.
type Option func(*Server)

// WithControls lets the API create, pause, resume and destroy the tracker.
func WithControls(c Controls) Option {
	return func(s *Server) { s.controls = c }
}

// WithCamera exposes camera config and presets.
func WithCamera(m *camera.Manager) Option {
	return func(s *Server) { s.camera = m }
}

// WithTuner exposes tracking tuning. fn returns nil when no webcam tracker
// is live.
func WithTuner(fn func() Tuner) Option {
	return func(s *Server) { s.tuner = fn }
}

// WithStats adds a named section to /api/stats.
func WithStats(name string, fn func() any) Option {
	return func(s *Server) { s.extraStats[name] = fn }
}

// WithStaticDir serves dashboard assets from dir. Empty disables it.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the web dashboard server
type Server struct {
	app       *fiber.App
	addr      string
	staticDir string
	logger    *slog.Logger

	controls   Controls
	camera     *camera.Manager
	tuner      func() Tuner
	extraStats map[string]func() any

	// State
	state   TrackerState
	names   []string
	stateMu sync.RWMutex

	// Log buffer (last 500 entries)
	logs   []LogEntry
	logsMu sync.RWMutex

	// Hubs for websocket broadcast
	feedHub   *hub.Hub
	statusHub *hub.Hub
	logHub    *hub.Hub
}

// NewServer creates a dashboard server listening on addr (e.g. ":8090").
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		staticDir:  "./web",
		logger:     slog.Default(),
		extraStats: make(map[string]func() any),
		logs:       make([]LogEntry, 0, maxLogs),
		state:      TrackerState{State: facetrack.Uninitialized.String(), Rotation: [4]float64{0, 0, 0, 1}},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.feedHub = hub.New("feed", s.logger)
	s.statusHub = hub.New("status", s.logger)
	s.logHub = hub.New("logs", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "go-mocap",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	// CORS for local development
	app.Use(cors.New())

	if s.staticDir != "" {
		app.Static("/", s.staticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Get("/names", s.handleNames)
	api.Get("/logs", s.handleGetLogs)
	api.Post("/tracker/:action", s.handleTrackerAction)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handleCameraPresets)
	api.Get("/tracking/tuning", s.handleGetTuning)
	api.Post("/tracking/tuning", s.handleSetTuning)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/feed", websocket.New(s.handleFeedWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	s.app = app
	return s
}

// App returns the underlying fiber app so other components can add routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves until the listener fails or Shutdown is
// called. The hubs stop when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	fmt.Printf("🌐 Web dashboard: http://localhost%s\n", s.addr)
	s.RunHubs(ctx)
	return s.app.Listen(s.addr)
}

// RunHubs starts the broadcast hubs in the background.
func (s *Server) RunHubs(ctx context.Context) {
	go s.feedHub.Run(ctx)
	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			fmt.Printf("⚠️  Web server error: %v\n", err)
		}
	}()
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// OnActivate records plugin activation.
func (s *Server) OnActivate(activated bool) {
	s.UpdateState(func(st *TrackerState) { st.Activated = activated })
	if msg, err := protocol.NewActivateMessage(activated); err == nil {
		s.retain(s.feedHub, "activate", msg)
	}
	s.AddLog("lifecycle", fmt.Sprintf("activated: %v", activated))
}

// OnBlendShapeNames stores the names and sends them to current and future
// feed clients.
func (s *Server) OnBlendShapeNames(names []string) {
	s.stateMu.Lock()
	s.names = slices.Clone(names)
	s.stateMu.Unlock()

	s.UpdateState(func(st *TrackerState) { st.Names = len(names) })
	if msg, err := protocol.NewBlendshapeNamesMessage(names); err == nil {
		s.retain(s.feedHub, "names", msg)
	}
	s.AddLog("info", fmt.Sprintf("received %d blendshape names", len(names)))
}

// OnBlendShapeValues streams one value vector. An empty vector means the
// face was lost.
func (s *Server) OnBlendShapeValues(values []float64) {
	s.stateMu.Lock()
	s.state.Frames++
	s.state.Tracking = len(values) > 0
	s.stateMu.Unlock()

	if msg, err := protocol.NewBlendshapeValuesMessage(values); err == nil {
		s.broadcast(s.feedHub, msg)
	}
}

// OnHeadRotation streams the head rotation.
func (s *Server) OnHeadRotation(x, y, z, w float64) {
	sliders := pose.RotationToSliders(pose.NewQuaternion(x, y, z, w))

	s.stateMu.Lock()
	s.state.Rotation = [4]float64{x, y, z, w}
	s.state.Sliders = sliders.Map()
	s.state.UpdatedAt = time.Now()
	s.stateMu.Unlock()

	if msg, err := protocol.NewHeadRotationMessage(x, y, z, w); err == nil {
		s.broadcast(s.feedHub, msg)
	}
}

// UpdateState updates the tracker state and broadcasts it to status clients.
func (s *Server) UpdateState(update func(*TrackerState)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.copyStateLocked()
	s.stateMu.Unlock()

	s.statusHub.RetainJSON("state", state)
}

// State returns a copy of the tracker state.
func (s *Server) State() TrackerState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.copyStateLocked()
}

func (s *Server) copyStateLocked() TrackerState {
	st := s.state
	if s.controls != nil {
		st.State = s.controls.State().String()
	}
	if s.state.Sliders != nil {
		st.Sliders = make(map[string]float64, len(s.state.Sliders))
		for k, v := range s.state.Sliders {
			st.Sliders[k] = v
		}
	}
	return st
}

// AddLog adds a log entry and broadcasts to clients
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

func (s *Server) broadcast(h *hub.Hub, msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Debug("encode failed", "type", msg.Type, "error", err)
		return
	}
	h.Broadcast(hub.NewJSONMessage(data))
}

func (s *Server) retain(h *hub.Hub, key string, msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Debug("encode failed", "type", msg.Type, "error", err)
		return
	}
	h.Broadcast(hub.NewRetainedMessage(key, data))
}

// FeedHub returns the hub carrying listener callbacks.
func (s *Server) FeedHub() *hub.Hub {
	return s.feedHub
}

// StatusHub returns the status hub for external use
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// LogHub returns the log hub for external use
func (s *Server) LogHub() *hub.Hub {
	return s.logHub
}
