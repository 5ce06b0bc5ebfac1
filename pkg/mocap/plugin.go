// Package mocap is the host-facing plugin surface: initialize with a
// listener, create the camera tracker, and drive its lifecycle.
package mocap

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-mocap/pkg/facetrack"
)

// ErrNotInitialized is returned by CreateTracker before Initialize.
var ErrNotInitialized = errors.New("mocap: plugin not initialized")

// Option configures a Plugin.
type Option func(*Plugin)

// WithExecutor sets the UI execution context listener callbacks run on.
func WithExecutor(e facetrack.Executor) Option {
	return func(p *Plugin) {
		p.exec = e
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Plugin) {
		p.logger = logger
	}
}

// Plugin wires a tracker Resource factory to a host listener.
type Plugin struct {
	factory facetrack.Factory
	exec    facetrack.Executor
	logger  *slog.Logger

	mu         sync.Mutex
	listener   facetrack.Listener
	apiKey     string
	dispatcher *facetrack.Dispatcher
	controller *facetrack.Controller
}

// New creates a plugin that allocates trackers with factory.
func New(factory facetrack.Factory, opts ...Option) *Plugin {
	p := &Plugin{
		factory: factory,
		exec:    facetrack.Inline{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "mocap")
	return p
}

// Initialize registers the listener and reports activation.
// The API key is kept for the host's licensing hook and only logged masked.
func (p *Plugin) Initialize(apiKey string, l facetrack.Listener) {
	p.mu.Lock()
	p.listener = l
	p.apiKey = apiKey
	p.mu.Unlock()

	p.logger.Info("plugin initialized", "api_key", MaskKey(apiKey))
	p.exec.Post(func() { l.OnActivate(true) })
}

// CreateTracker allocates and starts the tracker. Repeated calls reuse the
// existing tracker.
func (p *Plugin) CreateTracker(ctx context.Context) error {
	c, err := p.ensureController()
	if err != nil {
		return err
	}
	return c.Create(ctx)
}

func (p *Plugin) ensureController() (*facetrack.Controller, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener == nil {
		return nil, ErrNotInitialized
	}
	if p.controller == nil {
		p.dispatcher = facetrack.NewDispatcher(p.listener, p.exec, p.logger)
		p.controller = facetrack.NewController(p.factory, p.dispatcher, p.logger)
	}
	return p.controller, nil
}

func (p *Plugin) current() *facetrack.Controller {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.controller
}

// Pause stops the camera without releasing it.
func (p *Plugin) Pause() error {
	if c := p.current(); c != nil {
		return c.Pause()
	}
	return nil
}

// Resume restarts a paused camera.
func (p *Plugin) Resume() error {
	if c := p.current(); c != nil {
		return c.Resume()
	}
	return nil
}

// Destroy stops and releases the tracker. The plugin cannot create another
// tracker afterwards; construct a new Plugin instead.
func (p *Plugin) Destroy() error {
	p.mu.Lock()
	if p.controller == nil {
		// Nothing allocated yet; make later creation fail the same way.
		p.dispatcher = facetrack.NewDispatcher(facetrack.Observers{}, p.exec, p.logger)
		p.controller = facetrack.NewController(p.factory, p.dispatcher, p.logger)
	}
	c := p.controller
	p.mu.Unlock()
	return c.Destroy()
}

// State returns the tracker lifecycle state.
func (p *Plugin) State() facetrack.State {
	if c := p.current(); c != nil {
		return c.State()
	}
	return facetrack.Uninitialized
}

// Stats returns dispatcher counters; zero before CreateTracker.
func (p *Plugin) Stats() facetrack.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dispatcher == nil {
		return facetrack.Stats{}
	}
	return p.dispatcher.Stats()
}

// Names returns the delivered blendshape names, or nil.
func (p *Plugin) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dispatcher == nil {
		return nil
	}
	return p.dispatcher.Names()
}

// MaskKey hides all but the last four characters of an API key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
