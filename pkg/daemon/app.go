// Package daemon wires a tracker source to the plugin and its sinks.
package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-mocap/internal/config"
	"github.com/teslashibe/go-mocap/internal/log"
	"github.com/teslashibe/go-mocap/pkg/bridge"
	"github.com/teslashibe/go-mocap/pkg/camera"
	"github.com/teslashibe/go-mocap/pkg/debug"
	"github.com/teslashibe/go-mocap/pkg/facetrack"
	"github.com/teslashibe/go-mocap/pkg/mocap"
	"github.com/teslashibe/go-mocap/pkg/recording"
	"github.com/teslashibe/go-mocap/pkg/remote"
	"github.com/teslashibe/go-mocap/pkg/tracking"
	"github.com/teslashibe/go-mocap/pkg/tracking/detection"
	"github.com/teslashibe/go-mocap/pkg/web"
)

// App is the go-mocap daemon.
// It owns every component and their lifecycle.
type App struct {
	config config.Config
	logger *slog.Logger

	// Tracker sources (one is active)
	webcam   *tracking.Factory
	endpoint *remote.Endpoint
	replay   *recording.Replay
	factory  facetrack.Factory

	cameraManager *camera.Manager

	// Delivery
	loop   *facetrack.Loop
	plugin *mocap.Plugin

	// Sinks
	webServer *web.Server
	bridge    *bridge.Client
	store     *recording.Store
	recorder  *recording.Recorder
}

// New creates the daemon. The config must already be validated.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		config: cfg,
		logger: log.Component("daemon"),
	}, nil
}

// Init builds all components.
// Call this after New() and before Run().
func (a *App) Init() error {
	fmt.Println("🎭 go-mocap - Face Tracking Relay")
	fmt.Println("==================================")
	if debug.Enabled {
		fmt.Println("🐛 Debug mode enabled")
	}

	if a.needsStore() {
		fmt.Printf("💾 Opening %s... ", a.config.DB)
		store, err := recording.Open(a.config.DB, log.Component("recording"))
		if err != nil {
			return fmt.Errorf("recording store: %w", err)
		}
		a.store = store
		fmt.Println("✅")
	}

	if err := a.initSource(); err != nil {
		return fmt.Errorf("tracker source: %w", err)
	}

	a.loop = facetrack.NewLoop(a.config.Executor.Queue, a.config.Executor.PostTimeout)
	a.loop.SetLogger(log.L())
	a.plugin = mocap.New(a.factory,
		mocap.WithExecutor(a.loop),
		mocap.WithLogger(log.L()),
	)

	a.initWeb()
	sinks := facetrack.Multi{a.webServer}

	if a.config.BridgeURL != "" {
		a.bridge = bridge.NewClient(a.config.BridgeURL,
			bridge.WithControlHandler(a.handleHostControl),
			bridge.WithLogger(log.L()),
		)
		sinks = append(sinks, a.bridge)
		fmt.Printf("🔗 Host bridge: %s\n", a.config.BridgeURL)
	}

	if a.config.Record {
		a.recorder = recording.NewRecorder(a.store, a.config.Source, log.L())
		sinks = append(sinks, a.recorder)
		fmt.Println("⏺️  Recording sessions")
	}

	a.plugin.Initialize(a.config.APIKey, sinks)
	return nil
}

func (a *App) needsStore() bool {
	return a.config.Record || a.config.Source == config.SourceReplay
}

func (a *App) initSource() error {
	switch a.config.Source {
	case config.SourceWebcam:
		camCfg := camera.DefaultConfig()
		camCfg.Device = a.config.Camera.Device
		if a.config.Camera.Width > 0 && a.config.Camera.Height > 0 {
			camCfg.Width, camCfg.Height = a.config.Camera.Width, a.config.Camera.Height
		}
		if a.config.Camera.FPS > 0 {
			camCfg.Framerate = a.config.Camera.FPS
		}
		a.cameraManager = camera.NewManager(camCfg)

		detCfg := detection.DefaultConfig()
		detCfg.ModelPath = a.config.Camera.Model

		trackCfg := tracking.DefaultConfig().WithFPS(camCfg.Framerate)
		trackCfg.Mirrored = camCfg.Mirror
		a.webcam = tracking.NewFactory(trackCfg,
			tracking.OpenCamera(a.cameraManager, detCfg), log.Component("tracking"))
		a.factory = a.webcam.New
		fmt.Printf("📷 Source: webcam %d (%dx%d @ %d fps)\n",
			camCfg.Device, camCfg.Width, camCfg.Height, camCfg.Framerate)

	case config.SourceRemote:
		a.endpoint = remote.NewEndpoint(remote.WithLogger(log.L()))
		a.factory = a.endpoint.Factory
		fmt.Printf("📡 Source: remote trackers on ws://localhost%s/ws/tracker\n", a.config.Listen)

	case config.SourceReplay:
		a.replay = recording.NewReplay(a.store, a.config.Replay.Session,
			recording.WithSpeed(a.config.Replay.Speed),
			recording.WithLoop(a.config.Replay.Loop),
			recording.WithReplayLogger(log.L()),
		)
		a.factory = a.replay.Factory
		fmt.Printf("⏯️  Source: replay %q (speed %.1fx)\n", a.config.Replay.Session, a.config.Replay.Speed)

	default:
		return fmt.Errorf("unknown source %q", a.config.Source)
	}
	return nil
}

func (a *App) initWeb() {
	opts := []web.Option{
		web.WithControls(a.plugin),
		web.WithLogger(log.L()),
		web.WithStats("executor", func() any {
			return map[string]any{
				"executed": a.loop.Executed(),
				"dropped":  a.loop.Dropped(),
				"pending":  a.loop.Pending(),
			}
		}),
	}
	if a.cameraManager != nil {
		opts = append(opts, web.WithCamera(a.cameraManager))
	}
	if a.webcam != nil {
		opts = append(opts,
			web.WithTuner(func() web.Tuner {
				if t := a.webcam.Current(); t != nil {
					return t
				}
				return nil
			}),
			web.WithStats("tracker", func() any {
				if t := a.webcam.Current(); t != nil {
					return t.Stats()
				}
				return nil
			}),
		)
	}
	if a.endpoint != nil {
		opts = append(opts, web.WithStats("remote", func() any { return a.endpoint.GetStats() }))
	}
	if a.config.Record {
		opts = append(opts, web.WithStats("recorder", func() any { return a.recorder.Stats() }))
	}
	if a.config.BridgeURL != "" {
		opts = append(opts, web.WithStats("bridge", func() any { return a.bridge.GetStats() }))
	}

	a.webServer = web.NewServer(a.config.Listen, opts...)
	if a.endpoint != nil {
		app := a.webServer.App()
		a.endpoint.RegisterRoutes(app)
		a.endpoint.RegisterAPIRoutes(app.Group("/api"))
	}
}

// handleHostControl maps host control messages onto the tracker lifecycle.
func (a *App) handleHostControl(action string) {
	var err error
	switch action {
	case "stop":
		err = a.plugin.Pause()
	case "restart":
		err = a.plugin.Resume()
	default:
		a.logger.Warn("unknown host control", "action", action)
		return
	}
	if err != nil {
		a.logger.Warn("host control failed", "action", action, "error", err)
	}
}

// Run starts the tracker and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.loop.Run(ctx)
	a.webServer.StartAsync(ctx)
	if a.bridge != nil {
		go a.bridge.Run(ctx)
	}

	fmt.Print("🎬 Starting tracker... ")
	if err := a.plugin.CreateTracker(ctx); err != nil {
		// The dashboard can retry via POST /api/tracker/create.
		fmt.Printf("⚠️  %v\n", err)
		a.webServer.AddLog("error", "tracker start failed: "+err.Error())
	} else {
		fmt.Println("✅")
		a.webServer.AddLog("lifecycle", "tracker running")
	}

	fmt.Println("\n🎭 go-mocap is running")
	fmt.Println("   (Ctrl+C to exit)")

	<-ctx.Done()
	return nil
}

// Shutdown releases the tracker and all sinks.
func (a *App) Shutdown() {
	fmt.Println("\n👋 Goodbye!")

	if a.plugin != nil {
		if err := a.plugin.Destroy(); err != nil {
			a.logger.Warn("tracker release failed", "error", err)
		}
	}
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.webServer != nil {
		a.webServer.Shutdown()
	}
	if a.loop != nil {
		a.loop.Close()
	}
}

// Plugin returns the plugin facade.
func (a *App) Plugin() *mocap.Plugin {
	return a.plugin
}

// Web returns the dashboard server.
func (a *App) Web() *web.Server {
	return a.webServer
}
