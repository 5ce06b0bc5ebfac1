// mocapd relays face tracking to a host: a webcam, remote tracker or
// recorded session feeds blendshapes and head-pose sliders to the dashboard,
// the host bridge and the recorder.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-mocap/internal/config"
	mlog "github.com/teslashibe/go-mocap/internal/log"
	"github.com/teslashibe/go-mocap/pkg/daemon"
	"github.com/teslashibe/go-mocap/pkg/debug"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	mlog.Init(cfg.LogLevel)

	app, err := daemon.New(*cfg)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags loads the config file and environment, then applies flags.
// Flags win over both.
func parseFlags() (*config.Config, error) {
	configPath := flag.String("config", os.Getenv("MOCAP_CONFIG"), "YAML config file")
	debugFlag := flag.Bool("debug", false, "Enable verbose debug logging")
	debugFrames := flag.Bool("debug-frames", false, "Trace every frame (dispatch, capture, detection)")
	source := flag.String("source", "", "Tracker source: webcam, remote, replay")
	listen := flag.String("listen", "", "Dashboard and remote tracker address")
	bridgeURL := flag.String("bridge", "", "Host bridge WebSocket URL")
	dbPath := flag.String("db", "", "Session database path")
	record := flag.Bool("record", false, "Record sessions to the database")
	device := flag.Int("camera", -1, "Webcam device index")
	model := flag.String("model", "", "YuNet face detection model")
	session := flag.String("session", "", "Session to replay (ID or \"latest\")")
	speed := flag.Float64("speed", 0, "Replay speed multiplier")
	loop := flag.Bool("loop", false, "Loop replay")
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		return nil, err
	}

	debug.Enabled = *debugFlag
	debug.Frames = *debugFrames
	if *debugFlag {
		cfg.LogLevel = "debug"
	}

	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if *source != "" {
		cfg.Source = *source
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *bridgeURL != "" {
		cfg.BridgeURL = *bridgeURL
	}
	if *dbPath != "" {
		cfg.DB = *dbPath
	}
	if setFlags["record"] {
		cfg.Record = *record
	}
	if *device >= 0 {
		cfg.Camera.Device = *device
	}
	if *model != "" {
		cfg.Camera.Model = *model
	}
	if *session != "" {
		cfg.Replay.Session = *session
	}
	if *speed > 0 {
		cfg.Replay.Speed = *speed
	}
	if setFlags["loop"] {
		cfg.Replay.Loop = *loop
	}

	return cfg, cfg.Validate()
}
