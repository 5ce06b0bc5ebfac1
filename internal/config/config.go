// Package config loads go-mocap daemon configuration from an optional YAML
// file and MOCAP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Tracker sources.
const (
	SourceWebcam = "webcam"
	SourceRemote = "remote"
	SourceReplay = "replay"
)

// Defaults.
const (
	DefaultListen   = ":8090"
	DefaultDB       = "mocap.db"
	DefaultLogLevel = "info"
	DefaultModel    = "models/face_detection_yunet_2023mar.onnx"
)

// Config is the complete daemon configuration.
type Config struct {
	Source    string         `yaml:"source"` // webcam, remote, replay
	Listen    string         `yaml:"listen"`
	APIKey    string         `yaml:"api_key"`
	BridgeURL string         `yaml:"bridge_url"` // optional host websocket
	DB        string         `yaml:"db"`
	Record    bool           `yaml:"record"`
	LogLevel  string         `yaml:"log_level"`
	Camera    CameraConfig   `yaml:"camera"`
	Replay    ReplayConfig   `yaml:"replay"`
	Executor  ExecutorConfig `yaml:"executor"`
}

// CameraConfig configures the local webcam source.
type CameraConfig struct {
	Device int    `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	Model  string `yaml:"model"` // YuNet ONNX path
}

// ReplayConfig selects a recorded session to play back.
type ReplayConfig struct {
	Session string  `yaml:"session"`
	Speed   float64 `yaml:"speed"`
	Loop    bool    `yaml:"loop"`
}

// ExecutorConfig sizes the listener delivery loop.
type ExecutorConfig struct {
	Queue       int           `yaml:"queue"`
	PostTimeout time.Duration `yaml:"post_timeout"`
}

// Default returns a webcam configuration listening on DefaultListen.
func Default() Config {
	return Config{
		Source:   SourceWebcam,
		Listen:   DefaultListen,
		DB:       DefaultDB,
		LogLevel: DefaultLogLevel,
		Camera: CameraConfig{
			Device: 0,
			Width:  640,
			Height: 480,
			FPS:    30,
			Model:  DefaultModel,
		},
		Replay: ReplayConfig{Speed: 1},
		Executor: ExecutorConfig{
			Queue:       256,
			PostTimeout: 50 * time.Millisecond,
		},
	}
}

// Load is Read followed by Validate.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds a configuration from defaults, then the YAML file at path
// (skipped when path is empty), then the environment. Callers that layer
// flags on top validate afterwards.
func Read(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from MOCAP_* variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("MOCAP_SOURCE", &c.Source)
	str("MOCAP_LISTEN", &c.Listen)
	str("MOCAP_API_KEY", &c.APIKey)
	str("MOCAP_BRIDGE_URL", &c.BridgeURL)
	str("MOCAP_DB", &c.DB)
	str("MOCAP_LOG_LEVEL", &c.LogLevel)
	str("MOCAP_MODEL", &c.Camera.Model)
	str("MOCAP_REPLAY_SESSION", &c.Replay.Session)

	if v, ok := lookup("MOCAP_CAMERA"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: MOCAP_CAMERA=%q is not a device index", ErrInvalid, v)
		}
		c.Camera.Device = n
	}
	if v, ok := lookup("MOCAP_RECORD"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: MOCAP_RECORD=%q is not a bool", ErrInvalid, v)
		}
		c.Record = b
	}
	return nil
}

// Validate reports every problem at once, each wrapped with ErrInvalid.
func (c *Config) Validate() error {
	var problems []string

	switch c.Source {
	case SourceWebcam, SourceRemote, SourceReplay:
	default:
		problems = append(problems, fmt.Sprintf("unknown source %q", c.Source))
	}
	if c.Listen == "" && c.Source == SourceRemote {
		problems = append(problems, "remote source needs a listen address")
	}
	if c.Source == SourceReplay && c.Replay.Session == "" {
		problems = append(problems, "replay source needs replay.session")
	}
	if (c.Source == SourceReplay || c.Record) && c.DB == "" {
		problems = append(problems, "recording and replay need a db path")
	}
	if c.Replay.Speed < 0 {
		problems = append(problems, "replay.speed must not be negative")
	}
	if c.Source == SourceWebcam {
		if c.Camera.FPS <= 0 {
			problems = append(problems, "camera.fps must be positive")
		}
		if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
			problems = append(problems, "camera width and height must be positive")
		}
	}
	if c.Executor.Queue < 0 {
		problems = append(problems, "executor.queue must not be negative")
	}
	if c.BridgeURL != "" && !strings.HasPrefix(c.BridgeURL, "ws://") && !strings.HasPrefix(c.BridgeURL, "wss://") {
		problems = append(problems, fmt.Sprintf("bridge_url %q must be ws:// or wss://", c.BridgeURL))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}
