package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mocap.yaml")
	yml := `
source: remote
listen: ":9000"
api_key: from-file
camera:
  fps: 15
executor:
  queue: 32
  post_timeout: 10ms
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MOCAP_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Source != SourceRemote {
		t.Errorf("Source = %q, want remote", cfg.Source)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, env should win over file", cfg.APIKey)
	}
	if cfg.Camera.FPS != 15 || cfg.Camera.Width != 640 {
		t.Errorf("Camera = %+v, want file fps and default width", cfg.Camera)
	}
	if cfg.Executor.Queue != 32 || cfg.Executor.PostTimeout != 10*time.Millisecond {
		t.Errorf("Executor = %+v", cfg.Executor)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() of a missing file should fail")
	}
}

func TestRead_DefersValidation(t *testing.T) {
	t.Setenv("MOCAP_SOURCE", SourceReplay)

	cfg, err := Read("")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.Source != SourceReplay {
		t.Errorf("Source = %q, want replay", cfg.Source)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Validate() = %v, want ErrInvalid for replay without session", err)
	}

	if _, err := Load(""); !errors.Is(err, ErrInvalid) {
		t.Errorf("Load() = %v, want ErrInvalid", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"MOCAP_SOURCE":         "replay",
		"MOCAP_REPLAY_SESSION": "abc",
		"MOCAP_CAMERA":         "2",
		"MOCAP_RECORD":         "true",
		"MOCAP_BRIDGE_URL":     "ws://localhost:7000/mocap",
		"MOCAP_LOG_LEVEL":      "",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	want := Default()
	want.Source = SourceReplay
	want.Replay.Session = "abc"
	want.Camera.Device = 2
	want.Record = true
	want.BridgeURL = "ws://localhost:7000/mocap"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("ApplyEnv() mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnv_BadValues(t *testing.T) {
	for _, env := range []map[string]string{
		{"MOCAP_CAMERA": "front"},
		{"MOCAP_RECORD": "sometimes"},
	} {
		cfg := Default()
		if err := cfg.ApplyEnv(envMap(env)); !errors.Is(err, ErrInvalid) {
			t.Errorf("ApplyEnv(%v) = %v, want ErrInvalid", env, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown source", func(c *Config) { c.Source = "kinect" }, "unknown source"},
		{"replay without session", func(c *Config) { c.Source = SourceReplay }, "replay.session"},
		{"record without db", func(c *Config) { c.Record = true; c.DB = "" }, "db path"},
		{"zero fps", func(c *Config) { c.Camera.FPS = 0 }, "camera.fps"},
		{"bad bridge", func(c *Config) { c.BridgeURL = "http://host" }, "ws://"},
		{"negative speed", func(c *Config) { c.Replay.Speed = -1 }, "replay.speed"},
		{"remote without listen", func(c *Config) { c.Source = SourceRemote; c.Listen = "" }, "listen address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Source = "nope"
	cfg.Replay.Speed = -2
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown source") || !strings.Contains(err.Error(), "replay.speed") {
		t.Errorf("Validate() = %v, want both problems", err)
	}
}
