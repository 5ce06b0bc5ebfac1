package tracking

import (
	"fmt"
	"time"
)

// Config holds all tunable parameters for the webcam tracker
type Config struct {
	// Timing
	FrameInterval time.Duration // How often to grab and process a frame

	// Detection
	MinConfidence float64 // Ignore faces below this detector score
	HoldFrames    int     // Misses reported as the last pose before going Lost

	// Smoothing
	Smoothing float64 // Slerp weight of each new reading (0-1, 1 = raw)

	// Face geometry, in inter-ocular distances
	NoseDepth        float64 // Nose tip distance in front of the eye plane
	NeutralNoseRatio float64 // Nose position between eye line (0) and mouth line (1) when level

	// Per-axis gains applied after estimation
	YawGain   float64
	PitchGain float64
	RollGain  float64

	// Mirrored is set when the camera flips frames horizontally.
	Mirrored bool

	// BlendshapeNames is what the tracker announces once per session. The
	// landmark estimator produces head rotation only, so this is empty.
	BlendshapeNames []string
}

// DefaultConfig returns the recommended configuration for 30 FPS capture
func DefaultConfig() Config {
	return Config{
		FrameInterval: 33 * time.Millisecond,

		MinConfidence: 0.6,
		HoldFrames:    3, // ~100 ms of missed detections

		Smoothing: 0.5,

		NoseDepth:        0.6,
		NeutralNoseRatio: 0.55,

		YawGain:   1.0,
		PitchGain: 1.0,
		RollGain:  1.0,

		BlendshapeNames: []string{},
	}
}

// SmoothConfig trades latency for a steadier pose
func SmoothConfig() Config {
	cfg := DefaultConfig()
	cfg.Smoothing = 0.25
	cfg.HoldFrames = 8
	return cfg
}

// ResponsiveConfig reports raw estimates at 60 FPS
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.FrameInterval = 16 * time.Millisecond
	cfg.Smoothing = 0.9
	cfg.HoldFrames = 1
	return cfg
}

// WithFPS returns a copy of c processing fps frames per second.
func (c Config) WithFPS(fps int) Config {
	if fps > 0 {
		c.FrameInterval = time.Second / time.Duration(fps)
	}
	return c
}

// Validate returns a list of problems, or nil if the config is usable.
func (c Config) Validate() []string {
	var errs []string
	if c.FrameInterval <= 0 {
		errs = append(errs, "frame interval must be positive")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, "min confidence must be between 0 and 1")
	}
	if c.HoldFrames < 0 {
		errs = append(errs, "hold frames must not be negative")
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		errs = append(errs, "smoothing must be in (0, 1]")
	}
	if c.NoseDepth <= 0 {
		errs = append(errs, "nose depth must be positive")
	}
	if c.NeutralNoseRatio <= 0 || c.NeutralNoseRatio >= 1 {
		errs = append(errs, fmt.Sprintf("neutral nose ratio %.2f must be in (0, 1)", c.NeutralNoseRatio))
	}
	return errs
}
