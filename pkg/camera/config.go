// Package camera captures webcam frames for the local face tracker and holds
// the runtime-configurable capture settings.
package camera

import "fmt"

// Config holds all camera configuration parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	Device int `json:"device"` // OpenCV device index

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100

	// Mirror flips frames horizontally so the preview behaves like a mirror.
	// Head yaw is estimated on the flipped image, so keep this off when the
	// host expects camera-space rotation.
	Mirror bool `json:"mirror"`

	// === Exposure ===
	// Brightness is passed to the driver (-1.0 to +1.0, 0 = driver default).
	Brightness float64 `json:"brightness"`

	// Exposure is a driver-specific manual exposure value. 0 = auto.
	Exposure float64 `json:"exposure"`

	// === Digital Zoom ===
	// ZoomLevel crops the frame center (1.0 to 4.0).
	ZoomLevel float64 `json:"zoom_level"`
}

// Capture limits
const (
	MinWidth  = 160
	MinHeight = 120
	MaxWidth  = 3840
	MaxHeight = 2160
	MaxFPS    = 120
	MaxZoom   = 4.0
)

// DefaultConfig returns 640x480 at 30 FPS, enough for landmark head pose.
func DefaultConfig() Config {
	return Config{
		Device:     0,
		Width:      640,
		Height:     480,
		Framerate:  30,
		Quality:    85,
		Brightness: 0,
		Exposure:   0, // Auto
		ZoomLevel:  1.0,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	if c.Device < 0 {
		errs = append(errs, "device must not be negative")
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errs = append(errs, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errs = append(errs, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFPS {
		errs = append(errs, fmt.Sprintf("framerate must be between 1 and %d", MaxFPS))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, "quality must be between 1 and 100")
	}
	if c.Brightness < -1.0 || c.Brightness > 1.0 {
		errs = append(errs, "brightness must be between -1.0 and 1.0")
	}
	if c.Exposure < 0 {
		errs = append(errs, "exposure must be 0 (auto) or positive")
	}
	if c.ZoomLevel < 1.0 || c.ZoomLevel > MaxZoom {
		errs = append(errs, "zoom_level must be between 1.0 and 4.0")
	}

	return errs
}

// Aspect returns width / height, or 1 for a degenerate config.
func (c Config) Aspect() float64 {
	if c.Width <= 0 || c.Height <= 0 {
		return 1
	}
	return float64(c.Width) / float64(c.Height)
}

// Capabilities describes the configurable ranges for the dashboard.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"min_width":  MinWidth,
		"min_height": MinHeight,
		"max_width":  MaxWidth,
		"max_height": MaxHeight,
		"max_fps":    MaxFPS,
		"max_zoom":   MaxZoom,
		"presets":    PresetNames(),
	}
}
