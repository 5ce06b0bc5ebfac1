package tracking

import (
	"math"

	"github.com/teslashibe/go-mocap/pkg/pose"
)

// Estimation limits. Five landmarks stop being reliable well before a face
// turns side-on, so estimates are clamped to these ranges.
const (
	// MaxYaw is the largest head turn reported (±75°).
	MaxYaw = 75.0 * math.Pi / 180.0

	// MaxPitch is the largest nod reported (±60°).
	MaxPitch = 60.0 * math.Pi / 180.0

	// MaxRoll is the largest head tilt reported (±80°).
	MaxRoll = 80.0 * math.Pi / 180.0
)

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// limit clamps each angle to its estimation range.
func limit(e pose.Euler) pose.Euler {
	return pose.Euler{
		Pitch: clamp(e.Pitch, -MaxPitch, MaxPitch),
		Yaw:   clamp(e.Yaw, -MaxYaw, MaxYaw),
		Roll:  clamp(e.Roll, -MaxRoll, MaxRoll),
	}
}
