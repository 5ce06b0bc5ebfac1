// Package detection finds faces and their five facial landmarks in camera
// frames.
package detection

import (
	"errors"
	"math"
)

// ErrModelNotFound is returned when the detector's model file is missing.
var ErrModelNotFound = errors.New("detection: model file not found")

// Point is a normalized image coordinate (0-1, origin top left).
type Point struct {
	X, Y float64
}

// Landmark indexes the five YuNet facial landmarks. Right and left are the
// subject's, so RightEye appears on the left of an unmirrored image.
type Landmark int

const (
	RightEye Landmark = iota
	LeftEye
	NoseTip
	RightMouth
	LeftMouth

	NumLandmarks = 5
)

// Landmarks holds one point per Landmark.
type Landmarks [NumLandmarks]Point

// Detection represents a detected face
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
	Landmarks  Landmarks
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// HasLandmarks reports whether the eyes are distinct points. Detectors that
// only produce boxes leave every landmark at zero.
func (d Detection) HasLandmarks() bool {
	return d.EyeDistance() > 0
}

// EyeDistance returns the distance between the eye landmarks in normalized
// units, with x scaled by aspect (width/height) so the result is isotropic.
func (d Detection) EyeDistance() float64 {
	return d.EyeDistanceAspect(1)
}

// EyeDistanceAspect is EyeDistance for a non-square image.
func (d Detection) EyeDistanceAspect(aspect float64) float64 {
	r, l := d.Landmarks[RightEye], d.Landmarks[LeftEye]
	return math.Hypot((l.X-r.X)*aspect, l.Y-r.Y)
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in a JPEG image and returns their positions
	Detect(jpeg []byte) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.6)
	NMSThresh        float64 // Non-maximum suppression threshold
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet_2023mar.onnx",
		ConfidenceThresh: 0.6,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// SelectBest picks the face to track from multiple detections.
// Score is confidence * 0.7 + relative area * 0.3.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		rel := 0.0
		if maxArea > 0 {
			rel = dets[i].Area() / maxArea
		}
		score := dets[i].Confidence*0.7 + rel*0.3
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}
