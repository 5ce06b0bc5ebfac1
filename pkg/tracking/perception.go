// Package tracking is the local webcam tracker: it grabs camera frames,
// finds the face with YuNet and turns its landmarks into a head rotation.
package tracking

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/teslashibe/go-mocap/pkg/debug"
	"github.com/teslashibe/go-mocap/pkg/facetrack"
	"github.com/teslashibe/go-mocap/pkg/pose"
	"github.com/teslashibe/go-mocap/pkg/tracking/detection"
)

// ErrNoLandmarks is returned when a detection has no usable eye landmarks.
var ErrNoLandmarks = errors.New("tracking: detection has no landmarks")

type vec struct{ x, y float64 }

func (a vec) sub(b vec) vec { return vec{a.x - b.x, a.y - b.y} }

func (a vec) len() float64 { return math.Hypot(a.x, a.y) }

func (a vec) rotate(theta float64) vec {
	s, c := math.Sincos(theta)
	return vec{a.x*c - a.y*s, a.x*s + a.y*c}
}

func mid(a, b vec) vec { return vec{(a.x + b.x) / 2, (a.y + b.y) / 2} }

// EstimatePose derives head angles from the five face landmarks.
//
// aspect is width/height of the frame the landmarks were normalized against.
// Positive yaw turns toward the subject's left, positive pitch looks down and
// positive roll tilts toward the subject's right shoulder.
func EstimatePose(det detection.Detection, aspect float64, cfg Config) (pose.Euler, error) {
	if !det.HasLandmarks() {
		return pose.Euler{}, ErrNoLandmarks
	}
	if aspect <= 0 {
		aspect = 1
	}

	pt := func(l detection.Landmark) vec {
		p := det.Landmarks[l]
		return vec{p.X * aspect, p.Y}
	}
	rightEye, leftEye, nose := pt(detection.RightEye), pt(detection.LeftEye), pt(detection.NoseTip)
	eyes := mid(rightEye, leftEye)
	mouth := mid(pt(detection.RightMouth), pt(detection.LeftMouth))

	axis := leftEye.sub(rightEye)
	eyeDist := axis.len()
	if eyeDist < 1e-6 {
		return pose.Euler{}, ErrNoLandmarks
	}

	// Image y points down, so tilt is clockwise on screen.
	tilt := math.Atan2(axis.y, axis.x)

	// Face-aligned coordinates: x along the eye line, y toward the mouth.
	n := nose.sub(eyes).rotate(-tilt)
	m := mouth.sub(eyes).rotate(-tilt)

	depth := cfg.NoseDepth * eyeDist
	e := pose.Euler{
		Yaw:  math.Atan2(n.x, depth),
		Roll: -tilt,
	}
	if m.y > 1e-6 {
		e.Pitch = math.Atan2(n.y-cfg.NeutralNoseRatio*m.y, depth)
	}

	if cfg.Mirrored {
		e.Yaw, e.Roll = -e.Yaw, -e.Roll
	}

	e.Yaw *= cfg.YawGain
	e.Pitch *= cfg.PitchGain
	e.Roll *= cfg.RollGain
	return limit(e), nil
}

// Perception turns camera frames into tracking results.
// It owns smoothing and the short hold over missed detections.
type Perception struct {
	detector detection.Detector

	mu     sync.Mutex
	config Config

	// Smoothing
	smoothed pose.Quaternion
	hasLast  bool

	// Detection state
	consecutiveMisses int
}

// NewPerception creates a new perception system
func NewPerception(config Config, detector detection.Detector) *Perception {
	return &Perception{
		detector: detector,
		config:   config,
		smoothed: pose.Identity,
	}
}

// Config returns the current configuration.
func (p *Perception) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// SetConfig swaps the configuration without resetting smoothing state.
func (p *Perception) SetConfig(cfg Config) {
	p.mu.Lock()
	p.config = cfg
	p.mu.Unlock()
}

// Reset forgets the last pose, e.g. after the camera was stopped.
func (p *Perception) Reset() {
	p.mu.Lock()
	p.hasLast = false
	p.smoothed = pose.Identity
	p.consecutiveMisses = 0
	p.mu.Unlock()
}

// Process detects the face in one JPEG frame and returns the result to report.
func (p *Perception) Process(jpeg []byte, width, height int) (facetrack.Result, error) {
	dets, err := p.detector.Detect(jpeg)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	aspect := 1.0
	if width > 0 && height > 0 {
		aspect = float64(width) / float64(height)
	}
	return p.Observe(dets, aspect), nil
}

// Observe folds one frame's detections into the tracking state.
func (p *Perception) Observe(dets []detection.Detection, aspect float64) facetrack.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg := p.config

	usable := dets[:0:0]
	for _, d := range dets {
		if d.Confidence >= cfg.MinConfidence && d.HasLandmarks() {
			usable = append(usable, d)
		}
	}

	best := detection.SelectBest(usable)
	if best == nil {
		return p.miss(cfg)
	}

	e, err := EstimatePose(*best, aspect, cfg)
	if err != nil {
		return p.miss(cfg)
	}
	q := e.Quaternion()

	if p.hasLast {
		q = pose.Slerp(p.smoothed, q, cfg.Smoothing)
	}
	p.smoothed = q
	p.hasLast = true
	p.consecutiveMisses = 0

	debug.FrameLog("face conf=%.2f yaw=%.1f° pitch=%.1f° roll=%.1f°\n",
		best.Confidence, pose.Degrees(e.Yaw), pose.Degrees(e.Pitch), pose.Degrees(e.Roll))

	return facetrack.Tracked{Rotation: q}
}

func (p *Perception) miss(cfg Config) facetrack.Result {
	p.consecutiveMisses++
	if p.hasLast && p.consecutiveMisses <= cfg.HoldFrames {
		return facetrack.Tracked{Rotation: p.smoothed}
	}
	p.hasLast = false
	return facetrack.Lost{}
}

// ConsecutiveMisses returns how many frames in a row had no usable face.
func (p *Perception) ConsecutiveMisses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutiveMisses
}
