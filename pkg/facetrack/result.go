// Package facetrack relays face-tracking results to a listener.
//
// A tracker Resource produces one Result per camera frame. The Dispatcher
// flattens tracked results into a value vector (external blendshapes, then
// the six head-pose sliders from package pose) and calls the listener on a
// designated Executor. The Controller owns the Resource's lifecycle.
//
// Listener ordering: OnBlendShapeNames is delivered exactly once per
// tracker, strictly before any OnBlendShapeValues. Names and values are
// zipped positionally by consumers.
package facetrack

import (
	"time"

	"github.com/teslashibe/go-mocap/pkg/pose"
)

// Blendshape is one named facial deformation coefficient.
type Blendshape struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Result is the outcome of tracking one frame: Tracked or Lost.
// A nil Result is treated as Lost.
type Result interface {
	isResult()
}

// Tracked carries the tracker's blendshapes and head rotation for a frame.
type Tracked struct {
	Blendshapes []Blendshape
	Rotation    pose.Quaternion
}

// Lost signals that no face was tracked in the frame.
type Lost struct{}

func (Tracked) isResult() {}
func (Lost) isResult()    {}

// BlendshapeNames returns the names in tracker order.
func (t Tracked) BlendshapeNames() []string {
	names := make([]string, len(t.Blendshapes))
	for i, b := range t.Blendshapes {
		names[i] = b.Name
	}
	return names
}

// Sliders returns the head-pose coefficients for the frame's rotation.
func (t Tracked) Sliders() pose.Sliders {
	return pose.RotationToSliders(t.Rotation)
}

// Values returns the blendshape values followed by the six sliders.
func (t Tracked) Values() []float64 {
	values := make([]float64, 0, len(t.Blendshapes)+pose.NumSliders)
	for _, b := range t.Blendshapes {
		values = append(values, b.Value)
	}
	return t.Sliders().AppendTo(values)
}

// IsTracked reports whether r carries tracking data.
func IsTracked(r Result) bool {
	_, ok := r.(Tracked)
	return ok
}

// Frame describes the camera image a Result was computed from.
// The image itself stays inside the tracker resource.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
}
