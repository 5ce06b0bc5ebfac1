package pose

import "math"

// Slider identifies one of the six head-pose coefficients.
type Slider int

// Slider order is part of the listener contract: names and values are
// zipped positionally, so never reorder these.
const (
	HeadLeft Slider = iota
	HeadRight
	HeadUp
	HeadDown
	HeadRollLeft
	HeadRollRight

	NumSliders = 6
)

var sliderNames = [NumSliders]string{
	HeadLeft:      "headLeft",
	HeadRight:     "headRight",
	HeadUp:        "headUp",
	HeadDown:      "headDown",
	HeadRollLeft:  "headRollLeft",
	HeadRollRight: "headRollRight",
}

// quarterTurn is the rotation that maps to a coefficient of 1.0.
const quarterTurn = math.Pi / 2

func (s Slider) String() string {
	if s < 0 || int(s) >= NumSliders {
		return "unknown"
	}
	return sliderNames[s]
}

// SliderNames returns the six slider keys in dispatch order.
func SliderNames() []string {
	names := make([]string, NumSliders)
	copy(names, sliderNames[:])
	return names
}

// Sliders holds the six coefficients indexed by Slider.
type Sliders [NumSliders]float64

// RotationToSliders splits each Euler axis of q into two non-negative
// coefficients, normalized so a quarter turn reads 1.0. Values are not
// capped at 1.0: rotations past 90° read larger.
func RotationToSliders(q Quaternion) Sliders {
	return EulerToSliders(q.ToEuler())
}

// EulerToSliders is RotationToSliders for angles already extracted.
func EulerToSliders(e Euler) Sliders {
	var s Sliders
	s[HeadLeft] = math.Max(0, e.Yaw) / quarterTurn
	s[HeadRight] = math.Max(0, -e.Yaw) / quarterTurn
	s[HeadUp] = math.Max(0, -e.Pitch) / quarterTurn
	s[HeadDown] = math.Max(0, e.Pitch) / quarterTurn
	s[HeadRollLeft] = math.Max(0, -e.Roll) / quarterTurn
	s[HeadRollRight] = math.Max(0, e.Roll) / quarterTurn
	return s
}

// Values returns the coefficients in dispatch order.
func (s Sliders) Values() []float64 {
	out := make([]float64, NumSliders)
	copy(out, s[:])
	return out
}

// AppendTo appends the coefficients to dst in dispatch order.
func (s Sliders) AppendTo(dst []float64) []float64 {
	return append(dst, s[:]...)
}

// Get looks up a coefficient by its key.
func (s Sliders) Get(name string) (float64, bool) {
	for i, n := range sliderNames {
		if n == name {
			return s[i], true
		}
	}
	return 0, false
}

// Map returns the coefficients keyed by name.
func (s Sliders) Map() map[string]float64 {
	m := make(map[string]float64, NumSliders)
	for i, n := range sliderNames {
		m[n] = s[i]
	}
	return m
}
