package detection

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestDetection_Geometry(t *testing.T) {
	tests := []struct {
		name   string
		det    Detection
		center [2]float64
		area   float64
	}{
		{"centered half", Detection{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}, [2]float64{0.5, 0.5}, 0.25},
		{"top left", Detection{W: 0.2, H: 0.2}, [2]float64{0.1, 0.1}, 0.04},
		{"tall box", Detection{X: 0.6, Y: 0.1, W: 0.1, H: 0.4}, [2]float64{0.65, 0.3}, 0.04},
		{"full frame", Detection{W: 1, H: 1}, [2]float64{0.5, 0.5}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.det.Center()
			if diff := cmp.Diff(tc.center, [2]float64{x, y}, approx); diff != "" {
				t.Errorf("Center() mismatch (-want +got):\n%s", diff)
			}
			if got := tc.det.Area(); math.Abs(got-tc.area) > 1e-9 {
				t.Errorf("Area() = %v, want %v", got, tc.area)
			}
		})
	}
}

func TestDetection_Landmarks(t *testing.T) {
	boxOnly := Detection{X: 0.2, Y: 0.2, W: 0.3, H: 0.3, Confidence: 0.9}
	if boxOnly.HasLandmarks() {
		t.Error("HasLandmarks: box-only detection should report false")
	}

	d := boxOnly
	d.Landmarks[RightEye] = Point{X: 0.30, Y: 0.30}
	d.Landmarks[LeftEye] = Point{X: 0.40, Y: 0.30}
	if !d.HasLandmarks() {
		t.Error("HasLandmarks: expected true with distinct eyes")
	}

	if got := d.EyeDistance(); math.Abs(got-0.1) > 1e-4 {
		t.Errorf("EyeDistance: got %.4f, want 0.1", got)
	}

	// 16:9 frame stretches horizontal distances
	if got := d.EyeDistanceAspect(16.0 / 9.0); math.Abs(got-0.1778) > 1e-4 {
		t.Errorf("EyeDistanceAspect: got %.4f, want 0.1778", got)
	}

	tilted := d
	tilted.Landmarks[LeftEye] = Point{X: 0.36, Y: 0.38}
	if got := tilted.EyeDistance(); math.Abs(got-0.1) > 1e-4 {
		t.Errorf("EyeDistance tilted: got %.4f, want 0.1", got)
	}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name string
		dets []Detection
		want int // index into dets, -1 for none
	}{
		{"none", nil, -1},
		{"one", []Detection{{W: 0.1, H: 0.1, Confidence: 0.3}}, 0},
		{
			// 0.95*0.7 + 0.25*0.3 beats 0.5*0.7 + 1*0.3
			name: "confident small face wins",
			dets: []Detection{
				{W: 0.4, H: 0.4, Confidence: 0.5},
				{X: 0.3, Y: 0.3, W: 0.2, H: 0.2, Confidence: 0.95},
			},
			want: 1,
		},
		{
			name: "equal confidence prefers nearer face",
			dets: []Detection{
				{X: 0.3, Y: 0.3, W: 0.1, H: 0.1, Confidence: 0.8},
				{W: 0.5, H: 0.5, Confidence: 0.8},
			},
			want: 1,
		},
		{
			name: "degenerate boxes fall back to confidence",
			dets: []Detection{{Confidence: 0.4}, {Confidence: 0.8}},
			want: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectBest(tc.dets)
			if tc.want < 0 {
				if got != nil {
					t.Fatalf("SelectBest() = %+v, want nil", got)
				}
				return
			}
			if got != &tc.dets[tc.want] {
				t.Errorf("SelectBest() = %+v, want dets[%d] %+v", got, tc.want, tc.dets[tc.want])
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		t.Errorf("input size = %dx%d, want positive", cfg.InputWidth, cfg.InputHeight)
	}
	if cfg.ConfidenceThresh <= 0 || cfg.ConfidenceThresh >= 1 {
		t.Errorf("ConfidenceThresh = %v, want in (0, 1)", cfg.ConfidenceThresh)
	}
	if cfg.ModelPath == "" {
		t.Error("ModelPath is empty")
	}
}
