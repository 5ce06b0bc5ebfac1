package facetrack

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/teslashibe/go-mocap/pkg/pose"
)

func TestDispatcher_TrackedFrame(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, nil, nil)
	d.DeliverNames([]string{"jawOpen", "eyeBlinkLeft"})

	rot := pose.FromEuler(0, math.Pi/2, 0)
	d.Dispatch(Frame{Seq: 1}, Tracked{
		Blendshapes: []Blendshape{{"jawOpen", 0.4}, {"eyeBlinkLeft", 0.9}},
		Rotation:    rot,
	})

	events := rec.snapshot()
	if diff := cmp.Diff([]string{"names", "values", "rotation"}, rec.kinds()); diff != "" {
		t.Fatalf("call order mismatch (-want +got):\n%s", diff)
	}

	values := events[1].values
	if len(values) != 2+pose.NumSliders {
		t.Fatalf("len(values) = %d, want %d", len(values), 2+pose.NumSliders)
	}
	if values[0] != 0.4 || values[1] != 0.9 {
		t.Errorf("external values = %v, want [0.4 0.9]", values[:2])
	}
	if math.Abs(values[2+int(pose.HeadLeft)]-1) > 1e-9 {
		t.Errorf("headLeft = %v, want 1", values[2+int(pose.HeadLeft)])
	}

	want := [4]float64{rot.X, rot.Y, rot.Z, rot.W}
	if events[2].rot != want {
		t.Errorf("rotation = %v, want %v", events[2].rot, want)
	}
}

func TestDispatcher_LostFrame(t *testing.T) {
	tests := []struct {
		name   string
		result Result
	}{
		{"lost", Lost{}},
		{"nil", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			d := NewDispatcher(rec, nil, nil)
			d.DeliverNames(nil)
			d.Dispatch(Frame{}, tt.result)

			events := rec.snapshot()
			if len(events) != 2 {
				t.Fatalf("got %d events, want 2: %v", len(events), rec.kinds())
			}
			if events[1].kind != "values" {
				t.Fatalf("second event = %s, want values", events[1].kind)
			}
			if events[1].values == nil {
				t.Error("lost frame values must be empty, not nil")
			}
			if len(events[1].values) != 0 {
				t.Errorf("lost frame values = %v, want empty", events[1].values)
			}
			if rec.count("rotation") != 0 {
				t.Error("lost frame must not produce a rotation callback")
			}
		})
	}
}

func TestDispatcher_NamesIncludeSliders(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, nil, nil)
	d.DeliverNames([]string{"mouthSmile"})

	want := append([]string{"mouthSmile"}, pose.SliderNames()...)
	events := rec.snapshot()
	if diff := cmp.Diff(want, events[0].names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, d.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcher_NamesDeliveredOnce(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.DeliverNames([]string{"a", "b"})
		}()
	}
	wg.Wait()
	d.DeliverNames([]string{"different"})

	if n := rec.count("names"); n != 1 {
		t.Errorf("names delivered %d times, want 1", n)
	}
	if got := d.Names(); len(got) != 2+pose.NumSliders {
		t.Errorf("Names() changed after a later delivery: %v", got)
	}
}

func TestDispatcher_FramesBeforeNamesDropped(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, nil, nil)

	d.Dispatch(Frame{Seq: 1}, Tracked{Rotation: pose.Identity})
	d.Dispatch(Frame{Seq: 2}, Lost{})
	if len(rec.snapshot()) != 0 {
		t.Fatalf("listener called before names: %v", rec.kinds())
	}
	if got := d.Stats().DroppedBeforeNames; got != 2 {
		t.Errorf("DroppedBeforeNames = %d, want 2", got)
	}

	d.DeliverNames(nil)
	d.Dispatch(Frame{Seq: 3}, Tracked{Rotation: pose.Identity})
	if diff := cmp.Diff([]string{"names", "values", "rotation"}, rec.kinds()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcher_ValueLengthMatchesNames(t *testing.T) {
	for _, n := range []int{0, 1, 52} {
		rec := &recorder{}
		d := NewDispatcher(rec, nil, nil)
		d.DeliverNames(Tracked{Blendshapes: shapes(n)}.BlendshapeNames())
		d.Dispatch(Frame{}, Tracked{Blendshapes: shapes(n), Rotation: pose.Identity})

		events := rec.snapshot()
		if len(events[1].values) != len(events[0].names) {
			t.Errorf("n=%d: %d values for %d names", n, len(events[1].values), len(events[0].names))
		}
		if len(events[1].values) != n+pose.NumSliders {
			t.Errorf("n=%d: len(values) = %d, want %d", n, len(events[1].values), n+pose.NumSliders)
		}
	}
}

func TestDispatcher_ShapeMismatchCounted(t *testing.T) {
	d := NewDispatcher(&recorder{}, nil, nil)
	d.DeliverNames([]string{"a", "b", "c"})
	d.Dispatch(Frame{}, Tracked{Blendshapes: shapes(2), Rotation: pose.Identity})

	s := d.Stats()
	if s.ShapeMismatches != 1 || s.Tracked != 1 {
		t.Errorf("stats = %+v, want 1 mismatch and 1 tracked", s)
	}
}

func TestDispatcher_Close(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, nil, nil)
	d.DeliverNames(nil)
	d.Close()
	d.Dispatch(Frame{}, Lost{})

	if rec.count("values") != 0 {
		t.Error("closed dispatcher should not deliver values")
	}
	if !d.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestDispatcher_Stats(t *testing.T) {
	d := NewDispatcher(&recorder{}, nil, nil)
	d.DeliverNames([]string{"x"})
	d.Dispatch(Frame{}, Tracked{Blendshapes: shapes(1), Rotation: pose.Identity})
	d.Dispatch(Frame{}, Lost{})
	d.Dispatch(Frame{}, nil)

	want := Stats{Tracked: 1, Lost: 2, NamesDelivered: true, NameCount: 1 + pose.NumSliders}
	if diff := cmp.Diff(want, d.Stats()); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}
