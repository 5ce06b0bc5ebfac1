package facetrack

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// event is one recorded listener call.
type event struct {
	kind   string
	names  []string
	values []float64
	rot    [4]float64
	active bool
}

// recorder is a Listener that logs every call in order.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) OnActivate(a bool) { r.add(event{kind: "activate", active: a}) }

func (r *recorder) OnBlendShapeNames(n []string) { r.add(event{kind: "names", names: n}) }

func (r *recorder) OnBlendShapeValues(v []float64) { r.add(event{kind: "values", values: v}) }

func (r *recorder) OnHeadRotation(x, y, z, w float64) {
	r.add(event{kind: "rotation", rot: [4]float64{x, y, z, w}})
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) kinds() []string {
	var out []string
	for _, e := range r.snapshot() {
		out = append(out, e.kind)
	}
	return out
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, e := range r.snapshot() {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// fakeResource records lifecycle calls.
type fakeResource struct {
	mu       sync.Mutex
	hooks    Hooks
	calls    []string
	stopErr  error
	closeErr error
}

func (f *fakeResource) record(c string) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeResource) Stop() error    { f.record("stop"); return f.stopErr }
func (f *fakeResource) Restart() error { f.record("restart"); return nil }
func (f *fakeResource) Close() error   { f.record("close"); return f.closeErr }

func (f *fakeResource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeFactory hands out fakeResources and counts allocations.
type fakeFactory struct {
	mu        sync.Mutex
	allocated []*fakeResource
	err       error
	// gate, if set, blocks the factory until closed
	gate chan struct{}
	// entered is closed when the factory starts, if set
	entered chan struct{}
}

func (ff *fakeFactory) New(ctx context.Context, hooks Hooks) (Resource, error) {
	if ff.entered != nil {
		close(ff.entered)
	}
	if ff.gate != nil {
		<-ff.gate
	}
	if ff.err != nil {
		return nil, ff.err
	}
	r := &fakeResource{hooks: hooks}
	ff.mu.Lock()
	ff.allocated = append(ff.allocated, r)
	ff.mu.Unlock()
	return r, nil
}

func (ff *fakeFactory) Count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.allocated)
}

func (ff *fakeFactory) Last() *fakeResource {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.allocated) == 0 {
		return nil
	}
	return ff.allocated[len(ff.allocated)-1]
}

var errCamera = errors.New("camera busy")

func shapes(n int) []Blendshape {
	out := make([]Blendshape, n)
	for i := range out {
		out[i] = Blendshape{Name: fmt.Sprintf("shape%d", i), Value: float64(i) / 10}
	}
	return out
}
