package facetrack

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-mocap/pkg/debug"
	"github.com/teslashibe/go-mocap/pkg/pose"
)

// Stats counts what the dispatcher has seen.
type Stats struct {
	Tracked            uint64 `json:"tracked"`
	Lost               uint64 `json:"lost"`
	DroppedBeforeNames uint64 `json:"dropped_before_names"`
	ShapeMismatches    uint64 `json:"shape_mismatches"`
	NamesDelivered     bool   `json:"names_delivered"`
	NameCount          int    `json:"name_count"`
}

// Dispatcher turns tracker results into listener callbacks.
// Dispatch and DeliverNames may be called from any goroutine; the listener
// only ever runs on the executor.
type Dispatcher struct {
	listener Listener
	exec     Executor
	logger   *slog.Logger

	namesOnce  sync.Once
	namesReady atomic.Bool
	names      []string
	external   []string
	closed     atomic.Bool

	tracked         atomic.Uint64
	lost            atomic.Uint64
	droppedEarly    atomic.Uint64
	shapeMismatches atomic.Uint64
}

// NewDispatcher creates a dispatcher delivering to l via exec.
// A nil exec runs callbacks inline; a nil logger uses slog.Default.
func NewDispatcher(l Listener, exec Executor, logger *slog.Logger) *Dispatcher {
	if exec == nil {
		exec = Inline{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		listener: l,
		exec:     exec,
		logger:   logger.With("component", "facetrack.dispatcher"),
	}
}

// DeliverNames sends the combined name list (external names, then the six
// slider names) to the listener. Only the first call has any effect.
func (d *Dispatcher) DeliverNames(external []string) {
	if d.closed.Load() {
		return
	}

	first := false
	d.namesOnce.Do(func() {
		first = true
		d.external = slices.Clone(external)
		names := make([]string, 0, len(external)+pose.NumSliders)
		names = append(names, external...)
		names = append(names, pose.SliderNames()...)
		d.names = names

		out := slices.Clone(names)
		d.exec.Post(func() { d.listener.OnBlendShapeNames(out) })
		d.namesReady.Store(true)

		d.logger.Info("blendshape names delivered",
			"external", len(external),
			"total", len(names),
		)
	})

	if !first && !slices.Equal(external, d.external) {
		d.logger.Warn("ignoring changed blendshape names",
			"delivered", len(d.external),
			"received", len(external),
		)
	}
}

// Names returns the delivered name list, or nil before delivery.
func (d *Dispatcher) Names() []string {
	if !d.namesReady.Load() {
		return nil
	}
	return slices.Clone(d.names)
}

// Dispatch relays one frame result. Tracked frames produce a value vector
// and a rotation callback; Lost (or nil) frames produce an empty vector.
// Frames arriving before the names are dropped.
func (d *Dispatcher) Dispatch(frame Frame, r Result) {
	if d.closed.Load() {
		return
	}
	if !d.namesReady.Load() {
		d.droppedEarly.Add(1)
		debug.FrameLog("frame %d dropped: names not yet delivered\n", frame.Seq)
		return
	}

	tracked, ok := r.(Tracked)
	if !ok {
		d.lost.Add(1)
		debug.FrameLog("frame %d lost\n", frame.Seq)
		d.exec.Post(func() { d.listener.OnBlendShapeValues([]float64{}) })
		return
	}

	d.tracked.Add(1)
	if len(tracked.Blendshapes) != len(d.external) {
		d.shapeMismatches.Add(1)
		debug.FrameLog("frame %d has %d blendshapes, names list has %d\n",
			frame.Seq, len(tracked.Blendshapes), len(d.external))
	}

	values := tracked.Values()
	x, y, z, w := tracked.Rotation.XYZW()
	debug.FrameLog("frame %d tracked: %d values, rot=%v\n", frame.Seq, len(values), tracked.Rotation)

	d.exec.Post(func() {
		d.listener.OnBlendShapeValues(values)
		d.listener.OnHeadRotation(x, y, z, w)
	})
}

// Close stops all further delivery.
func (d *Dispatcher) Close() {
	d.closed.Store(true)
}

// Closed reports whether Close was called.
func (d *Dispatcher) Closed() bool {
	return d.closed.Load()
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Tracked:            d.tracked.Load(),
		Lost:               d.lost.Load(),
		DroppedBeforeNames: d.droppedEarly.Load(),
		ShapeMismatches:    d.shapeMismatches.Load(),
		NamesDelivered:     d.namesReady.Load(),
	}
	if s.NamesDelivered {
		s.NameCount = len(d.names)
	}
	return s
}
