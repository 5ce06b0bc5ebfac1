package remote

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-mocap/pkg/facetrack"
	"github.com/teslashibe/go-mocap/pkg/protocol"
)

// Tracker is the facetrack.Resource backed by an Endpoint's forwarded
// producer. While stopped, incoming frames are discarded and producers are
// asked to stop streaming.
type Tracker struct {
	endpoint *Endpoint
	hooks    facetrack.Hooks

	paused   atomic.Bool
	closed   atomic.Bool
	named    sync.Once
	localSeq atomic.Uint64
}

// Stop pauses frame delivery.
func (t *Tracker) Stop() error {
	if t.closed.Load() || t.paused.Swap(true) {
		return nil
	}
	t.endpoint.broadcastControl(protocol.ActionStop)
	return nil
}

// Restart resumes frame delivery.
func (t *Tracker) Restart() error {
	if t.closed.Load() || !t.paused.Swap(false) {
		return nil
	}
	t.endpoint.broadcastControl(protocol.ActionRestart)
	return nil
}

// Close detaches from the endpoint. Producers stay connected for the next
// tracker.
func (t *Tracker) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.endpoint.detach(t)
	return nil
}

// Paused reports whether Stop is in effect.
func (t *Tracker) Paused() bool {
	return t.paused.Load()
}

func (t *Tracker) announce(names []string) {
	t.named.Do(func() {
		if t.hooks.OnBlendshapeNames != nil {
			t.hooks.OnBlendshapeNames(slices.Clone(names))
		}
	})
}

// deliver reports one frame and returns false if it was discarded.
func (t *Tracker) deliver(seq uint64, w, h int, r facetrack.Result) bool {
	if t.closed.Load() || t.paused.Load() || t.hooks.OnFrame == nil {
		return false
	}
	local := t.localSeq.Add(1)
	if seq == 0 {
		seq = local
	}
	t.hooks.OnFrame(facetrack.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     w,
		Height:    h,
	}, r)
	return true
}
