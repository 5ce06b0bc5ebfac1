package recording

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-mocap/pkg/pose"
)

// DefaultBatchSize is how many frames the Recorder buffers per transaction.
const DefaultBatchSize = 30

// RecorderStats counts recorder activity.
type RecorderStats struct {
	Sessions   uint64 `json:"sessions"`
	Frames     uint64 `json:"frames"`
	WriteFails uint64 `json:"write_fails"`
	SessionID  string `json:"session_id,omitempty"`
}

// Recorder is a facetrack.Listener that writes every delivered frame to a
// Store. Each names callback opens a new session. Listener callbacks are
// serialized by the dispatcher's executor; the mutex covers Close and Stats
// from other goroutines.
type Recorder struct {
	store     *Store
	source    string
	batchSize int
	logger    *slog.Logger

	mu       sync.Mutex
	session  string
	external int
	started  time.Time
	seq      uint64
	pending  []Frame
	values   []float64 // tracked values awaiting their rotation
	awaiting bool

	sessions   atomic.Uint64
	frames     atomic.Uint64
	writeFails atomic.Uint64
}

// NewRecorder creates a recorder tagging sessions with source.
func NewRecorder(store *Store, source string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:     store,
		source:    source,
		batchSize: DefaultBatchSize,
		logger:    logger.With("component", "recording.recorder"),
	}
}

// SetBatchSize changes how many frames are written per transaction.
func (r *Recorder) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	r.mu.Lock()
	r.batchSize = n
	r.mu.Unlock()
}

func (r *Recorder) OnActivate(bool) {}

// OnBlendShapeNames closes any open session and starts a new one. The six
// head slider names at the end of the list are not stored.
func (r *Recorder) OnBlendShapeNames(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endLocked()

	external := names
	if len(names) >= pose.NumSliders {
		external = names[:len(names)-pose.NumSliders]
	}
	sess, err := r.store.CreateSession(context.Background(), r.source, slices.Clone(external))
	if err != nil {
		r.writeFails.Add(1)
		r.logger.Error("failed to create session", "error", err)
		return
	}
	r.session = sess.ID
	r.external = len(external)
	r.started = time.Now()
	r.seq = 0
	r.sessions.Add(1)
	r.logger.Info("recording session started", "session", sess.ID, "names", len(external))
}

// OnBlendShapeValues records a lost frame for an empty vector. A tracked
// vector is held until OnHeadRotation completes it.
func (r *Recorder) OnBlendShapeValues(values []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == "" {
		return
	}
	if len(values) == 0 {
		r.appendLocked(Frame{Rotation: pose.Identity})
		return
	}
	n := min(r.external, len(values))
	r.values = slices.Clone(values[:n])
	r.awaiting = true
}

func (r *Recorder) OnHeadRotation(x, y, z, w float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == "" || !r.awaiting {
		return
	}
	r.appendLocked(Frame{
		Tracked:  true,
		Values:   r.values,
		Rotation: pose.NewQuaternion(x, y, z, w),
	})
	r.values = nil
	r.awaiting = false
}

func (r *Recorder) appendLocked(f Frame) {
	r.seq++
	f.Seq = r.seq
	f.Offset = time.Since(r.started)
	if f.Values == nil {
		f.Values = []float64{}
	}
	r.pending = append(r.pending, f)
	if len(r.pending) >= r.batchSize {
		r.flushLocked()
	}
}

func (r *Recorder) flushLocked() {
	if len(r.pending) == 0 || r.session == "" {
		return
	}
	if err := r.store.AppendFrames(context.Background(), r.session, r.pending); err != nil {
		r.writeFails.Add(1)
		r.logger.Error("failed to write frames", "session", r.session, "frames", len(r.pending), "error", err)
	} else {
		r.frames.Add(uint64(len(r.pending)))
	}
	r.pending = r.pending[:0]
}

func (r *Recorder) endLocked() {
	if r.session == "" {
		return
	}
	r.flushLocked()
	if err := r.store.EndSession(context.Background(), r.session, time.Now()); err != nil {
		r.writeFails.Add(1)
		r.logger.Error("failed to end session", "session", r.session, "error", err)
	}
	r.logger.Info("recording session ended", "session", r.session, "frames", r.seq)
	r.session = ""
	r.awaiting = false
}

// Flush writes buffered frames now.
func (r *Recorder) Flush() {
	r.mu.Lock()
	r.flushLocked()
	r.mu.Unlock()
}

// Close flushes and ends the open session. The recorder can start a new
// session on the next names callback.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.endLocked()
	r.mu.Unlock()
	return nil
}

// SessionID returns the open session, or "".
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Stats returns a snapshot of recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Sessions:   r.sessions.Load(),
		Frames:     r.frames.Load(),
		WriteFails: r.writeFails.Load(),
		SessionID:  r.SessionID(),
	}
}
