package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-mocap/pkg/camera"
	"github.com/teslashibe/go-mocap/pkg/facetrack"
	"github.com/teslashibe/go-mocap/pkg/tracking/detection"
)

// FrameSource yields JPEG frames. camera.Capture implements it.
type FrameSource interface {
	Read() (jpeg []byte, width, height int, err error)
	Close() error
}

// Stats counts frames seen by a Tracker.
type Stats struct {
	Frames       uint64 `json:"frames"`
	Tracked      uint64 `json:"tracked"`
	Lost         uint64 `json:"lost"`
	ReadErrors   uint64 `json:"read_errors"`
	DetectErrors uint64 `json:"detect_errors"`
	Running      bool   `json:"running"`
}

// Tracker is the webcam facetrack.Resource. It processes frames on its own
// goroutine from creation until Stop or Close.
type Tracker struct {
	source     FrameSource
	detector   detection.Detector
	perception *Perception
	hooks      facetrack.Hooks
	logger     *slog.Logger

	interval atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	seq          atomic.Uint64
	tracked      atomic.Uint64
	lost         atomic.Uint64
	readErrors   atomic.Uint64
	detectErrors atomic.Uint64
}

// New creates a stopped tracker. Call Restart to start it.
func New(cfg Config, source FrameSource, detector detection.Detector, hooks facetrack.Hooks, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		source:     source,
		detector:   detector,
		perception: NewPerception(cfg, detector),
		hooks:      hooks,
		logger:     logger.With("component", "tracking.webcam"),
	}
	t.interval.Store(int64(cfg.FrameInterval))
	return t
}

// Stop pauses frame processing and waits for the loop to exit.
// The camera stays open.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	t.logger.Info("webcam tracker stopped")
	return nil
}

// Restart starts frame processing. It is a no-op while running.
func (t *Tracker) Restart() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("tracking: tracker closed")
	}
	if t.cancel != nil {
		return nil
	}

	t.perception.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, t.done)
	t.logger.Info("webcam tracker started", "interval", time.Duration(t.interval.Load()))
	return nil
}

// Close stops processing and releases the camera and detector.
func (t *Tracker) Close() error {
	t.Stop()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var errs []error
	if err := t.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close camera: %w", err))
	}
	if err := t.detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close detector: %w", err))
	}
	return errors.Join(errs...)
}

// Running reports whether frames are being processed.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Stats returns a snapshot of the frame counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		Frames:       t.seq.Load(),
		Tracked:      t.tracked.Load(),
		Lost:         t.lost.Load(),
		ReadErrors:   t.readErrors.Load(),
		DetectErrors: t.detectErrors.Load(),
		Running:      t.Running(),
	}
}

func (t *Tracker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := time.Duration(t.interval.Load())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.step()
			if next := time.Duration(t.interval.Load()); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// step processes one camera frame.
func (t *Tracker) step() {
	jpeg, w, h, err := t.source.Read()
	if err != nil {
		if n := t.readErrors.Add(1); n == 1 || n%100 == 0 {
			t.logger.Warn("camera read failed", "error", err, "count", n)
		}
		return
	}

	res, err := t.perception.Process(jpeg, w, h)
	if err != nil {
		if n := t.detectErrors.Add(1); n == 1 || n%100 == 0 {
			t.logger.Warn("face detection failed", "error", err, "count", n)
		}
		return
	}

	if facetrack.IsTracked(res) {
		t.tracked.Add(1)
	} else {
		t.lost.Add(1)
	}

	frame := facetrack.Frame{
		Seq:       t.seq.Add(1),
		Timestamp: time.Now(),
		Width:     w,
		Height:    h,
	}
	if t.hooks.OnFrame != nil {
		t.hooks.OnFrame(frame, res)
	}
}

// Opener opens the camera and face detector for a new tracker.
type Opener func() (FrameSource, detection.Detector, error)

// OpenCamera returns an Opener backed by a gocv capture device and YuNet.
// Each open uses the manager's current config; later changes made through
// the manager are applied to the open device.
func OpenCamera(cams *camera.Manager, detCfg detection.Config) Opener {
	return func() (FrameSource, detection.Detector, error) {
		det, err := detection.NewYuNet(detCfg)
		if err != nil {
			return nil, nil, err
		}
		capture, err := camera.Open(cams.GetConfig())
		if err != nil {
			det.Close()
			return nil, nil, err
		}
		cams.SetOnConfigChange(capture.Apply)
		return capture, det, nil
	}
}

// Factory creates webcam trackers for a facetrack.Controller and remembers
// the current one for tuning and stats.
type Factory struct {
	config Config
	open   Opener
	logger *slog.Logger

	mu      sync.Mutex
	current *Tracker
}

// NewFactory creates a Factory. Pass f.New to facetrack.NewController.
func NewFactory(cfg Config, open Opener, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{config: cfg, open: open, logger: logger}
}

// New opens the camera, announces the blendshape names and starts tracking.
func (f *Factory) New(ctx context.Context, hooks facetrack.Hooks) (facetrack.Resource, error) {
	if errs := f.config.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("tracking: invalid config: %v", errs)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, det, err := f.open()
	if err != nil {
		return nil, fmt.Errorf("open webcam tracker: %w", err)
	}

	t := New(f.config, source, det, hooks, f.logger)
	if hooks.OnBlendshapeNames != nil {
		hooks.OnBlendshapeNames(append([]string{}, f.config.BlendshapeNames...))
	}
	if err := t.Restart(); err != nil {
		t.Close()
		return nil, err
	}

	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
	return t, nil
}

// Current returns the most recently created tracker, or nil.
func (f *Factory) Current() *Tracker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}
