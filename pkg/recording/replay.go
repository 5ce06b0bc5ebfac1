package recording

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-mocap/pkg/facetrack"
)

// LatestSession selects the most recent session for replay.
const LatestSession = "latest"

// ReplayOption configures a Replay.
type ReplayOption func(*Replay)

// WithSpeed scales playback time. 2 plays twice as fast; 0 plays without
// any delay between frames.
func WithSpeed(speed float64) ReplayOption {
	return func(r *Replay) { r.speed = speed }
}

// WithLoop restarts playback from the first frame at the end.
func WithLoop(loop bool) ReplayOption {
	return func(r *Replay) { r.loop = loop }
}

// WithReplayLogger sets the logger.
func WithReplayLogger(l *slog.Logger) ReplayOption {
	return func(r *Replay) { r.logger = l }
}

// Replay plays a recorded session back as a tracker.
type Replay struct {
	store     *Store
	sessionID string
	speed     float64
	loop      bool
	logger    *slog.Logger

	mu      sync.Mutex
	current *Player
}

// NewReplay creates a replay source for sessionID, or the latest session
// when sessionID is "" or LatestSession.
func NewReplay(store *Store, sessionID string, opts ...ReplayOption) *Replay {
	r := &Replay{
		store:     store,
		sessionID: sessionID,
		speed:     1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "recording.replay")
	return r
}

// Factory loads the session and starts a Player. Its signature matches
// facetrack.Factory. The names are delivered before it returns.
func (r *Replay) Factory(ctx context.Context, hooks facetrack.Hooks) (facetrack.Resource, error) {
	var (
		sess Session
		err  error
	)
	if r.sessionID == "" || r.sessionID == LatestSession {
		sess, err = r.store.Latest(ctx)
	} else {
		sess, err = r.store.Session(ctx, r.sessionID)
	}
	if err != nil {
		return nil, err
	}
	frames, err := r.store.Frames(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("recording: load frames: %w", err)
	}

	p := &Player{
		session: sess,
		frames:  frames,
		hooks:   hooks,
		speed:   r.speed,
		loop:    r.loop,
		logger:  r.logger.With("session", sess.ID),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if hooks.OnBlendshapeNames != nil {
		hooks.OnBlendshapeNames(append([]string{}, sess.Names...))
	}

	r.mu.Lock()
	r.current = p
	r.mu.Unlock()

	p.logger.Info("replay started", "frames", len(frames), "speed", r.speed, "loop", r.loop)
	go p.run()
	return p, nil
}

// Current returns the most recently started player, or nil.
func (r *Replay) Current() *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Player is the facetrack.Resource that replays one session.
type Player struct {
	session Session
	frames  []Frame
	hooks   facetrack.Hooks
	speed   float64
	loop    bool
	logger  *slog.Logger

	paused atomic.Bool
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	played atomic.Uint64
	loops  atomic.Uint64
}

// Session returns the session being played.
func (p *Player) Session() Session { return p.session }

// Played returns the number of frames delivered so far.
func (p *Player) Played() uint64 { return p.played.Load() }

// Loops returns how many times playback wrapped around.
func (p *Player) Loops() uint64 { return p.loops.Load() }

// Done is closed when playback finishes or the player is closed.
func (p *Player) Done() <-chan struct{} { return p.done }

// Stop pauses playback before the next frame.
func (p *Player) Stop() error {
	p.paused.Store(true)
	return nil
}

// Restart resumes playback where it paused.
func (p *Player) Restart() error {
	if p.paused.Swap(false) {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close stops playback and waits for the loop to exit.
func (p *Player) Close() error {
	p.once.Do(func() { close(p.quit) })
	<-p.done
	return nil
}

func (p *Player) run() {
	defer close(p.done)
	var seq uint64

	for {
		var prev time.Duration
		for _, f := range p.frames {
			if !p.sleep(f.Offset - prev) {
				return
			}
			prev = f.Offset
			if !p.waitResumed() {
				return
			}

			seq++
			if p.hooks.OnFrame != nil {
				p.hooks.OnFrame(facetrack.Frame{Seq: seq, Timestamp: time.Now()}, p.result(f))
			}
			p.played.Add(1)
		}

		if !p.loop || len(p.frames) == 0 {
			p.logger.Info("replay finished", "played", p.played.Load())
			return
		}
		p.loops.Add(1)
	}
}

func (p *Player) result(f Frame) facetrack.Result {
	if !f.Tracked {
		return facetrack.Lost{}
	}
	names := p.session.Names
	shapes := make([]facetrack.Blendshape, len(f.Values))
	for i, v := range f.Values {
		shapes[i].Value = v
		if i < len(names) {
			shapes[i].Name = names[i]
		}
	}
	return facetrack.Tracked{Blendshapes: shapes, Rotation: f.Rotation}
}

// sleep waits d scaled by speed. It returns false if the player was closed.
func (p *Player) sleep(d time.Duration) bool {
	if p.speed <= 0 || d <= 0 {
		select {
		case <-p.quit:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(time.Duration(float64(d) / p.speed))
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-p.quit:
		return false
	}
}

// waitResumed blocks while paused. It returns false if the player was closed.
func (p *Player) waitResumed() bool {
	for p.paused.Load() {
		select {
		case <-p.wake:
		case <-p.quit:
			return false
		}
	}
	return true
}
