package recording

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-mocap/pkg/facetrack"
	"github.com/teslashibe/go-mocap/pkg/pose"
)

// capture collects listener callbacks.
type capture struct {
	mu     sync.Mutex
	names  []string
	values [][]float64
	rots   [][4]float64
}

func (c *capture) listener() facetrack.ListenerFuncs {
	return facetrack.ListenerFuncs{
		Names: func(n []string) {
			c.mu.Lock()
			c.names = n
			c.mu.Unlock()
		},
		Values: func(v []float64) {
			c.mu.Lock()
			c.values = append(c.values, v)
			c.mu.Unlock()
		},
		Rotation: func(x, y, z, w float64) {
			c.mu.Lock()
			c.rots = append(c.rots, [4]float64{x, y, z, w})
			c.mu.Unlock()
		},
	}
}

func (c *capture) snapshot() ([]string, [][]float64, [][4]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names, append([][]float64{}, c.values...), append([][4]float64{}, c.rots...)
}

func tracked(values []float64, q pose.Quaternion, names ...string) facetrack.Tracked {
	shapes := make([]facetrack.Blendshape, len(values))
	for i, v := range values {
		shapes[i] = facetrack.Blendshape{Name: names[i], Value: v}
	}
	return facetrack.Tracked{Blendshapes: shapes, Rotation: q}
}

// recordSession feeds results through a dispatcher into a recorder and
// returns what a live listener saw alongside it.
func recordSession(t *testing.T, s *Store, names []string, results []facetrack.Result) (*Recorder, *capture) {
	t.Helper()
	rec := NewRecorder(s, "test", nil)
	rec.SetBatchSize(2)
	live := &capture{}

	d := facetrack.NewDispatcher(facetrack.Multi{live.listener(), rec}, facetrack.Inline{}, nil)
	d.DeliverNames(names)
	for i, r := range results {
		d.Dispatch(facetrack.Frame{Seq: uint64(i + 1)}, r)
	}
	require.NoError(t, rec.Close())
	return rec, live
}

func TestRecorder_WritesFrames(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	names := []string{"jawOpen", "eyeBlinkLeft"}
	results := []facetrack.Result{
		tracked([]float64{0.2, 0.4}, pose.FromEuler(0.1, 0, 0), names...),
		facetrack.Lost{},
		tracked([]float64{0.6, 0.8}, pose.FromEuler(0, -0.2, 0), names...),
	}
	rec, _ := recordSession(t, s, names, results)

	st := rec.Stats()
	assert.Equal(t, uint64(1), st.Sessions)
	assert.Equal(t, uint64(3), st.Frames)
	assert.Zero(t, st.WriteFails)
	assert.Empty(t, st.SessionID)

	sess, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, names, sess.Names)
	assert.Equal(t, "test", sess.Source)
	assert.NotNil(t, sess.EndedAt)

	frames, err := s.Frames(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.True(t, frames[0].Tracked)
	assert.Equal(t, []float64{0.2, 0.4}, frames[0].Values)
	assert.False(t, frames[1].Tracked)
	assert.Empty(t, frames[1].Values)
	assert.Equal(t, pose.FromEuler(0, -0.2, 0), frames[2].Rotation)
	for i, f := range frames {
		assert.Equal(t, uint64(i+1), f.Seq)
	}
}

func TestRecorder_IgnoresValuesWithoutSession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	rec := NewRecorder(s, "test", nil)
	rec.OnBlendShapeValues([]float64{1, 2, 3})
	rec.OnHeadRotation(0, 0, 0, 1)
	rec.Flush()

	assert.Zero(t, rec.Stats().Frames)
	list, err := s.Sessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecorder_NewNamesStartNewSession(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	rec := NewRecorder(s, "test", nil)
	rec.OnBlendShapeNames(append([]string{"a"}, pose.SliderNames()...))
	first := rec.SessionID()
	rec.OnBlendShapeValues([]float64{})
	rec.OnBlendShapeNames(append([]string{"b"}, pose.SliderNames()...))
	second := rec.SessionID()
	require.NoError(t, rec.Close())

	assert.NotEqual(t, first, second)
	sess, err := s.Session(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.FrameCount)
	assert.NotNil(t, sess.EndedAt)
}

func TestReplay_RoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	names := []string{"jawOpen", "mouthSmileLeft"}
	results := []facetrack.Result{
		tracked([]float64{0.1, 0.9}, pose.FromEuler(0.2, 0.3, -0.1), names...),
		facetrack.Lost{},
		tracked([]float64{0.3, 0.7}, pose.FromEuler(-0.4, 0, 0.5), names...),
		tracked([]float64{0.5, 0.5}, pose.Identity, names...),
	}
	_, live := recordSession(t, s, names, results)

	replayed := &capture{}
	d := facetrack.NewDispatcher(replayed.listener(), facetrack.Inline{}, nil)
	c := facetrack.NewController(NewReplay(s, LatestSession, WithSpeed(0)).Factory, d, nil)
	require.NoError(t, c.Create(context.Background()))

	wantNames, wantValues, wantRots := live.snapshot()
	require.Eventually(t, func() bool {
		_, v, _ := replayed.snapshot()
		return len(v) == len(wantValues)
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Destroy())

	gotNames, gotValues, gotRots := replayed.snapshot()
	assert.Equal(t, wantNames, gotNames)
	assert.Equal(t, wantValues, gotValues)
	assert.Equal(t, wantRots, gotRots)
}

func TestReplay_SessionNotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := NewReplay(s, "nope").Factory(context.Background(), facetrack.Hooks{})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = NewReplay(s, "").Factory(context.Background(), facetrack.Hooks{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func seedSession(t *testing.T, s *Store, n int, step time.Duration) Session {
	t.Helper()
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "seed", []string{"v"})
	require.NoError(t, err)
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame{
			Seq:      uint64(i + 1),
			Offset:   time.Duration(i) * step,
			Tracked:  true,
			Values:   []float64{float64(i)},
			Rotation: pose.Identity,
		}
	}
	require.NoError(t, s.AppendFrames(ctx, sess.ID, frames))
	return sess
}

func TestPlayer_FinishesAndCloses(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	sess := seedSession(t, s, 5, time.Millisecond)

	var mu sync.Mutex
	var got []float64
	hooks := facetrack.Hooks{OnFrame: func(_ facetrack.Frame, r facetrack.Result) {
		mu.Lock()
		got = append(got, r.(facetrack.Tracked).Blendshapes[0].Value)
		mu.Unlock()
	}}

	replay := NewReplay(s, sess.ID, WithSpeed(10))
	res, err := replay.Factory(context.Background(), hooks)
	require.NoError(t, err)
	p := res.(*Player)
	assert.Same(t, p, replay.Current())
	assert.Equal(t, sess.ID, p.Session().ID)

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}
	require.NoError(t, p.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, got)
	assert.Equal(t, uint64(5), p.Played())
}

func TestPlayer_StopRestart(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	sess := seedSession(t, s, 3, 0)

	release := make(chan struct{})
	seen := make(chan uint64, 10)
	var p *Player
	hooks := facetrack.Hooks{OnFrame: func(f facetrack.Frame, _ facetrack.Result) {
		if f.Seq == 1 {
			// Pause from inside delivery so the next frame is held.
			<-release
			p.Stop()
		}
		seen <- f.Seq
	}}

	res, err := NewReplay(s, sess.ID, WithSpeed(0)).Factory(context.Background(), hooks)
	require.NoError(t, err)
	p = res.(*Player)
	close(release)

	assert.Equal(t, uint64(1), <-seen)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(1), p.Played())

	require.NoError(t, p.Restart())
	assert.Equal(t, uint64(2), <-seen)
	assert.Equal(t, uint64(3), <-seen)
	<-p.Done()
	require.NoError(t, p.Close())
}

func TestPlayer_LoopUntilClosed(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	sess := seedSession(t, s, 2, 0)

	res, err := NewReplay(s, sess.ID, WithSpeed(0), WithLoop(true)).Factory(context.Background(), facetrack.Hooks{})
	require.NoError(t, err)
	p := res.(*Player)

	require.Eventually(t, func() bool { return p.Loops() >= 3 }, 2*time.Second, time.Millisecond)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
