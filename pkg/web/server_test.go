package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-mocap/pkg/camera"
	"github.com/teslashibe/go-mocap/pkg/facetrack"
	"github.com/teslashibe/go-mocap/pkg/pose"
	"github.com/teslashibe/go-mocap/pkg/protocol"
	"github.com/teslashibe/go-mocap/pkg/tracking"
)

type fakeControls struct {
	mu      sync.Mutex
	state   facetrack.State
	calls   []string
	failErr error
}

func (f *fakeControls) do(name string, next facetrack.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failErr != nil {
		return f.failErr
	}
	f.state = next
	return nil
}

func (f *fakeControls) CreateTracker(context.Context) error { return f.do("create", facetrack.Running) }
func (f *fakeControls) Pause() error                        { return f.do("pause", facetrack.Paused) }
func (f *fakeControls) Resume() error                       { return f.do("resume", facetrack.Running) }
func (f *fakeControls) Destroy() error                      { return f.do("destroy", facetrack.Destroyed) }
func (f *fakeControls) Names() []string                     { return []string{"jawOpen"} }

func (f *fakeControls) State() facetrack.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeControls) Stats() facetrack.Stats {
	return facetrack.Stats{Tracked: 3, Lost: 1}
}

type fakeTuner struct {
	params tracking.TuningParams
}

func (f *fakeTuner) GetTuningParams() tracking.TuningParams  { return f.params }
func (f *fakeTuner) SetTuningParams(p tracking.TuningParams) { f.params.Smoothing = p.Smoothing }

func request(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestStatusReflectsListenerCallbacks(t *testing.T) {
	s := NewServer(":0", WithStaticDir(""))

	s.OnActivate(true)
	s.OnBlendShapeNames(append([]string{"jawOpen"}, pose.SliderNames()...))
	s.OnBlendShapeValues([]float64{0.5, 0, 0, 0, 0, 0, 0})
	q := pose.FromEuler(0, 0.4, 0)
	s.OnHeadRotation(q.X, q.Y, q.Z, q.W)

	code, body := request(t, s, "GET", "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var st TrackerState
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if !st.Activated || st.Names != 7 || st.Frames != 1 || !st.Tracking {
		t.Errorf("state = %+v", st)
	}
	if st.Sliders["headLeft"] <= 0 || st.Sliders["headRight"] != 0 {
		t.Errorf("sliders = %v", st.Sliders)
	}

	s.OnBlendShapeValues([]float64{})
	if s.State().Tracking {
		t.Error("empty values should clear Tracking")
	}
}

func TestNamesWithoutControls(t *testing.T) {
	s := NewServer(":0", WithStaticDir(""))
	code, body := request(t, s, "GET", "/api/names", "")
	if code != 200 || !strings.Contains(string(body), `"names":[]`) {
		t.Errorf("GET /api/names = %d %s", code, body)
	}

	s.OnBlendShapeNames([]string{"a", "b"})
	_, body = request(t, s, "GET", "/api/names", "")
	var got struct {
		Names []string `json:"names"`
	}
	json.Unmarshal(body, &got)
	if diff := cmp.Diff([]string{"a", "b"}, got.Names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackerActions(t *testing.T) {
	fc := &fakeControls{}
	s := NewServer(":0", WithStaticDir(""), WithControls(fc))

	tests := []struct {
		action string
		want   int
		state  string
	}{
		{"create", 200, "running"},
		{"pause", 200, "paused"},
		{"resume", 200, "running"},
		{"destroy", 200, "destroyed"},
		{"explode", 404, ""},
	}
	for _, tc := range tests {
		t.Run(tc.action, func(t *testing.T) {
			code, body := request(t, s, "POST", "/api/tracker/"+tc.action, "")
			if code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", code, tc.want, body)
			}
			if tc.state != "" && !strings.Contains(string(body), `"state":"`+tc.state+`"`) {
				t.Errorf("body = %s, want state %s", body, tc.state)
			}
		})
	}

	if diff := cmp.Diff([]string{"create", "pause", "resume", "destroy"}, fc.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackerActionDestroyedConflict(t *testing.T) {
	fc := &fakeControls{state: facetrack.Destroyed, failErr: facetrack.ErrDestroyed}
	s := NewServer(":0", WithStaticDir(""), WithControls(fc))

	code, body := request(t, s, "POST", "/api/tracker/create", "")
	if code != http.StatusConflict {
		t.Errorf("status = %d, want 409 (%s)", code, body)
	}

	_, logs := request(t, s, "GET", "/api/logs", "")
	if !strings.Contains(string(logs), "tracker destroyed") {
		t.Errorf("logs = %s, want the error recorded", logs)
	}
}

func TestTrackerActionWithoutControls(t *testing.T) {
	s := NewServer(":0", WithStaticDir(""))
	if code, _ := request(t, s, "POST", "/api/tracker/create", ""); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestStats(t *testing.T) {
	s := NewServer(":0", WithStaticDir(""), WithControls(&fakeControls{}),
		WithStats("remote", func() any { return map[string]int{"producers": 2} }))

	code, body := request(t, s, "GET", "/api/stats", "")
	if code != 200 {
		t.Fatalf("status = %d", code)
	}
	var got map[string]json.RawMessage
	json.Unmarshal(body, &got)
	for _, key := range []string{"hubs", "dispatcher", "remote"} {
		if _, ok := got[key]; !ok {
			t.Errorf("stats missing %q: %s", key, body)
		}
	}
	if !strings.Contains(string(got["dispatcher"]), `"tracked":3`) {
		t.Errorf("dispatcher = %s", got["dispatcher"])
	}
}

func TestCameraRoutes(t *testing.T) {
	s := NewServer(":0", WithStaticDir(""))
	if code, _ := request(t, s, "GET", "/api/camera", ""); code != 404 {
		t.Errorf("GET /api/camera without camera = %d, want 404", code)
	}

	m := camera.NewManager(camera.DefaultConfig())
	s = NewServer(":0", WithStaticDir(""), WithCamera(m))

	code, _ := request(t, s, "POST", "/api/camera", `{"preset":"720p"}`)
	if code != 200 {
		t.Fatalf("POST preset = %d", code)
	}
	if got := m.GetConfig().Width; got != 1280 {
		t.Errorf("Width = %d, want 1280", got)
	}

	if code, _ := request(t, s, "POST", "/api/camera", `{"quality":500}`); code != 400 {
		t.Errorf("invalid quality = %d, want 400", code)
	}

	code, body := request(t, s, "GET", "/api/camera/presets", "")
	if code != 200 || !strings.Contains(string(body), "night") {
		t.Errorf("presets = %d %s", code, body)
	}
}

func TestTuningRoutes(t *testing.T) {
	var live Tuner
	s := NewServer(":0", WithStaticDir(""), WithTuner(func() Tuner { return live }))

	if code, _ := request(t, s, "GET", "/api/tracking/tuning", ""); code != 404 {
		t.Errorf("no tracker = %d, want 404", code)
	}

	live = &fakeTuner{params: tracking.TuningParams{Smoothing: 0.5}}
	code, body := request(t, s, "POST", "/api/tracking/tuning", `{"smoothing":0.8}`)
	if code != 200 || !strings.Contains(string(body), `"smoothing":0.8`) {
		t.Errorf("POST tuning = %d %s", code, body)
	}
	if code, _ := request(t, s, "POST", "/api/tracking/tuning", `nope`); code != 400 {
		t.Errorf("bad body = %d, want 400", code)
	}
}

func TestFeedWebSocket(t *testing.T) {
	s := NewServer(":0", WithStaticDir(""))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.RunHubs(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.App().Listener(ln)
	defer s.Shutdown()

	// Names sent before the client connects are replayed to it.
	s.OnBlendShapeNames([]string{"jawOpen"})
	time.Sleep(20 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/feed", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	read := func() *protocol.Message {
		t.Helper()
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return msg
	}

	msg := read()
	if msg.Type != protocol.TypeBlendshapeNames {
		t.Fatalf("first message = %s, want blendshape_names", msg.Type)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.FeedHub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.OnBlendShapeValues([]float64{})

	msg = read()
	vd, err := msg.GetValuesData()
	if msg.Type != protocol.TypeBlendshapeValues || err != nil {
		t.Fatalf("got %s, want blendshape_values", msg.Type)
	}
	if vd.Values == nil || len(vd.Values) != 0 {
		t.Errorf("values = %#v, want empty", vd.Values)
	}
}
