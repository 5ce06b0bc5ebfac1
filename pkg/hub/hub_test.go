package hub

import (
	"context"
	"testing"
	"time"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case m, ok := <-c.send:
		if !ok {
			t.Fatal("client channel closed")
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	h := startHub(t)
	a, b := newClient(h), newClient(h)
	h.Register(a)
	h.Register(b)

	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("client IDs should be unique, got %q and %q", a.ID, b.ID)
	}

	if err := h.BroadcastJSON(map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}

	for _, c := range []*Client{a, b} {
		if got := string(recv(t, c).Data); got != `{"n":1}` {
			t.Errorf("client %s got %s", c.ID, got)
		}
	}
	if h.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d, want 2", h.ClientCount())
	}
}

func TestHub_RetainedReplayedToLateClient(t *testing.T) {
	h := startHub(t)
	early := newClient(h)
	h.Register(early)

	h.RetainJSON("names", []string{"jawOpen"})
	h.RetainJSON("names", []string{"jawOpen", "headLeft"})
	h.BroadcastJSON("transient")

	// Drain the early client so the broadcasts are known to be processed.
	for i := 0; i < 3; i++ {
		recv(t, early)
	}

	late := newClient(h)
	h.Register(late)

	if got := string(recv(t, late).Data); got != `["jawOpen","headLeft"]` {
		t.Errorf("late client got %s, want latest retained names", got)
	}
	select {
	case m := <-late.send:
		t.Errorf("late client should only get retained messages, got %s", m.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := newClient(h)
	h.Register(c)
	h.Unregister(c)

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", h.ClientCount())
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := startHub(t)
	c := newClient(h)
	h.Register(c)

	for i := 0; i < sendBuffer+1; i++ {
		h.Broadcast(NewJSONMessage([]byte(`1`)))
		// Keep the hub queue from overflowing so the client buffer does.
		time.Sleep(time.Millisecond)
	}

	deadline := time.After(2 * time.Second)
	for h.ClientCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("slow client still registered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	h := New("cancel", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := newClient(h)
	h.Register(c)
	if !h.IsRunning() {
		t.Error("IsRunning() = false while running")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if h.IsRunning() {
		t.Error("IsRunning() = true after stop")
	}
	if _, ok := <-c.send; ok {
		t.Error("client channel should be closed on stop")
	}
}
