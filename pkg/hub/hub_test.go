package hub

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

type written struct {
	kind int
	data []byte
}

type fakeConn struct {
	in     chan []byte
	out    chan written
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 8),
		out:    make(chan written, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case d, ok := <-f.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, d, nil
	case <-f.closed:
		return 0, nil, io.EOF
	}
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	select {
	case <-f.closed:
		return io.ErrClosedPipe
	default:
	}
	f.out <- written{kind: kind, data: data}
	return nil
}

func (f *fakeConn) SetReadLimit(int64) {}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func next(t *testing.T, f *fakeConn) written {
	t.Helper()
	select {
	case w := <-f.out:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("no message written")
		return written{}
	}
}

func TestHubBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	go h.Run(ctx)

	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	for _, conn := range conns {
		c, err := NewClient(h, conn)
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		go c.Run()
	}
	waitFor(t, func() bool { return h.ClientCount() == 2 })
	if !h.IsRunning() {
		t.Error("hub should be running")
	}

	if err := h.BroadcastJSON(map[string]string{"type": "state"}); err != nil {
		t.Fatalf("BroadcastJSON() error = %v", err)
	}
	h.BroadcastBinary([]byte{1, 2, 3})

	for i, conn := range conns {
		w := next(t, conn)
		if w.kind != websocket.TextMessage || string(w.data) != `{"type":"state"}` {
			t.Errorf("client %d got %d %q", i, w.kind, w.data)
		}
		w = next(t, conn)
		if w.kind != websocket.BinaryMessage || len(w.data) != 3 {
			t.Errorf("client %d got %d %v", i, w.kind, w.data)
		}
	}
}

func TestClientReceivesInbound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("inbound", nil)
	go h.Run(ctx)

	conn := newFakeConn()
	c, err := NewClient(h, conn)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	got := make(chan string, 1)
	c.OnMessage = func(data []byte) { got <- string(data) }
	go c.Run()

	conn.in <- []byte(`{"type":"input"}`)
	select {
	case msg := <-got:
		if msg != `{"type":"input"}` {
			t.Errorf("OnMessage got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnMessage not called")
	}

	if !c.Send(NewJSONMessage([]byte(`{"type":"pong"}`))) {
		t.Fatal("Send() should queue")
	}
	if w := next(t, conn); string(w.data) != `{"type":"pong"}` {
		t.Errorf("direct send got %q", w.data)
	}

	close(conn.in)
	waitFor(t, func() bool { return h.ClientCount() == 0 })
	if c.Send(NewJSONMessage([]byte(`{}`))) {
		t.Error("Send() after disconnect should fail")
	}
}

func TestHubStopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("stop", nil)
	go h.Run(ctx)

	conn := newFakeConn()
	c, err := NewClient(h, conn)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	go c.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	<-h.Done()

	if w := next(t, conn); w.kind != websocket.CloseMessage {
		t.Errorf("expected close frame, got %d", w.kind)
	}
	if h.IsRunning() {
		t.Error("hub should not be running")
	}
	if _, err := NewClient(h, newFakeConn()); err != ErrHubStopped {
		t.Errorf("NewClient() after stop error = %v, want ErrHubStopped", err)
	}

	// Broadcasting to a stopped hub must not block.
	h.BroadcastBinary([]byte{0})
}

func TestHubDeliversQueuedBeforeStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("drain", nil)
	go h.Run(ctx)

	conn := newFakeConn()
	c, err := NewClient(h, conn)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	go c.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.Broadcast(NewJSONMessage([]byte(`{"type":"state"}`)))
	cancel()
	<-h.Done()

	if w := next(t, conn); string(w.data) != `{"type":"state"}` {
		t.Errorf("first write = %d %q, want queued state", w.kind, w.data)
	}
	if w := next(t, conn); w.kind != websocket.CloseMessage {
		t.Errorf("expected close frame, got %d", w.kind)
	}
}
