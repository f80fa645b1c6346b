package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/client/protocol"
	"github.com/gorilla/websocket"
)

type fakeServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- c
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fs.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for connection")
	}
	return nil
}

func readEvent(t *testing.T, c *websocket.Conn) protocol.Event {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("server read error = %v", err)
	}
	ev, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", data, err)
	}
	return ev
}

func waitState(t *testing.T, ch <-chan StateChange, want State) StateChange {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case sc := <-ch:
			if sc.State == want {
				return sc
			}
		case <-deadline:
			t.Fatalf("timeout waiting for state %s", want)
		}
	}
}

func newTestTransport(url string, retries int) *Transport {
	return New(Config{
		URL:        url,
		MaxRetries: retries,
		Backoff:    Backoff{Base: 10 * time.Millisecond, Max: 40 * time.Millisecond},
	})
}

func TestConnectSendsAuthenticateFirst(t *testing.T) {
	fs := newFakeServer(t)
	tr := newTestTransport(fs.url(), 0)
	defer tr.Close()

	if err := tr.Connect(context.Background(), "u1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := fs.accept(t)

	ev := readEvent(t, conn)
	if ev.Type != protocol.TypeAuthenticate || ev.UserID != "u1" {
		t.Errorf("first frame = %+v, want authenticate for u1", ev)
	}
	if tr.State() != StateOpen {
		t.Errorf("State() = %s, want open", tr.State())
	}

	if err := tr.Send(protocol.Typing("c1", "u1")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	ev = readEvent(t, conn)
	if ev.Type != protocol.TypeTyping || ev.ChatID != "c1" {
		t.Errorf("second frame = %+v, want typing", ev)
	}
}

func TestSendBeforeConnectIsNotReady(t *testing.T) {
	tr := newTestTransport("ws://127.0.0.1:1/ws", 0)
	defer tr.Close()

	if err := tr.Send(protocol.Typing("c1", "u1")); !errors.Is(err, ErrNotReady) {
		t.Errorf("Send() error = %v, want ErrNotReady", err)
	}
}

func TestConnectFailureIsConnectionError(t *testing.T) {
	fs := newFakeServer(t)
	url := fs.url()
	fs.srv.Close()

	tr := newTestTransport(url, 3)
	defer tr.Close()

	err := tr.Connect(context.Background(), "u1")
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect() error = %v, want *ConnectionError", err)
	}
	if tr.State() != StateClosed {
		t.Errorf("State() = %s, want closed", tr.State())
	}
}

func TestEventsFanOutInArrivalOrder(t *testing.T) {
	fs := newFakeServer(t)
	tr := newTestTransport(fs.url(), 0)
	defer tr.Close()

	first := make(chan protocol.Event, 10)
	second := make(chan protocol.Event, 10)
	tr.OnEvent(func(ev protocol.Event) { first <- ev })
	tr.OnEvent(func(ev protocol.Event) { second <- ev })

	if err := tr.Connect(context.Background(), "u1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := fs.accept(t)
	readEvent(t, conn)

	frames := []string{
		`{"type":"chat","chatId":"c1","senderId":"u2","content":"one"}`,
		`not json at all`,
		`{"type":"presence","chatId":"c1"}`,
		`{"type":"chat","chatId":"c1","senderId":"u2","content":"two"}`,
		`{"type":"typing","chatId":"c1","senderId":"u2"}`,
	}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("server write error = %v", err)
		}
	}

	for _, ch := range []chan protocol.Event{first, second} {
		var got []string
		for len(got) < 3 {
			select {
			case ev := <-ch:
				got = append(got, string(ev.Type)+":"+ev.Content)
			case <-time.After(2 * time.Second):
				t.Fatalf("timeout, received %v", got)
			}
		}
		want := []string{"chat:one", "chat:two", "typing:"}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("event %d = %q, want %q", i, got[i], want[i])
			}
		}
	}

	if tr.State() != StateOpen {
		t.Errorf("malformed frames closed the connection: state %s", tr.State())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	fs := newFakeServer(t)
	tr := newTestTransport(fs.url(), 0)
	defer tr.Close()

	dropped := make(chan protocol.Event, 10)
	kept := make(chan protocol.Event, 10)
	unsubscribe := tr.OnEvent(func(ev protocol.Event) { dropped <- ev })
	tr.OnEvent(func(ev protocol.Event) { kept <- ev })
	unsubscribe()

	if err := tr.Connect(context.Background(), "u1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := fs.accept(t)
	readEvent(t, conn)
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","chatId":"c1","senderId":"u2"}`))

	select {
	case <-kept:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	if len(dropped) != 0 {
		t.Errorf("unsubscribed handler received %d events", len(dropped))
	}
}

func TestReconnectAfterLoss(t *testing.T) {
	fs := newFakeServer(t)
	tr := newTestTransport(fs.url(), 3)
	defer tr.Close()

	states := make(chan StateChange, 32)
	tr.OnState(func(sc StateChange) { states <- sc })

	if err := tr.Connect(context.Background(), "u1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := fs.accept(t)
	readEvent(t, conn)
	waitState(t, states, StateOpen)

	conn.Close()

	sc := waitState(t, states, StateBackoff)
	if sc.Attempt != 1 {
		t.Errorf("backoff attempt = %d, want 1", sc.Attempt)
	}
	if sc.Delay != 10*time.Millisecond {
		t.Errorf("backoff delay = %v, want 10ms", sc.Delay)
	}

	conn2 := fs.accept(t)
	ev := readEvent(t, conn2)
	if ev.Type != protocol.TypeAuthenticate || ev.UserID != "u1" {
		t.Errorf("reconnect first frame = %+v, want authenticate", ev)
	}
	sc = waitState(t, states, StateOpen)
	if sc.Attempt != 1 {
		t.Errorf("open attempt = %d, want 1", sc.Attempt)
	}
}

func TestReconnectGivesUpAfterMaxRetries(t *testing.T) {
	fs := newFakeServer(t)
	tr := newTestTransport(fs.url(), 2)
	defer tr.Close()

	states := make(chan StateChange, 32)
	tr.OnState(func(sc StateChange) { states <- sc })

	if err := tr.Connect(context.Background(), "u1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := fs.accept(t)
	readEvent(t, conn)

	fs.srv.Close()
	conn.Close()

	sc := waitState(t, states, StateClosed)
	var connErr *ConnectionError
	if !errors.As(sc.Err, &connErr) {
		t.Errorf("terminal error = %v, want *ConnectionError", sc.Err)
	}
}

func TestNoReconnectWhenDisabled(t *testing.T) {
	fs := newFakeServer(t)
	tr := newTestTransport(fs.url(), 0)
	defer tr.Close()

	states := make(chan StateChange, 32)
	tr.OnState(func(sc StateChange) { states <- sc })

	if err := tr.Connect(context.Background(), "u1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := fs.accept(t)
	readEvent(t, conn)
	conn.Close()

	sc := waitState(t, states, StateClosed)
	if sc.Err == nil {
		t.Error("expected loss cause on closed state")
	}
	if err := tr.Send(protocol.Typing("c1", "u1")); !errors.Is(err, ErrNotReady) {
		t.Errorf("Send() error = %v, want ErrNotReady", err)
	}
}

// stallHandler holds up the "connected" record, widening the gap between
// registering a link and its read side starting.
type stallHandler struct{ delay time.Duration }

func (h stallHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h stallHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == "connected" {
		time.Sleep(h.delay)
	}
	return nil
}

func (h stallHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h stallHandler) WithGroup(string) slog.Handler      { return h }

func TestLossRightAfterUpgradeEndsClosed(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.Close()
	}))
	defer srv.Close()

	tr := New(Config{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Logger: slog.New(stallHandler{delay: 100 * time.Millisecond}),
	})
	defer tr.Close()

	states := make(chan StateChange, 32)
	tr.OnState(func(sc StateChange) { states <- sc })

	if err := tr.Connect(context.Background(), "u1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var seen []State
	deadline := time.After(2 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != StateClosed {
		select {
		case sc := <-states:
			seen = append(seen, sc.State)
		case <-deadline:
			t.Fatalf("transitions = %v, want to end closed", seen)
		}
	}

	want := []State{StateConnecting, StateOpen, StateClosed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}
	if tr.State() != StateClosed {
		t.Errorf("State() = %s, want closed", tr.State())
	}
	if err := tr.Send(protocol.Typing("c1", "u1")); !errors.Is(err, ErrNotReady) {
		t.Errorf("Send() error = %v, want ErrNotReady", err)
	}
}

func TestConnectClosesPreviousConnection(t *testing.T) {
	fs := newFakeServer(t)
	tr := newTestTransport(fs.url(), 0)
	defer tr.Close()

	if err := tr.Connect(context.Background(), "u1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first := fs.accept(t)
	readEvent(t, first)

	if err := tr.Connect(context.Background(), "u1"); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	second := fs.accept(t)
	readEvent(t, second)

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Error("expected first connection to be closed")
	} else if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Logf("first connection ended with %v", err)
	}
	if tr.State() != StateOpen {
		t.Errorf("State() = %s, want open", tr.State())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fs := newFakeServer(t)
	tr := newTestTransport(fs.url(), 3)

	if err := tr.Connect(context.Background(), "u1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	fs.accept(t)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if tr.State() != StateClosed {
		t.Errorf("State() = %s, want closed", tr.State())
	}
	if err := tr.Connect(context.Background(), "u1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after Close error = %v, want ErrClosed", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{30, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
