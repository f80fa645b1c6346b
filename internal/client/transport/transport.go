// Package transport owns the single WebSocket connection of a logged in user.
package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/client/protocol"
	"github.com/gorilla/websocket"
)

type Config struct {
	URL    string
	Header http.Header

	// MaxRetries caps reconnect attempts after an unexpected loss. Zero
	// disables reconnecting: a lost connection goes straight to Closed.
	MaxRetries int
	Backoff    Backoff

	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	SendBuffer       int

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

type Handler func(protocol.Event)

type StateHandler func(StateChange)

type subscriber[T any] struct {
	id int
	fn T
}

// Transport multiplexes one connection to any number of subscribers. Every
// subscriber sees every inbound event, in arrival order, on the read
// goroutine of the current connection.
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *slog.Logger

	mu       sync.Mutex
	state    State
	gen      int
	userID   string
	link     *link
	closed   bool
	stop     chan struct{}
	nextID   int
	handlers []subscriber[Handler]
	watchers []subscriber[StateHandler]
}

func New(cfg Config) *Transport {
	cfg.setDefaults()
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log:   cfg.Logger.With("component", "transport"),
		state: StateClosed,
		stop:  make(chan struct{}),
	}
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OnEvent registers h for every inbound event. The returned func removes it.
func (t *Transport) OnEvent(h Handler) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.handlers = append(t.handlers, subscriber[Handler]{id: id, fn: h})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.handlers = remove(t.handlers, id)
	}
}

// OnState registers h for state transitions. The returned func removes it.
func (t *Transport) OnState(h StateHandler) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.watchers = append(t.watchers, subscriber[StateHandler]{id: id, fn: h})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.watchers = remove(t.watchers, id)
	}
}

// Connect opens the connection and authenticates it as userID. A connection
// that is already open (or reconnecting) is closed first. Connect does not
// retry; the returned *ConnectionError leaves retry policy to the caller.
func (t *Transport) Connect(ctx context.Context, userID string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.gen++
	gen := t.gen
	t.userID = userID
	old := t.link
	t.link = nil
	t.mu.Unlock()

	if old != nil {
		old.close(websocket.CloseNormalClosure, "reconnecting")
	}

	if err := t.open(ctx, gen, 0); err != nil {
		t.setState(gen, StateChange{State: StateClosed, Err: err})
		return err
	}
	return nil
}

// Send enqueues ev for delivery. It fails with ErrNotReady unless the
// connection is Open; a nil error means enqueued, not delivered.
func (t *Transport) Send(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	t.mu.Lock()
	l, st := t.link, t.state
	t.mu.Unlock()

	if st != StateOpen || l == nil {
		return ErrNotReady
	}
	return l.enqueue(data)
}

// Close releases the connection and stops any pending reconnect. It is
// idempotent; a closed Transport cannot be reconnected.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.gen++
	gen := t.gen
	l := t.link
	t.link = nil
	close(t.stop)
	t.mu.Unlock()

	if l != nil {
		l.close(websocket.CloseNormalClosure, "")
	}
	t.setState(gen, StateChange{State: StateClosed})
	return nil
}

func (t *Transport) open(ctx context.Context, gen, attempt int) error {
	t.setState(gen, StateChange{State: StateConnecting, Attempt: attempt})

	t.mu.Lock()
	userID := t.userID
	t.mu.Unlock()

	ws, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header.Clone())
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return &ConnectionError{URL: t.cfg.URL, Err: err}
	}

	l := newLink(ws, t.cfg.SendBuffer)
	auth, err := protocol.Encode(protocol.Authenticate(userID))
	if err != nil {
		l.close(websocket.CloseInternalServerErr, "")
		return err
	}
	// The queue is empty, so authenticate is always the first frame.
	l.send <- auth

	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		l.close(websocket.CloseNormalClosure, "")
		return ErrClosed
	}
	t.link = l
	t.mu.Unlock()

	// Open is published before the pumps start so a loss on the read side
	// can never be overwritten by it.
	t.log.Debug("connected", "url", t.cfg.URL, "attempt", attempt)
	t.setState(gen, StateChange{State: StateOpen, Attempt: attempt})

	go t.writePump(l)
	go t.readPump(gen, l)
	return nil
}

func (t *Transport) readPump(gen int, l *link) {
	defer l.close(websocket.CloseNormalClosure, "")

	l.ws.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	l.ws.SetPongHandler(func(string) error {
		return l.ws.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	})

	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			t.lost(gen, l, err)
			return
		}
		l.ws.SetReadDeadline(time.Now().Add(t.cfg.PongWait))

		ev, err := protocol.Decode(data)
		if err != nil {
			t.log.Debug("dropping frame", "error", err)
			continue
		}
		t.dispatch(gen, ev)
	}
}

func (t *Transport) writePump(l *link) {
	ticker := time.NewTicker(t.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		l.close(websocket.CloseNormalClosure, "")
	}()

	for {
		select {
		case <-l.done:
			return
		case msg := <-l.send:
			l.ws.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			if err := l.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				t.log.Debug("write failed", "error", err)
				return
			}
		case <-ticker.C:
			l.ws.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait))
			if err := l.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (t *Transport) dispatch(gen int, ev protocol.Event) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	handlers := make([]Handler, len(t.handlers))
	for i, s := range t.handlers {
		handlers[i] = s.fn
	}
	t.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// lost is called by the read side when the connection fails. Connections
// that were replaced or closed on purpose are ignored.
func (t *Transport) lost(gen int, l *link, cause error) {
	t.mu.Lock()
	if t.closed || gen != t.gen || t.link != l {
		t.mu.Unlock()
		return
	}
	t.link = nil
	t.mu.Unlock()

	t.log.Info("connection lost", "error", cause)
	err := &ConnectionError{URL: t.cfg.URL, Err: cause}
	if t.cfg.MaxRetries <= 0 {
		t.setState(gen, StateChange{State: StateClosed, Err: err})
		return
	}
	go t.reconnect(gen, err)
}

func (t *Transport) reconnect(gen int, cause error) {
	lastErr := cause
	for attempt := 1; attempt <= t.cfg.MaxRetries; attempt++ {
		delay := t.cfg.Backoff.Delay(attempt)
		t.setState(gen, StateChange{State: StateBackoff, Attempt: attempt, Delay: delay, Err: lastErr})

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-t.stop:
			timer.Stop()
			return
		}
		if !t.current(gen) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.HandshakeTimeout)
		err := t.open(ctx, gen, attempt)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		t.log.Debug("reconnect failed", "attempt", attempt, "error", err)
	}
	t.setState(gen, StateChange{State: StateClosed, Err: lastErr})
}

func (t *Transport) current(gen int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && gen == t.gen
}

func (t *Transport) setState(gen int, sc StateChange) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.state = sc.State
	watchers := make([]StateHandler, len(t.watchers))
	for i, s := range t.watchers {
		watchers[i] = s.fn
	}
	t.mu.Unlock()

	for _, w := range watchers {
		w(sc)
	}
}

func remove[T any](subs []subscriber[T], id int) []subscriber[T] {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
