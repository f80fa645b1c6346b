// Package chat runs the messaging session of a logged in user: one shared
// transport, and the timeline and presence state of the selected
// conversation.
//
// All state is owned by the goroutine running Session.Run. Public methods
// hand their work to that goroutine and wait for it, so they are safe to
// call from anywhere. Network round trips (history pages, uploads) happen
// off the loop and post their results back.
package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/client/attachment"
	"github.com/cloudzz-dev/cldzchat/internal/client/history"
	"github.com/cloudzz-dev/cldzchat/internal/client/models"
	"github.com/cloudzz-dev/cldzchat/internal/client/presence"
	"github.com/cloudzz-dev/cldzchat/internal/client/protocol"
	"github.com/cloudzz-dev/cldzchat/internal/client/session"
	"github.com/cloudzz-dev/cldzchat/internal/client/timeline"
	"github.com/cloudzz-dev/cldzchat/internal/client/transport"
	"github.com/google/uuid"
)

var (
	ErrClosed              = errors.New("chat: session closed")
	ErrNoConversation      = errors.New("chat: no conversation selected")
	ErrEmptyMessage        = errors.New("chat: empty message")
	ErrConversationChanged = errors.New("chat: conversation changed")
)

const DefaultBufferLimit = 256

type Transport interface {
	Connect(ctx context.Context, userID string) error
	Send(protocol.Event) error
	OnEvent(transport.Handler) func()
	OnState(transport.StateHandler) func()
	State() transport.State
	Close() error
}

type HistoryLoader interface {
	LoadFirstPage(ctx context.Context, peerID string) (history.Result, error)
	LoadNextPage(ctx context.Context, conv models.Conversation) (history.Result, error)
	PageSize() int
}

type Uploader interface {
	Upload(ctx context.Context, f attachment.File) (attachment.UploadResult, error)
}

type Deps struct {
	Session   *session.Session
	Transport Transport
	History   HistoryLoader
	Uploads   Uploader
	Logger    *slog.Logger

	TypingWindow        time.Duration
	RemoteTypingTimeout time.Duration
	// BufferLimit caps the live events held while a first page loads.
	BufferLimit int
	NewClientID func() string
}

// View is the read model handed to the UI.
type View struct {
	PeerID       string
	Conversation models.Conversation
	Loading      bool
	LoadingOlder bool
	Messages     []models.Message
	Pending      int
	PeerTyping   bool
	Connection   transport.State
	Unread       map[string]int
	Err          error
}

type Session struct {
	deps   Deps
	userID string
	log    *slog.Logger

	inbox   chan func()
	wake    chan struct{}
	updates chan View
	done    chan struct{}
	once    sync.Once

	unsubscribe []func()

	// Owned by the loop.
	ctx     context.Context
	gen     int
	active  *conversation
	unread  map[string]int
	conn    transport.State
	lastErr error
}

// conversation is the state of the selected peer. store and typing are nil
// until the first page has been seeded.
type conversation struct {
	gen          int
	peerID       string
	conv         models.Conversation
	store        *timeline.Store
	typing       *presence.Signaler
	loading      bool
	loadingOlder bool
	buffer       []protocol.Event
	overflow     bool
	cancel       context.CancelFunc
}

func (c *conversation) ready() bool { return c != nil && c.store != nil }

func New(deps Deps) (*Session, error) {
	if !deps.Session.Valid() {
		return nil, session.ErrNoSession
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.BufferLimit <= 0 {
		deps.BufferLimit = DefaultBufferLimit
	}
	if deps.NewClientID == nil {
		deps.NewClientID = uuid.NewString
	}

	s := &Session{
		deps:    deps,
		userID:  deps.Session.UserID,
		log:     deps.Logger.With("component", "chat", "user", deps.Session.UserID),
		inbox:   make(chan func(), 256),
		wake:    make(chan struct{}, 1),
		updates: make(chan View, 1),
		done:    make(chan struct{}),
		unread:  make(map[string]int),
		conn:    deps.Transport.State(),
	}

	s.unsubscribe = append(s.unsubscribe,
		deps.Transport.OnEvent(func(ev protocol.Event) {
			s.post(func() { s.handleEvent(ev) })
		}),
		deps.Transport.OnState(func(sc transport.StateChange) {
			s.post(func() { s.handleState(sc) })
		}),
	)
	return s, nil
}

// Run processes session work until ctx is done or Close is called.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer s.teardown()

	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.wake:
			s.publish()
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		}
	}
}

// Connect opens the shared transport for this user.
func (s *Session) Connect(ctx context.Context) error {
	return s.deps.Transport.Connect(ctx, s.userID)
}

// Close ends the session and releases the transport.
func (s *Session) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.deps.Transport.Close()
}

// Updates delivers the latest View after every change. Only the newest view
// is kept if the reader falls behind.
func (s *Session) Updates() <-chan View { return s.updates }

func (s *Session) Snapshot() (View, error) {
	var v View
	err := s.call(func() error {
		v = s.view()
		return nil
	})
	return v, err
}

func (s *Session) teardown() {
	s.once.Do(func() { close(s.done) })
	for _, fn := range s.unsubscribe {
		fn()
	}
	s.leave()
}

func (s *Session) post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) call(fn func() error) error {
	errc := make(chan error, 1)
	if !s.post(func() { errc <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// notify asks the loop to republish; it never blocks, so timer goroutines
// and code already on the loop can both use it.
func (s *Session) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) publish() {
	v := s.view()
	select {
	case <-s.updates:
	default:
	}
	s.updates <- v
}

func (s *Session) view() View {
	v := View{
		Connection: s.conn,
		Unread:     make(map[string]int, len(s.unread)),
		Err:        s.lastErr,
	}
	for k, n := range s.unread {
		v.Unread[k] = n
	}
	if a := s.active; a != nil {
		v.PeerID = a.peerID
		v.Conversation = a.conv
		v.Loading = a.loading
		v.LoadingOlder = a.loadingOlder
		if a.ready() {
			v.Messages = a.store.CurrentSequence()
			v.Pending = a.store.Pending()
			v.PeerTyping = a.typing.PeerTyping()
		}
	}
	return v
}
