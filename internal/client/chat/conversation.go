package chat

import (
	"context"
	"strings"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/client/attachment"
	"github.com/cloudzz-dev/cldzchat/internal/client/history"
	"github.com/cloudzz-dev/cldzchat/internal/client/models"
	"github.com/cloudzz-dev/cldzchat/internal/client/presence"
	"github.com/cloudzz-dev/cldzchat/internal/client/protocol"
	"github.com/cloudzz-dev/cldzchat/internal/client/timeline"
	"github.com/cloudzz-dev/cldzchat/internal/client/transport"
)

// Select makes peerID the active conversation. State of the previous
// conversation is discarded and its in-flight fetches are cancelled; their
// results are ignored if they still arrive.
func (s *Session) Select(peerID string) error {
	return s.call(func() error {
		s.leave()
		s.gen++
		s.active = &conversation{
			gen:     s.gen,
			peerID:  peerID,
			loading: true,
		}
		s.lastErr = nil
		delete(s.unread, peerID)

		s.loadFirstPage(s.active)
		s.publish()
		return nil
	})
}

// loadFirstPage fetches the newest page of a. Live events for a are
// buffered until it arrives.
func (s *Session) loadFirstPage(a *conversation) {
	ctx, cancel := context.WithCancel(s.ctx)
	a.cancel = cancel
	gen, peerID := a.gen, a.peerID
	go func() {
		res, err := s.deps.History.LoadFirstPage(ctx, peerID)
		s.post(func() { s.firstPageLoaded(gen, res, err) })
	}()
}

// LoadOlder fetches the next older page. It is a no-op while a page is
// already loading or when the conversation has no more history.
func (s *Session) LoadOlder() error {
	return s.call(func() error {
		a := s.active
		if !a.ready() {
			return ErrNoConversation
		}
		if a.loadingOlder || !a.conv.HasMore {
			return nil
		}
		a.loadingOlder = true

		gen, conv := a.gen, a.conv
		ctx := s.ctx
		go func() {
			res, err := s.deps.History.LoadNextPage(ctx, conv)
			s.post(func() { s.olderLoaded(gen, res, err) })
		}()
		s.publish()
		return nil
	})
}

// SendText sends a text message and shows it immediately as pending.
func (s *Session) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return s.call(func() error {
		a := s.active
		if !a.ready() {
			return ErrNoConversation
		}
		return s.send(models.Message{
			ClientID:       s.deps.NewClientID(),
			ConversationID: a.conv.ID,
			SenderID:       s.userID,
			Content:        text,
			Kind:           models.KindText,
			Timestamp:      time.Now(),
			Pending:        true,
		})
	})
}

// SendAttachment uploads f and then sends a message referencing it. If the
// user switches conversations during the upload, nothing is sent and
// ErrConversationChanged is returned.
func (s *Session) SendAttachment(ctx context.Context, f attachment.File) error {
	var gen int
	if err := s.call(func() error {
		if !s.active.ready() {
			return ErrNoConversation
		}
		gen = s.active.gen
		return nil
	}); err != nil {
		return err
	}

	res, err := s.deps.Uploads.Upload(ctx, f)
	if err != nil {
		s.log.Warn("upload failed", "file", f.Name, "error", err)
		return err
	}

	return s.call(func() error {
		a := s.active
		if !a.ready() || a.gen != gen {
			return ErrConversationChanged
		}
		return s.send(res.Message(a.conv.ID, s.userID, s.deps.NewClientID()))
	})
}

// SendFile opens path and sends it as an attachment.
func (s *Session) SendFile(ctx context.Context, path string) error {
	f, fh, err := attachment.OpenFile(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	return s.SendAttachment(ctx, f)
}

// Typing reports a local keystroke in the active conversation.
func (s *Session) Typing() error {
	return s.call(func() error {
		if !s.active.ready() {
			return ErrNoConversation
		}
		return s.active.typing.NotifyTyping()
	})
}

// send runs on the loop. Sending requires an open transport; nothing is
// appended when the frame could not be queued.
func (s *Session) send(m models.Message) error {
	a := s.active
	if s.deps.Transport.State() != transport.StateOpen {
		return transport.ErrNotReady
	}
	if err := s.deps.Transport.Send(protocol.Chat(m)); err != nil {
		return err
	}
	a.store.AppendLive(m)
	if err := a.typing.Flush(); err != nil {
		s.log.Debug("stop typing not sent", "error", err)
	}
	s.publish()
	return nil
}

func (s *Session) firstPageLoaded(gen int, res history.Result, err error) {
	a := s.active
	if a == nil || a.gen != gen {
		s.log.Debug("discarding stale history page", "conversation", res.ConversationID)
		return
	}
	a.cancel()

	if err == nil && a.overflow {
		// The buffer lost events. A page fetched now already holds them, and
		// anything older stays reachable through LoadOlder.
		s.log.Debug("live buffer overflowed, reloading", "peer", a.peerID, "buffered", len(a.buffer))
		s.countUnread(a.buffer, res.ConversationID)
		a.buffer = nil
		a.overflow = false
		s.loadFirstPage(a)
		s.publish()
		return
	}
	a.loading = false

	if err != nil {
		s.log.Warn("history load failed", "peer", a.peerID, "error", err)
		s.lastErr = err
		s.countUnread(a.buffer, "")
		a.buffer = nil
		s.publish()
		return
	}

	a.conv = models.Conversation{
		ID:       res.ConversationID,
		UserID:   s.userID,
		PeerID:   a.peerID,
		Page:     res.Page,
		PageSize: s.deps.History.PageSize(),
		HasMore:  res.HasMore,
	}
	a.store = timeline.New(res.ConversationID)
	a.store.Seed(res.Messages)
	a.typing = presence.New(presence.Config{
		ChatID:        res.ConversationID,
		UserID:        s.userID,
		PeerID:        a.peerID,
		Window:        s.deps.TypingWindow,
		RemoteTimeout: s.deps.RemoteTypingTimeout,
	}, s.deps.Transport.Send)
	a.typing.OnChange(func(bool) { s.notify() })

	buffered := a.buffer
	a.buffer = nil
	for _, ev := range buffered {
		if ev.ChatID == a.conv.ID {
			s.apply(a, ev)
		}
	}
	s.countUnread(buffered, a.conv.ID)

	s.log.Debug("conversation ready", "conversation", a.conv.ID, "messages", a.store.Len(), "replayed", len(buffered))
	s.publish()
}

func (s *Session) olderLoaded(gen int, res history.Result, err error) {
	a := s.active
	if a == nil || a.gen != gen {
		return
	}
	a.loadingOlder = false
	if err != nil {
		s.lastErr = err
		s.publish()
		return
	}
	a.store.PrependOlder(res.Messages)
	a.conv.Page = res.Page
	a.conv.HasMore = res.HasMore
	s.publish()
}

// resync fetches the newest page again and appends whatever was missed,
// e.g. while the connection was down.
func (s *Session) resync() {
	a := s.active
	if !a.ready() {
		return
	}
	gen, peerID := a.gen, a.peerID
	ctx := s.ctx
	go func() {
		res, err := s.deps.History.LoadFirstPage(ctx, peerID)
		s.post(func() {
			a := s.active
			if a == nil || a.gen != gen || !a.ready() {
				return
			}
			if err != nil {
				s.lastErr = err
				s.publish()
				return
			}
			if res.ConversationID != a.store.ConversationID() {
				return
			}
			if n := a.store.Merge(res.Messages); n > 0 {
				s.log.Debug("resync merged messages", "count", n)
			}
			s.publish()
		})
	}()
}

func (s *Session) handleEvent(ev protocol.Event) {
	if ev.Type == protocol.TypeAuthenticate {
		return
	}

	a := s.active
	switch {
	case a != nil && a.loading:
		if len(a.buffer) >= s.deps.BufferLimit {
			a.buffer = a.buffer[1:]
			a.overflow = true
		}
		a.buffer = append(a.buffer, ev)
		return
	case a.ready() && ev.ChatID == a.conv.ID:
		s.apply(a, ev)
	case ev.Type == protocol.TypeChat && ev.SenderID != s.userID:
		s.unread[ev.SenderID]++
	default:
		return
	}
	s.publish()
}

func (s *Session) apply(a *conversation, ev protocol.Event) {
	switch ev.Type {
	case protocol.TypeChat:
		m := ev.Message()
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now()
		}
		a.store.AppendLive(m)
		a.typing.OnRemoteMessage(m.SenderID)
	case protocol.TypeTyping:
		a.typing.OnRemoteTyping(ev.SenderID)
	case protocol.TypeStopTyping:
		a.typing.OnRemoteStopTyping(ev.SenderID)
	}
}

// countUnread credits chat events that were not for keepID to their senders.
func (s *Session) countUnread(events []protocol.Event, keepID string) {
	for _, ev := range events {
		if ev.Type == protocol.TypeChat && ev.ChatID != keepID && ev.SenderID != s.userID && ev.SenderID != "" {
			s.unread[ev.SenderID]++
		}
	}
}

func (s *Session) handleState(sc transport.StateChange) {
	prev := s.conn
	s.conn = sc.State
	if sc.State == transport.StateClosed && sc.Err != nil {
		s.lastErr = sc.Err
	}
	if sc.State == transport.StateOpen && prev != transport.StateOpen && sc.Attempt > 0 {
		s.resync()
	}
	s.publish()
}

// leave drops the active conversation.
func (s *Session) leave() {
	a := s.active
	if a == nil {
		return
	}
	a.cancel()
	if a.typing != nil {
		a.typing.Stop()
	}
	s.active = nil
}
