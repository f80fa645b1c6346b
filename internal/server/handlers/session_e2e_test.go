package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/client/api"
	"github.com/cloudzz-dev/cldzchat/internal/client/attachment"
	"github.com/cloudzz-dev/cldzchat/internal/client/chat"
	"github.com/cloudzz-dev/cldzchat/internal/client/history"
	"github.com/cloudzz-dev/cldzchat/internal/client/models"
	"github.com/cloudzz-dev/cldzchat/internal/client/session"
	"github.com/cloudzz-dev/cldzchat/internal/client/transport"
)

func (ts *testServer) startSession(t *testing.T, c *api.Client, userID string) *chat.Session {
	t.Helper()
	tr := transport.New(transport.Config{
		URL:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		Header: http.Header{"Authorization": {"Bearer " + c.Token()}},
	})
	s, err := chat.New(chat.Deps{
		Session:   &session.Session{APIURL: ts.URL, UserID: userID, Token: c.Token()},
		Transport: tr,
		History:   history.NewLoader(c, history.DefaultPageSize),
		Uploads:   attachment.NewPipeline(c),
	})
	if err != nil {
		t.Fatalf("chat.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		s.Close()
		cancel()
		<-done
	})

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ts.waitOnline(t, userID)
	return s
}

func waitView(t *testing.T, s *chat.Session, what string, ok func(chat.View) bool) chat.View {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		v, err := s.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if ok(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; view = %+v", what, v)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionsExchangeMessages(t *testing.T) {
	ts := newTestServer(t)
	aliceAPI, aliceID := ts.register(t, "alice")
	bobAPI, bobID := ts.register(t, "bob")

	alice := ts.startSession(t, aliceAPI, aliceID)
	bob := ts.startSession(t, bobAPI, bobID)

	if err := alice.Select(bobID); err != nil {
		t.Fatal(err)
	}
	waitView(t, alice, "alice's conversation", func(v chat.View) bool { return v.Conversation.ID != "" && !v.Loading })

	if err := alice.SendText("hello bob"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	v := waitView(t, alice, "confirmed send", func(v chat.View) bool {
		return len(v.Messages) == 1 && !v.Messages[0].Pending
	})
	if v.Messages[0].ID == "" || v.Messages[0].SenderID != aliceID {
		t.Errorf("confirmed message = %+v", v.Messages[0])
	}

	waitView(t, bob, "unread from alice", func(v chat.View) bool { return v.Unread[aliceID] == 1 })

	if err := bob.Select(aliceID); err != nil {
		t.Fatal(err)
	}
	v = waitView(t, bob, "bob's history", func(v chat.View) bool { return len(v.Messages) == 1 && !v.Loading })
	if v.Messages[0].Content != "hello bob" || v.Unread[aliceID] != 0 {
		t.Errorf("bob view = %+v", v)
	}

	err := alice.SendAttachment(context.Background(), attachment.File{
		Name:      "cat.png",
		MediaType: "image/png",
		Body:      strings.NewReader("\x89PNG fake"),
	})
	if err != nil {
		t.Fatalf("SendAttachment: %v", err)
	}
	v = waitView(t, bob, "image message", func(v chat.View) bool { return len(v.Messages) == 2 })
	img := v.Messages[1]
	if img.Kind != models.KindImage || !strings.HasPrefix(img.Content, ts.URL+"/uploads/") {
		t.Errorf("image message = %+v", img)
	}
}

func TestSessionTypingReachesPeer(t *testing.T) {
	ts := newTestServer(t)
	aliceAPI, aliceID := ts.register(t, "alice")
	bobAPI, bobID := ts.register(t, "bob")

	alice := ts.startSession(t, aliceAPI, aliceID)
	bob := ts.startSession(t, bobAPI, bobID)

	for _, s := range []struct {
		s    *chat.Session
		peer string
	}{{alice, bobID}, {bob, aliceID}} {
		if err := s.s.Select(s.peer); err != nil {
			t.Fatal(err)
		}
		waitView(t, s.s, "conversation", func(v chat.View) bool { return v.Conversation.ID != "" && !v.Loading })
	}

	if err := alice.Typing(); err != nil {
		t.Fatalf("Typing: %v", err)
	}
	waitView(t, bob, "peer typing", func(v chat.View) bool { return v.PeerTyping })

	if err := alice.SendText("done typing"); err != nil {
		t.Fatal(err)
	}
	waitView(t, bob, "typing cleared", func(v chat.View) bool {
		return !v.PeerTyping && len(v.Messages) == 1
	})
}

func TestSessionSendRequiresOpenTransport(t *testing.T) {
	ts := newTestServer(t)
	aliceAPI, aliceID := ts.register(t, "alice")
	_, bobID := ts.register(t, "bob")
	alice := ts.startSession(t, aliceAPI, aliceID)

	if err := alice.Select(bobID); err != nil {
		t.Fatal(err)
	}
	waitView(t, alice, "conversation", func(v chat.View) bool { return v.Conversation.ID != "" && !v.Loading })

	ts.stopHub()
	waitView(t, alice, "closed transport", func(v chat.View) bool { return v.Connection == transport.StateClosed })

	if err := alice.SendText("anyone?"); err != transport.ErrNotReady {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}
