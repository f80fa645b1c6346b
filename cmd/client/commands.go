package main

import (
	"context"
	"log/slog"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/client/api"
	"github.com/cloudzz-dev/cldzchat/internal/client/attachment"
	"github.com/cloudzz-dev/cldzchat/internal/client/chat"
	"github.com/cloudzz-dev/cldzchat/internal/client/config"
	"github.com/cloudzz-dev/cldzchat/internal/client/history"
	"github.com/cloudzz-dev/cldzchat/internal/client/models"
	"github.com/cloudzz-dev/cldzchat/internal/client/session"
	"github.com/cloudzz-dev/cldzchat/internal/client/transport"
)

// --- Messages ---

type authResult struct {
	sess *session.Session
	err  error
}

type sessionStarted struct {
	chat   *chat.Session
	cancel context.CancelFunc
	err    error
}

type viewMsg chat.View

type friendsLoaded struct {
	friends  []models.User
	requests []models.User
	err      error
}

type usersLoaded struct {
	users []models.User
	err   error
}

type actionDone struct {
	note    string
	err     error
	refresh bool
}

// --- Commands ---

func loginCmd(cfg *config.Config, c *api.Client, username, password string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if _, err := c.Login(ctx, username, password); err != nil {
			return authResult{err: err}
		}
		return finishAuth(ctx, cfg, c)
	}
}

func registerCmd(cfg *config.Config, c *api.Client, username, email, password string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		token, err := c.Register(ctx, username, email, password)
		if err != nil {
			return authResult{err: err}
		}
		if token == "" {
			if _, err := c.Login(ctx, username, password); err != nil {
				return authResult{err: err}
			}
		}
		return finishAuth(ctx, cfg, c)
	}
}

// resumeCmd checks that a stored token is still accepted.
func resumeCmd(cfg *config.Config, c *api.Client, sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		c.SetToken(sess.Token)
		return finishAuth(context.Background(), cfg, c)
	}
}

func finishAuth(ctx context.Context, cfg *config.Config, c *api.Client) tea.Msg {
	me, err := c.Me(ctx)
	if err != nil {
		return authResult{err: err}
	}
	sess := &session.Session{
		APIURL:   cfg.APIURL,
		WSURL:    cfg.WSURL,
		Username: me.Username,
		UserID:   me.ID,
		Token:    c.Token(),
	}
	if err := session.Save(cfg.Profile, sess); err != nil {
		return authResult{sess: sess, err: err}
	}
	return authResult{sess: sess}
}

// startSessionCmd opens the transport and starts the chat session loop.
func startSessionCmd(cfg *config.Config, c *api.Client, sess *session.Session, log *slog.Logger) tea.Cmd {
	return func() tea.Msg {
		tr := transport.New(transport.Config{
			URL:        sess.WSURL,
			Header:     http.Header{"Authorization": {sess.Authorization()}},
			MaxRetries: cfg.Reconnect.Retries,
			Backoff:    transport.Backoff{Base: cfg.Reconnect.Base, Max: cfg.Reconnect.Max},
			Logger:     log,
		})
		s, err := chat.New(chat.Deps{
			Session:   sess,
			Transport: tr,
			History:   history.NewLoader(c, cfg.PageSize),
			Uploads:   attachment.NewPipeline(c),
			Logger:    log,
		})
		if err != nil {
			return sessionStarted{err: err}
		}

		ctx, cancel := context.WithCancel(context.Background())
		go s.Run(ctx)
		// A failed first dial still leaves a usable session; the view
		// shows the transport as closed.
		err = s.Connect(ctx)
		return sessionStarted{chat: s, cancel: cancel, err: err}
	}
}

func waitForView(s *chat.Session) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-s.Updates()
		if !ok {
			return nil
		}
		return viewMsg(v)
	}
}

func loadFriendsCmd(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		friends, err := c.Friends(ctx)
		if err != nil {
			return friendsLoaded{err: err}
		}
		requests, err := c.ReceivedRequests(ctx)
		return friendsLoaded{friends: friends, requests: requests, err: err}
	}
}

func loadUsersCmd(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		users, err := c.AllUsers(context.Background())
		return usersLoaded{users: users, err: err}
	}
}

// friendCmd runs a friend-graph action and asks for a refresh afterwards.
func friendCmd(note string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionDone{note: note, err: fn(context.Background()), refresh: true}
	}
}

func chatCmd(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return actionDone{err: err}
		}
		return nil
	}
}

func sendFileCmd(s *chat.Session, path string) tea.Cmd {
	return func() tea.Msg {
		if err := s.SendFile(context.Background(), path); err != nil {
			return actionDone{err: err}
		}
		return actionDone{note: "sent " + path}
	}
}
