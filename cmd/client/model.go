package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/client/api"
	"github.com/cloudzz-dev/cldzchat/internal/client/chat"
	"github.com/cloudzz-dev/cldzchat/internal/client/config"
	"github.com/cloudzz-dev/cldzchat/internal/client/models"
	"github.com/cloudzz-dev/cldzchat/internal/client/session"
)

// --- View State ---

type viewState int

const (
	viewAuth viewState = iota
	viewFriends
	viewRequests
	viewUsers
	viewChat
)

// --- Main Model ---

type model struct {
	cfg *config.Config
	api *api.Client
	log *slog.Logger

	// Session
	sess     *session.Session
	chat     *chat.Session
	stopChat context.CancelFunc
	live     chat.View

	// Auth
	authAction    string // "login" or "register"
	usernameInput textinput.Model
	emailInput    textinput.Model
	passwordInput textinput.Model
	authFocused   int
	authError     string
	busy          bool

	// Friends, requests and the user directory share one cursor.
	friends  []models.User
	requests []models.User
	users    []models.User
	selected int

	// Chat
	peer         models.User
	messageInput textinput.Model
	attaching    bool
	chatViewport viewport.Model

	// UI
	status string
	view   viewState
	width  int
	height int
}

func initialModel(cfg *config.Config, c *api.Client, log *slog.Logger, sess *session.Session) model {
	usernameInput := textinput.New()
	usernameInput.Placeholder = "Username"
	usernameInput.Focus()
	usernameInput.CharLimit = 32
	usernameInput.Width = 30

	emailInput := textinput.New()
	emailInput.Placeholder = "Email"
	emailInput.CharLimit = 64
	emailInput.Width = 30

	passwordInput := textinput.New()
	passwordInput.Placeholder = "Password"
	passwordInput.EchoMode = textinput.EchoPassword
	passwordInput.CharLimit = 64
	passwordInput.Width = 30

	messageInput := textinput.New()
	messageInput.Placeholder = "Type a message..."
	messageInput.CharLimit = 1000
	messageInput.Width = 50

	m := model{
		cfg:           cfg,
		api:           c,
		log:           log,
		sess:          sess,
		authAction:    "login",
		usernameInput: usernameInput,
		emailInput:    emailInput,
		passwordInput: passwordInput,
		messageInput:  messageInput,
		chatViewport:  viewport.New(80, 20),
		view:          viewAuth,
	}
	if sess.Valid() {
		m.busy = true
		m.status = "Resuming session..."
	}
	return m
}

// --- Init ---

func (m model) Init() tea.Cmd {
	if m.sess.Valid() {
		return tea.Batch(textinput.Blink, resumeCmd(m.cfg, m.api, m.sess))
	}
	return textinput.Blink
}

// --- Update ---

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.stopSession()
			return m, tea.Quit
		}
		switch m.view {
		case viewAuth:
			return m.updateAuth(msg)
		case viewFriends, viewRequests, viewUsers:
			return m.updateLists(msg)
		case viewChat:
			return m.updateChat(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chatViewport.Width = msg.Width - 4
		m.chatViewport.Height = max(msg.Height-9, 3)
		m.messageInput.Width = max(msg.Width-6, 10)
		m.renderTimeline()

	case authResult:
		m.busy = false
		if msg.err != nil && msg.sess == nil {
			m.status = ""
			m.authError = describe(msg.err)
			if errors.Is(msg.err, api.ErrUnauthorized) {
				if err := session.Clear(m.cfg.Profile); err != nil {
					m.log.Warn("clear session", "error", err)
				}
			}
			return m, nil
		}
		if msg.err != nil {
			m.log.Warn("session not saved", "error", msg.err)
		}
		m.sess = msg.sess
		m.authError = ""
		m.passwordInput.SetValue("")
		m.status = "Connecting..."
		m.view = viewFriends
		return m, tea.Batch(startSessionCmd(m.cfg, m.api, m.sess, m.log), loadFriendsCmd(m.api))

	case sessionStarted:
		if msg.chat == nil {
			m.status = describe(msg.err)
			return m, nil
		}
		m.chat = msg.chat
		m.stopChat = msg.cancel
		m.status = ""
		if msg.err != nil {
			m.status = describe(msg.err)
		}
		return m, waitForView(m.chat)

	case viewMsg:
		m.live = chat.View(msg)
		m.renderTimeline()
		if m.chat != nil {
			return m, waitForView(m.chat)
		}

	case friendsLoaded:
		if m.expired(msg.err) {
			return m.logout("Session expired, please log in again.")
		}
		if msg.err != nil {
			m.status = describe(msg.err)
			return m, nil
		}
		m.friends, m.requests = msg.friends, msg.requests
		m.clampSelection()

	case usersLoaded:
		if m.expired(msg.err) {
			return m.logout("Session expired, please log in again.")
		}
		if msg.err != nil {
			m.status = describe(msg.err)
			return m, nil
		}
		m.users = msg.users
		m.clampSelection()

	case actionDone:
		if m.expired(msg.err) {
			return m.logout("Session expired, please log in again.")
		}
		m.status = msg.note
		if msg.err != nil {
			m.status = describe(msg.err)
		}
		if msg.refresh {
			return m, tea.Batch(loadFriendsCmd(m.api), loadUsersCmd(m.api))
		}

	default:
		// Cursor blink and other component ticks.
		var cmd tea.Cmd
		switch m.view {
		case viewAuth:
			inputs := m.authInputs()
			*inputs[m.authFocused], cmd = inputs[m.authFocused].Update(msg)
		case viewChat:
			m.messageInput, cmd = m.messageInput.Update(msg)
		}
		return m, cmd
	}

	return m, nil
}

func (m model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	inputs := m.authInputs()
	switch msg.String() {
	case "esc":
		return m, tea.Quit

	case "tab", "shift+tab":
		step := 1
		if msg.String() == "shift+tab" {
			step = len(inputs) - 1
		}
		inputs[m.authFocused].Blur()
		m.authFocused = (m.authFocused + step) % len(inputs)
		inputs[m.authFocused].Focus()
		return m, nil

	case "ctrl+r":
		inputs[m.authFocused].Blur()
		if m.authAction == "login" {
			m.authAction = "register"
		} else {
			m.authAction = "login"
		}
		m.authFocused = 0
		m.usernameInput.Focus()
		return m, nil

	case "enter":
		if m.busy {
			return m, nil
		}
		username := strings.TrimSpace(m.usernameInput.Value())
		password := m.passwordInput.Value()
		if username == "" || password == "" {
			m.authError = "Username and password are required."
			return m, nil
		}
		m.busy = true
		m.authError = ""
		if m.authAction == "register" {
			return m, registerCmd(m.cfg, m.api, username, strings.TrimSpace(m.emailInput.Value()), password)
		}
		return m, loginCmd(m.cfg, m.api, username, password)
	}

	var cmd tea.Cmd
	*inputs[m.authFocused], cmd = inputs[m.authFocused].Update(msg)
	return m, cmd
}

// authInputs lists the fields of the current auth form in tab order.
func (m *model) authInputs() []*textinput.Model {
	if m.authAction == "register" {
		return []*textinput.Model{&m.usernameInput, &m.emailInput, &m.passwordInput}
	}
	return []*textinput.Model{&m.usernameInput, &m.passwordInput}
}

func (m model) updateLists(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	list := m.currentList()
	switch msg.String() {
	case "q":
		if m.view == viewFriends {
			m.stopSession()
			return m, tea.Quit
		}
		m.view = viewFriends
		m.selected = 0
	case "esc":
		m.view = viewFriends
		m.selected = 0
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(list)-1 {
			m.selected++
		}
	case "r":
		m.view = viewRequests
		m.selected = 0
		return m, loadFriendsCmd(m.api)
	case "u":
		m.view = viewUsers
		m.selected = 0
		return m, loadUsersCmd(m.api)
	case "f":
		return m, tea.Batch(loadFriendsCmd(m.api), loadUsersCmd(m.api))
	case "c":
		if s := m.chat; s != nil {
			m.status = "Reconnecting..."
			return m, func() tea.Msg {
				return actionDone{note: "Connected.", err: s.Connect(context.Background())}
			}
		}
	case "ctrl+l":
		return m.logout("Logged out.")
	}

	if len(list) == 0 {
		return m, nil
	}
	target := list[m.selected]

	switch {
	case m.view == viewFriends && msg.String() == "enter":
		return m.openChat(target)
	case m.view == viewFriends && msg.String() == "d":
		return m, friendCmd("Removed "+target.Username, func(ctx context.Context) error {
			return m.api.RemoveFriend(ctx, target.ID)
		})
	case m.view == viewRequests && msg.String() == "a":
		return m, friendCmd("You and "+target.Username+" are now friends", func(ctx context.Context) error {
			return m.api.AcceptRequest(ctx, target.ID)
		})
	case m.view == viewRequests && msg.String() == "x":
		return m, friendCmd("Declined "+target.Username, func(ctx context.Context) error {
			return m.api.DeclineRequest(ctx, target.ID)
		})
	case m.view == viewUsers && msg.String() == "enter":
		return m, friendCmd("Request sent to "+target.Username, func(ctx context.Context) error {
			return m.api.SendRequest(ctx, target.ID)
		})
	}
	return m, nil
}

func (m model) openChat(peer models.User) (tea.Model, tea.Cmd) {
	if m.chat == nil {
		m.status = "Not connected yet."
		return m, nil
	}
	m.peer = peer
	m.view = viewChat
	m.attaching = false
	m.status = ""
	m.messageInput.Reset()
	m.messageInput.Placeholder = "Type a message..."
	m.messageInput.Focus()
	s := m.chat
	return m, chatCmd(func() error { return s.Select(peer.ID) })
}

func (m model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.chat
	switch msg.String() {
	case "esc":
		if m.attaching {
			m.attaching = false
			m.messageInput.Reset()
			m.messageInput.Placeholder = "Type a message..."
			return m, nil
		}
		m.view = viewFriends
		m.messageInput.Blur()
		return m, loadFriendsCmd(m.api)

	case "pgup":
		if m.chatViewport.AtTop() {
			return m, chatCmd(s.LoadOlder)
		}
		m.chatViewport.ViewUp()
		return m, nil

	case "pgdown":
		m.chatViewport.ViewDown()
		return m, nil

	case "ctrl+o":
		m.attaching = !m.attaching
		m.messageInput.Reset()
		if m.attaching {
			m.messageInput.Placeholder = "Path of file to send..."
		} else {
			m.messageInput.Placeholder = "Type a message..."
		}
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.messageInput.Value())
		if value == "" {
			return m, nil
		}
		m.messageInput.Reset()
		if m.attaching {
			m.attaching = false
			m.messageInput.Placeholder = "Type a message..."
			m.status = "Uploading " + value + "..."
			return m, sendFileCmd(s, value)
		}
		return m, chatCmd(func() error { return s.SendText(value) })
	}

	var cmd tea.Cmd
	before := m.messageInput.Value()
	m.messageInput, cmd = m.messageInput.Update(msg)
	if !m.attaching && m.messageInput.Value() != before {
		// Typing errors only mean the indicator was not sent.
		return m, tea.Batch(cmd, func() tea.Msg {
			s.Typing()
			return nil
		})
	}
	return m, cmd
}

func (m *model) currentList() []models.User {
	switch m.view {
	case viewRequests:
		return m.requests
	case viewUsers:
		return m.users
	default:
		return m.friends
	}
}

func (m *model) clampSelection() {
	if n := len(m.currentList()); m.selected >= n {
		m.selected = max(n-1, 0)
	}
}

func (m *model) expired(err error) bool {
	return err != nil && errors.Is(err, api.ErrUnauthorized)
}

// logout tears the session down and returns to the auth screen.
func (m model) logout(note string) (tea.Model, tea.Cmd) {
	m.stopSession()
	if err := session.Clear(m.cfg.Profile); err != nil {
		m.log.Warn("clear session", "error", err)
	}
	m.api.SetToken("")
	m.sess = nil
	m.live = chat.View{}
	m.friends, m.requests, m.users = nil, nil, nil
	m.selected = 0
	m.view = viewAuth
	m.authError = note
	m.status = ""
	m.authFocused = 0
	m.usernameInput.Focus()
	return m, nil
}

func (m *model) stopSession() {
	if m.chat != nil {
		m.chat.Close()
		m.chat = nil
	}
	if m.stopChat != nil {
		m.stopChat()
		m.stopChat = nil
	}
}

func describe(err error) string {
	if err == nil {
		return ""
	}
	var fe *api.FetchError
	if errors.As(err, &fe) && fe.Err != nil {
		return fmt.Sprintf("%s failed: %v", fe.Op, fe.Err)
	}
	return err.Error()
}
