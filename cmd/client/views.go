package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/cloudzz-dev/cldzchat/internal/client/models"
	"github.com/cloudzz-dev/cldzchat/internal/client/transport"
)

// --- Styles ---

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	mutedColor     = lipgloss.Color("#9CA3AF")
	errorColor     = lipgloss.Color("#EF4444")
	warnColor      = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F9FAFB")).
			Background(primaryColor).
			Padding(0, 1)

	ownMessageStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	otherMessageStyle = lipgloss.NewStyle().
				Foreground(primaryColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// --- View ---

func (m model) View() string {
	switch m.view {
	case viewAuth:
		return m.authView()
	case viewFriends:
		return m.listView("Friends", m.friends, "  No friends yet. Press 'u' to find people.",
			"↑/↓ navigate • Enter chat • d unfriend • r requests • u users • f refresh • c reconnect • Ctrl+L logout • q quit")
	case viewRequests:
		return m.listView("Friend requests", m.requests, "  No pending requests.",
			"↑/↓ navigate • a accept • x decline • Esc back")
	case viewUsers:
		return m.listView("All users", m.users, "  Nobody else is here yet.",
			"↑/↓ navigate • Enter send request • Esc back")
	case viewChat:
		return m.chatView()
	}
	return ""
}

func (m model) authView() string {
	var s strings.Builder

	title := titleStyle.Render("╔═══════════════════════════════╗\n║           CLDZCHAT            ║\n╚═══════════════════════════════╝")

	s.WriteString("\n\n")
	s.WriteString(title)
	s.WriteString("\n\n")

	if m.authAction == "login" {
		s.WriteString(selectedStyle.Render("  → Login"))
		s.WriteString(mutedStyle.Render("   Register\n"))
	} else {
		s.WriteString(mutedStyle.Render("  Login   "))
		s.WriteString(selectedStyle.Render("→ Register\n"))
	}
	s.WriteString(helpStyle.Render("  (Ctrl+R to switch)\n\n"))

	s.WriteString("  Username:\n")
	s.WriteString("  " + m.usernameInput.View() + "\n\n")
	if m.authAction == "register" {
		s.WriteString("  Email:\n")
		s.WriteString("  " + m.emailInput.View() + "\n\n")
	}
	s.WriteString("  Password:\n")
	s.WriteString("  " + m.passwordInput.View() + "\n\n")

	if m.authError != "" {
		s.WriteString(errorStyle.Render("  " + m.authError + "\n\n"))
	}
	if m.busy {
		s.WriteString(mutedStyle.Render("  " + firstNonEmpty(m.status, "Working...") + "\n\n"))
	}

	s.WriteString(helpStyle.Render("  Tab to switch fields • Enter to submit • Esc to quit\n"))
	return s.String()
}

func (m model) listView(title string, users []models.User, empty, help string) string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("CLDZCHAT - %s", m.sess.Username)))
	s.WriteString(" " + m.connectionBadge())
	s.WriteString("\n")
	s.WriteString(mutedStyle.Render("  " + title))
	if m.view == viewFriends && len(m.requests) > 0 {
		s.WriteString(" " + badgeStyle.Render(fmt.Sprintf("%d request(s)", len(m.requests))))
	}
	s.WriteString("\n\n")

	if len(users) == 0 {
		s.WriteString(mutedStyle.Render(empty + "\n"))
	}
	for i, u := range users {
		prefix := "  "
		style := lipgloss.NewStyle()
		if i == m.selected {
			prefix = "→ "
			style = selectedStyle
		}
		line := style.Render(prefix + u.Username)
		if u.Status != "" {
			line += mutedStyle.Render(" (" + u.Status + ")")
		}
		if n := m.live.Unread[u.ID]; n > 0 && m.view == viewFriends {
			line += " " + badgeStyle.Render(fmt.Sprint(n))
		}
		s.WriteString(line + "\n")
	}

	s.WriteString("\n")
	if m.status != "" {
		s.WriteString(warnStyle.Render("  "+m.status) + "\n")
	}
	s.WriteString(helpStyle.Render("  " + help))
	return s.String()
}

func (m model) chatView() string {
	var s strings.Builder
	width := max(m.width-2, 10)

	s.WriteString(titleStyle.Render(fmt.Sprintf("💬 %s", m.peer.Username)))
	s.WriteString(" " + m.connectionBadge())
	if n := m.live.Pending; n > 0 {
		s.WriteString(" " + mutedStyle.Render(fmt.Sprintf("%d sending", n)))
	}
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", width))
	s.WriteString("\n")

	s.WriteString(m.chatViewport.View())
	s.WriteString("\n")

	switch {
	case m.live.Loading:
		s.WriteString(mutedStyle.Render("Loading history..."))
	case m.live.PeerTyping:
		s.WriteString(mutedStyle.Render(m.peer.Username + " is typing..."))
	}
	s.WriteString("\n")
	s.WriteString(strings.Repeat("─", width))
	s.WriteString("\n")
	s.WriteString(m.messageInput.View())
	s.WriteString("\n")

	if msg := m.chatStatus(); msg != "" {
		s.WriteString(warnStyle.Render(msg) + "\n")
	}
	s.WriteString(helpStyle.Render("Enter send • Ctrl+O attach file • PgUp older • Esc back"))
	return s.String()
}

func (m model) chatStatus() string {
	if m.status != "" {
		return m.status
	}
	if m.live.Err != nil {
		return describe(m.live.Err)
	}
	return ""
}

func (m model) connectionBadge() string {
	switch m.live.Connection {
	case transport.StateOpen:
		return selectedStyle.Render("● online")
	case transport.StateConnecting, transport.StateBackoff:
		return warnStyle.Render("● " + m.live.Connection.String())
	default:
		return errorStyle.Render("● offline")
	}
}

// renderTimeline redraws the chat viewport from the latest session view,
// staying at the bottom unless the user scrolled up.
func (m *model) renderTimeline() {
	if m.view != viewChat || m.live.PeerID != m.peer.ID {
		m.chatViewport.SetContent("")
		return
	}
	follow := m.chatViewport.AtBottom()

	var content strings.Builder
	if m.live.Conversation.HasMore {
		content.WriteString(mutedStyle.Render("  ↑ PgUp for older messages") + "\n")
	}
	if m.live.LoadingOlder {
		content.WriteString(mutedStyle.Render("  loading older messages...") + "\n")
	}
	for _, msg := range m.live.Messages {
		timestamp := msg.Timestamp.Local().Format("15:04")
		name, style := m.peer.Username, otherMessageStyle
		if msg.SenderID == m.sess.UserID {
			name, style = m.sess.Username, ownMessageStyle
		}
		body := msg.Content
		if msg.Kind.IsMedia() {
			body = fmt.Sprintf("[%s] %s", msg.Kind, msg.Content)
		}
		line := fmt.Sprintf("%s %s: %s", mutedStyle.Render(timestamp), style.Render(name), body)
		if msg.Pending {
			line += mutedStyle.Render(" …")
		}
		content.WriteString(line + "\n")
	}
	m.chatViewport.SetContent(content.String())
	if follow {
		m.chatViewport.GotoBottom()
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
