package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/server/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	// UserID is set by the authenticate frame. Until then the client is not
	// registered with the hub and everything else is ignored.
	UserID string
	// Claimed is the user a bearer token on the upgrade request vouched
	// for. When set, authenticate must name the same user.
	Claimed string
	Log     *slog.Logger
	send    chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, claimed string, log *slog.Logger) *Client {
	return &Client{
		Hub:     hub,
		Conn:    conn,
		Claimed: claimed,
		Log:     log,
		send:    make(chan []byte, 256),
	}
}

func (c *Client) ReadPump() {
	defer func() {
		if c.UserID != "" {
			c.Hub.Unregister(c)
		} else {
			close(c.send)
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msgBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.Log.Debug("read failed", "user", c.UserID, "error", err)
			}
			return
		}

		var frame models.Frame
		if err := json.Unmarshal(msgBytes, &frame); err != nil {
			c.Log.Debug("ignoring malformed frame", "error", err)
			continue
		}
		if !c.ProcessFrame(frame) {
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ProcessFrame handles one inbound frame. It returns false when the
// connection should be dropped.
func (c *Client) ProcessFrame(frame models.Frame) bool {
	if c.UserID == "" {
		if frame.Type != models.FrameAuthenticate {
			c.Log.Debug("frame before authenticate", "type", frame.Type)
			return true
		}
		return c.authenticate(frame.UserID)
	}

	switch frame.Type {
	case models.FrameChat:
		if strings.TrimSpace(frame.Content) == "" {
			return true
		}
		peer, err := c.Hub.Store.Peer(frame.ChatID, c.UserID)
		if err != nil {
			c.sendError("chat " + frame.ChatID + ": " + err.Error())
			return true
		}
		msg, err := c.Hub.Store.SaveMessage(frame.ChatID, c.UserID, frame.Content, frame.MessageType, frame.FileType)
		if err != nil {
			c.sendError(err.Error())
			return true
		}
		c.Hub.Send(marshal(models.Frame{
			Type:        models.FrameChat,
			ID:          msg.ID,
			ChatID:      msg.ChatID,
			SenderID:    msg.SenderID,
			Content:     msg.Content,
			MessageType: msg.MessageType,
			FileType:    msg.FileType,
			ClientID:    frame.ClientID,
			Timestamp:   msg.CreatedAt,
		}), c.UserID, peer)

	case models.FrameTyping, models.FrameStopTyping:
		peer, err := c.Hub.Store.Peer(frame.ChatID, c.UserID)
		if err != nil {
			return true
		}
		c.Hub.Send(marshal(models.Frame{
			Type:     frame.Type,
			ChatID:   frame.ChatID,
			SenderID: c.UserID,
		}), peer)

	case models.FrameAuthenticate:
		// Already authenticated.

	default:
		c.Log.Debug("ignoring unknown frame", "type", frame.Type)
	}
	return true
}

func (c *Client) authenticate(userID string) bool {
	if userID == "" {
		c.sendError("authenticate requires userId")
		return true
	}
	if c.Claimed != "" && c.Claimed != userID {
		c.Log.Warn("authenticate does not match token", "claimed", c.Claimed, "user", userID)
		return false
	}
	if _, err := c.Hub.Store.GetUserByID(userID); err != nil {
		c.sendError("unknown user")
		return false
	}
	c.UserID = userID
	if !c.Hub.Register(c) {
		c.UserID = ""
		return false
	}
	c.Log.Info("client authenticated", "user", userID)
	return true
}

// sendError reports a problem to this connection only. Before authenticate
// the read pump owns send; afterwards the hub does.
func (c *Client) sendError(msg string) {
	data := marshal(models.Frame{Type: models.FrameError, Error: msg})
	if c.UserID != "" {
		c.Hub.sendTo(c, data)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func marshal(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
