// Package protocol defines the JSON text frames exchanged with the chat
// backend over the WebSocket connection.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/client/models"
)

type Type string

const (
	TypeAuthenticate Type = "authenticate"
	TypeChat         Type = "chat"
	TypeTyping       Type = "typing"
	TypeStopTyping   Type = "stop_typing"
)

var (
	ErrMalformed   = errors.New("protocol: malformed frame")
	ErrUnknownType = errors.New("protocol: unknown event type")
)

// Event is a single frame. Every frame is one flat JSON object with a "type"
// discriminant; unused fields are omitted on the wire.
type Event struct {
	Type        Type      `json:"type"`
	UserID      string    `json:"userId,omitempty"`
	ChatID      string    `json:"chatId,omitempty"`
	SenderID    string    `json:"senderId,omitempty"`
	Content     string    `json:"content,omitempty"`
	MessageType string    `json:"messageType,omitempty"`
	FileType    string    `json:"fileType,omitempty"`
	ClientID    string    `json:"clientId,omitempty"`
	MessageID   string    `json:"_id,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
}

func Authenticate(userID string) Event {
	return Event{Type: TypeAuthenticate, UserID: userID}
}

func Typing(chatID, senderID string) Event {
	return Event{Type: TypeTyping, ChatID: chatID, SenderID: senderID}
}

func StopTyping(chatID, senderID string) Event {
	return Event{Type: TypeStopTyping, ChatID: chatID, SenderID: senderID}
}

// Chat builds an outbound chat frame for m. Media messages carry their
// category in fileType as well as messageType.
func Chat(m models.Message) Event {
	ev := Event{
		Type:        TypeChat,
		ChatID:      m.ConversationID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		MessageType: string(m.Kind),
		ClientID:    m.ClientID,
	}
	if ev.MessageType == "" {
		ev.MessageType = string(models.KindText)
	}
	if m.Kind.IsMedia() {
		ev.FileType = string(m.Kind)
	}
	return ev
}

// Message converts a chat event into a timeline message.
func (e Event) Message() models.Message {
	return models.Message{
		ID:             e.MessageID,
		ClientID:       e.ClientID,
		ConversationID: e.ChatID,
		SenderID:       e.SenderID,
		Content:        e.Content,
		Kind:           models.ParseKind(e.MessageType),
		Timestamp:      e.Timestamp,
	}
}

func Encode(e Event) ([]byte, error) {
	if !e.Type.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return json.Marshal(e)
}

// Decode parses one inbound frame. Chat frames whose message is nested under
// "message" are flattened so callers only ever see the flat shape.
func Decode(data []byte) (Event, error) {
	var raw struct {
		Event
		Message *models.Message `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ev := raw.Event
	if !ev.Type.valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, ev.Type)
	}

	if m := raw.Message; m != nil && ev.Type == TypeChat {
		ev.MessageID = pick(ev.MessageID, m.ID)
		ev.ClientID = pick(ev.ClientID, m.ClientID)
		ev.ChatID = pick(ev.ChatID, m.ConversationID)
		ev.SenderID = pick(ev.SenderID, m.SenderID)
		ev.Content = pick(ev.Content, m.Content)
		if ev.MessageType == "" {
			ev.MessageType = string(m.Kind)
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = m.Timestamp
		}
	}

	switch ev.Type {
	case TypeAuthenticate:
		if ev.UserID == "" {
			return Event{}, fmt.Errorf("%w: authenticate without userId", ErrMalformed)
		}
	default:
		if ev.ChatID == "" {
			return Event{}, fmt.Errorf("%w: %s without chatId", ErrMalformed, ev.Type)
		}
	}
	return ev, nil
}

func (t Type) valid() bool {
	switch t {
	case TypeAuthenticate, TypeChat, TypeTyping, TypeStopTyping:
		return true
	}
	return false
}

func pick(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
