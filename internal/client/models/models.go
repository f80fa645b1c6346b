package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind is the content category of a chat message.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// ParseKind maps a wire messageType onto a Kind. Anything unrecognised is text.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindImage:
		return KindImage
	case KindVideo:
		return KindVideo
	case KindDocument:
		return KindDocument
	default:
		return KindText
	}
}

// IsMedia reports whether the message content is an uploaded file URL.
func (k Kind) IsMedia() bool {
	return k == KindImage || k == KindVideo || k == KindDocument
}

type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Status   string `json:"status,omitempty"` // "not_sent", "request_sent" or "friend"
}

func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string `json:"_id"`
		AltID    string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.ID = firstNonEmpty(raw.ID, raw.AltID)
	u.Username = raw.Username
	u.Email = raw.Email
	u.Status = raw.Status
	return nil
}

// Message is one entry of a conversation timeline. ID is empty until the
// server has assigned one; ClientID correlates a locally sent message with
// its server echo.
type Message struct {
	ID             string
	ClientID       string
	ConversationID string
	SenderID       string
	Content        string
	Kind           Kind
	Timestamp      time.Time
	Pending        bool
}

// UnmarshalJSON accepts the message shapes the chat backend produces: ids as
// "_id" or "id", the sender as "senderId", a bare "sender" id or a populated
// sender object.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID             string          `json:"_id"`
		AltID          string          `json:"id"`
		ClientID       string          `json:"clientId"`
		ChatID         string          `json:"chatId"`
		ConversationID string          `json:"conversationId"`
		SenderID       string          `json:"senderId"`
		Sender         json.RawMessage `json:"sender"`
		Content        string          `json:"content"`
		MessageType    string          `json:"messageType"`
		Timestamp      time.Time       `json:"timestamp"`
		CreatedAt      time.Time       `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Message{
		ID:             firstNonEmpty(raw.ID, raw.AltID),
		ClientID:       raw.ClientID,
		ConversationID: firstNonEmpty(raw.ChatID, raw.ConversationID),
		SenderID:       firstNonEmpty(raw.SenderID, senderID(raw.Sender)),
		Content:        raw.Content,
		Kind:           ParseKind(raw.MessageType),
		Timestamp:      raw.Timestamp,
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = raw.CreatedAt
	}
	return nil
}

func senderID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var u User
	if err := json.Unmarshal(raw, &u); err == nil {
		return u.ID
	}
	return ""
}

// Conversation is the client-side state of the selected peer-to-peer chat.
type Conversation struct {
	ID       string
	UserID   string
	PeerID   string
	Page     int
	PageSize int
	HasMore  bool
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
