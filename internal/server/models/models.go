package models

import "time"

type User struct {
	ID           string    `json:"_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Message struct {
	ID          string    `json:"_id"`
	ChatID      string    `json:"chatId"`
	SenderID    string    `json:"senderId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	FileType    string    `json:"fileType,omitempty"`
	CreatedAt   time.Time `json:"timestamp"`
}

// Chat is the one conversation between two users.
type Chat struct {
	ID           string    `json:"_id"`
	Participants [2]string `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ChatPage struct {
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
	HasMore        bool      `json:"hasMore"`
}

// WS frames. Every frame is flat with a type discriminant.

const (
	FrameAuthenticate = "authenticate"
	FrameChat         = "chat"
	FrameTyping       = "typing"
	FrameStopTyping   = "stop_typing"
	FrameError        = "error"
)

type Frame struct {
	Type        string    `json:"type"`
	UserID      string    `json:"userId,omitempty"`
	ChatID      string    `json:"chatId,omitempty"`
	SenderID    string    `json:"senderId,omitempty"`
	Content     string    `json:"content,omitempty"`
	MessageType string    `json:"messageType,omitempty"`
	FileType    string    `json:"fileType,omitempty"`
	ClientID    string    `json:"clientId,omitempty"`
	ID          string    `json:"_id,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
	Error       string    `json:"error,omitempty"`
}

// REST payloads

type Credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type FriendAction struct {
	ReceiverID string `json:"receiverId"`
	SenderID   string `json:"senderId"`
	FriendID   string `json:"friendId"`
}

type UploadResponse struct {
	FileURL string `json:"fileUrl"`
}
