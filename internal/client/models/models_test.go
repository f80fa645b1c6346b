package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageUnmarshalSenderShapes(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		sender string
		id     string
	}{
		{"sender id field", `{"_id":"m1","senderId":"u1","content":"hi"}`, "u1", "m1"},
		{"bare sender", `{"id":"m2","sender":"u2","content":"hi"}`, "u2", "m2"},
		{"populated sender", `{"_id":"m3","sender":{"_id":"u3","username":"bob"},"content":"hi"}`, "u3", "m3"},
		{"no sender", `{"_id":"m4","content":"hi"}`, "", "m4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tt.input), &m); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if m.SenderID != tt.sender {
				t.Errorf("SenderID = %q, want %q", m.SenderID, tt.sender)
			}
			if m.ID != tt.id {
				t.Errorf("ID = %q, want %q", m.ID, tt.id)
			}
		})
	}
}

func TestMessageUnmarshalKindAndTime(t *testing.T) {
	var m Message
	input := `{"_id":"m1","chatId":"c1","messageType":"image","content":"/uploads/a.png","createdAt":"2024-05-01T10:00:00Z"}`
	if err := json.Unmarshal([]byte(input), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if m.Kind != KindImage {
		t.Errorf("Kind = %q, want %q", m.Kind, KindImage)
	}
	if m.ConversationID != "c1" {
		t.Errorf("ConversationID = %q, want c1", m.ConversationID)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !m.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", m.Timestamp, want)
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"":         KindText,
		"text":     KindText,
		"IMAGE":    KindImage,
		"video":    KindVideo,
		"document": KindDocument,
		"sticker":  KindText,
	}
	for in, want := range tests {
		if got := ParseKind(in); got != want {
			t.Errorf("ParseKind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUserUnmarshalAcceptsBothIDFields(t *testing.T) {
	var users []User
	if err := json.Unmarshal([]byte(`[{"_id":"a","username":"ann"},{"id":"b","username":"ben"}]`), &users); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if users[0].ID != "a" || users[1].ID != "b" {
		t.Errorf("ids = %q, %q", users[0].ID, users[1].ID)
	}
}
