// Package timeline keeps the ordered message sequence of one conversation.
//
// Entries are kept in arrival order and are never reordered. Server assigned
// ids are unique within a store; locally sent messages are appended as
// pending entries keyed by their client id and are replaced in place when
// the server echoes them back.
package timeline

import "github.com/cloudzz-dev/cldzchat/internal/client/models"

type Outcome int

const (
	Appended Outcome = iota
	Reconciled
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Reconciled:
		return "reconciled"
	case Duplicate:
		return "duplicate"
	}
	return "unknown"
}

// Store is not safe for concurrent use; it belongs to the session loop of
// the conversation it was created for.
type Store struct {
	conversationID string
	messages       []models.Message
	ids            map[string]struct{}
}

func New(conversationID string) *Store {
	return &Store{
		conversationID: conversationID,
		ids:            make(map[string]struct{}),
	}
}

func (s *Store) ConversationID() string { return s.conversationID }

func (s *Store) Len() int { return len(s.messages) }

// Seed replaces the sequence with a freshly loaded page.
func (s *Store) Seed(page []models.Message) {
	s.messages = make([]models.Message, 0, len(page))
	s.ids = make(map[string]struct{}, len(page))
	for _, m := range page {
		if s.seen(m.ID) {
			continue
		}
		s.add(m)
	}
}

// PrependOlder inserts an older page ahead of the current sequence. Entries
// already present are skipped, so overlapping pages are harmless. It returns
// the number of entries inserted.
func (s *Store) PrependOlder(page []models.Message) int {
	older := make([]models.Message, 0, len(page))
	for _, m := range page {
		if s.seen(m.ID) {
			continue
		}
		if m.ID != "" {
			s.ids[m.ID] = struct{}{}
		}
		older = append(older, m)
	}
	if len(older) == 0 {
		return 0
	}
	s.messages = append(older, s.messages...)
	return len(older)
}

// AppendLive adds a message received live or produced by a local send.
func (s *Store) AppendLive(m models.Message) Outcome {
	if s.seen(m.ID) {
		return Duplicate
	}

	if m.ClientID != "" {
		if i := s.indexOfClientID(m.ClientID); i >= 0 {
			if !s.messages[i].Pending || m.Pending {
				return Duplicate
			}
			s.confirm(i, m)
			return Reconciled
		}
	}

	// Echoes from backends that drop the client id: the oldest pending entry
	// with the same sender, kind and content is taken to be the original.
	if m.ID != "" && m.ClientID == "" && !m.Pending {
		if i := s.indexOfPendingMatch(m); i >= 0 {
			s.confirm(i, m)
			return Reconciled
		}
	}

	s.add(m)
	return Appended
}

// Merge appends every message whose id is not yet present, keeping the
// given order. It is used to catch up after a connection was re-established.
func (s *Store) Merge(page []models.Message) int {
	n := 0
	for _, m := range page {
		if m.ID == "" {
			continue
		}
		if s.AppendLive(m) != Duplicate {
			n++
		}
	}
	return n
}

// CurrentSequence returns a copy of the sequence in display order.
func (s *Store) CurrentSequence() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Pending() int {
	n := 0
	for _, m := range s.messages {
		if m.Pending {
			n++
		}
	}
	return n
}

func (s *Store) seen(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

func (s *Store) add(m models.Message) {
	if m.ID != "" {
		s.ids[m.ID] = struct{}{}
	}
	s.messages = append(s.messages, m)
}

// confirm replaces the pending entry at i with its server echo. The local
// timestamp is kept when the echo has none.
func (s *Store) confirm(i int, echo models.Message) {
	local := s.messages[i]
	echo.Pending = false
	if echo.ClientID == "" {
		echo.ClientID = local.ClientID
	}
	if echo.Timestamp.IsZero() {
		echo.Timestamp = local.Timestamp
	}
	if echo.ConversationID == "" {
		echo.ConversationID = local.ConversationID
	}
	if echo.ID != "" {
		s.ids[echo.ID] = struct{}{}
	}
	s.messages[i] = echo
}

func (s *Store) indexOfClientID(clientID string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ClientID == clientID {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfPendingMatch(m models.Message) int {
	for i, cur := range s.messages {
		if cur.Pending && cur.SenderID == m.SenderID && cur.Kind == m.Kind && cur.Content == m.Content {
			return i
		}
	}
	return -1
}
