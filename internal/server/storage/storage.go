// Package storage keeps users, friendships and chats in memory.
package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/server/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrExists         = errors.New("already exists")
	ErrNotParticipant = errors.New("not a participant")
	ErrInvalid        = errors.New("invalid request")
)

type Store struct {
	mu sync.RWMutex

	users      map[string]*models.User
	byUsername map[string]string
	tokens     map[string]string

	friends  map[string]map[string]bool
	requests map[string]map[string]bool // receiver -> senders

	chats    map[string]*models.Chat
	byPair   map[string]string
	messages map[string][]models.Message
}

func New() *Store {
	return &Store{
		users:      make(map[string]*models.User),
		byUsername: make(map[string]string),
		tokens:     make(map[string]string),
		friends:    make(map[string]map[string]bool),
		requests:   make(map[string]map[string]bool),
		chats:      make(map[string]*models.Chat),
		byPair:     make(map[string]string),
		messages:   make(map[string][]models.Message),
	}
}

// User Methods

func (s *Store) CreateUser(username, email, passwordHash string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return models.User{}, ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	if _, ok := s.byUsername[key]; ok {
		return models.User{}, fmt.Errorf("user %s: %w", username, ErrExists)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Status:       "offline",
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	s.byUsername[key] = u.ID
	return *u, nil
}

func (s *Store) GetUserByUsername(username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return *s.users[id], nil
}

func (s *Store) GetUserByID(id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return *u, nil
}

// AllUsers lists every user except exceptID, ordered by username.
func (s *Store) AllUsers(exceptID string) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for id, u := range s.users {
		if id != exceptID {
			out = append(out, *u)
		}
	}
	sortUsers(out)
	return out
}

func (s *Store) SetStatus(userID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Status = status
	}
}

// Tokens

func (s *Store) IssueToken(userID string) string {
	tok := uuid.NewString()
	s.mu.Lock()
	s.tokens[tok] = userID
	s.mu.Unlock()
	return tok
}

func (s *Store) UserForToken(token string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return *s.users[id], nil
}

// Friend graph

func (s *Store) SendRequest(from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from == to {
		return ErrInvalid
	}
	if _, ok := s.users[to]; !ok {
		return ErrNotFound
	}
	if s.friends[from][to] || s.requests[to][from] {
		return ErrExists
	}
	// A request in the other direction means both want it.
	if s.requests[from][to] {
		delete(s.requests[from], to)
		s.befriendLocked(from, to)
		return nil
	}
	addEdge(s.requests, to, from)
	return nil
}

func (s *Store) ReceivedRequests(userID string) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usersLocked(s.requests[userID])
}

func (s *Store) AcceptRequest(userID, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.requests[userID][senderID] {
		return ErrNotFound
	}
	delete(s.requests[userID], senderID)
	s.befriendLocked(userID, senderID)
	return nil
}

func (s *Store) DeclineRequest(userID, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.requests[userID][senderID] {
		return ErrNotFound
	}
	delete(s.requests[userID], senderID)
	return nil
}

func (s *Store) Friends(userID string) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usersLocked(s.friends[userID])
}

func (s *Store) RemoveFriend(userID, friendID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.friends[userID][friendID] {
		return ErrNotFound
	}
	delete(s.friends[userID], friendID)
	delete(s.friends[friendID], userID)
	return nil
}

func (s *Store) befriendLocked(a, b string) {
	addEdge(s.friends, a, b)
	addEdge(s.friends, b, a)
}

func (s *Store) usersLocked(ids map[string]bool) []models.User {
	out := make([]models.User, 0, len(ids))
	for id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	sortUsers(out)
	return out
}

// Chats

// ChatBetween returns the chat of the two users, creating it on first use.
func (s *Store) ChatBetween(a, b string) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a == b {
		return models.Chat{}, ErrInvalid
	}
	if _, ok := s.users[b]; !ok {
		return models.Chat{}, ErrNotFound
	}
	key := pairKey(a, b)
	if id, ok := s.byPair[key]; ok {
		return *s.chats[id], nil
	}
	c := &models.Chat{ID: uuid.NewString(), Participants: [2]string{a, b}, CreatedAt: time.Now().UTC()}
	s.chats[c.ID] = c
	s.byPair[key] = c.ID
	return *c, nil
}

// Peer returns the other participant of chatID, failing if userID is not
// one of them.
func (s *Store) Peer(chatID, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok {
		return "", ErrNotFound
	}
	switch userID {
	case c.Participants[0]:
		return c.Participants[1], nil
	case c.Participants[1]:
		return c.Participants[0], nil
	}
	return "", ErrNotParticipant
}

func (s *Store) SaveMessage(chatID, senderID, content, messageType, fileType string) (models.Message, error) {
	if _, err := s.Peer(chatID, senderID); err != nil {
		return models.Message{}, err
	}
	if messageType == "" {
		messageType = "text"
	}
	m := models.Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		MessageType: messageType,
		FileType:    fileType,
		CreatedAt:   time.Now().UTC(),
	}
	s.mu.Lock()
	s.messages[chatID] = append(s.messages[chatID], m)
	s.mu.Unlock()
	return m, nil
}

// Page returns page (1-based) of chatID counting back from the newest
// message. Messages within a page are oldest first.
func (s *Store) Page(chatID string, page, limit int) ([]models.Message, bool) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[chatID]
	end := len(all) - (page-1)*limit
	if end <= 0 {
		return []models.Message{}, false
	}
	start := max(end-limit, 0)
	return slices.Clone(all[start:end]), start > 0
}

func addEdge(m map[string]map[string]bool, from, to string) {
	if m[from] == nil {
		m[from] = make(map[string]bool)
	}
	m[from][to] = true
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func sortUsers(us []models.User) {
	slices.SortFunc(us, func(a, b models.User) int {
		return strings.Compare(strings.ToLower(a.Username), strings.ToLower(b.Username))
	})
}
