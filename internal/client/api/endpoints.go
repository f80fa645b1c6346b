package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cloudzz-dev/cldzchat/internal/client/models"
)

const (
	pathLogin            = "/login"
	pathRegister         = "/register"
	pathMe               = "/user/me"
	pathFriends          = "/user/friends"
	pathAllUsers         = "/user/all-users"
	pathReceivedRequests = "/user/received-requests"
	pathSendRequest      = "/user/send-request"
	pathAcceptRequest    = "/user/accept-request"
	pathDeclineRequest   = "/user/decline-request"
	pathUnfriend         = "/user/unfriend"
	pathChats            = "/chats/"
	pathUpload           = "/upload"
)

type tokenResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token, which the client keeps
// for subsequent calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp tokenResponse
	in := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, "login", http.MethodPost, pathLogin, nil, in, &resp); err != nil {
		return "", err
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}

// Register creates an account. Backends that log the new user in straight
// away return a token; otherwise the returned token is empty.
func (c *Client) Register(ctx context.Context, username, email, password string) (string, error) {
	var resp tokenResponse
	in := map[string]string{"username": username, "email": email, "password": password}
	if err := c.do(ctx, "register", http.MethodPost, pathRegister, nil, in, &resp); err != nil {
		return "", err
	}
	if resp.Token != "" {
		c.SetToken(resp.Token)
	}
	return resp.Token, nil
}

func (c *Client) Me(ctx context.Context) (models.User, error) {
	var u models.User
	err := c.do(ctx, "me", http.MethodGet, pathMe, nil, nil, &u)
	return u, err
}

func (c *Client) Friends(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.do(ctx, "friends", http.MethodGet, pathFriends, nil, nil, &users)
	return users, err
}

func (c *Client) AllUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.do(ctx, "all users", http.MethodGet, pathAllUsers, nil, nil, &users)
	return users, err
}

// ReceivedRequests lists the users who sent the caller a friend request.
func (c *Client) ReceivedRequests(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := c.do(ctx, "received requests", http.MethodGet, pathReceivedRequests, nil, nil, &users)
	return users, err
}

func (c *Client) SendRequest(ctx context.Context, receiverID string) error {
	return c.do(ctx, "send request", http.MethodPost, pathSendRequest, nil, map[string]string{"receiverId": receiverID}, nil)
}

func (c *Client) AcceptRequest(ctx context.Context, senderID string) error {
	return c.do(ctx, "accept request", http.MethodPost, pathAcceptRequest, nil, map[string]string{"senderId": senderID}, nil)
}

func (c *Client) DeclineRequest(ctx context.Context, senderID string) error {
	return c.do(ctx, "decline request", http.MethodPost, pathDeclineRequest, nil, map[string]string{"senderId": senderID}, nil)
}

func (c *Client) RemoveFriend(ctx context.Context, friendID string) error {
	return c.do(ctx, "remove friend", http.MethodPost, pathUnfriend, nil, map[string]string{"friendId": friendID}, nil)
}

// Page is one page of a conversation transcript, oldest message first.
// HasMore is nil unless the server states it explicitly.
type Page struct {
	ConversationID string
	Messages       []models.Message
	HasMore        *bool
}

// ChatPage fetches page (1-based, newest page first) of the conversation
// between the caller and peerID.
func (c *Client) ChatPage(ctx context.Context, peerID string, page, limit int) (Page, error) {
	var resp struct {
		ConversationID string           `json:"conversationId"`
		ID             string           `json:"_id"`
		Messages       []models.Message `json:"messages"`
		HasMore        *bool            `json:"hasMore"`
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	if err := c.do(ctx, "chat history", http.MethodGet, pathChats+url.PathEscape(peerID), query, nil, &resp); err != nil {
		return Page{}, err
	}

	p := Page{
		ConversationID: resp.ConversationID,
		Messages:       resp.Messages,
		HasMore:        resp.HasMore,
	}
	if p.ConversationID == "" {
		p.ConversationID = resp.ID
	}
	for i := range p.Messages {
		if p.Messages[i].ConversationID == "" {
			p.Messages[i].ConversationID = p.ConversationID
		}
	}
	return p, nil
}
