// Package history loads a conversation transcript page by page, newest page
// first.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudzz-dev/cldzchat/internal/client/api"
	"github.com/cloudzz-dev/cldzchat/internal/client/models"
)

const DefaultPageSize = 20

type PageFetcher interface {
	ChatPage(ctx context.Context, peerID string, page, limit int) (api.Page, error)
}

// Result is one loaded page. Messages are in display order, oldest first.
type Result struct {
	ConversationID string
	Page           int
	Messages       []models.Message
	HasMore        bool
}

type Loader struct {
	fetcher  PageFetcher
	pageSize int
}

func NewLoader(f PageFetcher, pageSize int) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Loader{fetcher: f, pageSize: pageSize}
}

func (l *Loader) PageSize() int { return l.pageSize }

// LoadFirstPage fetches the newest page of the conversation with peerID and
// resolves the conversation id.
func (l *Loader) LoadFirstPage(ctx context.Context, peerID string) (Result, error) {
	return l.load(ctx, peerID, "", 1)
}

// LoadNextPage fetches the page after conv.Page. A response for a different
// conversation than conv.ID is rejected.
func (l *Loader) LoadNextPage(ctx context.Context, conv models.Conversation) (Result, error) {
	if conv.PeerID == "" {
		return Result{}, &api.FetchError{Op: "chat history", Err: errors.New("conversation has no peer")}
	}
	return l.load(ctx, conv.PeerID, conv.ID, conv.Page+1)
}

func (l *Loader) load(ctx context.Context, peerID, wantID string, page int) (Result, error) {
	p, err := l.fetcher.ChatPage(ctx, peerID, page, l.pageSize)
	if err != nil {
		var fetchErr *api.FetchError
		if errors.As(err, &fetchErr) {
			return Result{}, err
		}
		return Result{}, &api.FetchError{Op: "chat history", Err: err}
	}
	if p.ConversationID == "" {
		return Result{}, &api.FetchError{Op: "chat history", Err: errors.New("response has no conversation id")}
	}
	if wantID != "" && p.ConversationID != wantID {
		return Result{}, &api.FetchError{
			Op:  "chat history",
			Err: fmt.Errorf("page belongs to conversation %s, not %s", p.ConversationID, wantID),
		}
	}

	return Result{
		ConversationID: p.ConversationID,
		Page:           page,
		Messages:       p.Messages,
		HasMore:        hasMore(p, l.pageSize),
	}, nil
}

// hasMore prefers an explicit server flag. Without one, a full page is taken
// to mean older messages exist, which is wrong when the transcript length is
// an exact multiple of the page size: the next fetch then returns nothing.
func hasMore(p api.Page, pageSize int) bool {
	if p.HasMore != nil {
		return *p.HasMore
	}
	return len(p.Messages) == pageSize
}
