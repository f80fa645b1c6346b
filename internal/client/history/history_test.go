package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudzz-dev/cldzchat/internal/client/api"
	"github.com/cloudzz-dev/cldzchat/internal/client/models"
)

type fakeFetcher struct {
	pages map[int]api.Page
	err   error
	calls []string
}

func (f *fakeFetcher) ChatPage(ctx context.Context, peerID string, page, limit int) (api.Page, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s/%d/%d", peerID, page, limit))
	if f.err != nil {
		return api.Page{}, f.err
	}
	return f.pages[page], nil
}

func messages(n int) []models.Message {
	out := make([]models.Message, n)
	for i := range out {
		out[i] = models.Message{ID: fmt.Sprintf("m%d", i)}
	}
	return out
}

func TestLoadFirstPageUsesFixedPageSize(t *testing.T) {
	f := &fakeFetcher{pages: map[int]api.Page{1: {ConversationID: "c1", Messages: messages(3)}}}
	l := NewLoader(f, 0)

	res, err := l.LoadFirstPage(context.Background(), "u2")
	if err != nil {
		t.Fatalf("LoadFirstPage() error = %v", err)
	}
	if len(f.calls) != 1 || f.calls[0] != "u2/1/20" {
		t.Errorf("calls = %v, want [u2/1/20]", f.calls)
	}
	if res.ConversationID != "c1" || res.Page != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.HasMore {
		t.Error("HasMore = true for a short page")
	}
}

func TestHasMoreHeuristic(t *testing.T) {
	tests := []struct {
		name string
		page api.Page
		want bool
	}{
		{"short page", api.Page{Messages: messages(19)}, false},
		{"full page", api.Page{Messages: messages(20)}, true},
		{"empty page", api.Page{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasMore(tt.page, 20); got != tt.want {
				t.Errorf("hasMore() = %v, want %v", got, tt.want)
			}
		})
	}
}

// A transcript of exactly one full page reports more data even though the
// next page is empty.
func TestHasMoreFalsePositiveAtExactBoundary(t *testing.T) {
	f := &fakeFetcher{pages: map[int]api.Page{
		1: {ConversationID: "c1", Messages: messages(20)},
		2: {ConversationID: "c1"},
	}}
	l := NewLoader(f, 20)

	first, err := l.LoadFirstPage(context.Background(), "u2")
	if err != nil {
		t.Fatalf("LoadFirstPage() error = %v", err)
	}
	if !first.HasMore {
		t.Fatal("HasMore = false, want the heuristic's true")
	}

	next, err := l.LoadNextPage(context.Background(), models.Conversation{ID: "c1", PeerID: "u2", Page: 1})
	if err != nil {
		t.Fatalf("LoadNextPage() error = %v", err)
	}
	if len(next.Messages) != 0 || next.HasMore {
		t.Errorf("next = %+v, want empty page without more", next)
	}
}

func TestServerHasMoreWins(t *testing.T) {
	no := false
	f := &fakeFetcher{pages: map[int]api.Page{1: {ConversationID: "c1", Messages: messages(20), HasMore: &no}}}

	res, err := NewLoader(f, 20).LoadFirstPage(context.Background(), "u2")
	if err != nil {
		t.Fatalf("LoadFirstPage() error = %v", err)
	}
	if res.HasMore {
		t.Error("HasMore = true, want server's false")
	}
}

func TestLoadNextPage(t *testing.T) {
	f := &fakeFetcher{pages: map[int]api.Page{3: {ConversationID: "c1", Messages: messages(5)}}}

	res, err := NewLoader(f, 20).LoadNextPage(context.Background(), models.Conversation{ID: "c1", PeerID: "u2", Page: 2})
	if err != nil {
		t.Fatalf("LoadNextPage() error = %v", err)
	}
	if f.calls[0] != "u2/3/20" {
		t.Errorf("calls = %v", f.calls)
	}
	if res.Page != 3 || len(res.Messages) != 5 {
		t.Errorf("result = %+v", res)
	}
}

func TestLoadNextPageRejectsOtherConversation(t *testing.T) {
	f := &fakeFetcher{pages: map[int]api.Page{2: {ConversationID: "c9"}}}

	_, err := NewLoader(f, 20).LoadNextPage(context.Background(), models.Conversation{ID: "c1", PeerID: "u2", Page: 1})
	var fetchErr *api.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
}

func TestFetchFailureIsFetchError(t *testing.T) {
	f := &fakeFetcher{err: errors.New("boom")}

	_, err := NewLoader(f, 20).LoadFirstPage(context.Background(), "u2")
	var fetchErr *api.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if len(f.calls) != 1 {
		t.Errorf("fetch attempted %d times, want 1 (no retry)", len(f.calls))
	}
}
