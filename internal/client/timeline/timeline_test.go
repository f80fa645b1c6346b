package timeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/client/models"
)

func msg(id string) models.Message {
	return models.Message{ID: id, ConversationID: "c1", SenderID: "u2", Content: "content " + id, Kind: models.KindText}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
		if out[i] == "" {
			out[i] = "~" + m.ClientID
		}
	}
	return out
}

func assertIDs(t *testing.T, s *Store, want ...string) {
	t.Helper()
	got := ids(s.CurrentSequence())
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("sequence = %v, want %v", got, want)
	}
}

func TestSeedThenAppendKeepsCallOrder(t *testing.T) {
	s := New("c1")
	s.Seed([]models.Message{msg("m0")})

	const n = 25
	want := []string{"m0"}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("live%d", i)
		if got := s.AppendLive(msg(id)); got != Appended {
			t.Fatalf("AppendLive(%s) = %s, want appended", id, got)
		}
		want = append(want, id)
	}

	if s.Len() != 1+n {
		t.Errorf("Len() = %d, want %d", s.Len(), 1+n)
	}
	assertIDs(t, s, want...)
}

func TestSeedReplacesSequence(t *testing.T) {
	s := New("c1")
	s.Seed([]models.Message{msg("a"), msg("b")})
	s.AppendLive(msg("c"))
	s.Seed([]models.Message{msg("x")})

	assertIDs(t, s, "x")
	if got := s.AppendLive(msg("a")); got != Appended {
		t.Errorf("AppendLive(a) after reseed = %s, want appended", got)
	}
}

func TestPrependOlderKeepsSuffixOrder(t *testing.T) {
	var older, newer []models.Message
	var want []string
	for i := 1; i <= 40; i++ {
		m := msg(fmt.Sprintf("m%d", i))
		want = append(want, m.ID)
		if i <= 20 {
			older = append(older, m)
		} else {
			newer = append(newer, m)
		}
	}

	s := New("c1")
	s.Seed(newer)
	if n := s.PrependOlder(older); n != 20 {
		t.Errorf("PrependOlder() = %d, want 20", n)
	}
	assertIDs(t, s, want...)
}

func TestPrependOlderSkipsOverlap(t *testing.T) {
	s := New("c1")
	s.Seed([]models.Message{msg("m3"), msg("m4")})
	if n := s.PrependOlder([]models.Message{msg("m1"), msg("m2"), msg("m3")}); n != 2 {
		t.Errorf("PrependOlder() = %d, want 2", n)
	}
	assertIDs(t, s, "m1", "m2", "m3", "m4")
}

func TestAppendLiveDropsKnownIDs(t *testing.T) {
	s := New("c1")
	s.Seed([]models.Message{msg("m1")})
	if got := s.AppendLive(msg("m1")); got != Duplicate {
		t.Errorf("AppendLive() = %s, want duplicate", got)
	}
	assertIDs(t, s, "m1")
}

func TestOptimisticEchoIsReconciledByClientID(t *testing.T) {
	s := New("c1")
	s.Seed([]models.Message{msg("m1")})

	sentAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	local := models.Message{ClientID: "n1", ConversationID: "c1", SenderID: "me", Content: "hi", Kind: models.KindText, Timestamp: sentAt, Pending: true}
	if got := s.AppendLive(local); got != Appended {
		t.Fatalf("optimistic AppendLive() = %s", got)
	}
	s.AppendLive(msg("m2"))

	echo := models.Message{ID: "m3", ClientID: "n1", ConversationID: "c1", SenderID: "me", Content: "hi", Kind: models.KindText}
	if got := s.AppendLive(echo); got != Reconciled {
		t.Fatalf("echo AppendLive() = %s, want reconciled", got)
	}

	assertIDs(t, s, "m1", "m3", "m2")
	seq := s.CurrentSequence()
	if seq[1].Pending {
		t.Error("reconciled entry still pending")
	}
	if !seq[1].Timestamp.Equal(sentAt) {
		t.Errorf("Timestamp = %v, want local send time", seq[1].Timestamp)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}

	if got := s.AppendLive(echo); got != Duplicate {
		t.Errorf("second echo = %s, want duplicate", got)
	}
}

func TestEchoWithoutClientIDMatchesOldestPending(t *testing.T) {
	s := New("c1")
	s.AppendLive(models.Message{ClientID: "n1", SenderID: "me", Content: "same", Kind: models.KindText, Pending: true})
	s.AppendLive(models.Message{ClientID: "n2", SenderID: "me", Content: "same", Kind: models.KindText, Pending: true})

	if got := s.AppendLive(models.Message{ID: "m1", SenderID: "me", Content: "same", Kind: models.KindText}); got != Reconciled {
		t.Fatalf("AppendLive() = %s, want reconciled", got)
	}
	assertIDs(t, s, "m1", "~n2")

	if got := s.AppendLive(models.Message{ID: "m2", SenderID: "other", Content: "same", Kind: models.KindText}); got != Appended {
		t.Errorf("message from another sender = %s, want appended", got)
	}
}

func TestMergeAppendsOnlyUnseen(t *testing.T) {
	s := New("c1")
	s.Seed([]models.Message{msg("m1"), msg("m2")})
	n := s.Merge([]models.Message{msg("m2"), msg("m3"), {Content: "no id"}, msg("m4")})
	if n != 2 {
		t.Errorf("Merge() = %d, want 2", n)
	}
	assertIDs(t, s, "m1", "m2", "m3", "m4")
}

func TestCurrentSequenceIsACopy(t *testing.T) {
	s := New("c1")
	s.Seed([]models.Message{msg("m1")})
	seq := s.CurrentSequence()
	seq[0].Content = "mutated"
	if s.CurrentSequence()[0].Content == "mutated" {
		t.Error("CurrentSequence() exposed internal state")
	}
}
