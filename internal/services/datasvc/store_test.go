package datasvc

import (
	"sync"
	"testing"

	"github.com/sparkmatch/sparkmatch/internal/dataclient"
)

func TestCreateLikeNoMatchWithoutReciprocal(t *testing.T) {
	s := NewStore()
	result := s.CreateLike(dataclient.Like{UserID: 1, TargetID: 2, InteractionType: "like"})
	if result.Matched || result.MatchCreated {
		t.Errorf("one-sided like: result = %+v, want no match", result)
	}
}

func TestCreateLikeMutualMatchesOnce(t *testing.T) {
	s := NewStore()
	s.CreateLike(dataclient.Like{UserID: 1, TargetID: 2})

	second := s.CreateLike(dataclient.Like{UserID: 2, TargetID: 1})
	if !second.Matched || !second.MatchCreated {
		t.Fatalf("reciprocal like: result = %+v, want matched and created", second)
	}
	if second.UserID1 != 1 || second.UserID2 != 2 {
		t.Errorf("pair = (%d,%d), want normalized (1,2)", second.UserID1, second.UserID2)
	}

	// Replay observes the existing match without creating another.
	replay := s.CreateLike(dataclient.Like{UserID: 2, TargetID: 1})
	if !replay.Matched {
		t.Error("replay must still report matched")
	}
	if replay.MatchCreated {
		t.Error("replay must not report a newly created match")
	}
}

func TestCreateLikeRaceElectsOneWriter(t *testing.T) {
	for round := 0; round < 50; round++ {
		s := NewStore()
		results := make([]dataclient.LikeResult, 2)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0] = s.CreateLike(dataclient.Like{UserID: 1, TargetID: 2})
		}()
		go func() {
			defer wg.Done()
			results[1] = s.CreateLike(dataclient.Like{UserID: 2, TargetID: 1})
		}()
		wg.Wait()

		created := 0
		for _, r := range results {
			if r.MatchCreated {
				created++
			}
		}
		// Depending on interleaving the first writer may not see the
		// reciprocal yet, but two creations can never happen.
		if created > 1 {
			t.Fatalf("round %d: %d match creations, want at most 1", round, created)
		}
	}
}

func TestCreateMessageIdempotency(t *testing.T) {
	s := NewStore()
	msg := dataclient.Message{ConversationID: 5, SenderID: 1, Content: "hi", ContentType: "text"}

	first := s.CreateMessage(msg, "key-1")
	if !first.Created {
		t.Fatal("first insert must report Created")
	}

	replay := s.CreateMessage(msg, "key-1")
	if replay.Created {
		t.Error("keyed replay must not report Created")
	}
	if replay.MessageID != first.MessageID {
		t.Errorf("replay message id = %d, want %d", replay.MessageID, first.MessageID)
	}
	if !replay.SentAt.Equal(first.SentAt) {
		t.Errorf("replay sent_at = %v, want %v", replay.SentAt, first.SentAt)
	}

	// A different key is a new message.
	other := s.CreateMessage(msg, "key-2")
	if !other.Created || other.MessageID == first.MessageID {
		t.Errorf("distinct key: result = %+v, want new insert", other)
	}
}

func TestCreateMessageWithoutKeyAlwaysInserts(t *testing.T) {
	s := NewStore()
	msg := dataclient.Message{ConversationID: 5, SenderID: 1, Content: "hi"}

	a := s.CreateMessage(msg, "")
	b := s.CreateMessage(msg, "")
	if a.MessageID == b.MessageID {
		t.Error("unkeyed inserts must not deduplicate")
	}
}

func TestMarkReadIsMonotonic(t *testing.T) {
	s := NewStore()
	s.MarkRead(1, 2, 10)
	s.MarkRead(1, 2, 7) // backwards: ignored
	s.MarkRead(1, 2, 12)

	if got := s.readCursors["1:2"]; got != 12 {
		t.Errorf("cursor = %d, want 12", got)
	}
}

func TestMatchesFor(t *testing.T) {
	s := NewStore()
	s.CreateLike(dataclient.Like{UserID: 1, TargetID: 2})
	s.CreateLike(dataclient.Like{UserID: 2, TargetID: 1})
	s.CreateLike(dataclient.Like{UserID: 3, TargetID: 4})
	s.CreateLike(dataclient.Like{UserID: 4, TargetID: 3})

	if got := len(s.MatchesFor(1)); got != 1 {
		t.Errorf("matches for user 1 = %d, want 1", got)
	}
	if got := len(s.MatchesFor(5)); got != 0 {
		t.Errorf("matches for user 5 = %d, want 0", got)
	}
}

func TestProfileLifecycle(t *testing.T) {
	s := NewStore()
	body := []byte(`{"user_id":42,"bio":"hello"}`)
	s.UpsertProfile(42, body)

	got, ok := s.GetProfile(42)
	if !ok || string(got) != string(body) {
		t.Fatalf("GetProfile = %q, %v", got, ok)
	}
	if !s.DeleteProfile(42) {
		t.Error("DeleteProfile returned false for existing profile")
	}
	if s.DeleteProfile(42) {
		t.Error("DeleteProfile returned true for missing profile")
	}
	if _, ok := s.GetProfile(42); ok {
		t.Error("profile still present after delete")
	}
}

func TestReportsListedInOrder(t *testing.T) {
	s := NewStore()
	s.CreateReport(dataclient.Report{ReporterID: 1, Reason: "spam"})
	s.CreateReport(dataclient.Report{ReporterID: 2, Reason: "abuse"})

	reports := s.Reports()
	if len(reports) != 2 {
		t.Fatalf("len = %d, want 2", len(reports))
	}
	if reports[0].ReportID != 1 || reports[1].ReportID != 2 {
		t.Errorf("report ids = %d, %d, want 1, 2", reports[0].ReportID, reports[1].ReportID)
	}
}
