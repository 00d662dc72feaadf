package journal

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lune4696/metamorphosys/internal/engine"
)

func TestReadEpisode_OrderedBySeq(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	// Emit out of order; reads must come back seq-ordered.
	emitAll(t, j,
		createTestEvent("ep1", 3, engine.EventEpisodeSettled),
		createTestEvent("ep1", 1, engine.EventEpisodeStarted),
		createTestEvent("ep1", 2, engine.EventTrigger),
	)

	events, err := j.ReadEpisode(ctx, "ep1")
	if err != nil {
		t.Fatalf("ReadEpisode() failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []int64{1, 2, 3} {
		if events[i].Seq != want {
			t.Errorf("event %d seq = %d, want %d", i, events[i].Seq, want)
		}
	}
}

func TestReadEpisode_EmptyNotNil(t *testing.T) {
	j := createTestJournal(t)

	events, err := j.ReadEpisode(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("ReadEpisode() failed: %v", err)
	}
	if events == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestReadEpisode_ScopedToToken(t *testing.T) {
	j := createTestJournal(t)

	emitAll(t, j,
		createTestEvent("ep1", 1, engine.EventEpisodeStarted),
		createTestEvent("ep2", 1, engine.EventEpisodeStarted),
		createTestEvent("ep2", 2, engine.EventTrigger),
	)

	events, err := j.ReadEpisode(context.Background(), "ep2")
	if err != nil {
		t.Fatalf("ReadEpisode() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, ev := range events {
		if ev.Episode != "ep2" {
			t.Errorf("event leaked from episode %q", ev.Episode)
		}
	}
}

func TestListEpisodes_OrderedByStartedSeq(t *testing.T) {
	j := createTestJournal(t)

	emitAll(t, j,
		createTestEvent("late", 10, engine.EventEpisodeStarted),
		createTestEvent("early", 1, engine.EventEpisodeStarted),
		createTestEvent("middle", 5, engine.EventEpisodeStarted),
	)

	episodes, err := j.ListEpisodes(context.Background())
	if err != nil {
		t.Fatalf("ListEpisodes() failed: %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("got %d episodes, want 3", len(episodes))
	}
	want := []string{"early", "middle", "late"}
	for i, token := range want {
		if episodes[i].Token != token {
			t.Errorf("episode %d = %q, want %q", i, episodes[i].Token, token)
		}
	}
}

func TestListEpisodes_TokenTiebreak(t *testing.T) {
	j := createTestJournal(t)

	// Same started_seq: tokens break the tie in binary order.
	emitAll(t, j,
		createTestEvent("b", 1, engine.EventEpisodeStarted),
		createTestEvent("a", 1, engine.EventEpisodeStarted),
	)

	episodes, err := j.ListEpisodes(context.Background())
	if err != nil {
		t.Fatalf("ListEpisodes() failed: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("got %d episodes, want 2", len(episodes))
	}
	if episodes[0].Token != "a" || episodes[1].Token != "b" {
		t.Errorf("got order [%s, %s], want [a, b]", episodes[0].Token, episodes[1].Token)
	}
}

func TestListEpisodes_EmptyNotNil(t *testing.T) {
	j := createTestJournal(t)

	episodes, err := j.ListEpisodes(context.Background())
	if err != nil {
		t.Fatalf("ListEpisodes() failed: %v", err)
	}
	if episodes == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(episodes) != 0 {
		t.Errorf("got %d episodes, want 0", len(episodes))
	}
}

func TestGetEpisode_NotFound(t *testing.T) {
	j := createTestJournal(t)

	_, err := j.GetEpisode(context.Background(), "nonexistent")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestCountEvents(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	count, err := j.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("empty journal count = %d, want 0", count)
	}

	emitAll(t, j,
		createTestEvent("ep1", 1, engine.EventEpisodeStarted),
		createTestEvent("ep1", 2, engine.EventTrigger),
	)

	count, err = j.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}
