package matching

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/models"
)

func signal(id string, shared, interactions int) models.KinshipSignal {
	tags := make([]string, shared)
	for i := range tags {
		tags[i] = "tag"
	}
	return models.KinshipSignal{UserID: id, DisplayName: id, SharedInterests: tags, InteractionCount: interactions}
}

func ids(seq []models.KinshipCandidate) []string {
	out := make([]string, 0, len(seq))
	for _, c := range seq {
		out = append(out, c.CandidateID)
	}
	return out
}

func TestRankSignalsOrderingAndTies(t *testing.T) {
	signals := []models.KinshipSignal{
		signal("carol", 2, 1), // 35
		signal("bob", 1, 4),   // 35, more interactions
		signal("dave", 5, 10), // capped at 100
		signal("erin", 2, 1),  // ties carol exactly, id breaks it
		signal("amy", 0, 0),   // 0
	}
	got := ids(slices.Collect(RankSignals(signals, nil, nil, 0)))
	want := []string{"dave", "bob", "carol", "erin", "amy"}
	if !slices.Equal(got, want) {
		t.Fatalf("order: want=%v got=%v", want, got)
	}
}

func TestRankSignalsExcludesAndBounds(t *testing.T) {
	signals := []models.KinshipSignal{signal("me", 9, 9), signal("a", 3, 0), signal("b", 2, 0), signal("a", 1, 0), signal("c", 1, 0)}
	got := ids(slices.Collect(RankSignals(signals, map[string]bool{"me": true, "c": true}, nil, 0)))
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("exclusion: got=%v", got)
	}
	got = ids(slices.Collect(RankSignals(signals, map[string]bool{"me": true}, nil, 2)))
	if len(got) != 2 {
		t.Fatalf("limit: want=2 got=%d", len(got))
	}
}

func TestRankSignalsKeepsBestDuplicate(t *testing.T) {
	signals := []models.KinshipSignal{signal("a", 1, 0), signal("b", 2, 0), signal("a", 4, 2)}
	ranked := slices.Collect(RankSignals(signals, nil, nil, 0))
	if got := ids(ranked); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("order: got=%v", got)
	}
	if ranked[0].OverlapScore != 70 || ranked[0].InteractionCount != 2 {
		t.Fatalf("duplicate: want the stronger signal, got=%+v", ranked[0])
	}
}

func TestRankSignalsIsRestartable(t *testing.T) {
	seq := RankSignals([]models.KinshipSignal{signal("a", 1, 0), signal("b", 2, 0)}, nil, nil, 0)
	first := ids(slices.Collect(seq))
	second := ids(slices.Collect(seq))
	if !slices.Equal(first, second) {
		t.Fatalf("restart: first=%v second=%v", first, second)
	}
	for c := range seq {
		if c.CandidateID != "b" {
			t.Fatalf("early stop: want b first, got %s", c.CandidateID)
		}
		break
	}
}

func TestDefaultScoreIsMonotone(t *testing.T) {
	prev := -1
	for shared := 0; shared < 10; shared++ {
		s := DefaultScore(signal("x", shared, 2))
		if s < prev || s > 100 {
			t.Fatalf("score: shared=%d got=%d prev=%d", shared, s, prev)
		}
		prev = s
	}
}

func TestPoolExcludesActiveConnectionsOnly(t *testing.T) {
	conns := newMemConns()
	ctx := context.Background()
	conns.UpsertConnection(ctx, models.NewConnection("me", "pend", "hikers", models.ConnectionPending, t0))
	conns.UpsertConnection(ctx, models.NewConnection("conf", "me", "hikers", models.ConnectionConfirmed, t0))
	conns.UpsertConnection(ctx, models.NewConnection("me", "decl", "hikers", models.ConnectionDeclined, t0))
	conns.UpsertConnection(ctx, models.NewConnection("me", "other", "gamers", models.ConnectionConfirmed, t0))

	corpus := staticCorpus{signals: []models.KinshipSignal{
		signal("me", 5, 5), signal("pend", 3, 0), signal("conf", 3, 0),
		signal("decl", 1, 0), signal("other", 1, 0), signal("fresh", 2, 0),
	}}
	pool := NewPool(corpus, conns, NewMemorySnapshots(), nil, 10, nil, nil)
	seq, err := pool.Rank(ctx, "me", "hikers")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	got := ids(slices.Collect(seq))
	if !slices.Equal(got, []string{"fresh", "decl", "other"}) {
		t.Fatalf("Rank: got=%v", got)
	}
}

func TestPoolEmptyCohortIsNotAnError(t *testing.T) {
	pool := NewPool(staticCorpus{}, newMemConns(), NewMemorySnapshots(), nil, 10, nil, nil)
	seq, err := pool.Rank(context.Background(), "me", "hikers")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if n := len(slices.Collect(seq)); n != 0 {
		t.Fatalf("Rank: want empty got=%d", n)
	}
}

func TestPoolCorpusFailureIsTransient(t *testing.T) {
	pool := NewPool(staticCorpus{err: errors.New("timeout")}, newMemConns(), NewMemorySnapshots(), nil, 10, nil, nil)
	if _, err := pool.Rank(context.Background(), "me", "hikers"); !apperr.IsTransient(err) {
		t.Fatalf("Rank: want transient, got %v", err)
	}
}

func TestPoolRefreshRecordsSnapshot(t *testing.T) {
	snaps := NewMemorySnapshots()
	pool := NewPool(staticCorpus{signals: []models.KinshipSignal{signal("a", 1, 0), signal("b", 2, 0)}}, newMemConns(), snaps, nil, 10, nil, nil)
	got, err := pool.Refresh(context.Background(), "me", "hikers", t0)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap, ok, _ := snaps.LatestSnapshot(context.Background(), "me", "hikers")
	if !ok {
		t.Fatalf("Refresh: snapshot missing")
	}
	if !snap.CycleStart.Equal(t0) || !slices.Equal(snap.CandidateIDs, ids(got)) {
		t.Fatalf("snapshot: got=%+v", snap)
	}
}
