package matching

import (
	"context"
	"iter"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/logger"
	"github.com/kinship/cycle-api/models"
)

// Scorer maps a signal to an overlap score in [0, 100]. It must not decrease
// when shared interests or interactions grow.
type Scorer func(models.KinshipSignal) int

// DefaultScore weighs each shared interest at 15 points and each interaction at 5.
func DefaultScore(sig models.KinshipSignal) int {
	score := len(sig.SharedInterests)*15 + sig.InteractionCount*5
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// Pool ranks kinship candidates for a member within their cohort.
type Pool struct {
	corpus    Corpus
	conns     ConnectionStore
	snapshots SnapshotStore
	score     Scorer
	size      int
	now       func() time.Time
	log       *logger.Logger
}

func NewPool(corpus Corpus, conns ConnectionStore, snapshots SnapshotStore, score Scorer, size int, now func() time.Time, log *logger.Logger) *Pool {
	if score == nil {
		score = DefaultScore
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pool{
		corpus:    corpus,
		conns:     conns,
		snapshots: snapshots,
		score:     score,
		size:      size,
		now:       now,
		log:       log.With("service", "CandidatePool"),
	}
}

// Rank reads the cohort corpus and the member's active connections and returns
// the ranked candidates. An empty sequence is a valid result.
func (p *Pool) Rank(ctx context.Context, userID, cohortID string) (iter.Seq[models.KinshipCandidate], error) {
	var (
		signals []models.KinshipSignal
		active  []models.Connection
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		signals, err = p.corpus.Signals(gctx, userID, cohortID)
		return apperr.Transient("read corpus", err)
	})
	g.Go(func() error {
		var err error
		active, err = p.conns.ListActive(gctx, userID, cohortID)
		return apperr.Transient("list active connections", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(active)+1)
	excluded[userID] = true
	for _, c := range active {
		if c.Active() {
			excluded[c.OtherUser(userID)] = true
		}
	}
	return RankSignals(signals, excluded, p.score, p.size), nil
}

// Refresh ranks the pool and records the ids as the latest snapshot for the
// cycle that started at cycleStart.
func (p *Pool) Refresh(ctx context.Context, userID, cohortID string, cycleStart time.Time) ([]models.KinshipCandidate, error) {
	seq, err := p.Rank(ctx, userID, cohortID)
	if err != nil {
		return nil, err
	}
	candidates := slices.Collect(seq)
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.CandidateID)
	}
	snap := models.RankingSnapshot{
		UserID:       userID,
		CohortID:     cohortID,
		CycleStart:   cycleStart,
		CandidateIDs: ids,
		ComputedAt:   p.now(),
	}
	if err := p.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return nil, apperr.Transient("save ranking snapshot", err)
	}
	p.log.Debug("pool refreshed", "user_id", userID, "cohort", cohortID, "candidates", len(ids))
	return candidates, nil
}

// RankSignals scores, filters and orders signals: highest score first, then
// more interactions, then candidate id. limit <= 0 means no bound.
// The returned sequence can be ranged over any number of times.
func RankSignals(signals []models.KinshipSignal, excluded map[string]bool, score Scorer, limit int) iter.Seq[models.KinshipCandidate] {
	if score == nil {
		score = DefaultScore
	}
	// A member listed twice keeps their best scoring signal.
	best := make(map[string]int, len(signals))
	ranked := make([]models.KinshipCandidate, 0, len(signals))
	for _, sig := range signals {
		if sig.UserID == "" || excluded[sig.UserID] {
			continue
		}
		c := models.KinshipCandidate{
			CandidateID:      sig.UserID,
			DisplayName:      sig.DisplayName,
			Bio:              sig.Bio,
			OverlapScore:     clampScore(score(sig)),
			InteractionCount: sig.InteractionCount,
			SharedInterests:  slices.Clone(sig.SharedInterests),
			Teaser:           sig.Teaser,
		}
		i, seen := best[sig.UserID]
		switch {
		case !seen:
			best[sig.UserID] = len(ranked)
			ranked = append(ranked, c)
		case outranks(c, ranked[i]):
			ranked[i] = c
		}
	}
	slices.SortFunc(ranked, compareCandidates)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return func(yield func(models.KinshipCandidate) bool) {
		for _, c := range ranked {
			if !yield(c) {
				return
			}
		}
	}
}

// compareCandidates orders by score, then interactions, then id.
func compareCandidates(a, b models.KinshipCandidate) int {
	if a.OverlapScore != b.OverlapScore {
		return b.OverlapScore - a.OverlapScore
	}
	if a.InteractionCount != b.InteractionCount {
		return b.InteractionCount - a.InteractionCount
	}
	return strings.Compare(a.CandidateID, b.CandidateID)
}

func outranks(a, b models.KinshipCandidate) bool {
	return compareCandidates(a, b) < 0
}

func clampScore(s int) int {
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	}
	return s
}
