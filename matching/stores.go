// Package matching implements the weekly matching core: the kinship candidate
// pool, the icebreaker exchange and end-of-cycle resolution.
//
// Every write goes through ConnectionStore.UpsertConnection, keyed by the
// unordered pair and cohort. Callers may repeat any operation after a failure
// or cancellation and reach the same end state.
package matching

import (
	"context"
	"time"

	"github.com/kinship/cycle-api/models"
)

// ConnectionStore is the narrow persistence contract the core relies on.
type ConnectionStore interface {
	// FindConnection looks up the pair in either order.
	FindConnection(ctx context.Context, userA, userB, cohortID string) (models.Connection, bool, error)
	// UpsertConnection creates or merges by (pair, cohort). Status only advances
	// pending -> confirmed or pending -> declined. The stored record is returned.
	UpsertConnection(ctx context.Context, c models.Connection) (models.Connection, error)
	ListConfirmed(ctx context.Context, userID string) ([]models.Connection, error)
	// ListActive returns the pending and confirmed connections of userID in cohortID.
	ListActive(ctx context.Context, userID, cohortID string) ([]models.Connection, error)
}

// Corpus supplies behavioral overlap signals for a cohort.
type Corpus interface {
	Signals(ctx context.Context, userID, cohortID string) ([]models.KinshipSignal, error)
}

// Members resolves user ids. A missing user is reported as apperr.NotFoundError.
type Members interface {
	Member(ctx context.Context, userID string) (models.User, error)
}

// AnswerStore keeps members' answers to icebreaker prompts.
type AnswerStore interface {
	LatestAnswer(ctx context.Context, userID, cohortID, promptID string) (models.PromptAnswer, bool, error)
	SaveAnswer(ctx context.Context, a models.PromptAnswer) error
}

// SnapshotStore keeps the most recent ranking shown to a user.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s models.RankingSnapshot) error
	LatestSnapshot(ctx context.Context, userID, cohortID string) (models.RankingSnapshot, bool, error)
}

// ResolutionStore records which selection closes a cycle.
type ResolutionStore interface {
	// ClaimResolution stores r unless a claim for (r.UserID, r.CycleStart)
	// exists, and returns whichever claim is stored.
	ClaimResolution(ctx context.Context, r models.CycleResolution) (models.CycleResolution, error)
	FindResolution(ctx context.Context, userID string, cycleStart time.Time) (models.CycleResolution, bool, error)
	// LatestResolution returns the claim with the newest cycle start.
	LatestResolution(ctx context.Context, userID string) (models.CycleResolution, bool, error)
	CompleteResolution(ctx context.Context, userID string, cycleStart time.Time, outcome []byte, resolvedAt time.Time) error
}

// Clock is the cycle clock as seen by resolution.
type Clock interface {
	Now() time.Time
	Current(ctx context.Context, userID string) (models.Cycle, models.CycleProgress, error)
	Reset(ctx context.Context, userID string) (models.Cycle, error)
}

// Policy holds the tunables of a matching cycle.
type Policy struct {
	SelectionCap   int
	PoolSize       int
	MatchThreshold int
}

func DefaultPolicy() Policy {
	return Policy{SelectionCap: 3, PoolSize: 10, MatchThreshold: 50}
}
