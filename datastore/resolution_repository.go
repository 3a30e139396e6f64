package datastore

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/kinship/cycle-api/models"
)

// ResolutionRepository is the postgres side of matching.ResolutionStore.
type ResolutionRepository interface {
	ClaimResolution(ctx context.Context, r models.CycleResolution) (models.CycleResolution, error)
	FindResolution(ctx context.Context, userID string, cycleStart time.Time) (models.CycleResolution, bool, error)
	LatestResolution(ctx context.Context, userID string) (models.CycleResolution, bool, error)
	CompleteResolution(ctx context.Context, userID string, cycleStart time.Time, outcome []byte, resolvedAt time.Time) error
}

type ResolutionDatabase struct {
	database *sql.DB
}

func NewResolutionDatabase(db *sql.DB) (ResolutionDatabase, error) {
	return ResolutionDatabase{database: db}, nil
}

const resolutionColumns = `user_id, cohort_id, cycle_start, candidate_ids, outcome, claimed_at, resolved_at`

func scanResolution(row interface{ Scan(...any) error }) (models.CycleResolution, error) {
	var r models.CycleResolution
	var ids pq.StringArray
	var resolvedAt sql.NullTime
	err := row.Scan(&r.UserID, &r.CohortID, &r.CycleStart, &ids, &r.Outcome, &r.ClaimedAt, &resolvedAt)
	r.CandidateIDs = []string(ids)
	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	return r, err
}

// ClaimResolution inserts the claim unless the cycle is already claimed. The
// primary key on (user_id, cycle_start) lets exactly one concurrent claim win;
// every caller reads back the winner.
func (rd ResolutionDatabase) ClaimResolution(ctx context.Context, r models.CycleResolution) (models.CycleResolution, error) {
	ids := r.CandidateIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := rd.database.ExecContext(ctx, `
		INSERT INTO cycle_resolutions (user_id, cycle_start, cohort_id, candidate_ids, claimed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, cycle_start) DO NOTHING`,
		r.UserID, r.CycleStart, r.CohortID, pq.Array(ids), r.ClaimedAt)
	if err != nil {
		return models.CycleResolution{}, rejectMalformed("candidateIds", err)
	}
	stored, found, err := rd.FindResolution(ctx, r.UserID, r.CycleStart)
	if err != nil {
		return models.CycleResolution{}, err
	}
	if !found {
		return models.CycleResolution{}, NoRowsError{NoRows: true, Err: sql.ErrNoRows}
	}
	return stored, nil
}

func (rd ResolutionDatabase) FindResolution(ctx context.Context, userID string, cycleStart time.Time) (models.CycleResolution, bool, error) {
	row := rd.database.QueryRowContext(ctx, `
		SELECT `+resolutionColumns+`
		FROM cycle_resolutions
		WHERE user_id = $1 AND cycle_start = $2`, userID, cycleStart)
	r, err := scanResolution(row)
	switch err {
	case sql.ErrNoRows:
		return models.CycleResolution{}, false, nil
	case nil:
		return r, true, nil
	default:
		return models.CycleResolution{}, false, err
	}
}

func (rd ResolutionDatabase) LatestResolution(ctx context.Context, userID string) (models.CycleResolution, bool, error) {
	row := rd.database.QueryRowContext(ctx, `
		SELECT `+resolutionColumns+`
		FROM cycle_resolutions
		WHERE user_id = $1
		ORDER BY cycle_start DESC
		LIMIT 1`, userID)
	r, err := scanResolution(row)
	switch err {
	case sql.ErrNoRows:
		return models.CycleResolution{}, false, nil
	case nil:
		return r, true, nil
	default:
		return models.CycleResolution{}, false, err
	}
}

// CompleteResolution records the outcome of a claimed cycle. A resumed
// resolution overwrites it with the same connections.
func (rd ResolutionDatabase) CompleteResolution(ctx context.Context, userID string, cycleStart time.Time, outcome []byte, resolvedAt time.Time) error {
	_, err := rd.database.ExecContext(ctx, `
		UPDATE cycle_resolutions
		SET outcome = $3, resolved_at = $4
		WHERE user_id = $1 AND cycle_start = $2`,
		userID, cycleStart, string(outcome), resolvedAt)
	return err
}
