package datastore

import (
	"context"
	"database/sql"
	"time"

	"github.com/kinship/cycle-api/models"
)

type CycleRepository interface {
	Ensure(ctx context.Context, userID string, now time.Time) (models.Cycle, error)
	Replace(ctx context.Context, cycle models.Cycle) (models.Cycle, error)
	ListStartedBy(ctx context.Context, cutoff time.Time, limit int) ([]DueCycle, error)
}

// DueCycle is a stored cycle joined with the owner's current cohort.
type DueCycle struct {
	models.Cycle
	CohortID string
}

type CycleDatabase struct {
	database *sql.DB
}

func NewCycleDatabase(db *sql.DB) (CycleDatabase, error) {
	return CycleDatabase{database: db}, nil
}

// Ensure creates the user's cycle at now unless one exists, then returns the stored row.
// A concurrent first use by the same user converges on whichever insert won.
func (cd CycleDatabase) Ensure(ctx context.Context, userID string, now time.Time) (models.Cycle, error) {
	_, err := cd.database.ExecContext(ctx, `
		INSERT INTO cycles (user_id, start_instant, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, now)
	if err != nil {
		return models.Cycle{}, err
	}

	var cycle models.Cycle
	err = cd.database.QueryRowContext(ctx, `
		SELECT user_id, start_instant, updated_at
		FROM cycles
		WHERE user_id = $1`, userID).Scan(&cycle.UserID, &cycle.StartInstant, &cycle.UpdatedAt)
	if err != nil {
		return models.Cycle{}, err
	}
	return cycle, nil
}

func (cd CycleDatabase) Replace(ctx context.Context, cycle models.Cycle) (models.Cycle, error) {
	var stored models.Cycle
	err := cd.database.QueryRowContext(ctx, `
		INSERT INTO cycles (user_id, start_instant, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			start_instant = EXCLUDED.start_instant,
			updated_at = EXCLUDED.updated_at
		RETURNING user_id, start_instant, updated_at`,
		cycle.UserID, cycle.StartInstant, cycle.UpdatedAt,
	).Scan(&stored.UserID, &stored.StartInstant, &stored.UpdatedAt)
	if err != nil {
		return models.Cycle{}, err
	}
	return stored, nil
}

// ListStartedBy returns up to limit cycles that started at or before cutoff, oldest first.
func (cd CycleDatabase) ListStartedBy(ctx context.Context, cutoff time.Time, limit int) ([]DueCycle, error) {
	rows, err := cd.database.QueryContext(ctx, `
		SELECT c.user_id, c.start_instant, c.updated_at, u.cohort_id
		FROM cycles c
		JOIN users u ON u.user_id = c.user_id
		WHERE c.start_instant <= $1
		ORDER BY c.start_instant ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := make([]DueCycle, 0)
	for rows.Next() {
		var d DueCycle
		if err := rows.Scan(&d.UserID, &d.StartInstant, &d.UpdatedAt, &d.CohortID); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}
