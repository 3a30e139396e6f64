package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/models"
)

// ConnectionRepository is the postgres side of matching.ConnectionStore.
type ConnectionRepository interface {
	FindConnection(ctx context.Context, userA, userB, cohortID string) (models.Connection, bool, error)
	UpsertConnection(ctx context.Context, c models.Connection) (models.Connection, error)
	ListConfirmed(ctx context.Context, userID string) ([]models.Connection, error)
	ListActive(ctx context.Context, userID, cohortID string) ([]models.Connection, error)
}

type ConnectionDatabase struct {
	database *sql.DB
}

func NewConnectionDatabase(db *sql.DB) (ConnectionDatabase, error) {
	return ConnectionDatabase{database: db}, nil
}

const connectionColumns = `
		connection_id,
		user_low,
		user_high,
		cohort_id,
		status,
		initiator_id,
		prompt_id,
		prompt_text,
		low_answer,
		high_answer,
		alignment,
		source_ref,
		created_at,
		confirmed_at,
		updated_at`

func scanConnection(row interface{ Scan(...any) error }) (models.Connection, error) {
	var c models.Connection
	var confirmedAt sql.NullTime
	err := row.Scan(
		&c.ConnectionID,
		&c.UserLow,
		&c.UserHigh,
		&c.CohortID,
		&c.Status,
		&c.InitiatorID,
		&c.PromptID,
		&c.PromptText,
		&c.LowAnswer,
		&c.HighAnswer,
		&c.Alignment,
		&c.SourceRef,
		&c.CreatedAt,
		&confirmedAt,
		&c.UpdatedAt,
	)
	if confirmedAt.Valid {
		t := confirmedAt.Time
		c.ConfirmedAt = &t
	}
	return c, err
}

// FindConnection looks the pair up in either order. The unique index on
// (user_low, user_high, cohort_id) allows one row; more is a broken invariant.
func (cd ConnectionDatabase) FindConnection(ctx context.Context, userA, userB, cohortID string) (models.Connection, bool, error) {
	key := models.NewPairKey(userA, userB, cohortID)
	rows, err := cd.database.QueryContext(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE user_low = $1 AND user_high = $2 AND cohort_id = $3
		LIMIT 2`, key.UserLow, key.UserHigh, key.CohortID)
	if err != nil {
		return models.Connection{}, false, rejectMalformed("counterpartId", err)
	}
	defer rows.Close()

	var found []models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return models.Connection{}, false, err
		}
		found = append(found, c)
	}
	if err := rows.Err(); err != nil {
		return models.Connection{}, false, rejectMalformed("counterpartId", err)
	}

	switch len(found) {
	case 0:
		return models.Connection{}, false, nil
	case 1:
		return found[0], true, nil
	default:
		return models.Connection{}, false, apperr.Invariant("one connection per pair",
			fmt.Sprintf("%d rows for %s/%s in %s", len(found), key.UserLow, key.UserHigh, key.CohortID))
	}
}

// UpsertConnection inserts c or merges it into the stored row for its pair.
// Status only leaves pending, confirmed_at is stamped on the move to confirmed,
// and empty fields in c never blank out stored ones.
func (cd ConnectionDatabase) UpsertConnection(ctx context.Context, c models.Connection) (models.Connection, error) {
	if !c.Status.Valid() {
		return models.Connection{}, apperr.Invariant("known connection status", string(c.Status))
	}
	if c.UserLow > c.UserHigh {
		c.UserLow, c.UserHigh = c.UserHigh, c.UserLow
		c.LowAnswer, c.HighAnswer = c.HighAnswer, c.LowAnswer
	}

	sqlStatement := `
		INSERT INTO connections (` + connectionColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_low, user_high, cohort_id) DO UPDATE SET
			status = CASE
				WHEN connections.status = 'pending' THEN EXCLUDED.status
				ELSE connections.status
			END,
			confirmed_at = CASE
				WHEN connections.status = 'pending' AND EXCLUDED.status = 'confirmed' THEN EXCLUDED.confirmed_at
				ELSE connections.confirmed_at
			END,
			prompt_id = COALESCE(NULLIF(EXCLUDED.prompt_id, ''), connections.prompt_id),
			prompt_text = CASE
				WHEN EXCLUDED.prompt_id <> '' THEN EXCLUDED.prompt_text
				ELSE connections.prompt_text
			END,
			low_answer = COALESCE(NULLIF(EXCLUDED.low_answer, ''), connections.low_answer),
			high_answer = COALESCE(NULLIF(EXCLUDED.high_answer, ''), connections.high_answer),
			alignment = CASE
				WHEN EXCLUDED.alignment <> 0 THEN EXCLUDED.alignment
				ELSE connections.alignment
			END,
			source_ref = COALESCE(NULLIF(EXCLUDED.source_ref, ''), connections.source_ref),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + connectionColumns

	var confirmedAt sql.NullTime
	if c.ConfirmedAt != nil {
		confirmedAt = sql.NullTime{Time: *c.ConfirmedAt, Valid: true}
	}
	row := cd.database.QueryRowContext(ctx, sqlStatement,
		c.ConnectionID,
		c.UserLow,
		c.UserHigh,
		c.CohortID,
		c.Status,
		c.InitiatorID,
		c.PromptID,
		c.PromptText,
		c.LowAnswer,
		c.HighAnswer,
		c.Alignment,
		c.SourceRef,
		c.CreatedAt,
		confirmedAt,
		c.UpdatedAt,
	)
	return scanConnection(row)
}

func (cd ConnectionDatabase) ListConfirmed(ctx context.Context, userID string) ([]models.Connection, error) {
	return cd.list(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE (user_low = $1 OR user_high = $1) AND status = 'confirmed'
		ORDER BY confirmed_at DESC NULLS LAST, connection_id`, userID)
}

func (cd ConnectionDatabase) ListActive(ctx context.Context, userID, cohortID string) ([]models.Connection, error) {
	return cd.list(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE (user_low = $1 OR user_high = $1)
			AND cohort_id = $2
			AND status IN ('pending', 'confirmed')`, userID, cohortID)
}

func (cd ConnectionDatabase) list(ctx context.Context, query string, args ...any) ([]models.Connection, error) {
	rows, err := cd.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	connections := make([]models.Connection, 0)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, c)
	}
	return connections, rows.Err()
}
