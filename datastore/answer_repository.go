package datastore

import (
	"context"
	"database/sql"

	"github.com/kinship/cycle-api/models"
)

type AnswerRepository interface {
	LatestAnswer(ctx context.Context, userID, cohortID, promptID string) (models.PromptAnswer, bool, error)
	SaveAnswer(ctx context.Context, a models.PromptAnswer) error
}

type AnswerDatabase struct {
	database *sql.DB
}

func NewAnswerDatabase(db *sql.DB) (AnswerDatabase, error) {
	return AnswerDatabase{database: db}, nil
}

func (ad AnswerDatabase) LatestAnswer(ctx context.Context, userID, cohortID, promptID string) (models.PromptAnswer, bool, error) {
	var a models.PromptAnswer
	err := ad.database.QueryRowContext(ctx, `
		SELECT user_id, cohort_id, prompt_id, answer, answered_at
		FROM prompt_answers
		WHERE user_id = $1 AND cohort_id = $2 AND prompt_id = $3`,
		userID, cohortID, promptID,
	).Scan(&a.UserID, &a.CohortID, &a.PromptID, &a.Answer, &a.AnsweredAt)

	switch err {
	case sql.ErrNoRows:
		return models.PromptAnswer{}, false, nil
	case nil:
		return a, true, nil
	default:
		return models.PromptAnswer{}, false, err
	}
}

// SaveAnswer keeps one answer per (user, cohort, prompt); a newer answer replaces it.
func (ad AnswerDatabase) SaveAnswer(ctx context.Context, a models.PromptAnswer) error {
	_, err := ad.database.ExecContext(ctx, `
		INSERT INTO prompt_answers (user_id, cohort_id, prompt_id, answer, answered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, cohort_id, prompt_id) DO UPDATE SET
			answer = EXCLUDED.answer,
			answered_at = EXCLUDED.answered_at`,
		a.UserID, a.CohortID, a.PromptID, a.Answer, a.AnsweredAt)
	return err
}
