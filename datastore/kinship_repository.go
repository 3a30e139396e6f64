package datastore

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/kinship/cycle-api/models"
)

// KinshipRepository reads behavioral overlap between cohort members.
type KinshipRepository interface {
	Signals(ctx context.Context, userID, cohortID string) ([]models.KinshipSignal, error)
	RecordInteraction(ctx context.Context, actorID, targetID, kind string) error
	CreatePost(ctx context.Context, authorID, cohortID, body string) error
}

type KinshipDatabase struct {
	database *sql.DB
}

func NewKinshipDatabase(db *sql.DB) (KinshipDatabase, error) {
	return KinshipDatabase{database: db}, nil
}

// Signals returns one row per other member of cohortID with the interests they
// share with userID, the interactions between the two and their latest post.
func (kd KinshipDatabase) Signals(ctx context.Context, userID, cohortID string) ([]models.KinshipSignal, error) {
	sqlStatement := `
		SELECT
			u.user_id,
			u.display_name,
			u.bio,
			ARRAY(
				SELECT theirs.tag
				FROM user_interests theirs
				JOIN user_interests mine ON mine.tag = theirs.tag AND mine.user_id = $1
				WHERE theirs.user_id = u.user_id
				ORDER BY theirs.tag
			) AS shared_interests,
			(
				SELECT COUNT(*)
				FROM interactions i
				WHERE (i.actor_id = $1 AND i.target_id = u.user_id)
					OR (i.actor_id = u.user_id AND i.target_id = $1)
			) AS interaction_count,
			COALESCE((
				SELECT p.body
				FROM posts p
				WHERE p.author_id = u.user_id AND p.cohort_id = $2
				ORDER BY p.created_at DESC
				LIMIT 1
			), '') AS teaser
		FROM users u
		WHERE u.cohort_id = $2 AND u.user_id <> $1`

	rows, err := kd.database.QueryContext(ctx, sqlStatement, userID, cohortID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	signals := make([]models.KinshipSignal, 0)
	for rows.Next() {
		var s models.KinshipSignal
		var shared pq.StringArray
		if err := rows.Scan(&s.UserID, &s.DisplayName, &s.Bio, &shared, &s.InteractionCount, &s.Teaser); err != nil {
			return nil, err
		}
		s.SharedInterests = []string(shared)
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// RecordInteraction appends one interaction event (a like, a reply) to the corpus.
func (kd KinshipDatabase) RecordInteraction(ctx context.Context, actorID, targetID, kind string) error {
	_, err := kd.database.ExecContext(ctx, `
		INSERT INTO interactions (actor_id, target_id, kind)
		VALUES ($1, $2, $3)`, actorID, targetID, kind)
	return rejectMalformed("targetId", err)
}

// CreatePost stores a post; the newest post in a cohort is the author's teaser there.
func (kd KinshipDatabase) CreatePost(ctx context.Context, authorID, cohortID, body string) error {
	_, err := kd.database.ExecContext(ctx, `
		INSERT INTO posts (author_id, cohort_id, body)
		VALUES ($1, $2, $3)`, authorID, cohortID, body)
	return err
}
