package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/models"
)

type UserRepository interface {
	Create(ctx context.Context, user models.User, interests []string) (models.User, error)
	Get(ctx context.Context, userID string) (models.User, error)
	Member(ctx context.Context, userID string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ValidateAndGetUser(ctx context.Context, credentials models.Credentials) (models.User, error)
	SwitchCohort(ctx context.Context, userID, cohortID string, joinedAt time.Time) (models.User, error)
}

func NewUserDatabase(db *sql.DB) (UserDatabase, error) {
	var UserDatabase UserDatabase
	UserDatabase.database = db
	return UserDatabase, nil
}

type UserDatabase struct {
	database *sql.DB
}

// ErrEmailTaken is returned by Create when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

const userColumns = `
		user_id,
		display_name,
		email,
		password_hash,
		kind,
		bio,
		cohort_id,
		cohort_joined_at,
		created_at,
		updated_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.UserID,
		&user.DisplayName,
		&user.Email,
		&user.HashedPassword,
		&user.Kind,
		&user.Bio,
		&user.CohortID,
		&user.CohortJoinedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// Create inserts the user and their interest tags in one transaction.
func (pgdb UserDatabase) Create(ctx context.Context, user models.User, interests []string) (models.User, error) {
	tx, err := pgdb.database.BeginTx(ctx, nil)
	if err != nil {
		return user, fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback()

	_, insertErr := tx.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.UserID,
		user.DisplayName,
		user.Email,
		user.HashedPassword,
		user.Kind,
		user.Bio,
		user.CohortID,
		user.CohortJoinedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return user, ErrEmailTaken
		}
		return user, insertErr
	}

	for _, tag := range interests {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_interests (user_id, tag) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, user.UserID, tag); err != nil {
			return user, fmt.Errorf("insert interest: %w", err)
		}
	}

	return user, tx.Commit()
}

func (pgdb UserDatabase) Get(ctx context.Context, userID string) (models.User, error) {
	row := pgdb.database.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	user, scanErr := scanUser(row)

	switch scanErr {
	case sql.ErrNoRows:
		return models.User{}, NoRowsError{true, scanErr}
	case nil:
		return user, nil
	default:
		return models.User{}, scanErr
	}
}

// Member is Get with a missing user reported as apperr.NotFoundError.
func (pgdb UserDatabase) Member(ctx context.Context, userID string) (models.User, error) {
	user, err := pgdb.Get(ctx, userID)
	var noRows NoRowsError
	if errors.As(err, &noRows) {
		return models.User{}, apperr.NotFound("user", userID)
	}
	return user, rejectMalformed("userId", err)
}

func (pgdb UserDatabase) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	row := pgdb.database.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, scanErr := scanUser(row)

	switch scanErr {
	case sql.ErrNoRows:
		return models.User{}, NoRowsError{true, scanErr}
	case nil:
		return user, nil
	default:
		return models.User{}, scanErr
	}
}

func (pgdb UserDatabase) ValidateAndGetUser(ctx context.Context, credentials models.Credentials) (models.User, error) {
	user, err := pgdb.GetUserByEmail(ctx, credentials.Email)
	if err != nil {
		return models.User{}, fmt.Errorf("error in row scan %v", err)
	}
	if !user.CheckPassword(credentials.Password) {
		return models.User{}, fmt.Errorf("error in compare of hash")
	}
	return user, nil
}

// SwitchCohort moves the user to cohortID and restarts the cohort cooldown.
func (pgdb UserDatabase) SwitchCohort(ctx context.Context, userID, cohortID string, joinedAt time.Time) (models.User, error) {
	row := pgdb.database.QueryRowContext(ctx, `
		UPDATE users
		SET cohort_id = $2, cohort_joined_at = $3, updated_at = $3
		WHERE user_id = $1
		RETURNING `+userColumns, userID, cohortID, joinedAt)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return models.User{}, NoRowsError{true, err}
	}
	return user, err
}
