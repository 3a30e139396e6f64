package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	Member = "Member"
	Admin  = "Admin"
)

// DefaultCohortSwitchCooldown is how long a member stays in a cohort before switching.
const DefaultCohortSwitchCooldown = 30 * 24 * time.Hour

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserSignupRequest struct {
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	CohortID    string   `json:"cohortId"`
	Bio         string   `json:"bio"`
	Interests   []string `json:"interests"`
}

type CohortSwitchRequest struct {
	CohortID string `json:"cohortId"`
}

// User is a member of at most one cohort at a time.
type User struct {
	UserID         string    `json:"userId" db:"user_id"`
	DisplayName    string    `json:"displayName" db:"display_name"`
	Email          string    `json:"email" db:"email"`
	HashedPassword string    `json:"-" db:"password_hash"`
	Kind           string    `json:"kind" db:"kind"`
	Bio            string    `json:"bio" db:"bio"`
	CohortID       string    `json:"cohortId" db:"cohort_id"`
	CohortJoinedAt time.Time `json:"cohortJoinedAt" db:"cohort_joined_at"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

func (user User) Serialize() ([]byte, error) {
	jsonUser, err := json.Marshal(user)
	if err != nil {
		return []byte{}, fmt.Errorf("error parsing json for User %v", err)
	}
	return jsonUser, nil
}

func (user User) GenerateKey() string {
	return uuid.New().String()
}

func NewUser(userSignup UserSignupRequest, now time.Time) (User, error) {
	var user User
	hashedPassword, hashErr := user.GenerateHash(userSignup.Password)
	if hashErr != nil {
		return User{}, fmt.Errorf("error hashing password %v", hashErr)
	}
	user = User{
		UserID:         user.GenerateKey(),
		DisplayName:    userSignup.DisplayName,
		Email:          userSignup.Email,
		HashedPassword: hashedPassword,
		Kind:           Member,
		Bio:            userSignup.Bio,
		CohortID:       userSignup.CohortID,
		CohortJoinedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return user, nil
}

func (user User) GenerateHash(password string) (string, error) {
	hashedPassword, hashErr := bcrypt.GenerateFromPassword([]byte(password), 8)
	if hashErr != nil {
		return "", fmt.Errorf("error hashing password %v", hashErr)
	}

	return string(hashedPassword), nil
}

// CheckPassword reports whether password matches the stored hash.
func (user User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) == nil
}

// DaysUntilCohortSwitch returns the whole days left before the member may switch cohort.
func (user User) DaysUntilCohortSwitch(now time.Time, cooldown time.Duration) int {
	remaining := user.CohortJoinedAt.Add(cooldown).Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}

func (user User) CanSwitchCohort(now time.Time, cooldown time.Duration) bool {
	return user.DaysUntilCohortSwitch(now, cooldown) == 0
}
