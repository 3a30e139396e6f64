package models

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus is a point on the lattice pending < confirmed, pending < declined.
type ConnectionStatus string

const (
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionConfirmed ConnectionStatus = "confirmed"
	ConnectionDeclined  ConnectionStatus = "declined"
)

// Valid reports whether s is one of the known statuses.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionPending, ConnectionConfirmed, ConnectionDeclined:
		return true
	}
	return false
}

// Absorbing reports whether no later write may move a connection out of s.
func (s ConnectionStatus) Absorbing() bool {
	return s == ConnectionConfirmed || s == ConnectionDeclined
}

// Merge returns the status a stored connection holds after a write of next.
// Confirmed and declined never regress.
func (s ConnectionStatus) Merge(next ConnectionStatus) ConnectionStatus {
	if s == "" {
		return next
	}
	if s.Absorbing() || !next.Valid() {
		return s
	}
	return next
}

// PairKey is the unordered (user, user, cohort) identity of a connection.
type PairKey struct {
	UserLow  string
	UserHigh string
	CohortID string
}

// NewPairKey orders the two users so that (a, b) and (b, a) produce the same key.
func NewPairKey(a, b, cohortID string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{UserLow: a, UserHigh: b, CohortID: cohortID}
}

// Connection is the durable record of a relationship between two users in a cohort.
// UserLow/UserHigh are stored in lexical order; answers are kept per side.
type Connection struct {
	ConnectionID string           `json:"connectionId" db:"connection_id"`
	UserLow      string           `json:"userLow" db:"user_low"`
	UserHigh     string           `json:"userHigh" db:"user_high"`
	CohortID     string           `json:"cohortId" db:"cohort_id"`
	Status       ConnectionStatus `json:"status" db:"status"`
	InitiatorID  string           `json:"initiatorId,omitempty" db:"initiator_id"`
	PromptID     string           `json:"promptId,omitempty" db:"prompt_id"`
	PromptText   string           `json:"promptText,omitempty" db:"prompt_text"`
	LowAnswer    string           `json:"lowAnswer,omitempty" db:"low_answer"`
	HighAnswer   string           `json:"highAnswer,omitempty" db:"high_answer"`
	Alignment    int              `json:"alignment,omitempty" db:"alignment"`
	SourceRef    string           `json:"sourceRef,omitempty" db:"source_ref"`
	CreatedAt    time.Time        `json:"createdAt" db:"created_at"`
	ConfirmedAt  *time.Time       `json:"confirmedAt,omitempty" db:"confirmed_at"`
	UpdatedAt    time.Time        `json:"updatedAt" db:"updated_at"`
}

// NewConnection builds an unsaved connection between a and b with a fresh id.
func NewConnection(a, b, cohortID string, status ConnectionStatus, now time.Time) Connection {
	key := NewPairKey(a, b, cohortID)
	c := Connection{
		ConnectionID: uuid.New().String(),
		UserLow:      key.UserLow,
		UserHigh:     key.UserHigh,
		CohortID:     cohortID,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if status == ConnectionConfirmed {
		confirmed := now
		c.ConfirmedAt = &confirmed
	}
	return c
}

func (c Connection) Key() PairKey {
	return PairKey{UserLow: c.UserLow, UserHigh: c.UserHigh, CohortID: c.CohortID}
}

// Involves reports whether userID is one side of the connection.
func (c Connection) Involves(userID string) bool {
	return c.UserLow == userID || c.UserHigh == userID
}

func (c Connection) OtherUser(userID string) string {
	if userID == c.UserLow {
		return c.UserHigh
	}
	return c.UserLow
}

// AnswerOf returns the answer recorded for userID's side, if any.
func (c Connection) AnswerOf(userID string) string {
	switch userID {
	case c.UserLow:
		return c.LowAnswer
	case c.UserHigh:
		return c.HighAnswer
	}
	return ""
}

// SetAnswer records answer on userID's side.
func (c *Connection) SetAnswer(userID, answer string) {
	switch userID {
	case c.UserLow:
		c.LowAnswer = answer
	case c.UserHigh:
		c.HighAnswer = answer
	}
}

// Active reports whether the connection still blocks the pair (pending or confirmed).
func (c Connection) Active() bool {
	return c.Status == ConnectionPending || c.Status == ConnectionConfirmed
}

// ConnectionSummary is a confirmed connection seen from one member's side.
// It is the handle the messaging surface uses as a chat channel id.
type ConnectionSummary struct {
	ConnectionID  string     `json:"connectionId"`
	CounterpartID string     `json:"counterpartId"`
	CohortID      string     `json:"cohortId"`
	PromptText    string     `json:"promptText,omitempty"`
	MyAnswer      string     `json:"myAnswer,omitempty"`
	TheirAnswer   string     `json:"theirAnswer,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmedAt,omitempty"`
}

func (c Connection) SummaryFor(userID string) ConnectionSummary {
	other := c.OtherUser(userID)
	return ConnectionSummary{
		ConnectionID:  c.ConnectionID,
		CounterpartID: other,
		CohortID:      c.CohortID,
		PromptText:    c.PromptText,
		MyAnswer:      c.AnswerOf(userID),
		TheirAnswer:   c.AnswerOf(other),
		ConfirmedAt:   c.ConfirmedAt,
	}
}
