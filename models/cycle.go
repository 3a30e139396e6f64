package models

import (
	"slices"
	"time"
)

// Cycle is the per-user matching window. StartInstant is only replaced by a reset.
type Cycle struct {
	UserID       string    `json:"userId" db:"user_id"`
	StartInstant time.Time `json:"startInstant" db:"start_instant"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// CycleProgress is the derived view of a cycle at a given instant
type CycleProgress struct {
	StartInstant  time.Time `json:"startInstant"`
	ElapsedDays   int       `json:"elapsedDays"`
	DaysRemaining int       `json:"daysRemaining"`
	IsComplete    bool      `json:"isComplete"`
	Progress      float64   `json:"progress"`
	Label         string    `json:"label"`
}

// CycleResolution is the claim a resolve takes on one cycle. The first claim
// for (user, cycle start) fixes the selection; Outcome is set once it resolved.
type CycleResolution struct {
	UserID       string     `json:"userId" db:"user_id"`
	CohortID     string     `json:"cohortId" db:"cohort_id"`
	CycleStart   time.Time  `json:"cycleStart" db:"cycle_start"`
	CandidateIDs []string   `json:"candidateIds" db:"candidate_ids"`
	Outcome      []byte     `json:"-" db:"outcome"`
	ClaimedAt    time.Time  `json:"claimedAt" db:"claimed_at"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty" db:"resolved_at"`
}

// SameSelection reports whether ids is the claimed selection in any order.
func (r CycleResolution) SameSelection(ids []string) bool {
	if len(ids) != len(r.CandidateIDs) {
		return false
	}
	a := slices.Clone(ids)
	b := slices.Clone(r.CandidateIDs)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
