package models

import "time"

// ExchangePrompt is a shared icebreaker question drawn from a cohort's prompt set.
type ExchangePrompt struct {
	PromptID string `json:"promptId" yaml:"id"`
	CohortID string `json:"cohortId" yaml:"-"`
	Text     string `json:"text" yaml:"text"`
}

// PromptAnswer is a member's stored answer to a prompt.
type PromptAnswer struct {
	UserID     string    `json:"userId" db:"user_id"`
	CohortID   string    `json:"cohortId" db:"cohort_id"`
	PromptID   string    `json:"promptId" db:"prompt_id"`
	Answer     string    `json:"answer" db:"answer"`
	AnsweredAt time.Time `json:"answeredAt" db:"answered_at"`
}

type ExchangeRequest struct {
	CounterpartID string `json:"counterpartId"`
	PromptID      string `json:"promptId"`
	Answer        string `json:"answer"`
	SourceRef     string `json:"sourceRef,omitempty"`
}

type DeclineRequest struct {
	CounterpartID string `json:"counterpartId"`
}

type ResolveRequest struct {
	CandidateIDs []string `json:"candidateIds"`
}
