package models

import "time"

// KinshipSignal is the raw behavioral overlap between the requester and one other
// member of the cohort, as read from the corpus.
type KinshipSignal struct {
	UserID           string   `json:"userId"`
	DisplayName      string   `json:"displayName"`
	Bio              string   `json:"bio"`
	SharedInterests  []string `json:"sharedInterests"`
	InteractionCount int      `json:"interactionCount"`
	Teaser           string   `json:"teaser"`
}

// KinshipCandidate is a computed, ranked suggestion. It is never stored on its own.
type KinshipCandidate struct {
	CandidateID      string   `json:"candidateId"`
	DisplayName      string   `json:"displayName"`
	Bio              string   `json:"bio,omitempty"`
	OverlapScore     int      `json:"overlapScore"`
	InteractionCount int      `json:"interactionCount"`
	SharedInterests  []string `json:"sharedInterests"`
	Teaser           string   `json:"teaser,omitempty"`
}

// RankingSnapshot records the candidate ids most recently shown to a user in a cycle.
type RankingSnapshot struct {
	UserID       string    `json:"userId"`
	CohortID     string    `json:"cohortId"`
	CycleStart   time.Time `json:"cycleStart"`
	CandidateIDs []string  `json:"candidateIds"`
	ComputedAt   time.Time `json:"computedAt"`
}

// Contains reports whether id was part of the ranking.
func (s RankingSnapshot) Contains(id string) bool {
	for _, c := range s.CandidateIDs {
		if c == id {
			return true
		}
	}
	return false
}

// Interaction kinds a member can record towards another member.
const (
	InteractionReaction = "reaction"
	InteractionReply    = "reply"
)

// MaxPostLength bounds a post body in characters.
const MaxPostLength = 500

type InteractionRequest struct {
	TargetID string `json:"targetId"`
	Kind     string `json:"kind"`
}

type PostRequest struct {
	Body string `json:"body"`
}

// ValidInteractionKind reports whether kind is a recorded interaction.
func ValidInteractionKind(kind string) bool {
	return kind == InteractionReaction || kind == InteractionReply
}
