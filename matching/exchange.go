package matching

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/logger"
	"github.com/kinship/cycle-api/models"
)

// Outcome is the terminal state of an icebreaker exchange.
type Outcome string

const (
	// OutcomeMatched means a confirmed connection exists for the pair.
	OutcomeMatched Outcome = "matched"
	// OutcomeUnmatched means the rule rejected the answers; nothing durable was created.
	OutcomeUnmatched Outcome = "unmatched"
	// OutcomePending means the counterpart has not answered yet. A pending
	// connection holds the initiator's answer until they do.
	OutcomePending Outcome = "pending"
)

var ErrAlreadyConfirmed = errors.New("connection already confirmed")

type ExchangeResult struct {
	Outcome           Outcome               `json:"outcome"`
	Prompt            models.ExchangePrompt `json:"prompt"`
	Alignment         int                   `json:"alignment"`
	CounterpartAnswer string                `json:"counterpartAnswer,omitempty"`
	Connection        *models.Connection    `json:"connection,omitempty"`
	// Replayed is set when an earlier exchange already decided the pair.
	Replayed bool `json:"replayed"`
}

// Exchange runs the icebreaker protocol between two members of a cohort.
type Exchange struct {
	members Members
	conns   ConnectionStore
	answers AnswerStore
	prompts *PromptSets
	rule    MatchRule
	now     func() time.Time
	flight  singleflight.Group
	log     *logger.Logger
}

func NewExchange(members Members, conns ConnectionStore, answers AnswerStore, prompts *PromptSets, rule MatchRule, now func() time.Time, log *logger.Logger) *Exchange {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Exchange{
		members: members,
		conns:   conns,
		answers: answers,
		prompts: prompts,
		rule:    rule,
		now:     now,
		log:     log.With("service", "IcebreakerExchange"),
	}
}

// Prompts lists the prompt set of the member's cohort.
func (e *Exchange) Prompts(ctx context.Context, userID string) ([]models.ExchangePrompt, error) {
	u, err := e.member(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.prompts.For(u.CohortID), nil
}

// Run answers req.PromptID on behalf of initiatorID towards req.CounterpartID.
// Identical concurrent calls in this process share one execution.
func (e *Exchange) Run(ctx context.Context, initiatorID string, req models.ExchangeRequest) (ExchangeResult, error) {
	req.Answer = strings.TrimSpace(req.Answer)
	if req.CounterpartID == "" {
		return ExchangeResult{}, apperr.Validation("counterpartId", errors.New("required"))
	}
	if req.CounterpartID == initiatorID {
		return ExchangeResult{}, apperr.Validation("counterpartId", apperr.ErrSelfTarget)
	}
	if req.Answer == "" {
		return ExchangeResult{}, apperr.Validation("answer", apperr.ErrEmptyAnswer)
	}

	// The shared run outlives any one caller; each caller stops waiting on its own ctx.
	key := strings.Join([]string{initiatorID, req.CounterpartID, req.PromptID, req.Answer}, "\x00")
	ch := e.flight.DoChan(key, func() (interface{}, error) {
		return e.run(context.WithoutCancel(ctx), initiatorID, req)
	})
	select {
	case <-ctx.Done():
		return ExchangeResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ExchangeResult{}, res.Err
		}
		return res.Val.(ExchangeResult), nil
	}
}

func (e *Exchange) run(ctx context.Context, initiatorID string, req models.ExchangeRequest) (ExchangeResult, error) {
	initiator, err := e.member(ctx, initiatorID)
	if err != nil {
		return ExchangeResult{}, err
	}
	counterpart, err := e.member(ctx, req.CounterpartID)
	if err != nil {
		return ExchangeResult{}, err
	}
	cohortID := initiator.CohortID
	if counterpart.CohortID != cohortID {
		return ExchangeResult{}, apperr.Validation("counterpartId", apperr.ErrCohortMismatch)
	}
	prompt, ok := e.prompts.Find(cohortID, req.PromptID)
	if !ok {
		return ExchangeResult{}, apperr.Validation("promptId", apperr.ErrUnknownPrompt)
	}
	log := e.log.With("initiator", initiatorID, "counterpart", counterpart.UserID, "cohort", cohortID, "prompt", prompt.PromptID)

	existing, found, err := e.conns.FindConnection(ctx, initiatorID, counterpart.UserID, cohortID)
	if err != nil {
		return ExchangeResult{}, apperr.Transient("find connection", err)
	}
	if found {
		return e.continueExisting(ctx, log, existing, initiatorID, prompt, req)
	}

	now := e.now()
	if err := e.recordAnswer(ctx, initiatorID, cohortID, prompt.PromptID, req.Answer, now); err != nil {
		return ExchangeResult{}, err
	}
	theirs, answered, err := e.answers.LatestAnswer(ctx, counterpart.UserID, cohortID, prompt.PromptID)
	if err != nil {
		return ExchangeResult{}, apperr.Transient("read counterpart answer", err)
	}

	if !answered {
		pending := models.NewConnection(initiatorID, counterpart.UserID, cohortID, models.ConnectionPending, now)
		pending.InitiatorID = initiatorID
		pending.PromptID = prompt.PromptID
		pending.PromptText = prompt.Text
		pending.SourceRef = req.SourceRef
		pending.SetAnswer(initiatorID, req.Answer)
		stored, err := e.conns.UpsertConnection(ctx, pending)
		if err != nil {
			return ExchangeResult{}, apperr.Transient("upsert pending connection", err)
		}
		// Both sides may have opened the pair at once; settle if the merged
		// record now carries both answers to this prompt.
		if stored.Status == models.ConnectionPending && stored.PromptID == prompt.PromptID &&
			stored.AnswerOf(initiatorID) != "" && stored.AnswerOf(counterpart.UserID) != "" {
			return e.settle(ctx, log, stored, initiatorID, prompt, req.Answer)
		}
		log.Info("icebreaker deferred until counterpart answers")
		return resultFor(stored, initiatorID, prompt, false), nil
	}

	matched, alignment := e.rule.Evaluate(req.Answer, theirs.Answer)
	if !matched {
		log.Info("icebreaker unmatched", "alignment", alignment)
		return ExchangeResult{Outcome: OutcomeUnmatched, Prompt: prompt, Alignment: alignment}, nil
	}

	conn := models.NewConnection(initiatorID, counterpart.UserID, cohortID, models.ConnectionConfirmed, now)
	conn.InitiatorID = initiatorID
	conn.PromptID = prompt.PromptID
	conn.PromptText = prompt.Text
	conn.SourceRef = req.SourceRef
	conn.Alignment = alignment
	conn.SetAnswer(initiatorID, req.Answer)
	conn.SetAnswer(counterpart.UserID, theirs.Answer)
	stored, err := e.conns.UpsertConnection(ctx, conn)
	if err != nil {
		return ExchangeResult{}, apperr.Transient("upsert confirmed connection", err)
	}
	log.Info("icebreaker matched", "alignment", alignment, "connection", stored.ConnectionID)
	return resultFor(stored, initiatorID, prompt, false), nil
}

// continueExisting handles a pair that already has a connection record.
// Decided records are replayed, never re-decided.
func (e *Exchange) continueExisting(ctx context.Context, log *logger.Logger, existing models.Connection, initiatorID string, prompt models.ExchangePrompt, req models.ExchangeRequest) (ExchangeResult, error) {
	if existing.Status.Absorbing() {
		shown := prompt
		if existing.PromptID != "" {
			shown = models.ExchangePrompt{PromptID: existing.PromptID, CohortID: existing.CohortID, Text: existing.PromptText}
		}
		return resultFor(existing, initiatorID, shown, true), nil
	}
	if existing.AnswerOf(initiatorID) != "" {
		return resultFor(existing, initiatorID, prompt, true), nil
	}
	if existing.PromptID != "" && existing.PromptID != prompt.PromptID {
		return ExchangeResult{}, apperr.Validation("promptId", apperr.ErrPromptMismatch)
	}
	if err := e.recordAnswer(ctx, initiatorID, existing.CohortID, prompt.PromptID, req.Answer, e.now()); err != nil {
		return ExchangeResult{}, err
	}
	if existing.PromptID == "" {
		existing.PromptID = prompt.PromptID
		existing.PromptText = prompt.Text
	}
	existing.SetAnswer(initiatorID, req.Answer)
	return e.settle(ctx, log, existing, initiatorID, prompt, req.Answer)
}

// settle evaluates a pending record that holds both answers and writes the decision.
func (e *Exchange) settle(ctx context.Context, log *logger.Logger, pending models.Connection, initiatorID string, prompt models.ExchangePrompt, answer string) (ExchangeResult, error) {
	other := pending.OtherUser(initiatorID)
	matched, alignment := e.rule.Evaluate(answer, pending.AnswerOf(other))
	now := e.now()
	pending.Alignment = alignment
	pending.UpdatedAt = now
	if matched {
		pending.Status = models.ConnectionConfirmed
		pending.ConfirmedAt = &now
	} else {
		pending.Status = models.ConnectionDeclined
	}
	stored, err := e.conns.UpsertConnection(ctx, pending)
	if err != nil {
		return ExchangeResult{}, apperr.Transient("upsert settled connection", err)
	}
	log.Info("icebreaker settled", "status", stored.Status, "alignment", alignment)
	return resultFor(stored, initiatorID, prompt, false), nil
}

// Decline closes a pending exchange between userID and counterpartID.
func (e *Exchange) Decline(ctx context.Context, userID, counterpartID string) (models.Connection, error) {
	u, err := e.member(ctx, userID)
	if err != nil {
		return models.Connection{}, err
	}
	existing, found, err := e.conns.FindConnection(ctx, userID, counterpartID, u.CohortID)
	if err != nil {
		return models.Connection{}, apperr.Transient("find connection", err)
	}
	if !found {
		return models.Connection{}, apperr.NotFound("connection", counterpartID)
	}
	switch existing.Status {
	case models.ConnectionDeclined:
		return existing, nil
	case models.ConnectionConfirmed:
		return models.Connection{}, apperr.Validation("counterpartId", ErrAlreadyConfirmed)
	}
	existing.Status = models.ConnectionDeclined
	existing.UpdatedAt = e.now()
	stored, err := e.conns.UpsertConnection(ctx, existing)
	if err != nil {
		return models.Connection{}, apperr.Transient("decline connection", err)
	}
	e.log.Info("icebreaker declined", "user_id", userID, "counterpart", counterpartID, "status", stored.Status)
	return stored, nil
}

func (e *Exchange) member(ctx context.Context, userID string) (models.User, error) {
	u, err := e.members.Member(ctx, userID)
	if err != nil {
		return models.User{}, apperr.Transient("load member", err)
	}
	return u, nil
}

func (e *Exchange) recordAnswer(ctx context.Context, userID, cohortID, promptID, answer string, now time.Time) error {
	err := e.answers.SaveAnswer(ctx, models.PromptAnswer{
		UserID:     userID,
		CohortID:   cohortID,
		PromptID:   promptID,
		Answer:     answer,
		AnsweredAt: now,
	})
	return apperr.Transient("save answer", err)
}

func resultFor(c models.Connection, initiatorID string, prompt models.ExchangePrompt, replayed bool) ExchangeResult {
	res := ExchangeResult{Prompt: prompt, Alignment: c.Alignment, Replayed: replayed}
	switch c.Status {
	case models.ConnectionConfirmed:
		res.Outcome = OutcomeMatched
		res.CounterpartAnswer = c.AnswerOf(c.OtherUser(initiatorID))
		res.Connection = &c
	case models.ConnectionDeclined:
		res.Outcome = OutcomeUnmatched
	default:
		res.Outcome = OutcomePending
		res.Connection = &c
	}
	return res
}
