package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/logger"
	"github.com/kinship/cycle-api/models"
)

// Skip reasons reported for selections that could not be confirmed.
const (
	SkipDeclined     = "declined"
	SkipLeftCohort   = "left cohort"
	SkipMemberGone   = "member no longer exists"
	SkipNotConfirmed = "connection could not be confirmed"
)

// SkipNotice reports a selected candidate that was not connected. It is not an error.
type SkipNotice struct {
	CandidateID string `json:"candidateId"`
	Reason      string `json:"reason"`
}

type Resolution struct {
	Confirmed []models.Connection `json:"confirmed"`
	Skipped   []SkipNotice        `json:"skipped"`
	NextCycle models.Cycle        `json:"nextCycle"`
	// Replayed is set when the cycle was already resolved with this selection.
	Replayed bool `json:"replayed"`
}

// Resolver closes a completed cycle: it confirms the member's selections and
// then opens the next cycle.
type Resolver struct {
	clock       Clock
	conns       ConnectionStore
	resolutions ResolutionStore
	snapshots   SnapshotStore
	members     Members
	cap         int
	log         *logger.Logger
}

func NewResolver(clock Clock, conns ConnectionStore, resolutions ResolutionStore, snapshots SnapshotStore, members Members, selectionCap int, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		clock:       clock,
		conns:       conns,
		resolutions: resolutions,
		snapshots:   snapshots,
		members:     members,
		cap:         selectionCap,
		log:         log.With("service", "CycleResolver"),
	}
}

func (r *Resolver) Cap() int { return r.cap }

// Resolve confirms one connection per selected candidate and resets the clock
// once every write has succeeded. A request that fails validation writes nothing.
// A request that fails mid-way leaves the clock untouched and may be repeated.
//
// The first valid selection claims the cycle. A repeat of the claimed selection
// resumes it; any other selection for the same cycle is rejected. Once the
// cycle is closed, a repeat of its selection returns the stored resolution.
func (r *Resolver) Resolve(ctx context.Context, userID, cohortID string, selected []string) (Resolution, error) {
	ids, err := dedupe(userID, selected)
	if err != nil {
		return Resolution{}, err
	}
	if len(ids) > r.cap {
		return Resolution{}, apperr.Validation("candidateIds", fmt.Errorf("%w: %d selected, cap is %d", apperr.ErrSelectionCap, len(ids), r.cap))
	}

	cy, progress, err := r.clock.Current(ctx, userID)
	if err != nil {
		return Resolution{}, err
	}
	if !progress.IsComplete {
		res, ok, err := r.replay(ctx, userID, cy, ids)
		if err != nil || ok {
			return res, err
		}
		return Resolution{}, apperr.Validation("cycle", fmt.Errorf("%w: day %d", apperr.ErrCycleOpen, progress.ElapsedDays))
	}

	claim, claimed, err := r.resolutions.FindResolution(ctx, userID, cy.StartInstant)
	if err != nil {
		return Resolution{}, apperr.Transient("find resolution", err)
	}
	if claimed && !claim.SameSelection(ids) {
		return Resolution{}, apperr.Validation("candidateIds", apperr.ErrCycleClaimed)
	}
	if !claimed {
		if err := r.validate(ctx, userID, cohortID, cy, ids); err != nil {
			return Resolution{}, err
		}
		claim, err = r.resolutions.ClaimResolution(ctx, models.CycleResolution{
			UserID:       userID,
			CohortID:     cohortID,
			CycleStart:   cy.StartInstant,
			CandidateIDs: ids,
			ClaimedAt:    r.clock.Now(),
		})
		if err != nil {
			return Resolution{}, apperr.Transient("claim resolution", err)
		}
		// A concurrent resolve with another selection got there first.
		if !claim.SameSelection(ids) {
			return Resolution{}, apperr.Validation("candidateIds", apperr.ErrCycleClaimed)
		}
	}
	return r.apply(ctx, userID, cohortID, cy, ids)
}

// AutoClose resolves a cycle the member left open. A claimed selection is
// carried through; otherwise the cycle closes with no selection.
func (r *Resolver) AutoClose(ctx context.Context, userID, cohortID string) (Resolution, error) {
	cy, _, err := r.clock.Current(ctx, userID)
	if err != nil {
		return Resolution{}, err
	}
	claim, claimed, err := r.resolutions.FindResolution(ctx, userID, cy.StartInstant)
	if err != nil {
		return Resolution{}, apperr.Transient("find resolution", err)
	}
	if claimed {
		return r.Resolve(ctx, userID, claim.CohortID, claim.CandidateIDs)
	}
	return r.Resolve(ctx, userID, cohortID, nil)
}

// validate checks every id against the ranking recorded for this cycle before
// anything is written.
func (r *Resolver) validate(ctx context.Context, userID, cohortID string, cy models.Cycle, ids []string) error {
	snap, hasSnap, err := r.snapshots.LatestSnapshot(ctx, userID, cohortID)
	if err != nil {
		return apperr.Transient("read ranking snapshot", err)
	}
	hasSnap = hasSnap && snap.CycleStart.Equal(cy.StartInstant)

	for _, id := range ids {
		if hasSnap && snap.Contains(id) {
			continue
		}
		if !hasSnap {
			return apperr.Validation("candidateIds", fmt.Errorf("%w: %s", apperr.ErrNoRanking, id))
		}
		// An already connected member is left out of the ranking; selecting
		// them again is reported, not rejected.
		c, found, err := r.conns.FindConnection(ctx, userID, id, cohortID)
		if err != nil {
			return apperr.Transient("find connection", err)
		}
		if found && c.Status == models.ConnectionConfirmed {
			continue
		}
		return apperr.Validation("candidateIds", fmt.Errorf("%w: %s", apperr.ErrUnknownCandidate, id))
	}
	return nil
}

// replay returns the stored resolution when ids repeat the selection that
// closed the member's previous cycle.
func (r *Resolver) replay(ctx context.Context, userID string, cy models.Cycle, ids []string) (Resolution, bool, error) {
	last, found, err := r.resolutions.LatestResolution(ctx, userID)
	if err != nil {
		return Resolution{}, false, apperr.Transient("latest resolution", err)
	}
	if !found || last.ResolvedAt == nil || len(last.Outcome) == 0 {
		return Resolution{}, false, nil
	}
	if !last.CycleStart.Before(cy.StartInstant) || !last.SameSelection(ids) {
		return Resolution{}, false, nil
	}
	var res Resolution
	if err := json.Unmarshal(last.Outcome, &res); err != nil {
		return Resolution{}, false, apperr.Invariant("stored resolution is readable", err.Error())
	}
	res.NextCycle = cy
	res.Replayed = true
	return res, true, nil
}

func (r *Resolver) apply(ctx context.Context, userID, cohortID string, cy models.Cycle, ids []string) (Resolution, error) {
	log := r.log.With("user_id", userID, "cohort", cohortID, "cycle_start", cy.StartInstant)
	res := Resolution{Confirmed: []models.Connection{}, Skipped: []SkipNotice{}}
	for _, id := range ids {
		c, found, err := r.conns.FindConnection(ctx, userID, id, cohortID)
		if err != nil {
			return Resolution{}, apperr.Transient("find connection", err)
		}
		if found {
			switch c.Status {
			case models.ConnectionConfirmed:
				res.Confirmed = append(res.Confirmed, c)
				continue
			case models.ConnectionDeclined:
				res.Skipped = append(res.Skipped, SkipNotice{CandidateID: id, Reason: SkipDeclined})
				continue
			}
		}

		if reason, err := r.eligibility(ctx, id, cohortID); err != nil {
			return Resolution{}, err
		} else if reason != "" {
			log.Warn("selection skipped", "candidate", id, "reason", reason)
			res.Skipped = append(res.Skipped, SkipNotice{CandidateID: id, Reason: reason})
			continue
		}

		now := r.clock.Now()
		conn := c
		if !found {
			conn = models.NewConnection(userID, id, cohortID, models.ConnectionConfirmed, now)
		}
		conn.Status = models.ConnectionConfirmed
		conn.ConfirmedAt = &now
		conn.UpdatedAt = now
		if conn.InitiatorID == "" {
			conn.InitiatorID = userID
		}
		stored, err := r.conns.UpsertConnection(ctx, conn)
		if err != nil {
			log.Warn("resolution interrupted; cycle left open", "candidate", id, "error", err)
			return Resolution{}, apperr.Transient("upsert connection", err)
		}
		if stored.Status != models.ConnectionConfirmed {
			res.Skipped = append(res.Skipped, SkipNotice{CandidateID: id, Reason: SkipNotConfirmed})
			continue
		}
		res.Confirmed = append(res.Confirmed, stored)
	}

	outcome, err := json.Marshal(res)
	if err != nil {
		return Resolution{}, err
	}
	if err := r.resolutions.CompleteResolution(ctx, userID, cy.StartInstant, outcome, r.clock.Now()); err != nil {
		return Resolution{}, apperr.Transient("complete resolution", err)
	}

	next, err := r.clock.Reset(ctx, userID)
	if err != nil {
		return Resolution{}, err
	}
	res.NextCycle = next
	log.Info("cycle resolved", "confirmed", len(res.Confirmed), "skipped", len(res.Skipped))
	return res, nil
}

// eligibility returns a skip reason when the candidate can no longer be connected.
func (r *Resolver) eligibility(ctx context.Context, candidateID, cohortID string) (string, error) {
	m, err := r.members.Member(ctx, candidateID)
	switch {
	case apperr.IsNotFound(err):
		return SkipMemberGone, nil
	case err != nil:
		return "", apperr.Transient("load candidate", err)
	case m.CohortID != cohortID:
		return SkipLeftCohort, nil
	}
	return "", nil
}

func dedupe(userID string, selected []string) ([]string, error) {
	seen := make(map[string]bool, len(selected))
	out := make([]string, 0, len(selected))
	for _, id := range selected {
		id = strings.TrimSpace(id)
		switch {
		case id == "":
			return nil, apperr.Validation("candidateIds", errors.New("empty candidate id"))
		case id == userID:
			return nil, apperr.Validation("candidateIds", apperr.ErrSelfTarget)
		case seen[id]:
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
