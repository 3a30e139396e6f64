package api

import (
	"encoding/json"
	"net/http"

	"github.com/kinship/cycle-api/models"
)

type cycleResponse struct {
	Cycle    models.Cycle         `json:"cycle"`
	Progress models.CycleProgress `json:"progress"`
}

// GET /v1/cycle
func (app *Application) getCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		app.requireGetMethod(w, r, ErrGET)
		return
	}
	cy, progress, err := app.Clock.Current(r.Context(), currentUser(r).UserID)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cycleResponse{Cycle: cy, Progress: progress})
}

// POST /v1/cycle/reset
func (app *Application) resetCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		app.requirePostMethod(w, r, ErrPOST)
		return
	}
	cy, err := app.Clock.Reset(r.Context(), currentUser(r).UserID)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	_, progress, err := app.Clock.Current(r.Context(), cy.UserID)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cycleResponse{Cycle: cy, Progress: progress})
}

type kinshipResponse struct {
	Progress     models.CycleProgress      `json:"progress"`
	SelectionCap int                       `json:"selectionCap"`
	Candidates   []models.KinshipCandidate `json:"candidates"`
}

// GET /v1/kinship
//
// Ranks the caller's cohort and records the ranking as the one a later
// resolve is checked against.
func (app *Application) getKinship(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		app.requireGetMethod(w, r, ErrGET)
		return
	}
	user := currentUser(r)
	cy, progress, err := app.Clock.Current(r.Context(), user.UserID)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	candidates, err := app.Pool.Refresh(r.Context(), user.UserID, user.CohortID, cy.StartInstant)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, kinshipResponse{
		Progress:     progress,
		SelectionCap: app.Resolver.Cap(),
		Candidates:   candidates,
	})
}

// POST /v1/kinship/resolve
func (app *Application) resolveCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		app.requirePostMethod(w, r, ErrPOST)
		return
	}
	req := &models.ResolveRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		app.badJSONRequest(w, r, err)
		return
	}
	selected := make([]string, 0, len(req.CandidateIDs))
	for _, raw := range req.CandidateIDs {
		id, err := canonicalID("candidateIds", raw)
		if err != nil {
			app.domainError(w, r, err)
			return
		}
		selected = append(selected, id)
	}
	user := currentUser(r)
	res, err := app.Resolver.Resolve(r.Context(), user.UserID, user.CohortID, selected)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
