package api

import (
	"encoding/json"
	"net/http"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/models"
)

// GET /v1/icebreaker/prompts
func (app *Application) getPrompts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		app.requireGetMethod(w, r, ErrGET)
		return
	}
	prompts, err := app.Exchange.Prompts(r.Context(), currentUser(r).UserID)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prompts)
}

// POST /v1/icebreaker/exchange
func (app *Application) runExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		app.requirePostMethod(w, r, ErrPOST)
		return
	}
	req := &models.ExchangeRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		app.badJSONRequest(w, r, err)
		return
	}
	if req.CounterpartID != "" {
		id, err := canonicalID("counterpartId", req.CounterpartID)
		if err != nil {
			app.domainError(w, r, err)
			return
		}
		req.CounterpartID = id
	}
	res, err := app.Exchange.Run(r.Context(), currentUser(r).UserID, *req)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/icebreaker/decline
func (app *Application) declineExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		app.requirePostMethod(w, r, ErrPOST)
		return
	}
	req := &models.DeclineRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		app.badJSONRequest(w, r, err)
		return
	}
	counterpartID, err := canonicalID("counterpartId", req.CounterpartID)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	user := currentUser(r)
	c, err := app.Exchange.Decline(r.Context(), user.UserID, counterpartID)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c.SummaryFor(user.UserID))
}

// GET /v1/connections
func (app *Application) listConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		app.requireGetMethod(w, r, ErrGET)
		return
	}
	user := currentUser(r)
	confirmed, err := app.Connections.ListConfirmed(r.Context(), user.UserID)
	if err != nil {
		app.domainError(w, r, apperr.Transient("list connections", err))
		return
	}
	summaries := make([]models.ConnectionSummary, 0, len(confirmed))
	for _, c := range confirmed {
		summaries = append(summaries, c.SummaryFor(user.UserID))
	}
	writeJSON(w, http.StatusOK, summaries)
}
