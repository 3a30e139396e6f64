package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/models"
)

// POST /v1/interactions
//
// Records a reaction or reply towards another member of the caller's cohort.
// Interactions in both directions raise the pair's overlap in later rankings.
func (app *Application) recordInteraction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		app.requirePostMethod(w, r, ErrPOST)
		return
	}
	req := &models.InteractionRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		app.badJSONRequest(w, r, err)
		return
	}
	targetID, err := canonicalID("targetId", req.TargetID)
	if err != nil {
		app.domainError(w, r, err)
		return
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if !models.ValidInteractionKind(kind) {
		app.domainError(w, r, apperr.Validation("kind", fmt.Errorf("unknown interaction kind %q", req.Kind)))
		return
	}

	user := currentUser(r)
	if targetID == user.UserID {
		app.domainError(w, r, apperr.Validation("targetId", apperr.ErrSelfTarget))
		return
	}
	target, err := app.UserRepo.Member(r.Context(), targetID)
	if err != nil {
		app.domainError(w, r, apperr.Transient("load target", err))
		return
	}
	if target.CohortID != user.CohortID {
		app.domainError(w, r, apperr.Validation("targetId", apperr.ErrCohortMismatch))
		return
	}

	if err := app.Activity.RecordInteraction(r.Context(), user.UserID, targetID, kind); err != nil {
		app.domainError(w, r, apperr.Transient("record interaction", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/posts
//
// The newest post of a member in a cohort is the teaser shown next to them.
func (app *Application) createPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		app.requirePostMethod(w, r, ErrPOST)
		return
	}
	req := &models.PostRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		app.badJSONRequest(w, r, err)
		return
	}
	body := strings.TrimSpace(req.Body)
	switch {
	case body == "":
		app.domainError(w, r, apperr.Validation("body", errors.New("required")))
		return
	case utf8.RuneCountInString(body) > models.MaxPostLength:
		app.domainError(w, r, apperr.Validation("body", fmt.Errorf("longer than %d characters", models.MaxPostLength)))
		return
	}

	user := currentUser(r)
	if err := app.Activity.CreatePost(r.Context(), user.UserID, user.CohortID, body); err != nil {
		app.domainError(w, r, apperr.Transient("create post", err))
		return
	}
	w.WriteHeader(http.StatusCreated)
}
