package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/datastore"
	"github.com/kinship/cycle-api/models"
)

const minPasswordLength = 8

// canonicalID parses raw as a uuid and returns its lowercase canonical form.
func canonicalID(field, raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", apperr.Validation(field, fmt.Errorf("%w: %q", apperr.ErrMalformedID, raw))
	}
	return id.String(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// GET /
func (app *Application) home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Kinship Cycle API")
}

// POST /v1/auth/signup
func (app *Application) signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		app.requirePostMethod(w, r, ErrPOST)
		return
	}

	userSignup := &models.UserSignupRequest{}
	if err := json.NewDecoder(r.Body).Decode(userSignup); err != nil {
		app.badJSONRequest(w, r, err)
		return
	}

	userSignup.DisplayName = strings.TrimSpace(userSignup.DisplayName)
	userSignup.Email = strings.ToLower(strings.TrimSpace(userSignup.Email))
	if userSignup.DisplayName == "" {
		app.badRequest(w, r, errors.New("displayName is required"))
		return
	}
	if _, err := mail.ParseAddress(userSignup.Email); err != nil {
		app.badRequest(w, r, errors.New("a valid email is required"))
		return
	}
	if len(userSignup.Password) < minPasswordLength {
		app.badRequest(w, r, fmt.Errorf("password must be at least %d characters", minPasswordLength))
		return
	}
	if !app.Prompts.Has(userSignup.CohortID) {
		app.badRequest(w, r, fmt.Errorf("unknown cohort %q, choose one of %v", userSignup.CohortID, app.Prompts.Cohorts()))
		return
	}

	newUser, err := models.NewUser(*userSignup, app.now())
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	storedUser, err := app.UserRepo.Create(r.Context(), newUser, userSignup.Interests)
	if errors.Is(err, datastore.ErrEmailTaken) {
		app.userAlreadyExists(w, r, err)
		return
	}
	if err != nil {
		app.domainError(w, r, apperr.Transient("create user", err))
		return
	}

	app.logger().Info("member signed up", "user_id", storedUser.UserID, "cohort", storedUser.CohortID)
	writeJSON(w, http.StatusCreated, storedUser)
}

// POST /v1/auth/login
func (app *Application) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		app.requirePostMethod(w, r, ErrPOST)
		return
	}

	creds := &models.Credentials{}
	if err := json.NewDecoder(r.Body).Decode(creds); err != nil {
		app.badJSONRequest(w, r, err)
		return
	}
	creds.Email = strings.ToLower(strings.TrimSpace(creds.Email))

	user, err := app.UserRepo.ValidateAndGetUser(r.Context(), *creds)
	if err != nil {
		app.invalidCredentials(w, r, err)
		return
	}

	ttl := time.Duration(app.Config.JwtAccessDuration) * time.Second
	access, err := models.IssueAccessToken(user, app.Config.JwtSecret, app.now(), ttl)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	sameSite := http.SameSiteStrictMode
	if app.Config.JwtDomain == "" {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     models.JWT.ACCESS_COOKIE_NAME,
		Value:    access.Access,
		HttpOnly: true,
		Secure:   !app.Config.DevMode,
		SameSite: sameSite,
		Path:     "/",
		Domain:   app.Config.JwtDomain,
		Expires:  access.Expiry,
	})

	writeJSON(w, http.StatusOK, access)
}

type currentUserResponse struct {
	models.User
	DaysUntilCohortSwitch int `json:"daysUntilCohortSwitch"`
}

// GET /v1/users/me
func (app *Application) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		app.requireGetMethod(w, r, ErrGET)
		return
	}
	user := currentUser(r)
	writeJSON(w, http.StatusOK, currentUserResponse{
		User:                  user,
		DaysUntilCohortSwitch: user.DaysUntilCohortSwitch(app.now(), app.Config.CohortSwitchCooldown),
	})
}

// POST /v1/users/me/cohort
func (app *Application) switchCohort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		app.requirePostMethod(w, r, ErrPOST)
		return
	}

	req := &models.CohortSwitchRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		app.badJSONRequest(w, r, err)
		return
	}

	user := currentUser(r)
	now := app.now()
	if req.CohortID == user.CohortID {
		writeJSON(w, http.StatusOK, currentUserResponse{User: user, DaysUntilCohortSwitch: user.DaysUntilCohortSwitch(now, app.Config.CohortSwitchCooldown)})
		return
	}
	if !app.Prompts.Has(req.CohortID) {
		app.domainError(w, r, apperr.Validation("cohortId", fmt.Errorf("unknown cohort %q", req.CohortID)))
		return
	}
	if days := user.DaysUntilCohortSwitch(now, app.Config.CohortSwitchCooldown); days > 0 {
		app.domainError(w, r, apperr.Validation("cohortId", fmt.Errorf("%w: %d days left", apperr.ErrCohortCooldown, days)))
		return
	}

	updated, err := app.UserRepo.SwitchCohort(r.Context(), user.UserID, req.CohortID, now)
	if err != nil {
		app.domainError(w, r, apperr.Transient("switch cohort", err))
		return
	}

	app.logger().Info("member switched cohort", "user_id", user.UserID, "from", user.CohortID, "to", updated.CohortID)
	writeJSON(w, http.StatusOK, currentUserResponse{
		User:                  updated,
		DaysUntilCohortSwitch: updated.DaysUntilCohortSwitch(now, app.Config.CohortSwitchCooldown),
	})
}
