package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kinship/cycle-api/apperr"
	"github.com/kinship/cycle-api/models"
)

// AuthProvider identifies the caller of a request.
type AuthProvider interface {
	CurrentUserID(r *http.Request) (string, error)
}

var errNoToken = errors.New("no access token")

// JWTAuth reads an HS256 access token from the Authorization header or the
// access_token cookie.
type JWTAuth struct {
	Secret string
}

func (a JWTAuth) CurrentUserID(r *http.Request) (string, error) {
	raw := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		raw = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	} else if cookie, err := r.Cookie(models.JWT.ACCESS_COOKIE_NAME); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		return "", errNoToken
	}
	claims, err := models.ValidateJWTToken(raw, a.Secret)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func handleCors(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		h.ServeHTTP(w, r)
	}
}

type ctxKey int

const userCtxKey ctxKey = iota

func withUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// currentUser returns the member loaded by authenticate.
func currentUser(r *http.Request) models.User {
	user, _ := r.Context().Value(userCtxKey).(models.User)
	return user
}

// authenticate resolves the caller and loads their member record into the request context.
func (app *Application) authenticate(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := app.Auth.CurrentUserID(r)
		if err != nil {
			app.invalidAuthorization(w, r, err)
			return
		}

		user, err := app.UserRepo.Member(r.Context(), userID)
		if apperr.IsNotFound(err) {
			app.invalidAuthorization(w, r, err)
			return
		}
		if err != nil {
			app.domainError(w, r, apperr.Transient("load member", err))
			return
		}

		h.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	}
}
