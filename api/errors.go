package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"

	"github.com/kinship/cycle-api/apperr"
)

// Helper function to get caller information
func getCallerInfo() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "[unknown]"
	}
	return fmt.Sprintf("[%s:%d]", filepath.Base(file), line)
}

type HandlerError struct {
	ErrorName        string `json:"errorName"`
	Description      string `json:"description"`
	PossibleSolution string `json:"possibleSolution"`
	CallerInfo       string `json:"callerInfo"`
}

var ErrGET = fmt.Errorf("GET method required for this endpoint")
var ErrPOST = fmt.Errorf("POST method required for this endpoint")

// transientRetryAfter is the Retry-After hint, in seconds, sent with 503 responses.
const transientRetryAfter = "5"

func writeHandlerError(w http.ResponseWriter, status int, herr HandlerError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(herr)
}

func (app *Application) invalidCredentials(w http.ResponseWriter, r *http.Request, err error) {
	writeHandlerError(w, http.StatusUnauthorized, HandlerError{
		ErrorName:        "Error Authorizing User",
		Description:      "Invalid email or password",
		PossibleSolution: "Retry with proper credentials",
		CallerInfo:       getCallerInfo(),
	})
}

func (app *Application) invalidAuthorization(w http.ResponseWriter, r *http.Request, err error) {
	writeHandlerError(w, http.StatusUnauthorized, HandlerError{
		ErrorName:        "Error Authenticating for Endpoint",
		Description:      "Invalid Authentication",
		PossibleSolution: "Check your headers and ensure you're submitting a valid token",
		CallerInfo:       getCallerInfo(),
	})
}

func (app *Application) requireGetMethod(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Allow", http.MethodGet)
	writeHandlerError(w, http.StatusMethodNotAllowed, HandlerError{
		ErrorName:        "GET Method Required",
		Description:      err.Error() + " you used: " + r.Method,
		PossibleSolution: "Use GET method",
		CallerInfo:       getCallerInfo(),
	})
}

func (app *Application) requirePostMethod(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Allow", http.MethodPost)
	writeHandlerError(w, http.StatusMethodNotAllowed, HandlerError{
		ErrorName:        "Post Method Required",
		Description:      err.Error() + " you used: " + r.Method,
		PossibleSolution: "Use POST method",
		CallerInfo:       getCallerInfo(),
	})
}

func (app *Application) badJSONRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeHandlerError(w, http.StatusBadRequest, HandlerError{
		ErrorName:        "Error Parsing JSON",
		Description:      err.Error(),
		PossibleSolution: "Double check your JSON formatting",
		CallerInfo:       getCallerInfo(),
	})
}

func (app *Application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger().Error("internal server error", "path", r.URL.Path, "error", err)
	writeHandlerError(w, http.StatusInternalServerError, HandlerError{
		ErrorName:        "Internal Server Error",
		Description:      "The request could not be completed",
		PossibleSolution: "Internal Server Error requiring support",
		CallerInfo:       getCallerInfo(),
	})
}

func (app *Application) userAlreadyExists(w http.ResponseWriter, r *http.Request, err error) {
	writeHandlerError(w, http.StatusConflict, HandlerError{
		ErrorName:        "User Exists",
		Description:      "There is already a user with this email address",
		PossibleSolution: "Advise user to login with their credentials",
		CallerInfo:       getCallerInfo(),
	})
}

func (app *Application) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeHandlerError(w, http.StatusBadRequest, HandlerError{
		ErrorName:        "Bad Request",
		Description:      err.Error(),
		PossibleSolution: "Check your request parameters",
		CallerInfo:       getCallerInfo(),
	})
}

// domainError writes the response for an error returned by the cycle or matching core.
func (app *Application) domainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *apperr.ValidationError
		notFound   *apperr.NotFoundError
		transient  *apperr.TransientStoreError
		invariant  *apperr.InvariantViolation
	)
	switch {
	case errors.As(err, &validation):
		status := http.StatusBadRequest
		if errors.Is(err, apperr.ErrSelectionCap) {
			status = http.StatusUnprocessableEntity
		}
		writeHandlerError(w, status, HandlerError{
			ErrorName:        "Validation Failed",
			Description:      validation.Error(),
			PossibleSolution: "Check your request parameters",
			CallerInfo:       getCallerInfo(),
		})
	case errors.As(err, &notFound):
		writeHandlerError(w, http.StatusNotFound, HandlerError{
			ErrorName:        "Not Found",
			Description:      notFound.Error(),
			PossibleSolution: "Check the " + notFound.Resource + " id",
			CallerInfo:       getCallerInfo(),
		})
	case errors.As(err, &transient):
		app.logger().Warn("transient store failure", "path", r.URL.Path, "op", transient.Op, "error", transient.Err)
		w.Header().Set("Retry-After", transientRetryAfter)
		writeHandlerError(w, http.StatusServiceUnavailable, HandlerError{
			ErrorName:        "Temporarily Unavailable",
			Description:      "Storage is unavailable: " + transient.Op,
			PossibleSolution: "Retry the same request; it is safe to repeat",
			CallerInfo:       getCallerInfo(),
		})
	case errors.As(err, &invariant):
		app.logger().Error("invariant violation", "path", r.URL.Path, "invariant", invariant.Invariant, "detail", invariant.Detail)
		writeHandlerError(w, http.StatusInternalServerError, HandlerError{
			ErrorName:        "Internal Server Error",
			Description:      "Stored data is inconsistent",
			PossibleSolution: "Internal Server Error requiring support",
			CallerInfo:       getCallerInfo(),
		})
	default:
		app.internalServerError(w, r, err)
	}
}
