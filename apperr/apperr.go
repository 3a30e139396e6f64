// Package apperr holds the error taxonomy shared by the matching core and its adapters.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrSelectionCap     = errors.New("selection exceeds cap")
	ErrUnknownCandidate = errors.New("candidate not in latest ranking")
	ErrCycleOpen        = errors.New("cycle still open")
	ErrNoRanking        = errors.New("no ranking for current cycle")
	ErrCohortMismatch   = errors.New("members are not in the same cohort")
	ErrSelfTarget       = errors.New("cannot target yourself")
	ErrUnknownPrompt    = errors.New("prompt not in cohort prompt set")
	ErrEmptyAnswer      = errors.New("answer is empty")
	ErrPromptMismatch   = errors.New("pending exchange uses a different prompt")
	ErrCohortCooldown   = errors.New("cohort switch cooldown active")
	ErrCycleClaimed     = errors.New("cycle already resolving with a different selection")
	ErrMalformedID      = errors.New("malformed id")
)

// ValidationError is a request rejected at the boundary with no partial effect.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %v", e.Err)
	}
	return fmt.Sprintf("validation: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func Validation(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// NotFoundError reports a referenced record that the store does not hold.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// TransientStoreError wraps an I/O failure. The same request may be retried.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientStoreError unless it already carries a
// taxonomy type, in which case it is returned unchanged.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &TransientStoreError{Op: op, Err: err}
}

// InvariantViolation is fatal: correct code never produces it.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated: %s: %s", e.Invariant, e.Detail)
}

func Invariant(invariant, detail string) *InvariantViolation {
	return &InvariantViolation{Invariant: invariant, Detail: detail}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

func IsTransient(err error) bool {
	var t *TransientStoreError
	return errors.As(err, &t)
}

func IsInvariant(err error) bool {
	var i *InvariantViolation
	return errors.As(err, &i)
}

// Classified reports whether err already belongs to the taxonomy.
func Classified(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsTransient(err) || IsInvariant(err)
}
