package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransientWrapsOnlyUnclassified(t *testing.T) {
	raw := errors.New("connection reset")
	err := Transient("upsert connection", raw)
	if !IsTransient(err) {
		t.Fatalf("Transient: want transient, got %T", err)
	}
	if !errors.Is(err, raw) {
		t.Fatalf("Transient: want cause preserved")
	}

	v := Validation("candidateIds", ErrSelectionCap)
	if got := Transient("resolve", v); got != error(v) {
		t.Fatalf("Transient: classified errors must pass through, got %v", got)
	}
	if Transient("noop", nil) != nil {
		t.Fatalf("Transient(nil): want nil")
	}
}

func TestTaxonomySurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("resolve: %w", Validation("candidateIds", ErrSelectionCap))
	if !IsValidation(wrapped) || !errors.Is(wrapped, ErrSelectionCap) {
		t.Fatalf("validation: lost through wrapping: %v", wrapped)
	}
	inv := fmt.Errorf("find: %w", Invariant("one active connection per pair", "2 rows"))
	if !IsInvariant(inv) || IsTransient(inv) {
		t.Fatalf("invariant: misclassified: %v", inv)
	}
	if !IsNotFound(NotFound("user", "u1")) {
		t.Fatalf("not found: misclassified")
	}
}
