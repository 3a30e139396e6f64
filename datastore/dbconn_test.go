package datastore

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"github.com/kinship/cycle-api/apperr"
)

func TestBuildDBConnStr(t *testing.T) {
	got := BuildDBConnStr("db.internal:5432", "pw", "kin", "kinship", "require")
	want := "postgres://kin:pw@db.internal:5432/kinship?sslmode=require"
	if got != want {
		t.Fatalf("BuildDBConnStr: want=%s got=%s", want, got)
	}
	if got := BuildDBConnStr("", "pw", "kin", "kinship", "disable"); got != "postgres://kin:pw@localhost/kinship?sslmode=disable" {
		t.Fatalf("BuildDBConnStr default host: got=%s", got)
	}
}

func TestNoRowsErrorUnwraps(t *testing.T) {
	err := error(NoRowsError{NoRows: true, Err: sql.ErrNoRows})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("NoRowsError should unwrap to sql.ErrNoRows")
	}
}

func TestRankingKeyIsCohortScoped(t *testing.T) {
	if rankingKey("amy", "hikers") == rankingKey("amy", "gamers") {
		t.Fatalf("rankingKey: cohorts must not share a key")
	}
}

func TestRejectMalformedMapsInvalidText(t *testing.T) {
	bad := fmt.Errorf("query: %w", &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})
	err := rejectMalformed("counterpartId", bad)
	if !apperr.IsValidation(err) || !errors.Is(err, apperr.ErrMalformedID) {
		t.Fatalf("rejectMalformed: want validation got %v", err)
	}
	if apperr.IsTransient(apperr.Transient("load member", err)) {
		t.Fatalf("a malformed id must not be reported as retryable")
	}

	dial := errors.New("read tcp: connection reset by peer")
	if got := rejectMalformed("counterpartId", dial); got != dial {
		t.Fatalf("rejectMalformed: other errors pass through, got %v", got)
	}
	if got := rejectMalformed("counterpartId", nil); got != nil {
		t.Fatalf("rejectMalformed(nil): got %v", got)
	}
}
