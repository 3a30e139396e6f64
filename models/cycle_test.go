package models

import "testing"

func TestCycleResolutionSameSelection(t *testing.T) {
	claim := CycleResolution{CandidateIDs: []string{"b", "a", "c"}}
	if !claim.SameSelection([]string{"c", "b", "a"}) {
		t.Fatalf("order must not matter")
	}
	if claim.SameSelection([]string{"a", "b"}) || claim.SameSelection([]string{"a", "b", "d"}) {
		t.Fatalf("different sets must not match")
	}
	if !(CycleResolution{}).SameSelection(nil) {
		t.Fatalf("empty claim matches an empty selection")
	}
}
