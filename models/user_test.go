package models

import (
	"testing"
	"time"
)

func TestDaysUntilCohortSwitch(t *testing.T) {
	joined := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	u := User{CohortJoinedAt: joined}

	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"same instant", joined, 30},
		{"partial day rounds up", joined.Add(29*24*time.Hour + time.Hour), 1},
		{"exactly elapsed", joined.Add(DefaultCohortSwitchCooldown), 0},
		{"long after", joined.Add(90 * 24 * time.Hour), 0},
	}
	for _, tc := range cases {
		if got := u.DaysUntilCohortSwitch(tc.now, DefaultCohortSwitchCooldown); got != tc.want {
			t.Fatalf("%s: want=%d got=%d", tc.name, tc.want, got)
		}
	}
	if u.CanSwitchCohort(joined.Add(time.Hour), DefaultCohortSwitchCooldown) {
		t.Fatalf("CanSwitchCohort: want false right after joining")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	u, err := NewUser(UserSignupRequest{DisplayName: "Amy", Email: "a@x.io", Password: "s3cret!", CohortID: "hikers"}, time.Now())
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if !u.CheckPassword("s3cret!") {
		t.Fatalf("CheckPassword: want true for the right password")
	}
	if u.CheckPassword("nope") {
		t.Fatalf("CheckPassword: want false for the wrong password")
	}
	if u.Kind != Member || u.CohortID != "hikers" {
		t.Fatalf("defaults: got kind=%s cohort=%s", u.Kind, u.CohortID)
	}
}
