package phase

import (
	"fmt"
	"testing"
	"time"
)

func testBounds() Bounds {
	loc := time.UTC
	return Bounds{
		Location:           loc,
		ResetTime:          "06:00",
		MorningEnd:         "08:30",
		RealtimeMorningEnd: "11:55",
		LunchEnd:           "13:15",
	}
}

func at(t *testing.T, hhmm string) time.Time {
	t.Helper()
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		t.Fatalf("parse %q: %v", hhmm, err)
	}
	return time.Date(2026, 1, 15, h, m, 0, 0, time.UTC)
}

func TestAt_PhaseBoundaries(t *testing.T) {
	b := testBounds()

	cases := []struct {
		clock string
		want  Phase
	}{
		{"06:00", MorningCount},
		{"08:00", MorningCount},
		{"08:30", RealtimeMorning},
		{"10:00", RealtimeMorning},
		{"11:55", LunchBreak},
		{"12:30", LunchBreak},
		{"13:15", AfternoonMonitoring},
		{"20:00", AfternoonMonitoring},
		{"23:59", DayClose},
	}

	for _, tc := range cases {
		got, err := At(at(t, tc.clock), b)
		if err != nil {
			t.Fatalf("At(%s): %v", tc.clock, err)
		}
		if got != tc.want {
			t.Errorf("At(%s) = %s, want %s", tc.clock, got, tc.want)
		}
	}
}

func TestSessionOf(t *testing.T) {
	if SessionOf(RealtimeMorning) != SessionMorning {
		t.Errorf("expected morning session")
	}
	if SessionOf(AfternoonMonitoring) != SessionAfternoon {
		t.Errorf("expected afternoon session")
	}
	if SessionOf(LunchBreak) != "" {
		t.Errorf("expected no session during lunch break")
	}
}

func TestPhaseStart(t *testing.T) {
	b := testBounds()
	now := at(t, "10:00")

	start, err := PhaseStart(RealtimeMorning, now, b)
	if err != nil {
		t.Fatalf("PhaseStart: %v", err)
	}
	if start.Hour() != 8 || start.Minute() != 30 {
		t.Errorf("expected 08:30 boundary, got %v", start)
	}

	start, err = PhaseStart(AfternoonMonitoring, now, b)
	if err != nil {
		t.Fatalf("PhaseStart: %v", err)
	}
	if start.Hour() != 13 || start.Minute() != 15 {
		t.Errorf("expected 13:15 boundary, got %v", start)
	}

	if _, err := PhaseStart(MorningCount, now, b); err == nil {
		t.Errorf("expected error for a phase with no session boundary")
	}
}
