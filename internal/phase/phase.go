// Package phase implements the daily phase clock and the phase-driven
// baseline/missing-period bookkeeping that rides on top of it.
package phase

import (
	"fmt"
	"time"
)

// Phase names one segment of the operating day.
type Phase string

const (
	MorningCount        Phase = "MORNING_COUNT"
	RealtimeMorning     Phase = "REALTIME_MORNING"
	LunchBreak          Phase = "LUNCH_BREAK"
	AfternoonMonitoring Phase = "AFTERNOON_MONITORING"
	DayClose            Phase = "DAY_CLOSE"
)

// Bounds holds the HH:MM boundaries that define the day's phases, all
// interpreted in one timezone.
type Bounds struct {
	Location           *time.Location
	ResetTime          string
	MorningEnd         string
	RealtimeMorningEnd string
	LunchEnd           string
}

// Session names which half of the monitored day a missing period belongs
// to — used as the MissingPeriod.Session column value.
type Session string

const (
	SessionMorning   Session = "morning"
	SessionAfternoon Session = "afternoon"
)

// SessionOf returns the session a phase participates in, or "" for phases
// that never carry an open missing period (MORNING_COUNT, LUNCH_BREAK,
// DAY_CLOSE).
func SessionOf(p Phase) Session {
	switch p {
	case RealtimeMorning:
		return SessionMorning
	case AfternoonMonitoring:
		return SessionAfternoon
	}
	return ""
}

// At is the pure function mapping wall-clock time to Phase, per spec's
// phase boundary table. now must already be in Bounds.Location.
func At(now time.Time, b Bounds) (Phase, error) {
	reset, err := parseClock(now, b.ResetTime, b.Location)
	if err != nil {
		return "", fmt.Errorf("parse reset_time: %w", err)
	}
	morningEnd, err := parseClock(now, b.MorningEnd, b.Location)
	if err != nil {
		return "", fmt.Errorf("parse morning_end: %w", err)
	}
	realtimeMorningEnd, err := parseClock(now, b.RealtimeMorningEnd, b.Location)
	if err != nil {
		return "", fmt.Errorf("parse realtime_morning_end: %w", err)
	}
	lunchEnd, err := parseClock(now, b.LunchEnd, b.Location)
	if err != nil {
		return "", fmt.Errorf("parse lunch_end: %w", err)
	}
	dayClose := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 0, 0, b.Location)

	switch {
	case !now.Before(dayClose):
		return DayClose, nil
	case !now.Before(reset) && now.Before(morningEnd):
		return MorningCount, nil
	case !now.Before(morningEnd) && now.Before(realtimeMorningEnd):
		return RealtimeMorning, nil
	case !now.Before(realtimeMorningEnd) && now.Before(lunchEnd):
		return LunchBreak, nil
	case !now.Before(lunchEnd):
		return AfternoonMonitoring, nil
	default:
		// before reset_time: treat as still within the previous day's
		// afternoon monitoring window (service runs continuously).
		return AfternoonMonitoring, nil
	}
}

// PhaseStart returns the wall-clock instant a phase begins on the date of
// now, used to backdate a missing period's start_time to the session's
// phase-start boundary (see Manager.Tick's restart rule).
func PhaseStart(p Phase, now time.Time, b Bounds) (time.Time, error) {
	switch p {
	case RealtimeMorning:
		return parseClock(now, b.MorningEnd, b.Location)
	case AfternoonMonitoring:
		return parseClock(now, b.LunchEnd, b.Location)
	default:
		return time.Time{}, fmt.Errorf("phase %s has no session start boundary", p)
	}
}

func parseClock(ref time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("invalid HH:MM %q: %w", hhmm, err)
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, loc), nil
}
