package phase

import (
	"fmt"
	"time"

	"gatewatch/internal/store"
)

// Snapshot is the occupancy picture computed on each tick, handed to
// callers that broadcast or log it.
type Snapshot struct {
	Date          string
	Phase         Phase
	TotalMorning  int
	Present       int
	Missing       int
	ActivePeriod  *store.MissingPeriod
}

// Hooks lets the caller react to phase-manager events without the manager
// depending on the exporter or status packages directly.
type Hooks struct {
	OnDailyReset func(date string)
	OnDayClose   func(date string)
	OnSnapshot   func(Snapshot)
}

// Manager runs the phase clock against the Store on every tick, maintaining
// DailyState and MissingPeriods per spec §4.3.
type Manager struct {
	store    *store.Store
	bounds   Bounds
	cameraID string
	hooks    Hooks

	lastDate      string
	firstTickSeen map[Session]bool
}

// NewManager constructs a Manager for one camera.
func NewManager(s *store.Store, bounds Bounds, cameraID string, hooks Hooks) *Manager {
	return &Manager{
		store:         s,
		bounds:        bounds,
		cameraID:      cameraID,
		hooks:         hooks,
		firstTickSeen: make(map[Session]bool),
	}
}

// Tick advances the phase manager by one evaluation, idempotent: re-running
// it against the same Store state produces the same outcome, so a missed
// minute never desynchronizes the daily bookkeeping.
func (m *Manager) Tick(now time.Time) error {
	now = now.In(m.bounds.Location)
	date := now.Format("2006-01-02")

	ph, err := At(now, m.bounds)
	if err != nil {
		return fmt.Errorf("resolve phase: %w", err)
	}

	if m.lastDate != "" && m.lastDate != date {
		// a new day began between ticks; firstTickSeen resets with it.
		m.firstTickSeen = make(map[Session]bool)
	}
	if m.lastDate != date {
		if err := m.handleDailyReset(date, now); err != nil {
			return err
		}
	}
	m.lastDate = date

	resetTime, err := parseClock(now, m.bounds.ResetTime, m.bounds.Location)
	if err != nil {
		return err
	}
	morningEnd, err := parseClock(now, m.bounds.MorningEnd, m.bounds.Location)
	if err != nil {
		return err
	}

	switch ph {
	case MorningCount:
		if err := m.updateMorningCount(date, resetTime, now); err != nil {
			return err
		}

	case RealtimeMorning, AfternoonMonitoring:
		if ph == RealtimeMorning {
			if err := m.freezeIfNeeded(date); err != nil {
				return err
			}
		}
		if err := m.evaluateMissing(date, ph, now, resetTime, morningEnd); err != nil {
			return err
		}

	case DayClose:
		if err := m.handleDayClose(date, now); err != nil {
			return err
		}
	}

	return nil
}

func (m *Manager) handleDailyReset(date string, now time.Time) error {
	zero := 0
	falseVal := false
	if err := m.store.UpsertDailyState(date, &zero, &falseVal, &falseVal, &zero, &zero); err != nil {
		return fmt.Errorf("reset daily_state: %w", err)
	}
	if m.hooks.OnDailyReset != nil {
		m.hooks.OnDailyReset(date)
	}
	return nil
}

func (m *Manager) updateMorningCount(date string, resetTime, now time.Time) error {
	in, out, err := m.store.EventsInWindow(resetTime, now, m.cameraID)
	if err != nil {
		return fmt.Errorf("events in morning window: %w", err)
	}
	total := in - out
	if total < 0 {
		total = 0
	}
	if err := m.store.UpsertDailyState(date, &total, nil, nil, nil, nil); err != nil {
		return fmt.Errorf("update total_morning: %w", err)
	}
	return nil
}

func (m *Manager) freezeIfNeeded(date string) error {
	ds, err := m.store.GetDailyState(date)
	if err != nil {
		return err
	}
	if ds != nil && ds.IsFrozen {
		return nil
	}
	trueVal := true
	if err := m.store.UpsertDailyState(date, nil, &trueVal, nil, nil, nil); err != nil {
		return fmt.Errorf("freeze total_morning: %w", err)
	}
	return nil
}

func (m *Manager) evaluateMissing(date string, ph Phase, now, resetTime, morningEnd time.Time) error {
	ds, err := m.store.GetDailyState(date)
	if err != nil {
		return err
	}

	baseline := 0
	if ds != nil {
		baseline = ds.TotalMorning
	}
	if baseline == 0 {
		// recovers from a crash that happened before the morning freeze tick.
		recomputed, err := m.store.TotalMorningFromEvents(resetTime, morningEnd, m.cameraID)
		if err != nil {
			return fmt.Errorf("recompute total_morning: %w", err)
		}
		if recomputed > 0 {
			baseline = recomputed
		}
	}

	countIn, countOut, err := m.store.EventsInWindow(resetTime, now.Add(time.Second), m.cameraID)
	if err != nil {
		return fmt.Errorf("events today: %w", err)
	}
	present := countIn - countOut

	missing := baseline - present
	if missing < 0 {
		missing = 0
	}

	// daily_state.realtime_in/out hold the crossings since morning_end, so
	// CurrentRealtimeCount (total_morning + realtime_in - realtime_out, read
	// by AlertManager and the daily exporter) tracks the events-based present
	// count computed above.
	realtimeIn, realtimeOut, err := m.store.EventsInWindow(morningEnd, now.Add(time.Second), m.cameraID)
	if err != nil {
		return fmt.Errorf("events since morning end: %w", err)
	}
	if err := m.store.UpsertDailyState(date, nil, nil, nil, &realtimeIn, &realtimeOut); err != nil {
		return fmt.Errorf("update realtime counts: %w", err)
	}

	session := SessionOf(ph)

	active, err := m.store.ActiveMissingPeriod(date)
	if err != nil {
		return fmt.Errorf("active missing period: %w", err)
	}

	switch {
	case missing > 0 && active == nil:
		start := now
		if !m.firstTickSeen[session] {
			// shortfall already present on the very first tick since
			// process start: backdate to the session's phase boundary
			// rather than blaming the whole gap on "now".
			if boundary, err := PhaseStart(ph, now, m.bounds); err == nil {
				start = boundary
			}
		}
		if _, err := m.store.OpenMissingPeriod(start, date, string(session)); err != nil {
			return fmt.Errorf("open missing period: %w", err)
		}
		missingVal := true
		if err := m.store.UpsertDailyState(date, nil, nil, &missingVal, nil, nil); err != nil {
			return err
		}

	case missing > 0 && active != nil:
		// the open period is left as it is: start_time and duration are
		// never reset while it stays open. The observed shortfall is not
		// stored on the period row.

	case missing == 0 && active != nil:
		if err := m.store.CloseMissingPeriod(active.ID, now); err != nil {
			return fmt.Errorf("close missing period: %w", err)
		}
		missingVal := false
		if err := m.store.UpsertDailyState(date, nil, nil, &missingVal, nil, nil); err != nil {
			return err
		}
	}

	m.firstTickSeen[session] = true

	if m.hooks.OnSnapshot != nil {
		snap := Snapshot{
			Date:         date,
			Phase:        ph,
			TotalMorning: baseline,
			Present:      present,
			Missing:      missing,
		}
		if missing > 0 {
			if refreshed, err := m.store.ActiveMissingPeriod(date); err == nil {
				snap.ActivePeriod = refreshed
			}
		}
		m.hooks.OnSnapshot(snap)
	}

	return nil
}

func (m *Manager) handleDayClose(date string, now time.Time) error {
	// at most one missing period is ever open per date (ActiveMissingPeriod
	// is keyed by date, not session), so a single force-close suffices.
	active, err := m.store.ActiveMissingPeriod(date)
	if err != nil {
		return err
	}
	if active != nil {
		if err := m.store.CloseMissingPeriod(active.ID, now); err != nil {
			return err
		}
	}
	if m.hooks.OnDayClose != nil {
		m.hooks.OnDayClose(date)
	}
	return nil
}
