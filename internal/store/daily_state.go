package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertDailyState creates or updates the row for date. total_morning is a
// frozen field: once is_frozen is true, a call that does not also pass
// freeze=true again leaves total_morning untouched, so a late-arriving
// stray crossing can never perturb the morning baseline used for alerting.
func (s *Store) UpsertDailyState(date string, totalMorning *int, freeze *bool, missing *bool, realtimeIn, realtimeOut *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	var existing struct {
		totalMorning int
		isFrozen     bool
	}
	row := s.db.QueryRow(`SELECT total_morning, is_frozen FROM daily_state WHERE date = ?`, date)
	err := row.Scan(&existing.totalMorning, &existing.isFrozen)
	switch {
	case err == sql.ErrNoRows:
		tm := 0
		if totalMorning != nil {
			tm = *totalMorning
		}
		frozen := false
		if freeze != nil {
			frozen = *freeze
		}
		miss := false
		if missing != nil {
			miss = *missing
		}
		ri, ro := 0, 0
		if realtimeIn != nil {
			ri = *realtimeIn
		}
		if realtimeOut != nil {
			ro = *realtimeOut
		}
		_, err := s.db.Exec(`
			INSERT INTO daily_state (date, total_morning, is_frozen, is_missing, realtime_in, realtime_out, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, date, tm, boolToInt(frozen), boolToInt(miss), ri, ro, now)
		if err != nil {
			return fmt.Errorf("insert daily_state: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("select daily_state: %w", err)
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{now}

	if existing.isFrozen && (freeze == nil || !*freeze) {
		// total_morning is frozen; a plain realtime update must not touch it.
	} else if totalMorning != nil {
		sets = append(sets, "total_morning = ?")
		args = append(args, *totalMorning)
	}
	if freeze != nil {
		sets = append(sets, "is_frozen = ?")
		args = append(args, boolToInt(*freeze))
	}
	if missing != nil {
		sets = append(sets, "is_missing = ?")
		args = append(args, boolToInt(*missing))
	}
	if realtimeIn != nil {
		sets = append(sets, "realtime_in = ?")
		args = append(args, *realtimeIn)
	}
	if realtimeOut != nil {
		sets = append(sets, "realtime_out = ?")
		args = append(args, *realtimeOut)
	}

	query := "UPDATE daily_state SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE date = ?"
	args = append(args, date)

	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("update daily_state: %w", err)
	}
	return nil
}

// GetDailyState returns the state for date, or nil if no row exists yet.
func (s *Store) GetDailyState(date string) (*DailyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ds DailyState
	var isFrozen, isMissing int
	ds.Date = date

	row := s.db.QueryRow(`
		SELECT total_morning, is_frozen, is_missing, realtime_in, realtime_out, updated_at
		FROM daily_state WHERE date = ?
	`, date)
	err := row.Scan(&ds.TotalMorning, &isFrozen, &isMissing, &ds.RealtimeIn, &ds.RealtimeOut, &ds.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select daily_state: %w", err)
	}
	ds.IsFrozen = isFrozen != 0
	ds.IsMissing = isMissing != 0
	return &ds, nil
}

// CurrentRealtimeCount returns total_morning + realtime_in - realtime_out
// from the persisted daily_state row for date, or 0 if no row exists yet.
func (s *Store) CurrentRealtimeCount(date string) (int, error) {
	ds, err := s.GetDailyState(date)
	if err != nil {
		return 0, err
	}
	if ds == nil {
		return 0, nil
	}
	return ds.TotalMorning + ds.RealtimeIn - ds.RealtimeOut, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
