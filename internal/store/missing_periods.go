package store

import (
	"database/sql"
	"fmt"
	"time"
)

// OpenMissingPeriod creates a new missing period starting at start for date,
// recording session as the phase it was first observed in, and returns its
// id. Callers are expected to have already checked there is no open period
// for date via ActiveMissingPeriod.
func (s *Store) OpenMissingPeriod(start time.Time, date, session string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO missing_periods (date, start_time, session, alert_sent)
		VALUES (?, ?, ?, 0)
	`, date, start, session)
	if err != nil {
		return 0, fmt.Errorf("insert missing_period: %w", err)
	}
	return res.LastInsertId()
}

// ActiveMissingPeriod returns the currently-open (end_time IS NULL) missing
// period for date, or nil if none is open. Lookup is keyed by date alone,
// not session, so a period opened during the morning session is still found
// once the clock crosses into the afternoon session on the same date.
func (s *Store) ActiveMissingPeriod(date string) (*MissingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mp MissingPeriod
	var alertSent int
	row := s.db.QueryRow(`
		SELECT id, date, start_time, session, alert_sent
		FROM missing_periods
		WHERE date = ? AND end_time IS NULL
		ORDER BY id DESC LIMIT 1
	`, date)
	err := row.Scan(&mp.ID, &mp.Date, &mp.StartTime, &mp.Session, &alertSent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select active missing_period: %w", err)
	}
	mp.AlertSent = alertSent != 0
	return &mp, nil
}

// CloseMissingPeriod sets end_time and derives duration_minutes for an open
// period.
func (s *Store) CloseMissingPeriod(id int64, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE missing_periods
		SET end_time = ?,
		    duration_minutes = CAST((julianday(?) - julianday(start_time)) * 1440 AS INTEGER)
		WHERE id = ? AND end_time IS NULL
	`, end, end, id)
	if err != nil {
		return fmt.Errorf("close missing_period: %w", err)
	}
	return nil
}

// MarkMissingPeriodAlertSent flags a missing period's first alert as sent.
// It is only ever set once per period; later recurring alerts are tracked
// through alert_logs, not by re-setting this flag.
func (s *Store) MarkMissingPeriodAlertSent(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE missing_periods SET alert_sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark missing_period alert sent: %w", err)
	}
	return nil
}

// MissingPeriodsForDate returns every missing period (open or closed) whose
// start_time falls on date (YYYY-MM-DD), ordered by start_time — used by the
// daily exporter.
func (s *Store) MissingPeriodsForDate(date string) ([]MissingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, date, start_time, end_time, duration_minutes, session, alert_sent
		FROM missing_periods
		WHERE date = ?
		ORDER BY start_time ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query missing_periods for date: %w", err)
	}
	defer rows.Close()

	var out []MissingPeriod
	for rows.Next() {
		var mp MissingPeriod
		var end sql.NullTime
		var dur sql.NullInt64
		var alertSent int
		if err := rows.Scan(&mp.ID, &mp.Date, &mp.StartTime, &end, &dur, &mp.Session, &alertSent); err != nil {
			return nil, fmt.Errorf("scan missing_period: %w", err)
		}
		if end.Valid {
			t := end.Time
			mp.EndTime = &t
		}
		if dur.Valid {
			d := int(dur.Int64)
			mp.DurationMinutes = &d
		}
		mp.AlertSent = alertSent != 0
		out = append(out, mp)
	}
	return out, nil
}
