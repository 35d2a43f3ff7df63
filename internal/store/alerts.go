package store

import (
	"database/sql"
	"fmt"
)

// AppendAlert records one alert decision — sent, failed, or skipped — so the
// full evaluation history survives restarts and audits cleanly, per the
// AlertLog invariant that every attempt leaves a row, not just dispatches.
func (s *Store) AppendAlert(al AlertLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO alert_logs (alert_time, expected_total, current_total, missing, session, notify_status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, al.AlertTime, al.ExpectedTotal, al.CurrentTotal, al.Missing, al.Session, al.NotifyStatus, al.Reason)
	if err != nil {
		s.reportLoss("alert", map[string]interface{}{
			"alert_time":     al.AlertTime,
			"expected_total": al.ExpectedTotal,
			"current_total":  al.CurrentTotal,
			"missing":        al.Missing,
			"session":        al.Session,
		}, err)
		return 0, fmt.Errorf("insert alert_log: %w", err)
	}
	return res.LastInsertId()
}

// SetAlertNotifyStatus updates notify_status on a previously inserted alert
// row once the SMTP dispatch outcome is known.
func (s *Store) SetAlertNotifyStatus(id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE alert_logs SET notify_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update alert_log status: %w", err)
	}
	return nil
}

// LastAlert returns the most recent alert_logs row for a session on a given
// date regardless of outcome, or nil if none exists — used for diagnostics
// and export, not for the cooldown decision (see LastSentAlert).
func (s *Store) LastAlert(date, session string) (*AlertLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var al AlertLog
	row := s.db.QueryRow(`
		SELECT id, alert_time, expected_total, current_total, missing, session, notify_status, reason, created_at
		FROM alert_logs
		WHERE substr(alert_time, 1, 10) = ? AND session = ?
		ORDER BY id DESC LIMIT 1
	`, date, session)
	err := row.Scan(&al.ID, &al.AlertTime, &al.ExpectedTotal, &al.CurrentTotal, &al.Missing, &al.Session, &al.NotifyStatus, &al.Reason, &al.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select last alert: %w", err)
	}
	return &al, nil
}

// LastSentAlert returns the most recent alert_logs row with
// notify_status='sent' for a session on a given date, or nil if none has
// been sent. This is what the Cooldown decision is evaluated against — a
// run of "skipped" rows between two sends must never reset the cooldown
// clock.
func (s *Store) LastSentAlert(date, session string) (*AlertLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var al AlertLog
	row := s.db.QueryRow(`
		SELECT id, alert_time, expected_total, current_total, missing, session, notify_status, reason, created_at
		FROM alert_logs
		WHERE substr(alert_time, 1, 10) = ? AND session = ? AND notify_status = 'sent'
		ORDER BY id DESC LIMIT 1
	`, date, session)
	err := row.Scan(&al.ID, &al.AlertTime, &al.ExpectedTotal, &al.CurrentTotal, &al.Missing, &al.Session, &al.NotifyStatus, &al.Reason, &al.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select last sent alert: %w", err)
	}
	return &al, nil
}

// AlertsForDate returns every alert_logs row for date, ordered by time —
// used by the daily exporter's "Alerts" sheet.
func (s *Store) AlertsForDate(date string) ([]AlertLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, alert_time, expected_total, current_total, missing, session, notify_status, reason, created_at
		FROM alert_logs
		WHERE substr(alert_time, 1, 10) = ?
		ORDER BY alert_time ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query alerts for date: %w", err)
	}
	defer rows.Close()

	var out []AlertLog
	for rows.Next() {
		var al AlertLog
		if err := rows.Scan(&al.ID, &al.AlertTime, &al.ExpectedTotal, &al.CurrentTotal, &al.Missing, &al.Session, &al.NotifyStatus, &al.Reason, &al.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert_log: %w", err)
		}
		out = append(out, al)
	}
	return out, nil
}
