package store

import (
	"fmt"
	"strings"
	"time"
)

// AppendEvent durably records a single gate crossing. Direction is
// normalized to canonical upper-case at this write boundary and rejected if
// it is anything other than IN/OUT, per the store's contract that nothing
// downstream ever has to re-validate it. On SQLite write failure the event
// is reported through OnLoss rather than silently dropped; callers should
// treat a non-nil error as "count this event as lost for today's totals"
// since retrying a crossing event after the fact would misattribute its
// timestamp.
func (s *Store) AppendEvent(e Event) (int64, error) {
	direction := strings.ToUpper(string(e.Direction))
	if direction != string(DirectionIn) && direction != string(DirectionOut) {
		return 0, fmt.Errorf("invalid event direction %q: must be IN or OUT", e.Direction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO events (event_time, direction, camera_id, track_id)
		VALUES (?, ?, ?, ?)
	`, e.EventTime, direction, e.CameraID, e.TrackID)
	if err != nil {
		s.reportLoss("event", map[string]interface{}{
			"event_time": e.EventTime,
			"direction":  e.Direction,
			"camera_id":  e.CameraID,
			"track_id":   e.TrackID,
		}, err)
		return 0, fmt.Errorf("insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// EventsInWindow returns (countIn, countOut) for a half-open [start, end)
// time window on one camera.
func (s *Store) EventsInWindow(start, end time.Time, cameraID string) (countIn, countOut int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT
			SUM(CASE WHEN direction = 'IN' THEN 1 ELSE 0 END),
			SUM(CASE WHEN direction = 'OUT' THEN 1 ELSE 0 END)
		FROM events
		WHERE event_time >= ? AND event_time < ? AND camera_id = ?
	`, start, end, cameraID)

	var in, out *int
	if err := row.Scan(&in, &out); err != nil {
		return 0, 0, fmt.Errorf("scan window counts: %w", err)
	}
	if in != nil {
		countIn = *in
	}
	if out != nil {
		countOut = *out
	}
	return countIn, countOut, nil
}

// TotalMorningFromEvents recomputes total_morning (IN - OUT) directly from
// the events table within [morningStart, morningEnd) local times, bypassing
// daily_state. Used when daily_state holds no non-zero baseline, e.g. after
// a crash that happened before the morning freeze.
func (s *Store) TotalMorningFromEvents(morningStart, morningEnd time.Time, cameraID string) (int, error) {
	countIn, countOut, err := s.EventsInWindow(morningStart, morningEnd, cameraID)
	if err != nil {
		return 0, err
	}
	return countIn - countOut, nil
}

// EventsForDate returns every event whose event_time falls on the given
// local calendar date (YYYY-MM-DD), ordered by event_time, for the EVENTS
// export sheet.
func (s *Store) EventsForDate(date string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, event_time, direction, camera_id, track_id, created_at
		FROM events
		WHERE substr(event_time, 1, 10) = ?
		ORDER BY event_time ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("query events for date: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var direction string
		if err := rows.Scan(&e.ID, &e.EventTime, &direction, &e.CameraID, &e.TrackID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Direction = Direction(direction)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountAfter returns the count of events with the given direction at or
// after start, for one camera.
func (s *Store) CountAfter(start time.Time, direction Direction, cameraID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM events
		WHERE event_time >= ? AND direction = ? AND camera_id = ?
	`, start, string(direction), cameraID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events after: %w", err)
	}
	return count, nil
}
