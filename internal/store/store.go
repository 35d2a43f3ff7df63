// Package store persists gate-crossing events, daily occupancy state,
// missing-period tracking, and alert history in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"gatewatch/internal/logger"
)

// Direction is a crossing direction, constrained to IN/OUT at the schema level.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Event is a single gate-crossing record.
type Event struct {
	ID        int64
	EventTime time.Time
	Direction Direction
	CameraID  string
	TrackID   int64
	CreatedAt time.Time
}

// DailyState is the persisted occupancy state for one calendar date.
type DailyState struct {
	Date         string // YYYY-MM-DD
	TotalMorning int
	IsFrozen     bool
	IsMissing    bool
	RealtimeIn   int
	RealtimeOut  int
	UpdatedAt    time.Time
}

// MissingPeriod is an open-or-closed span during which the realtime count
// diverged from the expected total_morning baseline. Uniqueness of the open
// (end_time IS NULL) period is per calendar Date, not per Session: a
// shortfall opened during the morning session stays the same open row when
// the day crosses into the afternoon session, since it is one continuous gap
// in occupancy regardless of which phase the clock is in when it is observed.
type MissingPeriod struct {
	ID              int64
	Date            string // YYYY-MM-DD
	StartTime       time.Time
	EndTime         *time.Time
	DurationMinutes *int
	Session         string // session the period was opened in: "morning" | "afternoon"
	AlertSent       bool
}

// AlertLog records every alert decision — sent, failed, or skipped — so
// operators can audit gaps in notification rather than infer them from
// silence.
type AlertLog struct {
	ID            int64
	AlertTime     time.Time
	ExpectedTotal int
	CurrentTotal  int
	Missing       int
	Session       string
	NotifyStatus  string // "sent" | "failed" | "skipped"
	Reason        string // populated for "skipped" (why) and "failed" (SMTP error)
	CreatedAt     time.Time
}

// Store handles all SQLite access for the service. A single connection is
// held open (SetMaxOpenConns(1)) so writers never interleave inside SQLite's
// own locking, matching the WAL single-writer discipline the schema assumes.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	log *logger.Logger

	onLoss func(kind string, payload map[string]interface{}, err error)
}

// New opens (creating if necessary) the SQLite database at path and runs
// schema migration and validation. Initialization failure is treated as
// fatal by callers: a service with no durable store cannot safely run. log
// may be nil (e.g. for offline inspection tools); when set, New logs the
// absolute storage path and per-table row counts. Either way, a
// 60-second-delayed self-test writes a marker event if nothing has arrived
// by then.
func New(path string, log *logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, log: log}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("validate database: %w", err)
	}

	counts, err := s.tableRowCounts()
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	if s.log != nil {
		absPath, absErr := filepath.Abs(path)
		if absErr != nil {
			absPath = path
		}
		s.log.Info("store initialized: path=%s events=%d daily_state=%d missing_periods=%d alert_logs=%d",
			absPath, counts["events"], counts["daily_state"], counts["missing_periods"], counts["alert_logs"])
	}

	time.AfterFunc(60*time.Second, s.runSelfTest)

	return s, nil
}

// tableRowCounts returns a SELECT COUNT(*) per required table, the "log row
// counts" half of init's verify step.
func (s *Store) tableRowCounts() (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"events", "daily_state", "missing_periods", "alert_logs"} {
		var n int
		if err := s.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// runSelfTest fires once, 60 seconds after New returns. If the events table
// is still empty at that point, it inserts one IN/self_test marker event so
// an operator watching the store sees proof of the write path without
// waiting on a real gate crossing.
func (s *Store) runSelfTest() {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		if s.log != nil {
			s.log.Warning("self-test row count failed: %v", err)
		}
		return
	}
	if n > 0 {
		return
	}
	if _, err := s.AppendEvent(Event{
		EventTime: time.Now(),
		Direction: DirectionIn,
		CameraID:  "self_test",
		TrackID:   0,
	}); err != nil {
		if s.log != nil {
			s.log.Warning("self-test marker insert failed: %v", err)
		}
		return
	}
	if s.log != nil {
		s.log.Info("self-test marker inserted: no events observed within 60s of startup")
	}
}

// OnLoss registers a callback invoked whenever an event or alert write fails,
// so the record is reported as lost rather than silently dropped. The failed
// write is not retried.
// kind is the logical record type ("event", "alert", ...); payload carries
// enough fields to reconstruct the record from logs.
func (s *Store) OnLoss(fn func(kind string, payload map[string]interface{}, err error)) {
	s.onLoss = fn
}

func (s *Store) reportLoss(kind string, payload map[string]interface{}, err error) {
	if s.onLoss == nil {
		return
	}
	payload["loss_id"] = uuid.NewString()
	s.onLoss(kind, payload, err)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_time DATETIME NOT NULL,
		direction TEXT CHECK(direction IN ('IN','OUT')) NOT NULL,
		camera_id TEXT NOT NULL,
		track_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_events_event_time ON events(event_time);
	CREATE INDEX IF NOT EXISTS idx_events_date ON events(date(event_time));

	CREATE TABLE IF NOT EXISTS daily_state (
		date TEXT PRIMARY KEY,
		total_morning INTEGER NOT NULL DEFAULT 0,
		is_frozen INTEGER NOT NULL DEFAULT 0,
		is_missing INTEGER NOT NULL DEFAULT 0,
		realtime_in INTEGER NOT NULL DEFAULT 0,
		realtime_out INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS missing_periods (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		duration_minutes INTEGER,
		session TEXT NOT NULL,
		alert_sent INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_missing_periods_open
		ON missing_periods(date, end_time);

	CREATE TABLE IF NOT EXISTS alert_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_time DATETIME NOT NULL,
		expected_total INTEGER NOT NULL,
		current_total INTEGER NOT NULL,
		missing INTEGER NOT NULL,
		session TEXT NOT NULL,
		notify_status TEXT NOT NULL DEFAULT 'sent',
		reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) validate() error {
	required := []string{"events", "daily_state", "missing_periods", "alert_logs"}

	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		return fmt.Errorf("query sqlite_master: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		present[name] = true
	}

	var missing []string
	for _, t := range required {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tables missing: %v", missing)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}
