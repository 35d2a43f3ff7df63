package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gatewatch/internal/phase"
	"gatewatch/internal/store"
)

func testBounds() phase.Bounds {
	return phase.Bounds{
		Location:           time.UTC,
		ResetTime:          "06:00",
		MorningEnd:         "08:30",
		RealtimeMorningEnd: "11:55",
		LunchEnd:           "13:15",
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "gatewatch_export_test")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := store.New(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDailyExporter_WritesExpectedSheets(t *testing.T) {
	s := newTestStore(t)
	date := "2026-01-15"
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	total := 10
	frozen := true
	if err := s.UpsertDailyState(date, &total, &frozen, nil, nil, nil); err != nil {
		t.Fatalf("upsert daily state: %v", err)
	}
	realtimeOut := 3
	if err := s.UpsertDailyState(date, nil, nil, nil, nil, &realtimeOut); err != nil {
		t.Fatalf("upsert realtime_out: %v", err)
	}

	if _, err := s.AppendEvent(store.Event{EventTime: day.Add(9 * time.Hour), Direction: store.DirectionIn, CameraID: "cam-1", TrackID: 1}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if _, err := s.AppendEvent(store.Event{EventTime: day.Add(10 * time.Hour), Direction: store.DirectionOut, CameraID: "cam-1", TrackID: 1}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	periodID, err := s.OpenMissingPeriod(day.Add(10*time.Hour), date, "afternoon")
	if err != nil {
		t.Fatalf("open missing period: %v", err)
	}
	if err := s.CloseMissingPeriod(periodID, day.Add(10*time.Hour+20*time.Minute)); err != nil {
		t.Fatalf("close missing period: %v", err)
	}

	if _, err := s.AppendAlert(store.AlertLog{
		AlertTime: day.Add(11 * time.Hour), ExpectedTotal: 10, CurrentTotal: 7, Missing: 3,
		Session: "afternoon", NotifyStatus: "sent",
	}); err != nil {
		t.Fatalf("append alert: %v", err)
	}

	dir, err := os.MkdirTemp("", "gatewatch_export_daily")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	exp := NewDailyExporter(s, dir, "cam-1", testBounds())
	res, err := exp.Run(date)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != "written" {
		t.Fatalf("expected written, got %+v", res)
	}

	rows, err := readSheetRows(res.Path, "SUMMARY")
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("expected 5 summary data rows, got %d", len(rows))
	}

	alertRows, err := readSheetRows(res.Path, "ALERTS")
	if err != nil {
		t.Fatalf("read alerts: %v", err)
	}
	if len(alertRows) != 1 {
		t.Errorf("expected 1 alert row, got %d", len(alertRows))
	}

	eventRows, err := readSheetRows(res.Path, "EVENTS")
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(eventRows) != 2 {
		t.Errorf("expected 2 event rows, got %d", len(eventRows))
	}
}

func TestDailyExporter_SkipsWhenDestinationLocked(t *testing.T) {
	s := newTestStore(t)
	date := "2026-01-16"

	dir, err := os.MkdirTemp("", "gatewatch_export_locked")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	// Make the destination a directory so os.Remove fails, simulating a
	// file locked open elsewhere.
	if err := os.MkdirAll(filepath.Join(dir, dailyFilename(date), "x"), 0o755); err != nil {
		t.Fatalf("setup locked destination: %v", err)
	}

	exp := NewDailyExporter(s, dir, "cam-1", testBounds())
	res, err := exp.Run(date)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != "skipped" || res.Reason != "locked" {
		t.Errorf("expected skipped/locked, got %+v", res)
	}
}

func TestRollingExporter_AggregatesRecentDailyFiles(t *testing.T) {
	s := newTestStore(t)
	dailyDir, err := os.MkdirTemp("", "gatewatch_rolling_daily")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dailyDir)
	summaryDir, err := os.MkdirTemp("", "gatewatch_rolling_summary")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(summaryDir)

	exp := NewDailyExporter(s, dailyDir, "cam-1", testBounds())
	dates := []string{"2026-01-10", "2026-01-11", "2026-01-12"}
	for _, d := range dates {
		total := 4
		frozen := true
		if err := s.UpsertDailyState(d, &total, &frozen, nil, nil, nil); err != nil {
			t.Fatalf("upsert daily state %s: %v", d, err)
		}
		if _, err := exp.Run(d); err != nil {
			t.Fatalf("export %s: %v", d, err)
		}
	}

	roll := NewRollingExporter(dailyDir, summaryDir, 5)
	res, err := roll.Run()
	if err != nil {
		t.Fatalf("run rolling: %v", err)
	}
	if res.Status != "written" {
		t.Fatalf("expected written, got %+v", res)
	}

	rows, err := readSheetRows(res.Path, "DAILY_SUMMARY")
	if err != nil {
		t.Fatalf("read daily summary: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("expected 3 daily summary rows, got %d", len(rows))
	}
}

func TestRollingExporter_SkipsWhenNoDailyFiles(t *testing.T) {
	dailyDir, err := os.MkdirTemp("", "gatewatch_rolling_empty")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dailyDir)
	summaryDir, err := os.MkdirTemp("", "gatewatch_rolling_empty_summary")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(summaryDir)

	roll := NewRollingExporter(dailyDir, summaryDir, 5)
	res, err := roll.Run()
	if err != nil {
		t.Fatalf("run rolling: %v", err)
	}
	if res.Status != "skipped" || res.Reason != "no_daily_files" {
		t.Errorf("expected skipped/no_daily_files, got %+v", res)
	}
}

func TestRetentionSweeper_DeletesOnlyExpiredDailyFiles(t *testing.T) {
	dir, err := os.MkdirTemp("", "gatewatch_retention")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	names := []string{
		"people_counter_2026-01-10.xlsx", // expired (10 days back, retention 5)
		"people_counter_2026-01-18.xlsx", // within retention
		"people_counter_2026-01-10.tmp.xlsx", // tmp file, never swept
		"people_counter_LAST_5_DAYS.xlsx",    // rolling file, never swept
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}

	sweeper := NewRetentionSweeper(dir, 5)
	res, err := sweeper.Run(now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Deleted) != 1 || res.Deleted[0] != "people_counter_2026-01-10.xlsx" {
		t.Errorf("expected only the 2026-01-10 daily file deleted, got %v", res.Deleted)
	}

	for _, n := range names[1:] {
		if _, err := os.Stat(filepath.Join(dir, n)); err != nil {
			t.Errorf("expected %s to survive the sweep: %v", n, err)
		}
	}
}
