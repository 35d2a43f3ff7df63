// Package export writes the per-day and rolling Excel workbooks operators
// read directly, and sweeps expired per-day files off disk.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"gatewatch/internal/phase"
	"gatewatch/internal/store"
)

const headerFill = "366092"

// dailyFilename returns the canonical per-day workbook name for date
// (YYYY-MM-DD), matching excel_exporter.py's people_counter_{date}.xlsx.
func dailyFilename(date string) string {
	return fmt.Sprintf("people_counter_%s.xlsx", date)
}

// DailyExporter builds people_counter_YYYY-MM-DD.xlsx for one date, reading
// exclusively from the Store — grounded on export/excel_exporter.py's
// export_daily_excel, translated sheet-for-sheet into excelize.
type DailyExporter struct {
	store    *store.Store
	dir      string
	cameraID string
	bounds   phase.Bounds
}

// NewDailyExporter builds a DailyExporter writing workbooks into dir.
func NewDailyExporter(s *store.Store, dir, cameraID string, bounds phase.Bounds) *DailyExporter {
	return &DailyExporter{store: s, dir: dir, cameraID: cameraID, bounds: bounds}
}

// Result reports the outcome of one export attempt for logging.
type Result struct {
	Status string // "written" | "skipped"
	Reason string // populated when Status == "skipped", e.g. "locked"
	Path   string
}

// Run exports date, returning a Result rather than an error for the
// "destination is open in a spreadsheet app" case, which is expected
// operational behavior rather than a failure.
func (e *DailyExporter) Run(date string) (Result, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure export dir: %w", err)
	}

	f, err := e.build(date)
	if err != nil {
		return Result{}, fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()

	dest := filepath.Join(e.dir, dailyFilename(date))
	tmp := filepath.Join(e.dir, fmt.Sprintf("people_counter_%s.tmp.xlsx", date))

	if err := f.SaveAs(tmp); err != nil {
		return Result{}, fmt.Errorf("write temp workbook: %w", err)
	}

	return atomicRename(tmp, dest)
}

// atomicRename implements the shared temp-then-rename protocol: remove an
// existing destination, then rename tmp into place. A destination that
// cannot be removed (locked by an operator's spreadsheet app) is treated as
// a skip, not an error, and the temp file is preserved for inspection.
func atomicRename(tmp, dest string) (Result, error) {
	if _, err := os.Stat(dest); err == nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			return Result{Status: "skipped", Reason: "locked", Path: tmp}, nil
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		return Result{Status: "skipped", Reason: "locked", Path: tmp}, nil
	}
	return Result{Status: "written", Path: dest}, nil
}

func (e *DailyExporter) build(date string) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := e.writeSummary(f, date); err != nil {
		return nil, fmt.Errorf("summary sheet: %w", err)
	}
	if err := e.writeMissingPeriods(f, date); err != nil {
		return nil, fmt.Errorf("missing periods sheet: %w", err)
	}
	if err := e.writeAlerts(f, date); err != nil {
		return nil, fmt.Errorf("alerts sheet: %w", err)
	}
	if err := e.writeEvents(f, date); err != nil {
		return nil, fmt.Errorf("events sheet: %w", err)
	}

	// excelize.NewFile() seeds a default "Sheet1"; drop it now that every
	// real sheet has been written, so SUMMARY ends up first.
	f.DeleteSheet("Sheet1")

	if err := formatWorkbook(f); err != nil {
		return nil, fmt.Errorf("format workbook: %w", err)
	}
	return f, nil
}

// baselineTotalMorning implements the §4.5 baseline rule: prefer the frozen
// DailyState value when present and non-zero, else recompute over the
// morning window directly from events.
func (e *DailyExporter) baselineTotalMorning(date string, ds *store.DailyState) (int, error) {
	if ds != nil && ds.IsFrozen && ds.TotalMorning != 0 {
		return ds.TotalMorning, nil
	}
	day, err := time.ParseInLocation("2006-01-02", date, e.bounds.Location)
	if err != nil {
		return 0, fmt.Errorf("parse date: %w", err)
	}
	var resetHour, resetMinute int
	if _, err := fmt.Sscanf(e.bounds.ResetTime, "%d:%d", &resetHour, &resetMinute); err != nil {
		return 0, fmt.Errorf("parse reset_time: %w", err)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), resetHour, resetMinute, 0, 0, e.bounds.Location)
	// the morning window ends where REALTIME_MORNING begins (morning_end).
	end, err := phase.PhaseStart(phase.RealtimeMorning, day, e.bounds)
	if err != nil {
		return 0, err
	}
	return e.store.TotalMorningFromEvents(start, end, e.cameraID)
}

func (e *DailyExporter) writeSummary(f *excelize.File, date string) error {
	const sheet = "SUMMARY"
	f.NewSheet(sheet)

	ds, err := e.store.GetDailyState(date)
	if err != nil {
		return err
	}
	totalMorning, err := e.baselineTotalMorning(date, ds)
	if err != nil {
		return err
	}
	present, err := e.store.CurrentRealtimeCount(date)
	if err != nil {
		return err
	}
	if present < 0 {
		present = 0
	}
	missing := totalMorning - present
	if missing < 0 {
		missing = 0
	}
	updated := "n/a"
	if ds != nil {
		updated = ds.UpdatedAt.Format(time.RFC3339)
	}

	rows := [][]interface{}{
		{"Field", "Value"},
		{"Date", date},
		{"Total Morning", totalMorning},
		{"Current Realtime", present},
		{"Current Missing", missing},
		{"Last Updated", updated},
	}
	return writeRows(f, sheet, rows)
}

func (e *DailyExporter) writeMissingPeriods(f *excelize.File, date string) error {
	const sheet = "MISSING_PERIODS"
	f.NewSheet(sheet)

	periods, err := e.store.MissingPeriodsForDate(date)
	if err != nil {
		return err
	}

	rows := [][]interface{}{{"start_time", "end_time", "duration_minutes"}}
	for _, p := range periods {
		endVal := interface{}("")
		if p.EndTime != nil {
			endVal = p.EndTime.Format(time.RFC3339)
		}
		durVal := interface{}("")
		if p.DurationMinutes != nil {
			durVal = *p.DurationMinutes
		}
		rows = append(rows, []interface{}{p.StartTime.Format(time.RFC3339), endVal, durVal})
	}
	return writeRows(f, sheet, rows)
}

func (e *DailyExporter) writeAlerts(f *excelize.File, date string) error {
	const sheet = "ALERTS"
	f.NewSheet(sheet)

	alerts, err := e.store.AlertsForDate(date)
	if err != nil {
		return err
	}

	rows := [][]interface{}{{"alert_time", "total_morning", "realtime", "missing"}}
	for _, a := range alerts {
		if a.NotifyStatus != "sent" {
			continue
		}
		rows = append(rows, []interface{}{
			a.AlertTime.Format(time.RFC3339), a.ExpectedTotal, a.CurrentTotal, a.Missing,
		})
	}
	return writeRows(f, sheet, rows)
}

func (e *DailyExporter) writeEvents(f *excelize.File, date string) error {
	const sheet = "EVENTS"
	f.NewSheet(sheet)

	events, err := e.store.EventsForDate(date)
	if err != nil {
		return err
	}

	rows := [][]interface{}{{"event_time", "direction", "camera_id"}}
	for _, ev := range events {
		rows = append(rows, []interface{}{ev.EventTime.Format(time.RFC3339), string(ev.Direction), ev.CameraID})
	}
	return writeRows(f, sheet, rows)
}

// writeRows writes rows starting at A1, one excelize SetSheetRow call per
// row, matching the column order already baked into each caller's slice.
func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// formatWorkbook applies the header-row styling, frozen pane, autofilter,
// and capped column-width pass to every data sheet — the excelize
// equivalent of _format_excel in excel_exporter.py.
func formatWorkbook(f *excelize.File) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#" + headerFill}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	for _, sheet := range f.GetSheetList() {
		dims, err := f.GetSheetDimension(sheet)
		if err != nil || dims == "" {
			continue
		}
		cols, err := columnWidths(f, sheet)
		if err != nil {
			return err
		}
		for col, width := range cols {
			if width > 50 {
				width = 50
			}
			letter, _ := excelize.ColumnNumberToName(col)
			if err := f.SetColWidth(sheet, letter, letter, width+2); err != nil {
				return err
			}
		}

		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		lastCol, _ := excelize.ColumnNumberToName(len(rows[0]))
		if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
			return err
		}
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze: true, Split: false, XSplit: 0, YSplit: 1,
			TopLeftCell: "A2", ActivePane: "bottomLeft",
		}); err != nil {
			return err
		}
		if len(rows) > 1 {
			if err := f.AutoFilter(sheet, fmt.Sprintf("A1:%s1", lastCol), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func columnWidths(f *excelize.File, sheet string) (map[int]float64, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	widths := make(map[int]float64)
	for _, row := range rows {
		for i, cell := range row {
			if l := float64(len(cell)); l > widths[i+1] {
				widths[i+1] = l
			}
		}
	}
	return widths, nil
}
