package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// dailyFileRE matches people_counter_YYYY-MM-DD.xlsx, the same pattern
// retention_manager.py's _parse_date_from_filename parses by hand; Go's
// regexp lets us extract the date in one step.
var dailyFileRE = regexp.MustCompile(`^people_counter_(\d{4}-\d{2}-\d{2})\.xlsx$`)

// RollingExporter produces people_counter_LAST_N_DAYS.xlsx by reading the
// last N per-day workbooks already on disk — never from the Store — so the
// rolling summary always agrees with what operators see in the daily files.
// Grounded on export/rolling_summary_exporter.py.
type RollingExporter struct {
	dailyDir   string
	summaryDir string
	windowDays int
}

// NewRollingExporter builds a RollingExporter reading dailyDir and writing
// into summaryDir, aggregating the most recent windowDays workbooks.
func NewRollingExporter(dailyDir, summaryDir string, windowDays int) *RollingExporter {
	return &RollingExporter{dailyDir: dailyDir, summaryDir: summaryDir, windowDays: windowDays}
}

func (r *RollingExporter) filename() string {
	return fmt.Sprintf("people_counter_LAST_%d_DAYS.xlsx", r.windowDays)
}

// Run rebuilds the rolling summary from the selected daily workbooks.
func (r *RollingExporter) Run() (Result, error) {
	if err := os.MkdirAll(r.summaryDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure summary dir: %w", err)
	}

	dates, err := listDailyFiles(r.dailyDir, r.windowDays)
	if err != nil {
		return Result{}, fmt.Errorf("list daily files: %w", err)
	}
	if len(dates) == 0 {
		return Result{Status: "skipped", Reason: "no_daily_files"}, nil
	}

	f := excelize.NewFile()
	if err := r.writeDailySummary(f, dates); err != nil {
		return Result{}, fmt.Errorf("daily summary sheet: %w", err)
	}
	if err := r.writeDailyAlerts(f, dates); err != nil {
		return Result{}, fmt.Errorf("daily alerts sheet: %w", err)
	}
	if err := r.writeDailyMissingPeriods(f, dates); err != nil {
		return Result{}, fmt.Errorf("daily missing periods sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	if err := formatWorkbook(f); err != nil {
		return Result{}, fmt.Errorf("format workbook: %w", err)
	}

	dest := filepath.Join(r.summaryDir, r.filename())
	tmp := filepath.Join(r.summaryDir, fmt.Sprintf("people_counter_LAST_%d_DAYS.tmp.xlsx", r.windowDays))
	if err := f.SaveAs(tmp); err != nil {
		return Result{}, fmt.Errorf("write temp workbook: %w", err)
	}
	return atomicRename(tmp, dest)
}

// listDailyFiles returns the dates of the most recent n valid daily
// workbooks in dir, sorted ascending, skipping .tmp.xlsx files and the
// rolling summary itself.
func listDailyFiles(dir string, n int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dates []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		m := dailyFileRE.FindStringSubmatch(ent.Name())
		if m == nil {
			continue
		}
		dates = append(dates, m[1])
	}
	sort.Strings(dates)
	if len(dates) > n {
		dates = dates[len(dates)-n:]
	}
	return dates, nil
}

func (r *RollingExporter) writeDailySummary(f *excelize.File, dates []string) error {
	const sheet = "DAILY_SUMMARY"
	f.NewSheet(sheet)

	rows := [][]interface{}{{"Date", "Total Morning", "Current Realtime", "Current Missing", "Max Realtime", "Min Realtime"}}
	for _, date := range dates {
		summary, err := readSummarySheet(filepath.Join(r.dailyDir, dailyFilename(date)))
		if err != nil {
			return fmt.Errorf("read summary for %s: %w", date, err)
		}
		maxRT, minRT, err := eventsRealtimeBounds(filepath.Join(r.dailyDir, dailyFilename(date)))
		if err != nil {
			return fmt.Errorf("compute realtime bounds for %s: %w", date, err)
		}
		rows = append(rows, []interface{}{
			date, summary.totalMorning, summary.realtime, summary.missing, maxRT, minRT,
		})
	}
	return writeRows(f, sheet, rows)
}

func (r *RollingExporter) writeDailyAlerts(f *excelize.File, dates []string) error {
	const sheet = "DAILY_ALERTS"
	f.NewSheet(sheet)

	rows := [][]interface{}{{"Date", "alert_time", "total_morning", "realtime", "missing"}}
	for _, date := range dates {
		entries, err := readSheetRows(filepath.Join(r.dailyDir, dailyFilename(date)), "ALERTS")
		if err != nil {
			return err
		}
		for _, e := range entries {
			rows = append(rows, append([]interface{}{date}, e...))
		}
	}
	return writeRows(f, sheet, rows)
}

func (r *RollingExporter) writeDailyMissingPeriods(f *excelize.File, dates []string) error {
	const sheet = "DAILY_MISSING_PERIODS"
	f.NewSheet(sheet)

	rows := [][]interface{}{{"Date", "start_time", "end_time", "duration_minutes"}}
	for _, date := range dates {
		entries, err := readSheetRows(filepath.Join(r.dailyDir, dailyFilename(date)), "MISSING_PERIODS")
		if err != nil {
			return err
		}
		for _, e := range entries {
			rows = append(rows, append([]interface{}{date}, e...))
		}
	}
	return writeRows(f, sheet, rows)
}

type dailySummary struct {
	totalMorning int
	realtime     int
	missing      int
}

// readSummarySheet reads the Field/Value pairs back out of a daily
// workbook's SUMMARY sheet, mirroring rolling_summary_exporter.py's
// _read_daily_file, which reconstructs a dict from the same two columns.
func readSummarySheet(path string) (dailySummary, error) {
	rows, err := readSheetRows(path, "SUMMARY")
	if err != nil {
		return dailySummary{}, err
	}
	fields := make(map[string]string)
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		fields[fmt.Sprint(row[0])] = fmt.Sprint(row[1])
	}
	return dailySummary{
		totalMorning: atoiOr0(fields["Total Morning"]),
		realtime:     atoiOr0(fields["Current Realtime"]),
		missing:      atoiOr0(fields["Current Missing"]),
	}, nil
}

// eventsRealtimeBounds walks the EVENTS sheet of one daily workbook and
// returns the max/min running occupancy (IN − OUT) observed across the day.
func eventsRealtimeBounds(path string) (max, min int, err error) {
	rows, err := readSheetRows(path, "EVENTS")
	if err != nil {
		return 0, 0, err
	}
	running := 0
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		switch fmt.Sprint(row[1]) {
		case "IN":
			running++
		case "OUT":
			running--
		}
		if running > max {
			max = running
		}
		if running < min {
			min = running
		}
	}
	return max, min, nil
}

// readSheetRows opens path read-only and returns every data row (header
// excluded) of sheet as []interface{} with string cell values.
func readSheetRows(path, sheet string) ([][]interface{}, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil
	}
	if len(raw) <= 1 {
		return nil, nil
	}

	var out [][]interface{}
	for _, row := range raw[1:] {
		cells := make([]interface{}, len(row))
		for i, c := range row {
			cells[i] = c
		}
		out = append(out, cells)
	}
	return out, nil
}

func atoiOr0(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
