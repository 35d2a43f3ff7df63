package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RetentionSweeper deletes per-day workbooks older than RetentionDays,
// leaving the rolling summary and any .tmp.xlsx files untouched so a
// locked or in-progress export is never deleted out from under itself.
// Grounded on export/retention_manager.py's cleanup_old_daily_files.
type RetentionSweeper struct {
	dailyDir      string
	retentionDays int
}

// NewRetentionSweeper builds a RetentionSweeper over dailyDir.
func NewRetentionSweeper(dailyDir string, retentionDays int) *RetentionSweeper {
	return &RetentionSweeper{dailyDir: dailyDir, retentionDays: retentionDays}
}

// SweepResult reports what the sweep did, for logging.
type SweepResult struct {
	Deleted []string
}

// Run deletes every daily workbook dated before today - retentionDays,
// relative to now's calendar date.
func (r *RetentionSweeper) Run(now time.Time) (SweepResult, error) {
	entries, err := os.ReadDir(r.dailyDir)
	if os.IsNotExist(err) {
		return SweepResult{}, nil
	}
	if err != nil {
		return SweepResult{}, fmt.Errorf("read daily dir: %w", err)
	}

	cutoff := now.AddDate(0, 0, -r.retentionDays)
	cutoffDate := cutoff.Format("2006-01-02")

	var result SweepResult
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		m := dailyFileRE.FindStringSubmatch(ent.Name())
		if m == nil {
			continue
		}
		if m[1] >= cutoffDate {
			continue
		}
		path := filepath.Join(r.dailyDir, ent.Name())
		if err := os.Remove(path); err != nil {
			return result, fmt.Errorf("remove %s: %w", ent.Name(), err)
		}
		result.Deleted = append(result.Deleted, ent.Name())
	}
	return result, nil
}
