// Command inspect opens the gatewatch SQLite store (creating the schema if it
// is missing) and prints a quick diagnostic summary for one date — its
// daily-state row, missing periods, alerts, and event count. It replaces the teacher's cmd/migrate
// (a one-shot image-gallery import this domain has no use for) with the
// offline inspection tool an operator actually wants for this store.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"gatewatch/internal/store"
)

func main() {
	dbPath := flag.String("db", "data/gatewatch.db", "Path to the gatewatch SQLite database")
	date := flag.String("date", time.Now().Format("2006-01-02"), "Date (YYYY-MM-DD) to summarize")
	flag.Parse()

	s, err := store.New(*dbPath, nil)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer s.Close()

	fmt.Printf("gatewatch store: %s\n\n", *dbPath)

	ds, err := s.GetDailyState(*date)
	if err != nil {
		log.Fatalf("get daily state: %v", err)
	}
	if ds == nil {
		fmt.Printf("No daily_state row for %s yet.\n", *date)
	} else {
		present := ds.TotalMorning + ds.RealtimeIn - ds.RealtimeOut
		missing := ds.TotalMorning - present
		if missing < 0 {
			missing = 0
		}
		fmt.Printf("Date:            %s\n", *date)
		fmt.Printf("Total Morning:   %d (frozen=%v)\n", ds.TotalMorning, ds.IsFrozen)
		fmt.Printf("Present:         %d\n", present)
		fmt.Printf("Missing:         %d (is_missing=%v)\n", missing, ds.IsMissing)
		fmt.Printf("Updated:         %s\n", ds.UpdatedAt.Format(time.RFC3339))
	}

	periods, err := s.MissingPeriodsForDate(*date)
	if err != nil {
		log.Fatalf("missing periods for date: %v", err)
	}
	fmt.Printf("\nMissing periods (%d):\n", len(periods))
	for _, p := range periods {
		end := "open"
		if p.EndTime != nil {
			end = p.EndTime.Format(time.RFC3339)
		}
		dur := "n/a"
		if p.DurationMinutes != nil {
			dur = fmt.Sprintf("%dm", *p.DurationMinutes)
		}
		fmt.Printf("  [%s] %s -> %s (%s) alert_sent=%v\n", p.Session, p.StartTime.Format(time.RFC3339), end, dur, p.AlertSent)
	}

	alerts, err := s.AlertsForDate(*date)
	if err != nil {
		log.Fatalf("alerts for date: %v", err)
	}
	fmt.Printf("\nAlerts (%d):\n", len(alerts))
	for _, a := range alerts {
		line := fmt.Sprintf("  %s session=%s expected=%d current=%d missing=%d status=%s",
			a.AlertTime.Format(time.RFC3339), a.Session, a.ExpectedTotal, a.CurrentTotal, a.Missing, a.NotifyStatus)
		if a.Reason != "" {
			line += fmt.Sprintf(" reason=%s", a.Reason)
		}
		fmt.Println(line)
	}

	events, err := s.EventsForDate(*date)
	if err != nil {
		log.Fatalf("events for date: %v", err)
	}
	fmt.Printf("\nEvents: %d total\n", len(events))
}
