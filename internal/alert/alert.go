// Package alert decides when a missing-period shortfall warrants an email
// notification and records every decision, sent or skipped.
package alert

import (
	"context"
	"fmt"
	"time"

	"gatewatch/internal/phase"
	"gatewatch/internal/store"
)

// FirstAlertDelay is the minimum duration a missing period must stay open
// before its first alert is dispatched — 30 minutes plus a 30-second
// confirmation window that debounces a transient undercount at the moment
// the shortfall begins.
const FirstAlertDelay = 30*time.Minute + 30*time.Second

// Cooldown bounds how often a recurring alert for the same date and session
// can be sent while the missing count is unchanged.
const Cooldown = 30 * time.Minute

// Message is the content of one alert email.
type Message struct {
	Date         string
	Now          time.Time
	Session      string
	TotalMorning int
	Present      int
	Missing      int
	PeriodStart  time.Time
	Duration     time.Duration
	CameraID     string
}

// Body renders the plain-text message body per spec §4.4.
func (m Message) Body() string {
	phaseName := "Morning"
	if m.Session == string(phase.SessionAfternoon) {
		phaseName = "Afternoon"
	}
	return fmt.Sprintf(
		"Alert: People Missing (%s Session)\n\n"+
			"Date: %s\n"+
			"Phase: %s\n"+
			"Missing Start Time: %s\n"+
			"Duration: %s\n"+
			"Current Missing Count: %d people\n"+
			"Total Morning: %d\n"+
			"Current Realtime: %d\n"+
			"Camera ID: %s\n"+
			"Time: %s\n",
		phaseName, m.Date, phaseName,
		m.PeriodStart.Format(time.RFC3339),
		m.Duration.Round(time.Minute),
		m.Missing, m.TotalMorning, m.Present, m.CameraID,
		m.Now.Format(time.RFC3339),
	)
}

// EmailSender dispatches one alert message. Implementations are expected to
// return a non-nil error on any SMTP failure so the Manager can record a
// "failed" AlertLog rather than silently losing the notification.
type EmailSender interface {
	Send(ctx context.Context, subject, body string) error
}

// Manager evaluates the alert decision rule on each tick and records its
// outcome durably, regardless of whether an email was actually sent.
type Manager struct {
	store    *store.Store
	sender   EmailSender
	enabled  bool
	cameraID string
}

// NewManager builds a Manager. When enabled is false, every tick logs a
// "skipped(reason=disabled)" decision and the sender is never invoked.
func NewManager(s *store.Store, sender EmailSender, enabled bool, cameraID string) *Manager {
	return &Manager{store: s, sender: sender, enabled: enabled, cameraID: cameraID}
}

// Decision is the outcome of one Tick evaluation, returned for logging.
type Decision struct {
	Status string // "sent" | "failed" | "skipped"
	Reason string // populated when Status == "skipped" (why) or "failed" (send error)
}

// Tick evaluates the decision rule for one session on the current phase. ph
// must be RealtimeMorning or AfternoonMonitoring; callers are expected to
// skip the tick entirely otherwise (spec §4.4's cadence gate). Every branch
// but that one writes an AlertLog row — sent, failed, or skipped with a
// reason — so the evaluation history is a complete audit trail, never a
// silent drop.
func (m *Manager) Tick(ctx context.Context, now time.Time, ph phase.Phase) (Decision, error) {
	session := phase.SessionOf(ph)
	if session == "" {
		return Decision{Status: "skipped", Reason: "not_monitoring_phase"}, nil
	}
	date := now.Format("2006-01-02")

	if !m.enabled {
		return m.logSkip(now, date, string(session), 0, 0, "disabled")
	}

	ds, err := m.store.GetDailyState(date)
	if err != nil {
		return Decision{}, fmt.Errorf("daily state: %w", err)
	}
	totalMorning := 0
	if ds != nil {
		totalMorning = ds.TotalMorning
	}
	present, err := m.store.CurrentRealtimeCount(date)
	if err != nil {
		return Decision{}, fmt.Errorf("realtime count: %w", err)
	}
	if present < 0 {
		present = 0
	}

	active, err := m.store.ActiveMissingPeriod(date)
	if err != nil {
		return Decision{}, fmt.Errorf("active missing period: %w", err)
	}
	if active == nil {
		return m.logSkip(now, date, string(session), totalMorning, present, "no_missing")
	}

	duration := now.Sub(active.StartTime)
	if duration < FirstAlertDelay {
		return m.logSkip(now, date, string(session), totalMorning, present, "duration<30.5m")
	}

	missing := totalMorning - present
	if missing < 0 {
		missing = 0
	}
	if missing <= 0 {
		return m.logSkip(now, date, string(session), totalMorning, present, "missing<=0")
	}

	last, err := m.store.LastSentAlert(date, string(session))
	if err != nil {
		return Decision{}, fmt.Errorf("last sent alert: %w", err)
	}
	if last != nil {
		sinceLast := now.Sub(last.AlertTime)
		if sinceLast < Cooldown && last.Missing == missing {
			return m.logSkip(now, date, string(session), totalMorning, present, "cooldown")
		}
	}

	msg := Message{
		Date:         date,
		Now:          now,
		Session:      string(session),
		TotalMorning: totalMorning,
		Present:      present,
		Missing:      missing,
		PeriodStart:  active.StartTime,
		Duration:     duration,
		CameraID:     m.cameraID,
	}

	sendErr := m.sender.Send(ctx, fmt.Sprintf("People Missing Alert - %s", date), msg.Body())

	status := "sent"
	reason := ""
	if sendErr != nil {
		status = "failed"
		reason = sendErr.Error()
	}

	if _, err := m.store.AppendAlert(store.AlertLog{
		AlertTime:     now,
		ExpectedTotal: totalMorning,
		CurrentTotal:  present,
		Missing:       missing,
		Session:       string(session),
		NotifyStatus:  status,
		Reason:        reason,
	}); err != nil {
		return Decision{}, fmt.Errorf("append alert log: %w", err)
	}

	if sendErr == nil && !active.AlertSent {
		if err := m.store.MarkMissingPeriodAlertSent(active.ID); err != nil {
			return Decision{}, fmt.Errorf("mark alert sent: %w", err)
		}
	}

	if sendErr != nil {
		return Decision{Status: "failed", Reason: reason}, sendErr
	}
	return Decision{Status: "sent"}, nil
}

// logSkip persists a "skipped" AlertLog row with reason and returns the
// matching Decision — every non-dispatch outcome after session/date
// resolution goes through here so none of them vanish silently.
func (m *Manager) logSkip(now time.Time, date, session string, expected, current int, reason string) (Decision, error) {
	missing := expected - current
	if missing < 0 {
		missing = 0
	}
	if _, err := m.store.AppendAlert(store.AlertLog{
		AlertTime:     now,
		ExpectedTotal: expected,
		CurrentTotal:  current,
		Missing:       missing,
		Session:       session,
		NotifyStatus:  "skipped",
		Reason:        reason,
	}); err != nil {
		return Decision{}, fmt.Errorf("append alert log: %w", err)
	}
	return Decision{Status: "skipped", Reason: reason}, nil
}
