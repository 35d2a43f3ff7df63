// Package app wires every component of the gate-occupancy monitor together
// and runs it until shutdown, the way webserver/internal/app.App wires its
// detector/buffer/hub trio — generalized to a Store-centric domain with a
// cron-scheduled worker set instead of one ticker loop.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"gatewatch/internal/alert"
	"gatewatch/internal/config"
	"gatewatch/internal/export"
	"gatewatch/internal/gate"
	"gatewatch/internal/ingest"
	"gatewatch/internal/logger"
	"gatewatch/internal/phase"
	"gatewatch/internal/status"
	"gatewatch/internal/store"
)

// App owns every long-lived component of the service and its HTTP server.
type App struct {
	config *config.Config
	log    *logger.Logger
	bounds phase.Bounds

	store         *store.Store
	counter       *gate.Counter
	phaseManager  *phase.Manager
	alertManager  *alert.Manager
	dailyExporter *export.DailyExporter
	rollingExp    *export.RollingExporter
	retention     *export.RetentionSweeper
	hub           *status.Hub
	ingestHandler *ingest.Handler

	cron    *cron.Cron
	server  *http.Server
	hubStop chan struct{}
}

// NewApp loads configuration and constructs every component, wiring each
// one's dependencies per SPEC_FULL.md §3-4. It does not start any
// goroutines; call Run for that.
func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	bounds := phase.Bounds{
		Location:           loc,
		ResetTime:          cfg.ResetTime,
		MorningEnd:         cfg.MorningEnd,
		RealtimeMorningEnd: cfg.RealtimeMorningEnd,
		LunchEnd:           cfg.LunchEnd,
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StoragePath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	s, err := store.New(cfg.StoragePath, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.OnLoss(func(kind string, payload map[string]interface{}, err error) {
		log.Error("durability loss: kind=%s payload=%v err=%v", kind, payload, err)
	})

	counter := gate.NewCounter(cfg.CameraID, gateConfigFrom(cfg))

	hub := status.NewHub(log)

	var sender alert.EmailSender
	if cfg.AlertEnabled {
		sender = alert.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.FromAddress, cfg.SMTPPassword, cfg.ToAddresses)
	}
	alertMgr := alert.NewManager(s, sender, cfg.AlertEnabled, cfg.CameraID)

	phaseMgr := phase.NewManager(s, bounds, cfg.CameraID, phase.Hooks{
		OnDailyReset: func(date string) { log.Info("daily reset: date=%s", date) },
		OnDayClose:   func(date string) { log.Info("day close: date=%s", date) },
		OnSnapshot:   hub.Publish,
	})

	dailyExp := export.NewDailyExporter(s, cfg.DailyExportDir, cfg.CameraID, bounds)
	rollingExp := export.NewRollingExporter(cfg.DailyExportDir, cfg.SummaryExportDir, cfg.RollingWindowDays)
	retention := export.NewRetentionSweeper(cfg.DailyExportDir, cfg.RetentionDays)

	ingestHandler := ingest.NewHandler(s, counter, log)

	return &App{
		config:        cfg,
		log:           log,
		bounds:        bounds,
		store:         s,
		counter:       counter,
		phaseManager:  phaseMgr,
		alertManager:  alertMgr,
		dailyExporter: dailyExp,
		rollingExp:    rollingExp,
		retention:     retention,
		hub:           hub,
		ingestHandler: ingestHandler,
		hubStop:       make(chan struct{}),
	}, nil
}

// gateConfigFrom translates the flat env-driven config into gate.Config.
// Fields for modes other than the configured one are simply unused by
// gate.Counter's geometry switch.
func gateConfigFrom(cfg *config.Config) gate.Config {
	return gate.Config{
		Mode:            gate.Mode(cfg.GateMode),
		GateY:           cfg.GateY,
		GateHeight:      cfg.GateHeight,
		GateXMin:        cfg.GateXMin,
		GateXMax:        cfg.GateXMax,
		GateX:           cfg.GateX,
		GateWidth:       cfg.GateWidth,
		GateYMin:        cfg.GateYMin,
		GateYMax:        cfg.GateYMax,
		P1:              gate.Point{X: cfg.GateP1X, Y: cfg.GateP1Y},
		P2:              gate.Point{X: cfg.GateP2X, Y: cfg.GateP2Y},
		GateThickness:   cfg.GateThickness,
		CooldownSec:     cfg.CooldownSec,
		MinFramesInGate: cfg.MinFramesInGate,
		MinTravelPx:     cfg.MinTravelPx,
	}
}

// Run starts the status hub, the cron-scheduled workers, and the HTTP
// server, then blocks until SIGINT/SIGTERM, at which point it runs the
// shutdown sequence described in spec §5.
func (a *App) Run() error {
	go a.hub.Run(a.hubStop)

	if err := a.runExportPass(); err != nil {
		a.log.Warning("startup export failed: %v", err)
	}

	a.cron = cron.New()
	if _, err := a.cron.AddFunc("@every 1m", a.tickPhase); err != nil {
		return fmt.Errorf("schedule phase tick: %w", err)
	}
	if _, err := a.cron.AddFunc("@every 30m", a.tickAlert); err != nil {
		return fmt.Errorf("schedule alert tick: %w", err)
	}
	if _, err := a.cron.AddFunc("@every 30m", a.tickExport); err != nil {
		return fmt.Errorf("schedule export tick: %w", err)
	}
	if _, err := a.cron.AddFunc("59 23 * * *", a.tickRetention); err != nil {
		return fmt.Errorf("schedule retention tick: %w", err)
	}
	a.cron.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ingest/tracks", a.ingestHandler.ServeHTTP)
	mux.HandleFunc("/status", a.hub.ServeHTTP)
	mux.HandleFunc("/logs/info", a.showLog("info.log"))
	mux.HandleFunc("/logs/warning", a.showLog("warning.log"))
	mux.HandleFunc("/logs/error", a.showLog("error.log"))

	a.server = &http.Server{Addr: a.config.IngestAddr, Handler: mux}

	a.log.Info("gatewatch starting: addr=%s camera=%s", a.config.IngestAddr, a.config.CameraID)

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-sig:
		a.log.Info("shutdown signal received")
		return a.Stop()
	}
}

// Stop runs the shutdown sequence: drain the ingestion queue, run one final
// daily + rolling export, then stop the scheduler and HTTP server. The
// Store is closed last so every already-durable write stays intact even if
// an earlier step in the sequence times out.
func (a *App) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.ingestHandler.Close()

	if err := a.runExportPass(); err != nil {
		a.log.Warning("final export failed: %v", err)
	}

	if a.cron != nil {
		cronCtx := a.cron.Stop()
		<-cronCtx.Done()
	}

	close(a.hubStop)

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Error("http shutdown error: %v", err)
		}
	}

	return a.store.Close()
}

func (a *App) tickPhase() {
	if err := a.phaseManager.Tick(time.Now()); err != nil {
		a.log.Error("phase tick failed: %v", err)
	}
}

func (a *App) tickAlert() {
	now := time.Now()
	ph, err := phase.At(now.In(a.bounds.Location), a.bounds)
	if err != nil {
		a.log.Error("alert tick: resolve phase: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dec, err := a.alertManager.Tick(ctx, now, ph)
	if err != nil {
		a.log.Error("alert tick failed: status=%s err=%v", dec.Status, err)
		return
	}
	if dec.Status == "sent" {
		a.log.Info("alert sent")
	}
}

func (a *App) tickExport() {
	if err := a.runExportPass(); err != nil {
		a.log.Error("scheduled export failed: %v", err)
	}
}

func (a *App) tickRetention() {
	if res, err := a.retention.Run(time.Now()); err != nil {
		a.log.Error("retention sweep failed: %v", err)
	} else if len(res.Deleted) > 0 {
		a.log.Info("retention deleted %d file(s)", len(res.Deleted))
	}
}

// runExportPass runs the daily export for today plus the rolling export, and
// defensively sweeps retention — used at startup, on the 30-minute cadence,
// and at shutdown (force-final).
func (a *App) runExportPass() error {
	date := time.Now().In(a.bounds.Location).Format("2006-01-02")
	if res, err := a.dailyExporter.Run(date); err != nil {
		return fmt.Errorf("daily export: %w", err)
	} else if res.Status == "skipped" {
		a.log.Warning("daily export skipped: reason=%s", res.Reason)
	}
	if res, err := a.rollingExp.Run(); err != nil {
		return fmt.Errorf("rolling export: %w", err)
	} else if res.Status == "skipped" {
		a.log.Warning("rolling export skipped: reason=%s", res.Reason)
	}
	if res, err := a.retention.Run(time.Now()); err != nil {
		a.log.Warning("retention sweep failed: %v", err)
	} else if len(res.Deleted) > 0 {
		a.log.Info("retention deleted %d file(s)", len(res.Deleted))
	}
	return nil
}

func (a *App) showLog(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(a.config.LogDirectory, name))
	}
}
