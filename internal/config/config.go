// Package config loads the service's runtime configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the gate-occupancy monitor. All fields have
// defaults; none are load-bearing beyond what's documented.
type Config struct {
	// Storage & export paths
	StoragePath       string
	DailyExportDir    string
	SummaryExportDir  string
	LogDirectory      string

	// Camera / ingestion
	CameraID   string
	IngestAddr string

	// Gate geometry
	GateMode        string // HORIZONTAL_BAND | VERTICAL_BAND | LINE_BAND
	GateY           float64
	GateHeight      float64
	GateXMin        *float64
	GateXMax        *float64
	GateX           float64
	GateWidth       float64
	GateYMin        *float64
	GateYMax        *float64
	GateP1X, GateP1Y float64
	GateP2X, GateP2Y float64
	GateThickness   float64
	CooldownSec     float64
	MinFramesInGate int
	MinTravelPx     float64

	// Phase bounds (HH:MM, local to Timezone)
	Timezone           string
	ResetTime          string
	MorningStart       string
	MorningEnd         string
	RealtimeMorningEnd string
	LunchEnd           string

	// Alerting
	AlertEnabled      bool
	SMTPHost          string
	SMTPPort          int
	FromAddress       string
	SMTPPassword      string
	ToAddresses       []string
	FirstAlertDelay   time.Duration
	AlertCooldown     time.Duration
	AlertTickInterval time.Duration

	// Exporting & retention
	ExportInterval    time.Duration
	RollingWindowDays int
	RetentionDays     int
}

// Load reads configuration from the process environment, loading a .env
// file first if one is present in the working directory.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		StoragePath:      getEnv("STORAGE_PATH", filepath.Join(".", "data", "gatewatch.db")),
		DailyExportDir:   getEnv("DAILY_EXPORT_DIR", filepath.Join(".", "exports", "daily")),
		SummaryExportDir: getEnv("SUMMARY_EXPORT_DIR", filepath.Join(".", "exports", "summary")),
		LogDirectory:     getEnv("LOG_DIR", filepath.Join(".", "logs")),

		CameraID:   getEnv("CAMERA_ID", "gate-1"),
		IngestAddr: getEnv("INGEST_ADDR", ":8090"),

		GateMode:        getEnv("GATE_MODE", "HORIZONTAL_BAND"),
		GateY:           getEnvAsFloat("GATE_Y", 240.0),
		GateHeight:      getEnvAsFloat("GATE_HEIGHT", 40.0),
		GateXMin:        getEnvAsFloatPtr("GATE_X_MIN"),
		GateXMax:        getEnvAsFloatPtr("GATE_X_MAX"),
		GateX:           getEnvAsFloat("GATE_X", 320.0),
		GateWidth:       getEnvAsFloat("GATE_WIDTH", 40.0),
		GateYMin:        getEnvAsFloatPtr("GATE_Y_MIN"),
		GateYMax:        getEnvAsFloatPtr("GATE_Y_MAX"),
		GateP1X:         getEnvAsFloat("GATE_P1_X", 0),
		GateP1Y:         getEnvAsFloat("GATE_P1_Y", 240),
		GateP2X:         getEnvAsFloat("GATE_P2_X", 640),
		GateP2Y:         getEnvAsFloat("GATE_P2_Y", 240),
		GateThickness:   getEnvAsFloat("GATE_THICKNESS", 40.0),
		CooldownSec:     getEnvAsFloat("GATE_COOLDOWN_SEC", 1.0),
		MinFramesInGate: getEnvAsInt("GATE_MIN_FRAMES_IN_GATE", 2),
		MinTravelPx:     getEnvAsFloat("GATE_MIN_TRAVEL_PX", 15.0),

		Timezone:           getEnv("TIMEZONE", "Asia/Ho_Chi_Minh"),
		ResetTime:          getEnv("RESET_TIME", "06:00"),
		MorningStart:       getEnv("MORNING_START", "06:00"),
		MorningEnd:         getEnv("MORNING_END", "08:30"),
		RealtimeMorningEnd: getEnv("REALTIME_MORNING_END", "11:55"),
		LunchEnd:           getEnv("LUNCH_END", "13:15"),

		AlertEnabled:      getEnvAsBool("ALERT_ENABLED", false),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnvAsInt("SMTP_PORT", 587),
		FromAddress:       getEnv("FROM_ADDRESS", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		ToAddresses:       splitAddresses(getEnv("TO_ADDRESSES", "")),
		FirstAlertDelay:   30*time.Minute + 30*time.Second,
		AlertCooldown:     30 * time.Minute,
		AlertTickInterval: 30 * time.Minute,

		ExportInterval:    30 * time.Minute,
		RollingWindowDays: getEnvAsInt("ROLLING_WINDOW_DAYS", 5),
		RetentionDays:     getEnvAsInt("RETENTION_DAYS", 5),
	}
}

func splitAddresses(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsFloatPtr(key string) *float64 {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
