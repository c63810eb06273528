// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tenderwatch/sync-service/internal/model"
)

// Config holds all runtime configuration for the sync service.
type Config struct {
	TrelloKey       string
	TrelloToken     string
	BoardID         string
	ListRzeszowID   string
	ListSkarzyskoID string

	TrelloAPIURL  string
	PortalBaseURL string
	PortalOrg     string

	Debug     bool
	Headless  bool
	ChromeBin string

	CardDelay      time.Duration // pause between successive card creations
	SettleTimeout  time.Duration // upper bound for the page network to go idle
	CaptureTimeout time.Duration // how long passive capture may wait for a listing response
	ProbeTimeout   time.Duration // per-request timeout of the external prober

	RedisURL          string // optional: run lock + events
	SyncIntervalHours int    // serve mode
	Port              string // serve mode
}

// required lists the mandatory variables in the order they are validated.
var required = []string{"TRELLO_KEY", "TRELLO_TOKEN", "BOARD_ID", "LIST_RZESZOW_ID", "LIST_SKARZYSKO_ID"}

// Load reads environment variables and returns a validated Config.
// A .env file in the working directory is read first; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	values := make(map[string]string, len(required))
	for _, name := range required {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return nil, fmt.Errorf("%s is required", name)
		}
		values[name] = v
	}

	cfg := &Config{
		TrelloKey:       values["TRELLO_KEY"],
		TrelloToken:     values["TRELLO_TOKEN"],
		BoardID:         values["BOARD_ID"],
		ListRzeszowID:   values["LIST_RZESZOW_ID"],
		ListSkarzyskoID: values["LIST_SKARZYSKO_ID"],
		TrelloAPIURL:    strings.TrimRight(getEnv("TRELLO_API_URL", "https://api.trello.com/1"), "/"),
		PortalBaseURL:   strings.TrimRight(getEnv("PORTAL_BASE_URL", "https://swpp2.gkpge.pl"), "/"),
		PortalOrg:       getEnv("PORTAL_ORG", "000000010007"),
		ChromeBin:       os.Getenv("CHROME_BIN"),
		RedisURL:        os.Getenv("REDIS_URL"),
		Port:            getEnv("SYNC_PORT", "8083"),
	}

	var err error
	if cfg.Debug, err = boolEnv("DEBUG", false); err != nil {
		return nil, err
	}
	if cfg.Headless, err = boolEnv("HEADLESS", true); err != nil {
		return nil, err
	}
	// Zero disables the pause between card creations.
	if cfg.CardDelay, err = nonNegativeDurationEnv("CARD_DELAY_MS", 400, time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.SettleTimeout, err = durationEnv("SETTLE_TIMEOUT_SEC", 30, time.Second); err != nil {
		return nil, err
	}
	if cfg.CaptureTimeout, err = durationEnv("CAPTURE_TIMEOUT_SEC", 20, time.Second); err != nil {
		return nil, err
	}
	if cfg.ProbeTimeout, err = durationEnv("PROBE_TIMEOUT_SEC", 15, time.Second); err != nil {
		return nil, err
	}
	if cfg.SyncIntervalHours, err = positiveIntEnv("SYNC_INTERVAL_HOURS", 6); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Lists maps each tracked branch to the board list collecting its tenders.
func (c *Config) Lists() map[model.Region]string {
	return map[model.Region]string{
		model.RegionRzeszow:   c.ListRzeszowID,
		model.RegionSkarzysko: c.ListSkarzyskoID,
	}
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func boolEnv(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, s)
	}
	return v, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return v, nil
}

func durationEnv(key string, def int, unit time.Duration) (time.Duration, error) {
	n, err := positiveIntEnv(key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * unit, nil
}

func nonNegativeDurationEnv(key string, def int, unit time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return time.Duration(def) * unit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, s)
	}
	return time.Duration(n) * unit, nil
}
