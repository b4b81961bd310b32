/*
Package config loads runtime settings from the environment (and an optional
.env file) and builds the process logger.

KEYS:
  SITE_ADDR           HTTP listen address            (":8080")
  SITE_DB_PATH        SQLite database file           ("site_ledger.db")
  SITE_DB_DRIVER      "sqlite3" (cgo) or "sqlite"    ("sqlite3")
  SITE_BUSY_TIMEOUT   SQLite busy timeout            ("5s")
  LOG_LEVEL           logrus level                   ("info")
  LOG_FORMAT          "text" or "json"               ("text")
  REDIS_ADDR          Redis for distributed locks    ("" = in-process locks)
  SITE_LOCK_TTL       project lock wait/hold bound   ("10s")
  SITE_ALERT_INTERVAL low-stock scan period          ("1h", "0" disables)

Values already present in the environment win over the .env file.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string
	DBPath        string
	DBDriver      string
	BusyTimeout   time.Duration
	LogLevel      string
	LogFormat     string
	RedisAddr     string
	LockTTL       time.Duration
	AlertInterval time.Duration
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped.
func LoadFiles(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		Addr:      getEnv("SITE_ADDR", ":8080"),
		DBPath:    getEnv("SITE_DB_PATH", "site_ledger.db"),
		DBDriver:  getEnv("SITE_DB_DRIVER", "sqlite3"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		RedisAddr: getEnv("REDIS_ADDR", ""),
	}

	var err error
	if cfg.BusyTimeout, err = getDuration("SITE_BUSY_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = getDuration("SITE_LOCK_TTL", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AlertInterval, err = getDuration("SITE_ALERT_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}

	if cfg.DBDriver != "sqlite3" && cfg.DBDriver != "sqlite" {
		return Config{}, fmt.Errorf("SITE_DB_DRIVER: unsupported driver %q", cfg.DBDriver)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("LOG_FORMAT: expected text or json, got %q", cfg.LogFormat)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	if raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", key, d)
	}
	return d, nil
}
