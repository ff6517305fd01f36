package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL     string
	City            string
	DBWatchInterval time.Duration

	HTTPAddr    string
	MetricsAddr string

	NATSURL      string
	NATSKVBucket string

	DefaultArea  string
	SearchLimit  int
	JourneyLimit int
	RecentLimit  int
	RateLimitRPS int

	LogLevel  slog.Level
	LogFormat string
	Location  *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
		if db == "" && os.Getenv("CITY") != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	// City name for dynamic DB resolution
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	sec, err := positiveInt("DB_WATCH_INTERVAL_SEC", 1800)
	if err != nil {
		return nil, err
	}
	cfg.DBWatchInterval = time.Duration(sec) * time.Second

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":3000")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Empty NATS_URL keeps bookmarks in process memory.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSKVBucket = getenvDefault("NATS_KV_BUCKET", "BOOKMARKS")

	cfg.DefaultArea = getenvDefault("DEFAULT_AREA", "Central")

	if cfg.SearchLimit, err = positiveInt("SEARCH_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.JourneyLimit, err = positiveInt("JOURNEY_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.RecentLimit, err = positiveInt("RECENT_LIMIT", 10); err != nil {
		return nil, err
	}

	// 0 disables rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %q", v)
		}
		cfg.RateLimitRPS = n
	} else {
		cfg.RateLimitRPS = 20
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %q", v)
		}
	} else {
		cfg.LogLevel = slog.LevelInfo
	}

	switch f := strings.ToLower(getenvDefault("LOG_FORMAT", "json")); f {
	case "json", "text":
		cfg.LogFormat = f
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", f)
	}

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
