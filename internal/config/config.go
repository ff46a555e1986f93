package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jw6ventures/openday/internal/availability"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	DB struct {
		Driver     string
		DSN        string
		SQLitePath string
	}

	Window availability.Window

	// ConflictMode is the classifier default; the viewer can override it
	// per request.
	ConflictMode availability.Mode

	Viewer struct {
		Name   string
		Secret string
	}

	Session struct {
		Secret string
	}

	Holiday struct {
		BaseURL     string // empty disables the collaborator
		Country     string
		RefreshSpec string
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	cfg.BaseURL = getenvDefault("APP_BASE_URL", "http://localhost:8080")

	cfg.DB.Driver = strings.ToLower(getenvDefault("APP_DB_DRIVER", DriverPostgres))
	switch cfg.DB.Driver {
	case DriverPostgres:
		cfg.DB.DSN = os.Getenv("APP_DB_DSN")
		if cfg.DB.DSN == "" {
			host := os.Getenv("APP_DB_HOST")
			name := os.Getenv("APP_DB_NAME")
			user := os.Getenv("APP_DB_USER")
			password := os.Getenv("APP_DB_PASSWORD")
			port := getenvDefault("APP_DB_PORT", "5432")
			sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

			if host != "" && name != "" && user != "" && password != "" {
				cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
			}
		}
		if cfg.DB.DSN == "" {
			return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
		}
	case DriverSQLite:
		cfg.DB.SQLitePath = getenvDefault("APP_SQLITE_PATH", "openday.sqlite")
	default:
		return nil, fmt.Errorf("APP_DB_DRIVER must be %q or %q (got %q)", DriverPostgres, DriverSQLite, cfg.DB.Driver)
	}

	year, err := getenvInt("APP_WINDOW_YEAR", time.Now().Year())
	if err != nil {
		return nil, err
	}
	startMonth, err := getenvInt("APP_WINDOW_START_MONTH", 5)
	if err != nil {
		return nil, err
	}
	endMonth, err := getenvInt("APP_WINDOW_END_MONTH", 9)
	if err != nil {
		return nil, err
	}
	cfg.Window = availability.Window{
		Year:       year,
		StartMonth: time.Month(startMonth),
		EndMonth:   time.Month(endMonth),
	}
	if err := cfg.Window.Validate(); err != nil {
		return nil, fmt.Errorf("window configuration: %w", err)
	}

	mode, err := availability.ParseMode(getenvDefault("APP_CONFLICT_MODE", "any"))
	if err != nil {
		return nil, fmt.Errorf("APP_CONFLICT_MODE: %w", err)
	}
	cfg.ConflictMode = mode

	cfg.Viewer.Name = getenvDefault("APP_VIEWER_NAME", "planner")
	cfg.Viewer.Secret = os.Getenv("APP_VIEWER_SECRET")
	cfg.Session.Secret = os.Getenv("APP_SESSION_SECRET")

	cfg.Holiday.BaseURL = os.Getenv("APP_HOLIDAY_BASE_URL")
	cfg.Holiday.Country = getenvDefault("APP_HOLIDAY_COUNTRY", "US")
	cfg.Holiday.RefreshSpec = getenvDefault("APP_HOLIDAY_REFRESH", "0 5 * * *")

	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	if cfg.Viewer.Secret == "" {
		return nil, errors.New("APP_VIEWER_SECRET is required")
	}
	if cfg.Session.Secret == "" {
		return nil, errors.New("APP_SESSION_SECRET is required")
	}
	if len(cfg.Session.Secret) < 32 {
		return nil, fmt.Errorf("APP_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.Session.Secret))
	}

	if len(cfg.TrustedProxies) == 0 {
		fmt.Println("WARNING: No APP_TRUSTED_PROXIES configured. OpenDay will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, v)
	}
	return n, nil
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
