package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type AppConfig struct {
	Port string `validate:"required,numeric"`

	// Stations to set up at boot.
	Stations []string `validate:"dive,alphanum,len=5"`

	NDBCBaseURL string `validate:"required,url"`

	HTTPTimeout     time.Duration `validate:"gt=0"`
	FetchTimeout    time.Duration `validate:"gt=0"`
	RefreshCooldown time.Duration `validate:"gte=0"`

	// Station directory cache.
	StationCacheSize int           `validate:"gt=0"`
	StationCacheTTL  time.Duration `validate:"gt=0"`

	// Observation history retention.
	StoreMaxHistory int           `validate:"gte=0"` // max number of observations per station (0 = unlimited)
	StoreMaxAge     time.Duration `validate:"gte=0"` // max age of observations (0 = unlimited)

	LogLevel  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat string `validate:"oneof=json text"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults. Callers
// load any .env file beforehand.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.Stations = splitList(os.Getenv("NDBC_STATIONS"))
	cfg.NDBCBaseURL = getenvDefault("NDBC_BASE_URL", "https://www.ndbc.noaa.gov")

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getenvDuration("FETCH_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.RefreshCooldown, err = getenvDuration("REFRESH_COOLDOWN", "10s"); err != nil {
		return nil, err
	}

	cfg.StationCacheSize = getenvInt("STATION_CACHE_SIZE", 2048)
	if cfg.StationCacheTTL, err = getenvDuration("STATION_CACHE_TTL", "24h"); err != nil {
		return nil, err
	}

	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // roughly 24h at 15-minute intervals
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "json"))

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
