package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmshub/cmshub/internal/fetch"
	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr     = ":8080"
	defaultMetricsAddr  = ":9090"
	defaultProbeTimeout = 5 * time.Second
	defaultProbeWorkers = 4
)

type Config struct {
	DatabaseURL    string
	HTTPAddr       string
	MetricsAddr    string
	ConnectorsRoot string

	FetchConnectTimeout time.Duration
	FetchRequestTimeout time.Duration
	FetchMaxAttempts    int
	FetchRetryDelay     time.Duration

	ProbeTimeout time.Duration
	ProbeWorkers int

	VaultAddr      string
	VaultToken     string
	VaultNamespace string
}

type LoadOptions struct {
	RequireDatabaseURL bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadOptionalDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		HTTPAddr:       getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:    getenvDefault("METRICS_ADDR", defaultMetricsAddr),
		ConnectorsRoot: strings.TrimSpace(os.Getenv("CONNECTORS_ROOT")),

		FetchConnectTimeout: getenvDurationDefault("FETCH_CONNECT_TIMEOUT", fetch.DefaultConnectTimeout),
		FetchRequestTimeout: getenvDurationDefault("FETCH_REQUEST_TIMEOUT", fetch.DefaultRequestTimeout),
		FetchMaxAttempts:    getenvIntDefault("FETCH_MAX_ATTEMPTS", fetch.DefaultMaxAttemptsPerURL),
		FetchRetryDelay:     fetch.DefaultRetryDelay,

		ProbeTimeout: getenvDurationDefault("PROBE_TIMEOUT", defaultProbeTimeout),
		ProbeWorkers: getenvIntDefault("PROBE_WORKERS", defaultProbeWorkers),

		VaultAddr:      strings.TrimSpace(os.Getenv("VAULT_ADDR")),
		VaultToken:     strings.TrimSpace(os.Getenv("VAULT_TOKEN")),
		VaultNamespace: strings.TrimSpace(os.Getenv("VAULT_NAMESPACE")),
	}

	// Zero is a valid retry delay.
	if v := strings.TrimSpace(os.Getenv("FETCH_RETRY_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.FetchRetryDelay = d
		}
	}

	cfg.ProbeTimeout = clampProbeTimeout(cfg.ProbeTimeout, cfg.FetchRequestTimeout)

	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

// FetchTiming is the default fetch policy handed to every driver.
func (c Config) FetchTiming() fetch.Timing {
	return fetch.Timing{
		ConnectTimeout:    c.FetchConnectTimeout,
		RequestTimeout:    c.FetchRequestTimeout,
		MaxAttemptsPerURL: c.FetchMaxAttempts,
		RetryDelay:        c.FetchRetryDelay,
	}.Normalized()
}

// clampProbeTimeout keeps a probe strictly shorter than a production fetch
// attempt. A probe at or above the request timeout is cut to half of it.
func clampProbeTimeout(probe, request time.Duration) time.Duration {
	if request <= 0 || probe < request {
		return probe
	}
	return request / 2
}

// VaultEnabled reports whether secret references can be resolved.
func (c Config) VaultEnabled() bool {
	return c.VaultAddr != "" && c.VaultToken != ""
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
