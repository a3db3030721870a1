package config

import (
	"testing"
	"time"

	"github.com/cmshub/cmshub/internal/fetch"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "HTTP_ADDR", "METRICS_ADDR", "CONNECTORS_ROOT",
		"FETCH_CONNECT_TIMEOUT", "FETCH_REQUEST_TIMEOUT", "FETCH_MAX_ATTEMPTS", "FETCH_RETRY_DELAY",
		"PROBE_TIMEOUT", "PROBE_WORKERS", "VAULT_ADDR", "VAULT_TOKEN", "VAULT_NAMESPACE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadWithOptions_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Fatalf("addrs = %q, %q", cfg.HTTPAddr, cfg.MetricsAddr)
	}
	if got, want := cfg.FetchTiming(), fetch.DefaultTiming(); got != want {
		t.Fatalf("FetchTiming() = %+v, want %+v", got, want)
	}
	if cfg.ProbeTimeout != 5*time.Second || cfg.ProbeWorkers != 4 {
		t.Fatalf("probe = %s, %d", cfg.ProbeTimeout, cfg.ProbeWorkers)
	}
	if cfg.VaultEnabled() {
		t.Fatal("VaultEnabled() = true without address")
	}
}

func TestLoadWithOptions_ParsesFetchTiming(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_CONNECT_TIMEOUT", "2s")
	t.Setenv("FETCH_REQUEST_TIMEOUT", "45s")
	t.Setenv("FETCH_MAX_ATTEMPTS", "5")
	t.Setenv("FETCH_RETRY_DELAY", "0s")

	cfg, err := LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	want := fetch.Timing{ConnectTimeout: 2 * time.Second, RequestTimeout: 45 * time.Second, MaxAttemptsPerURL: 5}
	if got := cfg.FetchTiming(); got != want {
		t.Fatalf("FetchTiming() = %+v, want %+v", got, want)
	}
}

func TestLoadWithOptions_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_MAX_ATTEMPTS", "0")
	t.Setenv("FETCH_REQUEST_TIMEOUT", "soon")
	t.Setenv("FETCH_RETRY_DELAY", "-1s")
	t.Setenv("PROBE_WORKERS", "many")

	cfg, err := LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	if cfg.FetchMaxAttempts != fetch.DefaultMaxAttemptsPerURL {
		t.Fatalf("FetchMaxAttempts = %d", cfg.FetchMaxAttempts)
	}
	if cfg.FetchRequestTimeout != fetch.DefaultRequestTimeout {
		t.Fatalf("FetchRequestTimeout = %s", cfg.FetchRequestTimeout)
	}
	if cfg.FetchRetryDelay != fetch.DefaultRetryDelay {
		t.Fatalf("FetchRetryDelay = %s", cfg.FetchRetryDelay)
	}
	if cfg.ProbeWorkers != defaultProbeWorkers {
		t.Fatalf("ProbeWorkers = %d", cfg.ProbeWorkers)
	}
}

func TestLoadWithOptions_ProbeTimeoutStaysBelowFetchTimeout(t *testing.T) {
	tests := []struct {
		name    string
		probe   string
		request string
		want    time.Duration
	}{
		{name: "longer probe is clamped", probe: "1m", request: "10s", want: 5 * time.Second},
		{name: "equal probe is clamped", probe: "10s", request: "10s", want: 5 * time.Second},
		{name: "default probe above short fetch", probe: "", request: "4s", want: 2 * time.Second},
		{name: "shorter probe is kept", probe: "3s", request: "10s", want: 3 * time.Second},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PROBE_TIMEOUT", test.probe)
			t.Setenv("FETCH_REQUEST_TIMEOUT", test.request)

			cfg, err := LoadOptionalDB()
			if err != nil {
				t.Fatalf("LoadOptionalDB() error = %v", err)
			}
			if cfg.ProbeTimeout != test.want {
				t.Fatalf("ProbeTimeout = %s, want %s", cfg.ProbeTimeout, test.want)
			}
			if cfg.ProbeTimeout >= cfg.FetchRequestTimeout {
				t.Fatalf("ProbeTimeout = %s, want below FetchRequestTimeout %s", cfg.ProbeTimeout, cfg.FetchRequestTimeout)
			}
		})
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected DATABASE_URL error")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/cmshub")
	t.Setenv("VAULT_ADDR", "http://vault:8200")
	t.Setenv("VAULT_TOKEN", "root")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.VaultEnabled() {
		t.Fatal("VaultEnabled() = false")
	}
}
