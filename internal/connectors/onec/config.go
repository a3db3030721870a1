package onec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/cmshub/cmshub/internal/connectors/configstore"
	"github.com/cmshub/cmshub/internal/fetch"
	"github.com/cmshub/cmshub/internal/urlsafe"
)

const (
	KeyURL               = configstore.KeyURL
	KeyAltURLs           = configstore.KeyAltURLs
	KeyUsername          = "username"
	KeyPassword          = "password"
	KeyAPIKey            = "api_key"
	KeyTimeout           = "timeout"
	KeyConnectTimeout    = "connect_timeout"
	KeyMaxAttempts       = "max_attempts"
	KeyRetryDelay        = "retry_delay"
	KeyRequestsPerSecond = "requests_per_second"
	KeyParams            = "params"
)

// Config is the resolved driver configuration.
type Config struct {
	URLs              []string
	Username          string
	Password          string
	APIKey            string
	Timing            fetch.Timing
	RequestsPerSecond float64
	Params            map[string]string
}

// ParseConfig reads a merged config map. base supplies timing for keys the map
// does not set.
func ParseConfig(m map[string]any, base fetch.Timing) (Config, error) {
	base = base.Normalized()
	cfg := Config{
		URLs:     configstore.CandidateURLs(m),
		Username: configstore.String(m, KeyUsername),
		Password: configstore.String(m, KeyPassword),
		APIKey:   configstore.String(m, KeyAPIKey),
		Timing: fetch.Timing{
			ConnectTimeout:    configstore.Seconds(m, KeyConnectTimeout, base.ConnectTimeout),
			RequestTimeout:    configstore.Seconds(m, KeyTimeout, base.RequestTimeout),
			MaxAttemptsPerURL: configstore.Int(m, KeyMaxAttempts, base.MaxAttemptsPerURL),
			RetryDelay:        configstore.Seconds(m, KeyRetryDelay, base.RetryDelay),
		},
		RequestsPerSecond: configstore.Float(m, KeyRequestsPerSecond, 0),
		Params:            configstore.StringMap(m, KeyParams),
	}
	cfg.Timing = cfg.Timing.Normalized()
	return cfg, cfg.Validate()
}

// Validate returns an error if the config is unusable.
func (c Config) Validate() error {
	if len(c.URLs) == 0 {
		return errors.New("1C service URL is required")
	}
	for _, u := range c.URLs {
		if !urlsafe.Validate(u) {
			return fmt.Errorf("1C service URL %s is invalid: only http and https are supported", urlsafe.Mask(u))
		}
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("1C requests per second cannot be negative")
	}
	return nil
}

// Headers returns the authentication headers for every request.
func (c Config) Headers() http.Header {
	h := make(http.Header)
	if c.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
		h.Set("Authorization", "Basic "+token)
	}
	if c.APIKey != "" {
		h.Set("X-API-Key", c.APIKey)
	}
	return h
}

// EndpointURLs joins path onto every candidate base URL, keeping base queries.
func (c Config) EndpointURLs(path string) []string {
	out := make([]string, 0, len(c.URLs))
	for _, base := range c.URLs {
		out = append(out, fetch.JoinPath(base, path))
	}
	return out
}
