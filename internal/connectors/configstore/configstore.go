package configstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

const (
	KeyURL     = "url"
	KeyAltURLs = "alt_urls"
)

// Integration is a persisted binding of a named integration to a driver id and
// its configuration blob.
type Integration struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	DriverID string         `json:"driver_id"`
	Version  string         `json:"version,omitempty"`
	Config   map[string]any `json:"config"`
	IsActive bool           `json:"is_active"`
}

// Validate returns an error if the record cannot be handed to a driver.
func (i Integration) Validate() error {
	if strings.TrimSpace(i.DriverID) == "" {
		return errors.New("integration driver id is required")
	}
	return nil
}

// DecodeConfig parses a JSON object. Empty input and "null" decode to an empty map.
func DecodeConfig(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode integration config: %w", err)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	return cfg, nil
}

// Merge returns a new map with overrides laid over defaults. Nil override
// values do not clear defaults.
func Merge(defaults, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overrides))
	maps.Copy(out, defaults)
	for k, v := range overrides {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// CandidateURLs returns the primary url followed by alt_urls, blanks removed.
func CandidateURLs(cfg map[string]any) []string {
	urls := []string{String(cfg, KeyURL)}
	urls = append(urls, StringList(cfg, KeyAltURLs)...)
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// String returns cfg[key] as a trimmed string.
func String(cfg map[string]any, key string) string {
	switch v := cfg[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Int returns cfg[key] as an int, or def when absent or unparseable.
func Int(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Float returns cfg[key] as a float64, or def when absent or unparseable.
func Float(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// Seconds reads a number of seconds (or a Go duration string) as a duration.
func Seconds(cfg map[string]any, key string, def time.Duration) time.Duration {
	if s, ok := cfg[key].(string); ok {
		s = strings.TrimSpace(s)
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	secs := Float(cfg, key, -1)
	if secs < 0 {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

// Bool returns cfg[key] as a bool, accepting "1"/"0"/"true"/"false".
func Bool(cfg map[string]any, key string, def bool) bool {
	switch v := cfg[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	case float64:
		return v != 0
	case json.Number:
		return v.String() != "0"
	}
	return def
}

// StringList accepts a JSON array or a comma/newline separated string.
func StringList(cfg map[string]any, key string) []string {
	var parts []string
	switch v := cfg[key].(type) {
	case []string:
		parts = v
	case []any:
		for _, item := range v {
			if item == nil {
				continue
			}
			parts = append(parts, fmt.Sprint(item))
		}
	case string:
		parts = strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == '\n' || r == ';'
		})
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StringMap returns cfg[key] as a map of strings. Non-object values yield nil.
func StringMap(cfg map[string]any, key string) map[string]string {
	switch v := cfg[key].(type) {
	case map[string]string:
		return maps.Clone(v)
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			if item == nil {
				continue
			}
			out[k] = strings.TrimSpace(fmt.Sprint(item))
		}
		return out
	}
	return nil
}
