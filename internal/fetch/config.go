package fetch

import (
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultConnectTimeout    = 5 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultMaxAttemptsPerURL = 3
	DefaultRetryDelay        = 2 * time.Second
)

// Timing is the per-operation HTTP timing policy.
type Timing struct {
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	MaxAttemptsPerURL int
	RetryDelay        time.Duration
}

// DefaultTiming returns the policy used when a driver config sets nothing.
func DefaultTiming() Timing {
	return Timing{
		ConnectTimeout:    DefaultConnectTimeout,
		RequestTimeout:    DefaultRequestTimeout,
		MaxAttemptsPerURL: DefaultMaxAttemptsPerURL,
		RetryDelay:        DefaultRetryDelay,
	}
}

// Normalized fills unset timeouts with defaults and clamps attempts to at least one.
func (t Timing) Normalized() Timing {
	out := t
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = DefaultConnectTimeout
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}
	if out.MaxAttemptsPerURL < 1 {
		out.MaxAttemptsPerURL = 1
	}
	if out.RetryDelay < 0 {
		out.RetryDelay = 0
	}
	return out
}

// AttemptTimeout bounds a single request, dial included.
func (t Timing) AttemptTimeout() time.Duration {
	t = t.Normalized()
	return t.ConnectTimeout + t.RequestTimeout
}

// Config describes one fetch operation. It is treated as immutable once handed
// to the Engine.
type Config struct {
	// URLs are candidate endpoints, primary first. Blank entries are skipped.
	URLs      []string
	Params    map[string]string
	Timing    Timing
	Method    string
	Headers   http.Header
	Validator Validator
}

// Normalized returns a copy with blank URLs dropped and defaults applied.
func (c Config) Normalized() Config {
	out := c
	out.URLs = CandidateURLs(c.URLs)
	out.Params = maps.Clone(c.Params)
	out.Timing = c.Timing.Normalized()
	out.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	if out.Method == "" {
		out.Method = http.MethodGet
	}
	out.Headers = c.Headers.Clone()
	if out.Validator == nil {
		out.Validator = DefaultShape
	}
	return out
}

// WorstCaseLatency is the upper bound of a Fetch that fails on every attempt.
func (c Config) WorstCaseLatency() time.Duration {
	n := c.Normalized()
	perAttempt := n.Timing.AttemptTimeout() + n.Timing.RetryDelay
	return time.Duration(len(n.URLs)*n.Timing.MaxAttemptsPerURL) * perAttempt
}

// CandidateURLs trims every entry and drops blanks, keeping order.
func CandidateURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		out = append(out, raw)
	}
	return out
}

// JoinPath appends path to base, keeping any query or fragment base carries so
// tenant selectors like ?db=main stay on the request.
func JoinPath(base, path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return base
	}
	i := strings.IndexAny(base, "?#")
	head, tail := base, ""
	if i >= 0 {
		head, tail = base[:i], base[i:]
	}
	return strings.TrimRight(head, "/") + "/" + path + tail
}

// MergeParams returns defaults overlaid by overrides. Overrides win.
func MergeParams(defaults, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(overrides))
	maps.Copy(out, defaults)
	maps.Copy(out, overrides)
	return out
}

// StringParams flattens loosely typed caller params into query values.
// Nil values are dropped.
func StringParams(params map[string]any) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		k = strings.TrimSpace(k)
		if k == "" || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = val
		case []string:
			out[k] = strings.Join(val, ",")
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
