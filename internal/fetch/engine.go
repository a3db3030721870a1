package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cmshub/cmshub/internal/metrics"
	"github.com/cmshub/cmshub/internal/urlsafe"
	"github.com/google/uuid"
)

const (
	maxBodySize = 16 << 20 // 16 MiB
	userAgent   = "cmshub"
)

// Result is the outcome of Fetch. Err is nil only when a candidate URL produced
// a shape-valid payload.
type Result struct {
	Payload  any
	Records  []map[string]any
	URL      string // masked URL that answered
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// OK reports whether the fetch produced data.
func (r Result) OK() bool {
	return r.Err == nil
}

// SendResult is the outcome of Send. A 4xx StatusCode with a nil Err is a
// remote rejection, not a transport failure.
type SendResult struct {
	StatusCode int
	Body       []byte
	URL        string // masked
	Attempts   int
	Elapsed    time.Duration
	Err        error
}

// Accepted reports whether the remote answered 2xx.
func (r SendResult) Accepted() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Response is one transport-level answer from a candidate URL.
type Response struct {
	URL        string // masked
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Engine runs requests against an ordered list of candidate URLs with bounded
// per-URL retries. The zero value is usable.
type Engine struct {
	// HTTP overrides the client built from the config timing. The per-attempt
	// deadline still applies.
	HTTP   *http.Client
	Logger *slog.Logger
	// Driver labels metrics and logs.
	Driver string
	// Throttle, when set, is waited on before every attempt.
	Throttle Waiter

	sleep func(context.Context, time.Duration) error
	opID  func() string
}

// Waiter blocks until the next request may be sent. *rate.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// NewEngine returns an Engine labelled for one driver.
func NewEngine(driver string, logger *slog.Logger) *Engine {
	return &Engine{Driver: driver, Logger: logger}
}

type acceptFunc func(resp *Response) error

// Fetch walks cfg.URLs in order until one returns a shape-valid payload.
// overrides win over cfg.Params on key collision.
func (e *Engine) Fetch(ctx context.Context, cfg Config, overrides map[string]string) Result {
	cfg = cfg.Normalized()
	params := MergeParams(cfg.Params, overrides)
	start := time.Now()

	var (
		payload any
		records []map[string]any
	)
	accept := func(resp *Response) error {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &TransportError{URL: resp.URL, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		}
		decoded, err := Decode(resp.Body)
		if err == nil {
			records, err = cfg.Validator.Validate(decoded)
		}
		if err != nil {
			var shapeErr *InvalidResponseShapeError
			if errors.As(err, &shapeErr) && shapeErr.URL == "" {
				shapeErr.URL = resp.URL
			}
			return err
		}
		payload = decoded
		return nil
	}

	resp, attempts, err := e.walk(ctx, "fetch", cfg, params, nil, accept)
	res := Result{Attempts: attempts, Elapsed: time.Since(start), Err: err}
	if err == nil {
		res.Payload = payload
		res.Records = records
		res.URL = resp.URL
	}
	e.observe(res.Elapsed, err)
	return res
}

// Send delivers body to the first candidate URL that answers below 500.
// Methods default to POST.
func (e *Engine) Send(ctx context.Context, cfg Config, body []byte) SendResult {
	if strings.TrimSpace(cfg.Method) == "" {
		cfg.Method = http.MethodPost
	}
	cfg = cfg.Normalized()
	start := time.Now()

	accept := func(resp *Response) error {
		if resp.StatusCode >= 500 || resp.StatusCode < 200 {
			return &TransportError{URL: resp.URL, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		}
		return nil
	}

	resp, attempts, err := e.walk(ctx, "send", cfg, cfg.Params, body, accept)
	res := SendResult{Attempts: attempts, Elapsed: time.Since(start), Err: err}
	if err == nil {
		res.StatusCode = resp.StatusCode
		res.Body = resp.Body
		res.URL = resp.URL
	}
	e.observe(res.Elapsed, err)
	return res
}

func (e *Engine) walk(ctx context.Context, op string, cfg Config, params map[string]string, body []byte, accept acceptFunc) (*Response, int, error) {
	logger := e.logger().With("op", op, "op_id", e.newOpID(), "driver", e.driverLabel())
	client := e.client(cfg.Timing)

	failed := &AllEndpointsFailedError{}
	if len(cfg.URLs) == 0 {
		failed.Causes = []error{ErrNoEndpoints}
		logger.Warn("no endpoint urls configured")
		return nil, 0, failed
	}

	logger.Debug("walking endpoints", "urls", urlsafe.MaskAll(cfg.URLs), "worst_case", cfg.WorstCaseLatency())

	attempts := 0
	for i, base := range cfg.URLs {
		masked := urlsafe.Mask(base)
		failed.URLs = append(failed.URLs, masked)
		if !urlsafe.Validate(base) {
			err := &TransportError{URL: masked, Err: errors.New("invalid endpoint url")}
			failed.Causes = append(failed.Causes, err)
			logger.Warn("skipping invalid endpoint url", "url", masked)
			continue
		}
		// Skipped URLs cost no attempts, so moving past one is not a failover.
		if attempts > 0 {
			metrics.FetchFailoversTotal.WithLabelValues(e.driverLabel()).Inc()
			logger.Warn("failing over to next endpoint", "url", masked, "position", i+1, "candidates", len(cfg.URLs))
		}

		var lastErr error
		for attempt := 1; attempt <= cfg.Timing.MaxAttemptsPerURL; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, attempts, err
			}
			if e.Throttle != nil {
				if err := e.Throttle.Wait(ctx); err != nil {
					return nil, attempts, throttleError(ctx, err)
				}
			}
			attempts++

			resp, err := e.do(ctx, client, cfg, base, params, body, attempt)
			if err == nil {
				err = accept(resp)
			}
			if err == nil {
				metrics.FetchAttemptsTotal.WithLabelValues(e.driverLabel(), "success").Inc()
				logger.Debug("endpoint answered", "url", masked, "attempt", attempt, "status", resp.StatusCode)
				return resp, attempts, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				metrics.FetchAttemptsTotal.WithLabelValues(e.driverLabel(), "canceled").Inc()
				return nil, attempts, ctxErr
			}

			var te *TransportError
			if errors.As(err, &te) && te.Attempt == 0 {
				te.Attempt = attempt
			}
			lastErr = err
			metrics.FetchAttemptsTotal.WithLabelValues(e.driverLabel(), attemptOutcome(err)).Inc()
			logger.Warn("endpoint attempt failed",
				"url", masked,
				"attempt", attempt,
				"max_attempts", cfg.Timing.MaxAttemptsPerURL,
				"err", err,
			)

			if attempt < cfg.Timing.MaxAttemptsPerURL {
				if err := e.wait(ctx, cfg.Timing.RetryDelay); err != nil {
					return nil, attempts, err
				}
			}
		}
		failed.Causes = append(failed.Causes, lastErr)
	}

	failed.Attempts = attempts
	logger.Error("all endpoints failed", "urls", failed.URLs, "attempts", attempts)
	return nil, attempts, failed
}

func (e *Engine) do(ctx context.Context, client *http.Client, cfg Config, base string, params map[string]string, body []byte, attempt int) (*Response, error) {
	masked := urlsafe.Mask(base)
	target, err := withQuery(base, params)
	if err != nil {
		return nil, &TransportError{URL: masked, Attempt: attempt, Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timing.AttemptTimeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, cfg.Method, target, reader)
	if err != nil {
		return nil, &TransportError{URL: masked, Attempt: attempt, Err: urlsafe.StripError(err)}
	}
	if cfg.Headers != nil {
		req.Header = cfg.Headers.Clone()
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: masked, Attempt: attempt, Err: urlsafe.StripError(err)}
	}
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()
	if readErr != nil {
		return nil, &TransportError{URL: masked, Attempt: attempt, StatusCode: resp.StatusCode, Err: urlsafe.StripError(readErr)}
	}

	return &Response{
		URL:        masked,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (e *Engine) client(t Timing) *http.Client {
	if e.HTTP != nil {
		return e.HTTP
	}
	return NewHTTPClient(t)
}

// NewHTTPClient builds a client whose dialer and TLS handshake honor
// ConnectTimeout and whose response wait honors RequestTimeout.
func NewHTTPClient(t Timing) *http.Client {
	t = t.Normalized()
	dialer := &net.Dialer{Timeout: t.ConnectTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: t.AttemptTimeout(),
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   t.ConnectTimeout,
			ResponseHeaderTimeout: t.RequestTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		return e.sleep(ctx, d)
	}
	return sleep(ctx, d)
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) driverLabel() string {
	if d := strings.TrimSpace(e.Driver); d != "" {
		return d
	}
	return "unknown"
}

func (e *Engine) newOpID() string {
	if e.opID != nil {
		return e.opID()
	}
	return uuid.NewString()
}

func (e *Engine) observe(elapsed time.Duration, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "canceled"
	default:
		status = "failed"
	}
	metrics.FetchDuration.WithLabelValues(e.driverLabel(), status).Observe(elapsed.Seconds())
}

// throttleError maps a refused throttle wait onto the context error. A limiter
// refuses early when the deadline would pass before a token is available.
func throttleError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}

func attemptOutcome(err error) string {
	var shapeErr *InvalidResponseShapeError
	if errors.As(err, &shapeErr) {
		return "invalid_shape"
	}
	var te *TransportError
	if errors.As(err, &te) && te.StatusCode != 0 {
		return "status_error"
	}
	return "transport_error"
}

func withQuery(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.New("unparseable endpoint url")
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
