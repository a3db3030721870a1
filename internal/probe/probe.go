package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cmshub/cmshub/internal/fetch"
	"github.com/cmshub/cmshub/internal/metrics"
	"github.com/cmshub/cmshub/internal/urlsafe"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultWorkers = 4

	maxDrainSize = 64 << 10
)

// Result is the health of one candidate URL. URL is always masked.
type Result struct {
	URL        string `json:"url"`
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// Prober checks every configured URL once, without retries.
type Prober struct {
	HTTP    *http.Client
	Timeout time.Duration
	Workers int
	Headers http.Header
	Logger  *slog.Logger
}

// New returns a Prober with the given per-URL timeout and concurrency.
func New(timeout time.Duration, workers int, logger *slog.Logger) *Prober {
	return &Prober{Timeout: timeout, Workers: workers, Logger: logger}
}

// Probe returns one Result per non-blank URL in input order. Probes run
// concurrently up to Workers. If ctx is canceled before every probe finishes,
// the partial results are discarded and ctx's error is returned.
func (p *Prober) Probe(ctx context.Context, urls []string) ([]Result, error) {
	candidates := fetch.CandidateURLs(urls)
	results := make([]Result, len(candidates))
	if len(candidates) == 0 {
		return results, nil
	}

	timeout := p.timeout()
	client := p.HTTP
	if client == nil {
		client = fetch.NewHTTPClient(fetch.Timing{ConnectTimeout: timeout, RequestTimeout: timeout, MaxAttemptsPerURL: 1})
	}
	logger := p.logger().With("op", "probe", "op_id", uuid.NewString())

	var g errgroup.Group
	g.SetLimit(p.workers(len(candidates)))
	for i, raw := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = p.probeOne(ctx, client, timeout, raw)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		logger.Warn("probe canceled", "err", err)
		return nil, err
	}
	for _, r := range results {
		logger.Info("endpoint probed",
			"url", r.URL,
			"reachable", r.Reachable,
			"status", r.StatusCode,
			"latency_ms", r.LatencyMS,
			"err", r.Error,
		)
	}
	return results, nil
}

func (p *Prober) probeOne(ctx context.Context, client *http.Client, timeout time.Duration, raw string) Result {
	res := Result{URL: urlsafe.Mask(raw)}
	if !urlsafe.Validate(raw) {
		res.Error = "invalid url: only absolute http and https urls are supported"
		return res
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, raw, nil)
	if err != nil {
		res.Error = urlsafe.StripError(err).Error()
		return res
	}
	for k, vals := range p.Headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "cmshub-probe")
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		err = urlsafe.StripError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			res.Error = "timeout after " + timeout.String()
		} else {
			res.Error = err.Error()
		}
		p.observe(res)
		return res
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))
	resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.Reachable = resp.StatusCode < http.StatusInternalServerError
	if !res.Reachable {
		res.Error = "server error " + strconv.Itoa(resp.StatusCode)
	}
	p.observe(res)
	return res
}

func (p *Prober) observe(res Result) {
	metrics.ProbeLatency.WithLabelValues(strconv.FormatBool(res.Reachable)).Observe(float64(res.LatencyMS) / 1000)
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultTimeout
}

func (p *Prober) workers(n int) int {
	w := p.Workers
	if w < 1 {
		w = DefaultWorkers
	}
	if w > n {
		w = n
	}
	return w
}

func (p *Prober) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
