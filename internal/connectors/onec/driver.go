package onec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/cmshub/cmshub/internal/connectors/configstore"
	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/fetch"
	"github.com/cmshub/cmshub/internal/probe"
	"golang.org/x/time/rate"
)

const pingPath = "ping"

var fetchPaths = map[string]string{
	"products":   "products",
	"categories": "categories",
	"orders":     "orders",
	"stock":      "stock",
	"prices":     "prices",
}

var sendPaths = map[string]string{
	"orders": "orders",
	"stock":  "stock",
}

// Driver talks to a 1C-style ERP HTTP service.
type Driver struct {
	logger *slog.Logger
	http   *http.Client
	timing fetch.Timing

	cfg     *Config
	limiter *rate.Limiter
}

var _ registry.Connector = (*Driver)(nil)

// New returns an uninitialized driver.
func New(deps registry.Deps) *Driver {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timing := deps.Timing
	if timing == (fetch.Timing{}) {
		timing = fetch.DefaultTiming()
	}
	return &Driver{
		logger: logger,
		http:   deps.HTTP,
		timing: timing.Normalized(),
	}
}

func (d *Driver) Identity() registry.Identity {
	return DefaultIdentity()
}

func (d *Driver) SettingsForm() registry.SettingsForm {
	return settingsForm(d.timing)
}

// Initialize merges cfg over the settings defaults and validates the result.
// A failed Initialize leaves the driver uninitialized.
func (d *Driver) Initialize(cfg map[string]any) error {
	merged := configstore.Merge(d.SettingsForm().Defaults(), cfg)
	parsed, err := ParseConfig(merged, d.timing)
	if err != nil {
		d.cfg = nil
		d.limiter = nil
		return fmt.Errorf("%s: %w", Kind, err)
	}
	d.cfg = &parsed
	d.limiter = nil
	if parsed.RequestsPerSecond > 0 {
		burst := int(math.Max(1, math.Ceil(parsed.RequestsPerSecond)))
		d.limiter = rate.NewLimiter(rate.Limit(parsed.RequestsPerSecond), burst)
	}
	return nil
}

// TestConnection probes <url>/ping once per candidate URL and reports whether
// any of them answered 2xx.
func (d *Driver) TestConnection(ctx context.Context) (bool, error) {
	if d.cfg == nil {
		return false, registry.Uninitialized(Kind, "test connection")
	}
	p := probe.New(d.cfg.Timing.ConnectTimeout, len(d.cfg.URLs), d.logger)
	p.HTTP = d.http
	p.Headers = d.cfg.Headers()

	results, err := p.Probe(ctx, d.cfg.EndpointURLs(pingPath))
	if err != nil {
		return false, nil
	}
	for _, r := range results {
		if r.StatusCode >= 200 && r.StatusCode < 300 {
			return true, nil
		}
	}
	d.logger.Warn("connection test failed", "driver", Kind, "candidates", len(results))
	return false, nil
}

// FetchData retrieves records from a logical endpoint. params override the
// configured default query parameters.
func (d *Driver) FetchData(ctx context.Context, endpoint string, params map[string]any) (fetch.Result, error) {
	if d.cfg == nil {
		return fetch.Result{}, registry.Uninitialized(Kind, "fetch")
	}
	path, ok := fetchPaths[normalizeEndpoint(endpoint)]
	if !ok {
		return fetch.Result{}, registry.UnsupportedEndpoint(Kind, endpoint)
	}

	res := d.engine().Fetch(ctx, d.requestConfig(path, http.MethodGet), fetch.StringParams(params))
	return res, nil
}

// SendData posts payload as JSON. A 4xx answer or a body of
// {"success": false} is a rejection.
func (d *Driver) SendData(ctx context.Context, endpoint string, payload map[string]any) (bool, error) {
	if d.cfg == nil {
		return false, registry.Uninitialized(Kind, "send")
	}
	path, ok := sendPaths[normalizeEndpoint(endpoint)]
	if !ok {
		return false, registry.UnsupportedEndpoint(Kind, endpoint)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("%s: encode payload: %w", Kind, err)
	}

	res := d.engine().Send(ctx, d.requestConfig(path, http.MethodPost), body)
	if res.Err != nil {
		return false, res.Err
	}
	if !res.Accepted() {
		d.logger.Warn("payload rejected", "driver", Kind, "endpoint", endpoint, "status", res.StatusCode, "url", res.URL)
		return false, nil
	}
	if rejected(res.Body) {
		d.logger.Warn("payload rejected by remote", "driver", Kind, "endpoint", endpoint, "url", res.URL)
		return false, nil
	}
	return true, nil
}

func (d *Driver) engine() *fetch.Engine {
	e := fetch.NewEngine(Kind, d.logger)
	e.HTTP = d.http
	if d.limiter != nil {
		e.Throttle = d.limiter
	}
	return e
}

func (d *Driver) requestConfig(path, method string) fetch.Config {
	return fetch.Config{
		URLs:    d.cfg.EndpointURLs(path),
		Params:  d.cfg.Params,
		Timing:  d.cfg.Timing,
		Method:  method,
		Headers: d.cfg.Headers(),
	}
}

func normalizeEndpoint(endpoint string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(endpoint), "/"))
}

// rejected reports whether body is a JSON object with "success": false.
func rejected(body []byte) bool {
	var ack struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(body, &ack); err != nil {
		return false
	}
	return ack.Success != nil && !*ack.Success
}
