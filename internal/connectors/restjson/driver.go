package restjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cmshub/cmshub/internal/connectors/configstore"
	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/fetch"
	"github.com/cmshub/cmshub/internal/probe"
	"github.com/cmshub/cmshub/internal/urlsafe"
)

const (
	KeyURL         = configstore.KeyURL
	KeyAltURLs     = configstore.KeyAltURLs
	KeyItemsKey    = "items_key"
	KeyEndpoints   = "endpoints"
	KeyHeaders     = "headers"
	KeyTimeout     = "timeout"
	KeyMaxAttempts = "max_attempts"
	KeyRetryDelay  = "retry_delay"
)

type config struct {
	urls      []string
	endpoints map[string]string
	headers   http.Header
	timing    fetch.Timing
	validator fetch.Validator
}

// Driver reads collections from a JSON API whose logical endpoints are
// configured as paths.
type Driver struct {
	logger *slog.Logger
	http   *http.Client
	timing fetch.Timing

	cfg *config
}

var _ registry.Connector = (*Driver)(nil)

func New(deps registry.Deps) *Driver {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timing := deps.Timing
	if timing == (fetch.Timing{}) {
		timing = fetch.DefaultTiming()
	}
	return &Driver{logger: logger, http: deps.HTTP, timing: timing.Normalized()}
}

func (d *Driver) Identity() registry.Identity {
	return NewDefinition().Identity()
}

func (d *Driver) SettingsForm() registry.SettingsForm {
	return settingsForm(d.timing)
}

func (d *Driver) Initialize(cfg map[string]any) error {
	d.cfg = nil
	m := configstore.Merge(d.SettingsForm().Defaults(), cfg)

	urls := configstore.CandidateURLs(m)
	if len(urls) == 0 {
		return fmt.Errorf("%s: base URL is required", Kind)
	}
	for _, u := range urls {
		if !urlsafe.Validate(u) {
			return fmt.Errorf("%s: URL %s is invalid", Kind, urlsafe.Mask(u))
		}
	}
	endpoints := make(map[string]string)
	for name, path := range configstore.StringMap(m, KeyEndpoints) {
		if name = normalizeEndpoint(name); name != "" {
			endpoints[name] = path
		}
	}
	if len(endpoints) == 0 {
		return errors.New(Kind + ": at least one endpoint is required")
	}
	headers := make(http.Header)
	for k, v := range configstore.StringMap(m, KeyHeaders) {
		headers.Set(k, v)
	}

	d.cfg = &config{
		urls:      urls,
		endpoints: endpoints,
		headers:   headers,
		timing: fetch.Timing{
			ConnectTimeout:    d.timing.ConnectTimeout,
			RequestTimeout:    configstore.Seconds(m, KeyTimeout, d.timing.RequestTimeout),
			MaxAttemptsPerURL: configstore.Int(m, KeyMaxAttempts, d.timing.MaxAttemptsPerURL),
			RetryDelay:        configstore.Seconds(m, KeyRetryDelay, d.timing.RetryDelay),
		}.Normalized(),
		validator: fetch.ItemsKey(configstore.String(m, KeyItemsKey)),
	}
	return nil
}

// TestConnection reports whether any base URL is reachable.
func (d *Driver) TestConnection(ctx context.Context) (bool, error) {
	if d.cfg == nil {
		return false, registry.Uninitialized(Kind, "test connection")
	}
	p := probe.New(d.cfg.timing.ConnectTimeout, len(d.cfg.urls), d.logger)
	p.HTTP = d.http
	p.Headers = d.cfg.headers
	results, err := p.Probe(ctx, d.cfg.urls)
	if err != nil {
		return false, nil
	}
	for _, r := range results {
		if r.Reachable {
			return true, nil
		}
	}
	return false, nil
}

func (d *Driver) FetchData(ctx context.Context, endpoint string, params map[string]any) (fetch.Result, error) {
	if d.cfg == nil {
		return fetch.Result{}, registry.Uninitialized(Kind, "fetch")
	}
	path, ok := d.cfg.endpoints[normalizeEndpoint(endpoint)]
	if !ok {
		return fetch.Result{}, registry.UnsupportedEndpoint(Kind, endpoint)
	}
	e := fetch.NewEngine(Kind, d.logger)
	e.HTTP = d.http
	return e.Fetch(ctx, d.request(path, http.MethodGet), fetch.StringParams(params)), nil
}

// SendData posts payload to the endpoint's path. Only a 2xx answer counts as
// delivered.
func (d *Driver) SendData(ctx context.Context, endpoint string, payload map[string]any) (bool, error) {
	if d.cfg == nil {
		return false, registry.Uninitialized(Kind, "send")
	}
	path, ok := d.cfg.endpoints[normalizeEndpoint(endpoint)]
	if !ok {
		return false, registry.UnsupportedEndpoint(Kind, endpoint)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("%s: encode payload: %w", Kind, err)
	}
	e := fetch.NewEngine(Kind, d.logger)
	e.HTTP = d.http
	res := e.Send(ctx, d.request(path, http.MethodPost), body)
	if res.Err != nil {
		return false, res.Err
	}
	return res.Accepted(), nil
}

func (d *Driver) request(path, method string) fetch.Config {
	urls := make([]string, 0, len(d.cfg.urls))
	for _, base := range d.cfg.urls {
		urls = append(urls, fetch.JoinPath(base, path))
	}
	return fetch.Config{
		URLs:      urls,
		Timing:    d.cfg.timing,
		Method:    method,
		Headers:   d.cfg.headers,
		Validator: d.cfg.validator,
	}
}

func normalizeEndpoint(endpoint string) string {
	return strings.ToLower(strings.TrimSpace(endpoint))
}
