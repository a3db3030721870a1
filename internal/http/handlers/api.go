// Package handlers contains the JSON diagnostics API handlers.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cmshub/cmshub/internal/connectors/configstore"
	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/fetch"
	"github.com/cmshub/cmshub/internal/integrations"
	"github.com/cmshub/cmshub/internal/probe"
	"github.com/cmshub/cmshub/internal/store"
	"github.com/labstack/echo/v5"
)

const (
	// ContextKeyRequestID stores the request id (X-Request-ID) for logging and client error references.
	ContextKeyRequestID = "request_id"

	// InternalErrorCode is a stable error code safe to return to clients.
	InternalErrorCode = "INTERNAL_ERROR"
)

// IntegrationStore loads integration records.
type IntegrationStore interface {
	GetIntegration(ctx context.Context, id int64) (configstore.Integration, error)
	ListActive(ctx context.Context) ([]configstore.Integration, error)
}

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Registry *registry.ConnectorRegistry
	Store    IntegrationStore
	Service  *integrations.Service
	Logger   *slog.Logger
}

// ErrorResponse is the body of every non-2xx API answer.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

type driverView struct {
	registry.Descriptor
	Settings registry.SettingsForm `json:"settings"`
}

// integrationView omits the config blob, which may hold credentials.
type integrationView struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	DriverID   string `json:"driver_id"`
	Version    string `json:"version,omitempty"`
	DriverName string `json:"driver_name,omitempty"`
	Available  bool   `json:"driver_available"`
}

type fetchView struct {
	OK        bool             `json:"ok"`
	URL       string           `json:"url,omitempty"`
	Attempts  int              `json:"attempts"`
	ElapsedMS int64            `json:"elapsed_ms"`
	Count     int              `json:"count"`
	Records   []map[string]any `json:"records,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// HandleHealthz returns a simple health check response.
func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// HandleDrivers lists discovered drivers, optionally filtered by type or icon_class.
func (h *Handlers) HandleDrivers(c *echo.Context) error {
	var descs []registry.Descriptor
	switch {
	case strings.TrimSpace(c.QueryParam("type")) != "":
		descs = h.Registry.ListByType(c.QueryParam("type"))
	case strings.TrimSpace(c.QueryParam("icon_class")) != "":
		descs = h.Registry.ListByIconClass(c.QueryParam("icon_class"))
	default:
		descs = h.Registry.Discover()
	}
	out := make([]driverView, 0, len(descs))
	for _, d := range descs {
		out = append(out, driverView{Descriptor: d, Settings: d.SettingsForm()})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handlers) HandleDriverTypes(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{
		"types":        nonNil(h.Registry.ListTypes()),
		"icon_classes": nonNil(h.Registry.ListIconClasses()),
	})
}

func (h *Handlers) HandleDriver(c *echo.Context) error {
	desc, ok := h.Registry.Describe(c.Param("id"))
	if !ok {
		return h.renderJSONError(c, http.StatusNotFound, "DRIVER_NOT_FOUND", "driver not found")
	}
	return c.JSON(http.StatusOK, driverView{Descriptor: desc, Settings: desc.SettingsForm()})
}

// HandleIntegrations lists active integrations and whether their driver is
// currently discoverable.
func (h *Handlers) HandleIntegrations(c *echo.Context) error {
	if h.Store == nil {
		return h.renderServiceError(c, errNoStore)
	}
	recs, err := h.Store.ListActive(c.Request().Context())
	if err != nil {
		return h.renderServiceError(c, err)
	}
	out := make([]integrationView, 0, len(recs))
	for _, rec := range recs {
		view := integrationView{ID: rec.ID, Name: rec.Name, DriverID: rec.DriverID, Version: rec.Version}
		if desc, ok := h.Registry.Describe(rec.DriverID); ok {
			view.DriverName = desc.Name
			view.Available = true
		}
		out = append(out, view)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handlers) HandleIntegrationProbe(c *echo.Context) error {
	rec, err := h.loadIntegration(c)
	if err != nil {
		return h.renderServiceError(c, err)
	}
	results, err := h.Service.Probe(c.Request().Context(), rec)
	if err != nil {
		return h.renderServiceError(c, err)
	}
	if results == nil {
		results = []probe.Result{}
	}
	return c.JSON(http.StatusOK, map[string]any{"integration_id": rec.ID, "results": results})
}

func (h *Handlers) HandleIntegrationTest(c *echo.Context) error {
	rec, err := h.loadIntegration(c)
	if err != nil {
		return h.renderServiceError(c, err)
	}
	ok, err := h.Service.Test(c.Request().Context(), rec)
	if err != nil {
		return h.renderServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"integration_id": rec.ID, "ok": ok})
}

// HandleIntegrationFetch runs one fetch. Query parameters become per-call
// overrides of the driver's default params.
func (h *Handlers) HandleIntegrationFetch(c *echo.Context) error {
	rec, err := h.loadIntegration(c)
	if err != nil {
		return h.renderServiceError(c, err)
	}
	params := make(map[string]any)
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			params[k] = v[len(v)-1]
		}
	}
	res, err := h.Service.Fetch(c.Request().Context(), rec, c.Param("endpoint"), params)
	if err != nil {
		return h.renderServiceError(c, err)
	}
	view := newFetchView(res)
	status := http.StatusOK
	if !res.OK() {
		status = http.StatusBadGateway
		if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
	}
	return c.JSON(status, view)
}

func newFetchView(res fetch.Result) fetchView {
	view := fetchView{
		OK:        res.OK(),
		URL:       res.URL,
		Attempts:  res.Attempts,
		ElapsedMS: res.Elapsed.Milliseconds(),
		Count:     len(res.Records),
		Records:   res.Records,
	}
	if res.Err != nil {
		view.Error = res.Err.Error()
	}
	return view
}

func (h *Handlers) loadIntegration(c *echo.Context) (configstore.Integration, error) {
	id, err := parsePositiveInt64Param(c.Param("id"))
	if err != nil {
		return configstore.Integration{}, errBadID
	}
	if h.Store == nil {
		return configstore.Integration{}, errNoStore
	}
	return h.Store.GetIntegration(c.Request().Context(), id)
}

var (
	errBadID   = errors.New("invalid integration id")
	errNoStore = errors.New("integration store is not configured")
)

func (h *Handlers) renderServiceError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, errBadID):
		return h.renderJSONError(c, http.StatusBadRequest, "INVALID_ID", err.Error())
	case errors.Is(err, store.ErrNotFound):
		return h.renderJSONError(c, http.StatusNotFound, "INTEGRATION_NOT_FOUND", "integration not found")
	case errors.Is(err, integrations.ErrInactiveIntegration):
		return h.renderJSONError(c, http.StatusConflict, "INTEGRATION_INACTIVE", "integration is inactive")
	case errors.Is(err, registry.ErrDriverNotFound):
		return h.renderJSONError(c, http.StatusUnprocessableEntity, "DRIVER_NOT_FOUND", "integration driver is not available")
	case errors.Is(err, registry.ErrUnsupportedEndpoint):
		return h.renderJSONError(c, http.StatusBadRequest, "UNSUPPORTED_ENDPOINT", err.Error())
	case errors.Is(err, errNoStore):
		return h.renderJSONError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return h.renderJSONError(c, http.StatusGatewayTimeout, "CANCELED", "request canceled")
	default:
		return h.RenderError(c, err)
	}
}

func (h *Handlers) renderJSONError(c *echo.Context, status int, code, msg string) error {
	requestID, _ := c.Get(ContextKeyRequestID).(string)
	return c.JSON(status, ErrorResponse{Error: msg, Code: code, RequestID: requestID})
}

// RenderError logs err and returns a generic internal error.
func (h *Handlers) RenderError(c *echo.Context, err error) error {
	requestID, _ := c.Get(ContextKeyRequestID).(string)
	path := ""
	method := ""
	if req := c.Request(); req != nil {
		method = req.Method
		if req.URL != nil {
			path = req.URL.Path
		}
	}
	h.logger().Error("http error",
		"request_id", requestID,
		"method", method,
		"path", path,
		"ip", c.RealIP(),
		"error", err,
	)

	msg := "Internal server error."
	if requestID != "" {
		msg = fmt.Sprintf("%s Reference: %s.", msg, requestID)
	}
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg, Code: InternalErrorCode, RequestID: requestID})
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func parsePositiveInt64Param(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("missing id")
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid id")
	}
	return parsed, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
