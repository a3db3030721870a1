package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cmshub/cmshub/internal/connectors/configstore"
	"github.com/cmshub/cmshub/internal/connectors/onec"
	"github.com/cmshub/cmshub/internal/connectors/registry"
	"github.com/cmshub/cmshub/internal/connectors/restjson"
	"github.com/cmshub/cmshub/internal/http/handlers"
	"github.com/cmshub/cmshub/internal/integrations"
	"github.com/cmshub/cmshub/internal/store"
	"github.com/labstack/echo/v5"
)

type fakeStore map[int64]configstore.Integration

func (s fakeStore) GetIntegration(_ context.Context, id int64) (configstore.Integration, error) {
	rec, ok := s[id]
	if !ok {
		return configstore.Integration{}, fmt.Errorf("%w: %d", store.ErrNotFound, id)
	}
	return rec, nil
}

func (s fakeStore) ListActive(context.Context) ([]configstore.Integration, error) {
	var out []configstore.Integration
	for id := int64(1); id <= int64(len(s)); id++ {
		if rec, ok := s[id]; ok && rec.IsActive {
			out = append(out, rec)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, st fakeStore) http.Handler {
	t.Helper()
	reg := registry.NewRegistry()
	for _, def := range []registry.ConnectorDefinition{onec.NewDefinition(), restjson.NewDefinition()} {
		if err := reg.Register(def); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &handlers.Handlers{
		Registry: reg,
		Store:    st,
		Service:  &integrations.Service{Registry: reg, Logger: logger},
	}
	return NewEchoServer(h, logger).Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal(%q) error = %v", rec.Body.String(), err)
	}
}

func TestHealthzAndRequestID(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t, nil), "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestDriverRoutes(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	var all []map[string]any
	rec := get(t, srv, "/api/drivers")
	decode(t, rec, &all)
	if rec.Code != http.StatusOK || len(all) != 2 {
		t.Fatalf("status=%d drivers=%v", rec.Code, all)
	}
	if all[0]["id"] != "onec" || all[0]["system_type"] != "erp" {
		t.Fatalf("first driver = %v", all[0])
	}
	if _, ok := all[0]["settings"]; !ok {
		t.Fatalf("driver view missing settings: %v", all[0])
	}

	var generic []map[string]any
	decode(t, get(t, srv, "/api/drivers?type=GENERIC"), &generic)
	if len(generic) != 1 || generic[0]["id"] != "restjson" {
		t.Fatalf("type filter = %v", generic)
	}

	var byIcon []map[string]any
	decode(t, get(t, srv, "/api/drivers?icon_class=bi+bi-building"), &byIcon)
	if len(byIcon) != 1 || byIcon[0]["id"] != "onec" {
		t.Fatalf("icon filter = %v", byIcon)
	}

	var types map[string][]string
	decode(t, get(t, srv, "/api/drivers/types"), &types)
	if strings.Join(types["types"], ",") != "erp,generic" {
		t.Fatalf("types = %v", types)
	}

	rec = get(t, srv, "/api/drivers/onec")
	if rec.Code != http.StatusOK {
		t.Fatalf("describe status = %d", rec.Code)
	}
	rec = get(t, srv, "/api/drivers/sap")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown driver status = %d, want 404", rec.Code)
	}
	var body handlers.ErrorResponse
	decode(t, rec, &body)
	if body.Code != "DRIVER_NOT_FOUND" || body.RequestID == "" {
		t.Fatalf("error body = %+v", body)
	}
}

func TestIntegrationRoutes(t *testing.T) {
	t.Parallel()

	erp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/ping":
			w.WriteHeader(http.StatusOK)
		case "/products":
			if r.URL.Query().Get("limit") != "5" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"items":[{"id":1,"name":"Widget"}]}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer erp.Close()

	st := fakeStore{
		1: {ID: 1, Name: "erp", DriverID: "onec", IsActive: true, Config: map[string]any{"url": erp.URL, "retry_delay": 0, "max_attempts": 1}},
		2: {ID: 2, Name: "off", DriverID: "onec", IsActive: false, Config: map[string]any{"url": erp.URL}},
		3: {ID: 3, Name: "gone", DriverID: "sap", IsActive: true},
		4: {ID: 4, Name: "secret", DriverID: "onec", IsActive: true, Config: map[string]any{"url": erp.URL + "/hs?token=hunter2", "retry_delay": 0, "max_attempts": 1}},
	}
	srv := newTestServer(t, st)

	var list []map[string]any
	rec := get(t, srv, "/api/integrations")
	decode(t, rec, &list)
	if rec.Code != http.StatusOK || len(list) != 3 {
		t.Fatalf("list status=%d body=%s", rec.Code, rec.Body.String())
	}
	if list[0]["driver_available"] != true || list[1]["driver_available"] != false {
		t.Fatalf("list = %v", list)
	}
	if strings.Contains(rec.Body.String(), "hunter2") || strings.Contains(rec.Body.String(), "config") {
		t.Fatalf("list leaks config: %s", rec.Body.String())
	}

	var probe struct {
		Results []map[string]any `json:"results"`
	}
	rec = get(t, srv, "/api/integrations/1/probe")
	decode(t, rec, &probe)
	if rec.Code != http.StatusOK || len(probe.Results) != 1 || probe.Results[0]["reachable"] != true {
		t.Fatalf("probe status=%d body=%s", rec.Code, rec.Body.String())
	}

	var test map[string]any
	decode(t, get(t, srv, "/api/integrations/1/test"), &test)
	if test["ok"] != true {
		t.Fatalf("test = %v", test)
	}

	var fetched map[string]any
	rec = get(t, srv, "/api/integrations/1/fetch/products?limit=5")
	decode(t, rec, &fetched)
	if rec.Code != http.StatusOK || fetched["ok"] != true || fetched["count"] != float64(1) {
		t.Fatalf("fetch status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = get(t, srv, "/api/integrations/4/fetch/products")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("failing fetch status = %d, want 502", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Fatalf("response leaks query secret: %s", rec.Body.String())
	}

	tests := []struct {
		target string
		status int
		code   string
	}{
		{target: "/api/integrations/abc/test", status: http.StatusBadRequest, code: "INVALID_ID"},
		{target: "/api/integrations/99/test", status: http.StatusNotFound, code: "INTEGRATION_NOT_FOUND"},
		{target: "/api/integrations/2/test", status: http.StatusConflict, code: "INTEGRATION_INACTIVE"},
		{target: "/api/integrations/3/test", status: http.StatusUnprocessableEntity, code: "DRIVER_NOT_FOUND"},
		{target: "/api/integrations/1/fetch/invoices", status: http.StatusBadRequest, code: "UNSUPPORTED_ENDPOINT"},
	}
	for _, test := range tests {
		rec := get(t, srv, test.target)
		var body handlers.ErrorResponse
		decode(t, rec, &body)
		if rec.Code != test.status || body.Code != test.code {
			t.Fatalf("%s: status=%d code=%q, want %d %q", test.target, rec.Code, body.Code, test.status, test.code)
		}
	}
}

func TestHTTPErrorHandlerInternalErrorIsGeneric(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(handlers.ContextKeyRequestID, "req-123")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	es := &EchoServer{h: &handlers.Handlers{Logger: logger}, e: e, logger: logger}
	es.httpErrorHandler(c, errors.New("very sensitive error"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusInternalServerError)
	}
	body := rec.Body.String()
	if strings.Contains(body, "very sensitive") {
		t.Fatalf("response leaked error details: %q", body)
	}
	if !strings.Contains(body, "Reference: req-123") || !strings.Contains(body, handlers.InternalErrorCode) {
		t.Fatalf("response missing reference or code: %q", body)
	}
}

func TestUnknownRouteIsJSONNotFound(t *testing.T) {
	t.Parallel()

	rec := get(t, newTestServer(t, nil), "/api/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rec.Code)
	}
	var body handlers.ErrorResponse
	decode(t, rec, &body)
	if body.Code != "NOT_FOUND" {
		t.Fatalf("code = %q", body.Code)
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	if got := httpStatusFromError(echo.ErrNotFound); got != http.StatusNotFound {
		t.Fatalf("status=%d want %d", got, http.StatusNotFound)
	}
	if got := httpStatusFromError(echo.NewHTTPError(http.StatusForbidden, "no")); got != http.StatusForbidden {
		t.Fatalf("status=%d want %d", got, http.StatusForbidden)
	}
	if got := httpStatusFromError(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("status=%d want %d", got, http.StatusInternalServerError)
	}
}
