package httpapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cmshub/cmshub/internal/http/handlers"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

const headerRequestID = "X-Request-ID"

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h      *handlers.Handlers
	e      *echo.Echo
	logger *slog.Logger
}

// NewEchoServer creates a new HTTP server.
func NewEchoServer(h *handlers.Handlers, logger *slog.Logger) *EchoServer {
	if logger == nil {
		logger = slog.Default()
	}
	if h.Logger == nil {
		h.Logger = logger
	}
	e := echo.New()
	e.Logger = logger
	es := &EchoServer{h: h, e: e, logger: logger}
	e.HTTPErrorHandler = es.httpErrorHandler
	es.registerRoutes()
	return es
}

func (es *EchoServer) registerRoutes() {
	es.e.Use(middleware.Recover())
	es.e.Use(requestID)

	es.e.GET("/healthz", es.h.HandleHealthz)

	api := es.e.Group("/api")
	api.GET("/drivers", es.h.HandleDrivers)
	api.GET("/drivers/types", es.h.HandleDriverTypes)
	api.GET("/drivers/:id", es.h.HandleDriver)
	api.GET("/integrations", es.h.HandleIntegrations)
	api.GET("/integrations/:id/probe", es.h.HandleIntegrationProbe)
	api.GET("/integrations/:id/test", es.h.HandleIntegrationTest)
	api.GET("/integrations/:id/fetch/:endpoint", es.h.HandleIntegrationFetch)
}

// Handler exposes the router for tests and custom servers.
func (es *EchoServer) Handler() http.Handler {
	return es.e
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (es *EchoServer) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           es.e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		es.logger.Info("http server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(handlers.ContextKeyRequestID, id)
		c.Response().Header().Set(headerRequestID, id)
		return next(c)
	}
}

func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	status := httpStatusFromError(err)
	if status >= http.StatusInternalServerError {
		_ = es.h.RenderError(c, err)
		return
	}
	requestID, _ := c.Get(handlers.ContextKeyRequestID).(string)
	_ = c.JSON(status, handlers.ErrorResponse{
		Error:     strings.ToLower(http.StatusText(status)),
		Code:      strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		RequestID: requestID,
	})
}

type statusCoder interface {
	StatusCode() int
}

func httpStatusFromError(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() != 0 {
		return sc.StatusCode()
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code != 0 {
		return he.Code
	}
	return http.StatusInternalServerError
}
