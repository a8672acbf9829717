package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/citesearch/internal/events"
	"github.com/mohammad-safakhou/citesearch/internal/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var serverTracer trace.Tracer = otel.Tracer("citesearch/internal/server")

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, query, sessionID string) (pipeline.Answer, error)
}

// Subscriber attaches an observer to a session's progress events.
type Subscriber interface {
	Subscribe(sessionID string) *events.Subscription
}

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins       []string
	MaxProcessingTime time.Duration
	Metrics           http.Handler
	Logger            *zap.Logger
}

// New builds the echo instance with all routes registered.
func New(runner Runner, streams Subscriber, opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request",
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	sh := &SearchHandler{runner: runner, timeout: opts.MaxProcessingTime, logger: logger}
	sh.Register(e)
	st := &StreamHandler{streams: streams, logger: logger}
	st.Register(e)
	return e
}

// errorHandler renders pipeline faults in the {"status":"error"} envelope and
// everything else as {"error": msg}.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		var body map[string]any

		var fault *pipeline.FaultError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &fault):
			body = map[string]any{"status": "error", "error": "Processing error: " + fault.Cause.Error()}
		case errors.As(err, &he):
			code = he.Code
			msg := http.StatusText(code)
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
			body = map[string]any{"error": msg}
		default:
			body = map[string]any{"status": "error", "error": "Processing error: " + err.Error()}
		}

		req := c.Request()
		logger.Warn("request failed",
			zap.Int("status", code),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote_ip", c.RealIP()),
			zap.Error(err))
		if !c.Response().Committed {
			_ = c.JSON(code, body)
		}
	}
}

// Serve runs e on addr until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, e *echo.Echo, addr string, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
