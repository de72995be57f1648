// Package observability bootstraps logging, tracing and metrics for the server.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config holds observability bootstrap settings.
type Config struct {
	ServiceName    string
	Environment    string
	MetricsAddress string
	LogLevel       string
}

// Observability bundles the process-wide telemetry handles handed to modules.
type Observability struct {
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Registry *prometheus.Registry

	metricsServer *http.Server
}

// Init builds the logger, tracer and metrics registry. When MetricsAddress is
// set a dedicated /metrics listener is started.
func Init(ctx context.Context, cfg Config) (*Observability, error) {
	logger := NewLogger(cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	o := &Observability{
		Logger:   logger,
		Tracer:   otel.GetTracerProvider().Tracer(cfg.ServiceName),
		Registry: registry,
	}

	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", o.MetricsHandler())
		o.metricsServer = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := o.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorContext(ctx, "Metrics server stopped", slog.Any("error", err))
			}
		}()
		logger.InfoContext(ctx, "Metrics server listening", slog.String("address", cfg.MetricsAddress))
	}

	return o, nil
}

// NewNoop returns handles that discard everything; used by tests and tools.
func NewNoop() *Observability {
	return &Observability{
		Logger:   slog.New(slog.DiscardHandler),
		Tracer:   noop.NewTracerProvider().Tracer("noop"),
		Registry: prometheus.NewRegistry(),
	}
}

// MetricsHandler exposes the registry in the Prometheus text format.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(o.Registry, promhttp.HandlerOpts{Registry: o.Registry})
}

// Shutdown stops the metrics listener if one was started.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o.metricsServer == nil {
		return nil
	}
	return o.metricsServer.Shutdown(ctx)
}

// NewLogger builds the structured logger: JSON outside development.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Environment, "development") || strings.EqualFold(cfg.Environment, "dev") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	if cfg.ServiceName != "" {
		logger = logger.With(slog.String("service", cfg.ServiceName))
	}
	if cfg.Environment != "" {
		logger = logger.With(slog.String("env", cfg.Environment))
	}
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
