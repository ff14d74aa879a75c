// Package telemetry sets up OpenTelemetry tracing for host commands and the
// bridge. Tracing is off unless an OTLP endpoint is configured.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options selects where spans go.
type Options struct {
	ServiceName string
	// Endpoint is host:port or an http(s) URL. Empty disables tracing.
	Endpoint string
	// SampleRate is the fraction of root spans kept, in [0,1].
	SampleRate float64
}

// FromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT and OTEL_TRACE_SAMPLE_RATE.
// Commands are rare, so everything is sampled unless the rate says otherwise.
func FromEnv(serviceName string) Options {
	opts := Options{
		ServiceName: serviceName,
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		SampleRate:  1,
	}
	if raw := strings.TrimSpace(os.Getenv("OTEL_TRACE_SAMPLE_RATE")); raw != "" {
		if rate, err := strconv.ParseFloat(raw, 64); err == nil && rate >= 0 && rate <= 1 {
			opts.SampleRate = rate
		}
	}
	return opts
}

func noop(context.Context) error { return nil }

// Init installs a global tracer provider and returns its shutdown. An
// exporter that cannot be built is logged and leaves tracing off, since a
// missing collector must not stop host commands.
func Init(ctx context.Context, opts Options, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	if opts.Endpoint == "" {
		return noop, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	host, insecure, err := splitEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	exporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(host),
		otlptracehttp.WithTimeout(3 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	}
	if insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exporter, err := otlptracehttp.New(initCtx, exporterOpts...)
	if err != nil {
		logger.Warn("tracing disabled: otlp exporter failed", "endpoint", opts.Endpoint, "err", err)
		return noop, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(opts.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	logger.Info("tracing enabled", "endpoint", host, "sample_rate", opts.SampleRate)

	return tp.Shutdown, nil
}

// splitEndpoint returns the exporter host:port and whether to skip TLS.
// A bare host:port is plain HTTP, as is the collector's usual local setup.
func splitEndpoint(endpoint string) (host string, insecure bool, err error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("otlp endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http":
		return u.Host, true, nil
	case "https":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("otlp endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
}
