package observability

import (
	"context"
	"errors"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// DefaultTracingConfig returns tracing disabled, sampling everything once
// enabled.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    "memgate",
		ServiceVersion: "dev",
		Environment:    getEnv("ENVIRONMENT", "development"),
		SamplingRate:   1.0,
	}
}

// Init installs an SDK tracer provider exporting to cfg.Writer. It is a
// no-op when cfg.Enabled is false. Calling Init again replaces the previous
// provider after shutting it down.
func Init(cfg TracingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeConfig, "failed to create trace resource")
	}

	opts := []stdouttrace.Option{}
	if cfg.Writer != nil {
		opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
	}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeConfig, "failed to create stdout exporter")
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	batchOpts := []sdktrace.BatchSpanProcessorOption{}
	if cfg.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter, batchOpts...),
	)

	mu.Lock()
	prev := provider
	provider = tp
	mu.Unlock()

	otel.SetTracerProvider(tp)

	if prev != nil {
		return prev.Shutdown(context.Background())
	}
	return nil
}

// Shutdown flushes pending spans and restores the no-op provider.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}

	otel.SetTracerProvider(noop.NewTracerProvider())

	var errs []error
	if err := tp.ForceFlush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := tp.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeInternal, "failed to shut down tracing")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
