// Package observability wires OpenTelemetry tracing into memgate.
//
// Until Init is called spans go to the global no-op provider, so callers can
// start spans unconditionally.
package observability

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

const instrumentationName = "github.com/ajitpratap0/memgate"

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// TracingConfig contains tracing configuration.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	BatchTimeout   time.Duration
	// Writer receives exported spans, stdout when nil.
	Writer io.Writer
	// PrettyPrint indents exported spans.
	PrettyPrint bool
}

// Tracer returns the memgate tracer from the current global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Enabled reports whether Init installed a provider.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return provider != nil
}

// Span wraps a trace span with attribute buffering.
type Span struct {
	span       trace.Span
	attributes []attribute.KeyValue
}

// StartSpan starts a span named operation.
func StartSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, operation, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// SetAttribute adds an attribute, set on the span when it ends.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case uint64:
		attr = attribute.String(key, fmt.Sprintf("%#x", v))
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End ends the span, marking it failed when err is non-nil.
func (s *Span) End(err error) {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetAttributes(attribute.String("error.kind", string(memerrors.TypeOf(err))))
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// ConnectorTracer starts spans scoped to one connector.
type ConnectorTracer struct {
	connector string
}

// NewConnectorTracer creates a tracer for connector.
func NewConnectorTracer(connector string) *ConnectorTracer {
	return &ConnectorTracer{connector: connector}
}

// StartSpan starts a span named "<connector>.<operation>".
func (ct *ConnectorTracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	return StartSpan(ctx, ct.connector+"."+operation,
		attribute.String("connector.name", ct.connector),
		attribute.String("connector.operation", operation))
}

// Trace runs fn inside a span and records its error.
func (ct *ConnectorTracer) Trace(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := ct.StartSpan(ctx, operation)
	err := fn(ctx)
	span.End(err)
	return err
}
