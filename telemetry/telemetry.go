// Package telemetry sets up the process logger and tracer.
package telemetry

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"
	LogFormatPretty LogFormat = "pretty"
)

func (f LogFormat) Valid() bool {
	return f == LogFormatJSON || f == LogFormatPretty
}

type Options struct {
	ServiceName string
	LogLevel    string
	LogFormat   LogFormat
	// Output defaults to stdout.
	Output io.Writer

	// TraceEnabled installs an SDK tracer provider as the global provider. When false the tracer is a
	// no-op.
	TraceEnabled bool
	// Endpoint is the OTLP gRPC collector address.
	Endpoint        string
	TraceSampleRate float64
	// Exporter replaces the OTLP exporter. Spans are exported synchronously when it is set.
	Exporter sdktrace.SpanExporter
}

func (opt *Options) validate() (zerolog.Level, error) {
	if opt.ServiceName == "" {
		return 0, eris.New("service name cannot be empty")
	}
	if !opt.LogFormat.Valid() {
		return 0, eris.Errorf("invalid log format %q", opt.LogFormat)
	}
	level, err := zerolog.ParseLevel(strings.ToLower(opt.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return 0, eris.Errorf("invalid log level %q", opt.LogLevel)
	}
	if opt.TraceEnabled {
		if opt.Exporter == nil && opt.Endpoint == "" {
			return 0, eris.New("OTLP endpoint cannot be empty when tracing is enabled")
		}
		if opt.TraceSampleRate < 0 || opt.TraceSampleRate > 1 {
			return 0, eris.New("trace sample rate must be between 0.0 and 1.0")
		}
	}
	return level, nil
}

type Telemetry struct {
	Logger      zerolog.Logger
	Tracer      trace.Tracer
	serviceName string

	shutdown func(context.Context) error
}

// New builds the logger, installs it as the global zerolog logger and sets up tracing. With tracing
// enabled the SDK provider also becomes the global OpenTelemetry provider.
func New(opts Options) (Telemetry, error) {
	level, err := opts.validate()
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "invalid telemetry options")
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.LogFormat == LogFormatPretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()

	log.Logger = logger
	zerolog.SetGlobalLevel(level)

	tm := Telemetry{
		Logger:      logger,
		Tracer:      noop.NewTracerProvider().Tracer(opts.ServiceName),
		serviceName: opts.ServiceName,
	}
	if !opts.TraceEnabled {
		return tm, nil
	}

	provider, err := newTracerProvider(context.Background(), opts)
	if err != nil {
		return Telemetry{}, err
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetTracerProvider(provider)

	tm.Tracer = provider.Tracer(opts.ServiceName)
	tm.shutdown = provider.Shutdown
	return tm, nil
}

func newTracerProvider(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(opts.ServiceName),
		))
	if err != nil && !errors.Is(err, resource.ErrSchemaURLConflict) {
		return nil, eris.Wrap(err, "failed to build trace resource")
	}

	var sampler sdktrace.Sampler
	switch opts.TraceSampleRate {
	case 1.0:
		sampler = sdktrace.AlwaysSample()
	case 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.TraceSampleRate))
	}

	spanOpt := sdktrace.WithSyncer(opts.Exporter)
	if opts.Exporter == nil {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(opts.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, eris.Wrap(err, "failed to create OTLP trace exporter")
		}
		spanOpt = sdktrace.WithBatcher(exporter)
	}

	return sdktrace.NewTracerProvider(
		spanOpt,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	), nil
}

// Shutdown flushes buffered spans and stops the exporter.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.shutdown == nil {
		return nil
	}
	return eris.Wrap(t.shutdown(ctx), "failed to shut down tracer provider")
}

// GetLogger returns a logger tagged with the component name.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", t.serviceName+"."+component).Logger()
}

// SpanLogger annotates logger with the trace and span ids of span when it is recording.
func SpanLogger(logger zerolog.Logger, span trace.Span) zerolog.Logger {
	if !span.IsRecording() {
		return logger
	}
	sc := span.SpanContext()
	return logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}
