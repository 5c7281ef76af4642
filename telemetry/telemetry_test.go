package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func restoreGlobals(t *testing.T) {
	prev, prevLevel, prevProvider := log.Logger, zerolog.GlobalLevel(), otel.GetTracerProvider()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
		otel.SetTracerProvider(prevProvider)
	})
}

func TestNew(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	tm, err := New(Options{ServiceName: "arena", LogLevel: "WARN", LogFormat: LogFormatJSON, Output: &buf})
	require.NoError(t, err)
	require.NotNil(t, tm.Tracer)

	logger := tm.GetLogger("scheduler")
	logger.Info().Msg("hidden")
	logger.Warn().Str("match_id", "m").Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"component":"arena.scheduler"`)
	assert.Contains(t, buf.String(), `"match_id":"m"`)

	log.Warn().Msg("global")
	assert.Contains(t, buf.String(), `"message":"global"`)

	// Tracing is disabled, so spans never record and no ids are attached.
	_, span := tm.Tracer.Start(context.Background(), "test")
	spanLogger := SpanLogger(logger, span)
	spanLogger.Warn().Msg("traced")
	span.End()
	assert.NotContains(t, buf.String(), "trace_id")
	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestNew_TracingExportsSpans(t *testing.T) {
	restoreGlobals(t)

	exporter := tracetest.NewInMemoryExporter()
	var buf bytes.Buffer
	tm, err := New(Options{
		ServiceName:     "arena",
		LogLevel:        "info",
		LogFormat:       LogFormatJSON,
		Output:          &buf,
		TraceEnabled:    true,
		TraceSampleRate: 1,
		Exporter:        exporter,
	})
	require.NoError(t, err)

	_, span := tm.Tracer.Start(context.Background(), "scheduler.operation")
	require.True(t, span.IsRecording())
	spanLogger := SpanLogger(tm.Logger, span)
	spanLogger.Info().Msg("traced")
	span.End()

	assert.Contains(t, buf.String(), `"trace_id":"`+span.SpanContext().TraceID().String()+`"`)
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "scheduler.operation", spans[0].Name)

	// The SDK provider is global, so tracers created elsewhere record too.
	_, other := otel.Tracer("other").Start(context.Background(), "other")
	other.End()
	assert.Len(t, exporter.GetSpans(), 2)

	require.NoError(t, tm.Shutdown(context.Background()))
}

func TestSpanLogger_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	spanLogger := SpanLogger(logger, trace.SpanFromContext(context.Background()))
	spanLogger.Info().Msg("plain")
	assert.Equal(t, "{\"level\":\"info\",\"message\":\"plain\"}\n", buf.String())
}

func TestNew_InvalidOptions(t *testing.T) {
	restoreGlobals(t)

	_, err := New(Options{LogLevel: "info", LogFormat: LogFormatJSON})
	assert.Error(t, err)
	_, err = New(Options{ServiceName: "arena", LogLevel: "loud", LogFormat: LogFormatJSON})
	assert.Error(t, err)
	_, err = New(Options{ServiceName: "arena", LogLevel: "info", LogFormat: "xml"})
	assert.Error(t, err)
	_, err = New(Options{ServiceName: "arena", LogLevel: "info"})
	assert.Error(t, err)
	_, err = New(Options{ServiceName: "arena", LogLevel: "info", LogFormat: LogFormatJSON, TraceEnabled: true})
	assert.Error(t, err, "tracing needs an endpoint")
	_, err = New(Options{
		ServiceName: "arena", LogLevel: "info", LogFormat: LogFormatJSON,
		TraceEnabled: true, Endpoint: "localhost:4317", TraceSampleRate: 2,
	})
	assert.Error(t, err)
}
