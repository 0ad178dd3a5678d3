package logging

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanLogger exports finished spans as debug log entries, so traced
// mutations and requests show up next to the rest of the log.
type SpanLogger struct {
	log log.FieldLogger
}

func NewSpanLogger(logger log.FieldLogger) *SpanLogger {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &SpanLogger{log: logger}
}

func (e *SpanLogger) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := log.Fields{
			"span":        s.Name(),
			"trace_id":    s.SpanContext().TraceID().String(),
			"duration_ms": float64(s.EndTime().Sub(s.StartTime()).Microseconds()) / 1000,
			"status":      s.Status().Code.String(),
		}
		for _, kv := range s.Attributes() {
			fields[string(kv.Key)] = kv.Value.Emit()
		}
		if s.Status().Code == codes.Error && s.Status().Description != "" {
			fields["error"] = s.Status().Description
		}
		e.log.WithFields(fields).Debug("span")
	}
	return nil
}

func (e *SpanLogger) Shutdown(context.Context) error { return nil }

// InstallTracing sets the global tracer provider to one that logs spans to
// logger. Call shutdown before exit to flush.
func InstallTracing(logger log.FieldLogger) (shutdown func(context.Context) error) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(NewSpanLogger(logger)))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
