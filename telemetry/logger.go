package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry carrying a context.
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL trace correlation.
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a logger scoped to one component.
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "lasku").
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger bound to ctx for trace propagation.
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogSyncStart records the beginning of one provider sync.
func (l *Logger) LogSyncStart(ctx context.Context, providerID, snapshotID, trigger string) {
	l.WithContext(ctx).Info().
		Str("provider_id", providerID).
		Str("snapshot_id", snapshotID).
		Str("trigger", trigger).
		Msg("sync started")
}

// LogSyncComplete records a terminal sync outcome.
func (l *Logger) LogSyncComplete(ctx context.Context, providerID, snapshotID, status string, resources int, totalCost float64, durationMS float64) {
	l.WithContext(ctx).Info().
		Str("provider_id", providerID).
		Str("snapshot_id", snapshotID).
		Str("status", status).
		Int("resources", resources).
		Float64("total_daily_cost", totalCost).
		Float64("duration_ms", durationMS).
		Msg("sync completed")
}

// LogSyncError records a failed sync. The snapshot still reaches a
// terminal status.
func (l *Logger) LogSyncError(ctx context.Context, providerID, snapshotID string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("provider_id", providerID).
		Str("snapshot_id", snapshotID).
		Msg("sync failed")
}

// LogCommit records the single-transaction persistence of a sync batch.
func (l *Logger) LogCommit(ctx context.Context, providerID, snapshotID string, resources, states, unrecognized int) {
	l.WithContext(ctx).Info().
		Str("provider_id", providerID).
		Str("snapshot_id", snapshotID).
		Int("resources", resources).
		Int("states", states).
		Int("unrecognized", unrecognized).
		Str("operation", "commit_sync").
		Msg("sync batch committed")
}

// LogStorageError records a failed storage operation.
func (l *Logger) LogStorageError(ctx context.Context, operation string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("storage operation failed")
}
