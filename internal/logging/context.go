package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. capture_failed).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldGroup is the channel group (group-title) a log line refers to.
	FieldGroup = "group"
	// FieldChannel is the channel name a log line refers to.
	FieldChannel = "channel"
	// FieldCycleID identifies one pipeline cycle.
	FieldCycleID = "cycle_id"
	// FieldRunID identifies one daemon process run.
	FieldRunID = "run_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

type contextKey int

const (
	cycleKey contextKey = iota
	groupKey
	channelKey
)

// WithCycle tags ctx with a pipeline cycle identifier.
func WithCycle(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleKey, cycleID)
}

// WithChannel tags ctx with the channel currently being processed.
func WithChannel(ctx context.Context, group, channel string) context.Context {
	ctx = context.WithValue(ctx, groupKey, group)
	return context.WithValue(ctx, channelKey, channel)
}

// CycleFromContext returns the cycle identifier stored by WithCycle.
func CycleFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(cycleKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := CycleFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCycleID, id))
	}
	if group, ok := ctx.Value(groupKey).(string); ok && group != "" {
		fields = append(fields, slog.String(FieldGroup, group))
	}
	if channel, ok := ctx.Value(channelKey).(string); ok && channel != "" {
		fields = append(fields, slog.String(FieldChannel, channel))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
