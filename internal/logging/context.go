package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunName identifies the indexer invocation flavour (pbench-index, pbench-index-tool-data, ...).
	FieldRunName = "run_name"
	// FieldRunTS is the run timestamp shared by every ledger file of one run.
	FieldRunTS = "run_ts"
	// FieldTrackingID is the status-report id obtained at run start.
	FieldTrackingID = "tracking_id"
	// FieldController is the controller (source host) owning a tarball.
	FieldController = "controller"
	// FieldTarball is the queued tarball link path.
	FieldTarball = "tarball"
	// FieldOutcome is the outcome code assigned to a tarball.
	FieldOutcome = "outcome"
	// FieldEventType classifies a log line for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next operator step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey string

const (
	runKey        contextKey = "run"
	trackingKey   contextKey = "tracking_id"
	controllerKey contextKey = "controller"
	tarballKey    contextKey = "tarball"
)

type runInfo struct {
	name string
	ts   string
}

// WithRun annotates context with the run name and timestamp.
func WithRun(ctx context.Context, name, ts string) context.Context {
	if name == "" && ts == "" {
		return ctx
	}
	return context.WithValue(ctx, runKey, runInfo{name: name, ts: ts})
}

// WithTrackingID annotates context with the run's status tracking id.
func WithTrackingID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, trackingKey, id)
}

// WithTarball annotates context with the controller and tarball being processed.
func WithTarball(ctx context.Context, controller, tarball string) context.Context {
	if controller != "" {
		ctx = context.WithValue(ctx, controllerKey, controller)
	}
	if tarball != "" {
		ctx = context.WithValue(ctx, tarballKey, tarball)
	}
	return ctx
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if run, ok := ctx.Value(runKey).(runInfo); ok {
		if run.name != "" {
			fields = append(fields, slog.String(FieldRunName, run.name))
		}
		if run.ts != "" {
			fields = append(fields, slog.String(FieldRunTS, run.ts))
		}
	}
	if id, ok := ctx.Value(trackingKey).(int64); ok {
		fields = append(fields, slog.Int64(FieldTrackingID, id))
	}
	if controller, ok := ctx.Value(controllerKey).(string); ok {
		fields = append(fields, slog.String(FieldController, controller))
	}
	if tarball, ok := ctx.Value(tarballKey).(string); ok {
		fields = append(fields, slog.String(FieldTarball, tarball))
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
