package logging

import (
	"context"
	"log/slog"

	"episodegen/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEpisodeID is the standardized key for episode identifiers.
	FieldEpisodeID = "episode_id"
	// FieldPodcastID is the standardized key for the parent podcast identifier.
	FieldPodcastID = "podcast_id"
	// FieldRunRef is the standardized key for executor run references.
	FieldRunRef = "run_ref"
	// FieldStage is the standardized key for pipeline stage names.
	FieldStage = "stage"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for dashboards (stage_start, run_failed, ...).
	FieldEventType = "event_type"
	// FieldErrorHint tells an operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries the services error classification.
	FieldErrorKind = "error_kind"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// WithContext returns logger extended with the episode, run, stage and
// request identifiers carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	if id, ok := services.EpisodeIDFromContext(ctx); ok {
		args = append(args, Int64(FieldEpisodeID, id))
	}
	if ref, ok := services.RunRefFromContext(ctx); ok {
		args = append(args, String(FieldRunRef, ref))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		args = append(args, String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		args = append(args, String(FieldCorrelationID, rid))
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
