package services

import "context"

// scope carries the correlation fields attached to a request or run. It is
// stored by value so each With* call derives a new copy.
type scope struct {
	episodeID int64
	runRef    string
	stage     string
	requestID string
}

type scopeKey struct{}

func scopeOf(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, update func(*scope)) context.Context {
	s := scopeOf(ctx)
	update(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithEpisodeID annotates ctx with the episode being worked on.
func WithEpisodeID(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.episodeID = id })
}

// EpisodeIDFromContext returns the episode id, if any.
func EpisodeIDFromContext(ctx context.Context) (int64, bool) {
	id := scopeOf(ctx).episodeID
	return id, id > 0
}

// WithRunRef annotates ctx with the executor run reference.
func WithRunRef(ctx context.Context, ref string) context.Context {
	if ref == "" {
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.runRef = ref })
}

func RunRefFromContext(ctx context.Context) (string, bool) {
	ref := scopeOf(ctx).runRef
	return ref, ref != ""
}

// WithStage annotates ctx with the pipeline step currently executing.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.stage = stage })
}

func StageFromContext(ctx context.Context) (string, bool) {
	stage := scopeOf(ctx).stage
	return stage, stage != ""
}

// WithRequestID annotates ctx with an API correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.requestID = id })
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id := scopeOf(ctx).requestID
	return id, id != ""
}
