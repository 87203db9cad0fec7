package services_test

import (
	"context"
	"testing"

	"episodegen/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithEpisodeID(ctx, 42)
	ctx = services.WithRunRef(ctx, "run-abc")
	ctx = services.WithStage(ctx, "compose")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.EpisodeIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected episode id: %v %v", id, ok)
	}
	if ref, ok := services.RunRefFromContext(ctx); !ok || ref != "run-abc" {
		t.Fatalf("unexpected run ref: %v %v", ref, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "compose" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithRunRef(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.RunRefFromContext(ctx); ok {
		t.Fatal("expected no run ref value")
	}
}

func TestDerivedContextDoesNotLeakToParent(t *testing.T) {
	parent := services.WithEpisodeID(context.Background(), 7)
	child := services.WithStage(parent, "voice")
	if _, ok := services.StageFromContext(parent); ok {
		t.Fatal("stage leaked into parent context")
	}
	if id, _ := services.EpisodeIDFromContext(child); id != 7 {
		t.Fatalf("child lost episode id, got %d", id)
	}
}
