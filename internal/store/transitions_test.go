package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"episodegen/internal/store"
	"episodegen/internal/testsupport"
)

func driveToVoice(t *testing.T, st *store.Store, id int64) {
	t.Helper()
	ctx := context.Background()
	if ok, err := st.Activate(ctx, id, "run-1"); err != nil || !ok {
		t.Fatalf("Activate: %v %v", ok, err)
	}
	if ok, err := st.Advance(ctx, id, store.StepResearch, store.Effects{ResearchText: "notes", UsageTokens: 10}); err != nil || !ok {
		t.Fatalf("Advance research: %v %v", ok, err)
	}
	content := &store.Content{Title: "Title", Summary: "Summary", Transcript: "Speaker 1: hello"}
	if ok, err := st.Advance(ctx, id, store.StepCompose, store.Effects{Content: content, UsageTokens: 5}); err != nil || !ok {
		t.Fatalf("Advance compose: %v %v", ok, err)
	}
}

func completeEpisode(t *testing.T, st *store.Store, id int64) {
	t.Helper()
	audio := &store.Audio{ObjectKey: "1/1.mp3", DurationSeconds: 3, SizeBytes: 1024}
	if ok, err := st.Complete(context.Background(), id, store.Effects{Audio: audio}); err != nil || !ok {
		t.Fatalf("Complete: %v %v", ok, err)
	}
}

func TestHappyPathTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Show")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "deep sea mysteries")

	ctx := context.Background()
	driveToVoice(t, st, episode.ID)

	mid, err := st.GetEpisode(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if mid.Status != store.StatusActive || mid.Step != store.StepVoice {
		t.Fatalf("expected active/voice, got %s/%s", mid.Status, mid.Step)
	}
	if mid.RunRef != "run-1" || mid.ResearchText != "notes" {
		t.Fatalf("unexpected run ref or research: %q %q", mid.RunRef, mid.ResearchText)
	}
	if mid.Content == nil || mid.Content.Title != "Title" {
		t.Fatalf("expected content to be stored, got %#v", mid.Content)
	}
	if mid.Audio != nil {
		t.Fatal("audio must not exist before voice completes")
	}

	completeEpisode(t, st, episode.ID)

	done, err := st.GetEpisode(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if done.Status != store.StatusCompleted || done.Step != store.StepNone {
		t.Fatalf("expected completed with no step, got %s/%q", done.Status, done.Step)
	}
	if done.Audio == nil || done.Audio.DurationSeconds != 3 || done.Audio.ObjectKey != "1/1.mp3" {
		t.Fatalf("unexpected audio: %#v", done.Audio)
	}
	if done.UsageTokens != 15 {
		t.Fatalf("expected usage to accumulate, got %d", done.UsageTokens)
	}
	if done.LastHeartbeat != nil {
		t.Fatal("expected heartbeat to be cleared on completion")
	}
}

func TestAdvanceRejectsForeignEffects(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Show")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "topic")

	ctx := context.Background()
	if _, err := st.Activate(ctx, episode.ID, "run"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	content := &store.Content{Title: "t", Summary: "s", Transcript: "x"}
	if _, err := st.Advance(ctx, episode.ID, store.StepResearch, store.Effects{Content: content}); !errors.Is(err, store.ErrEffectNotAllowed) {
		t.Fatalf("expected ErrEffectNotAllowed, got %v", err)
	}
	if _, err := st.Complete(ctx, episode.ID, store.Effects{ResearchText: "x", Audio: &store.Audio{}}); !errors.Is(err, store.ErrEffectNotAllowed) {
		t.Fatalf("expected ErrEffectNotAllowed, got %v", err)
	}
	if _, err := st.Advance(ctx, episode.ID, store.StepVoice, store.Effects{}); err == nil {
		t.Fatal("expected error advancing past the last step")
	}
}

func TestAdvanceRequiresExpectedStep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Show")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "topic")

	ctx := context.Background()
	if ok, err := st.Advance(ctx, episode.ID, store.StepResearch, store.Effects{ResearchText: "early"}); err != nil || ok {
		t.Fatalf("pending run must not advance: %v %v", ok, err)
	}
	if _, err := st.Activate(ctx, episode.ID, "run"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	content := &store.Content{Title: "t", Summary: "s", Transcript: "x"}
	if ok, err := st.Advance(ctx, episode.ID, store.StepCompose, store.Effects{Content: content}); err != nil || ok {
		t.Fatalf("compose must not advance while at research: %v %v", ok, err)
	}
	got, _ := st.GetEpisode(ctx, episode.ID)
	if got.Content != nil || got.Step != store.StepResearch {
		t.Fatalf("expected no content and research step, got %#v", got)
	}
}

func TestCancelIsAbsorbing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Show")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "topic")

	ctx := context.Background()
	if _, err := st.Activate(ctx, episode.ID, "run"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if ok, err := st.Advance(ctx, episode.ID, store.StepResearch, store.Effects{ResearchText: "partial"}); err != nil || !ok {
		t.Fatalf("Advance: %v %v", ok, err)
	}

	if ok, err := st.Cancel(ctx, episode.ID); err != nil || !ok {
		t.Fatalf("Cancel: %v %v", ok, err)
	}
	if ok, err := st.Cancel(ctx, episode.ID); err != nil || ok {
		t.Fatalf("second cancel must be a no-op: %v %v", ok, err)
	}
	if ok, err := st.Fail(ctx, episode.ID, "failed:compose:external_service"); err != nil || ok {
		t.Fatalf("fail after cancel must be a no-op: %v %v", ok, err)
	}
	content := &store.Content{Title: "t", Summary: "s", Transcript: "x"}
	if ok, err := st.Advance(ctx, episode.ID, store.StepCompose, store.Effects{Content: content}); err != nil || ok {
		t.Fatalf("advance after cancel must be a no-op: %v %v", ok, err)
	}

	got, _ := st.GetEpisode(ctx, episode.ID)
	if got.Status != store.StatusCancelled || got.Step != store.StepNone {
		t.Fatalf("expected cancelled with no step, got %s/%q", got.Status, got.Step)
	}
	if got.ResearchText != "partial" {
		t.Fatalf("expected research notes to remain, got %q", got.ResearchText)
	}
	if got.Content != nil || got.Audio != nil {
		t.Fatalf("expected no artifacts after cancel, got %#v %#v", got.Content, got.Audio)
	}
	if got.FailureMarker != "" {
		t.Fatalf("cancel must not record a failure marker, got %q", got.FailureMarker)
	}
}

func TestFailOnTerminalIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Show")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "topic")

	ctx := context.Background()
	driveToVoice(t, st, episode.ID)
	completeEpisode(t, st, episode.ID)

	if ok, err := st.Fail(ctx, episode.ID, "failed:voice:timeout"); err != nil || ok {
		t.Fatalf("fail on completed must be a no-op: %v %v", ok, err)
	}
	if ok, err := st.Cancel(ctx, episode.ID); err != nil || ok {
		t.Fatalf("cancel on completed must be a no-op: %v %v", ok, err)
	}
	got, _ := st.GetEpisode(ctx, episode.ID)
	if got.Status != store.StatusCompleted || got.Audio == nil || got.Content == nil {
		t.Fatalf("expected completed episode with artifacts intact, got %#v", got)
	}
}

func TestFailRecordsMarker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Show")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "topic")

	ctx := context.Background()
	if _, err := st.Activate(ctx, episode.ID, "run"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if ok, err := st.Fail(ctx, episode.ID, "failed:research:external_service"); err != nil || !ok {
		t.Fatalf("Fail: %v %v", ok, err)
	}
	got, _ := st.GetEpisode(ctx, episode.ID)
	if got.Status != store.StatusFailed || got.Step != store.StepNone {
		t.Fatalf("expected failed with no step, got %s/%q", got.Status, got.Step)
	}
	if got.FailureMarker != "failed:research:external_service" {
		t.Fatalf("unexpected marker %q", got.FailureMarker)
	}
}

func TestActiveEpisodesUsesHeartbeatCutoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Show")
	first := testsupport.NewEpisode(t, st, podcast.ID, "one")
	second := testsupport.NewEpisode(t, st, podcast.ID, "two")

	ctx := context.Background()
	for _, ep := range []*store.Episode{first, second} {
		if _, err := st.Activate(ctx, ep.ID, "run"); err != nil {
			t.Fatalf("Activate: %v", err)
		}
	}

	all, err := st.ActiveEpisodes(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ActiveEpisodes: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 active episodes, got %d", len(all))
	}

	stale, err := st.ActiveEpisodes(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ActiveEpisodes: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("fresh heartbeats must not be stale, got %d", len(stale))
	}

	if err := st.UpdateHeartbeat(ctx, first.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}
	stale, err = st.ActiveEpisodes(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ActiveEpisodes: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected both runs stale with a future cutoff, got %d", len(stale))
	}
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	first := testsupport.NewPodcast(t, st, "First")
	second := testsupport.NewPodcast(t, st, "Second")
	a := testsupport.NewEpisode(t, st, first.ID, "a")
	b := testsupport.NewEpisode(t, st, second.ID, "b")

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := st.Activate(ctx, a.ID, "run-a"); err != nil {
			errs <- err
			return
		}
		if _, err := st.Advance(ctx, a.ID, store.StepResearch, store.Effects{ResearchText: "a"}); err != nil {
			errs <- err
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := st.Cancel(ctx, b.ID); err != nil {
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent transition: %v", err)
	}

	gotA, _ := st.GetEpisode(ctx, a.ID)
	gotB, _ := st.GetEpisode(ctx, b.ID)
	if gotA.Status != store.StatusActive || gotA.Step != store.StepCompose || gotA.RunRef != "run-a" {
		t.Fatalf("unexpected state for a: %s/%s %q", gotA.Status, gotA.Step, gotA.RunRef)
	}
	if gotB.Status != store.StatusCancelled || gotB.Step != store.StepNone || gotB.RunRef != "" {
		t.Fatalf("unexpected state for b: %s/%q %q", gotB.Status, gotB.Step, gotB.RunRef)
	}
}
