package episodeaccess

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"episodegen/internal/api"
	"episodegen/internal/ipc"
	"episodegen/internal/store"
	"episodegen/internal/testsupport"
)

func TestOpenWithFallbackUsesStoreWhenDaemonIsDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	session, err := OpenWithFallback(
		func() (*ipc.Client, error) { return nil, errors.New("connection refused") },
		func() (*store.Store, error) { return store.Open(cfg) },
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if session.Access.Remote() {
		t.Fatal("expected store-backed access")
	}
}

func TestOpenWithFallbackPrefersDaemon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/status":
			_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, EpisodeStats: map[string]int{"active": 2}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	opened := false
	session, err := OpenWithFallback(
		func() (*ipc.Client, error) { return ipc.Dial(server.URL, "") },
		func() (*store.Store, error) { opened = true; return nil, errors.New("unused") },
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if !session.Access.Remote() || opened {
		t.Fatal("expected daemon-backed access without opening the store")
	}
	stats, err := session.Access.Stats(context.Background())
	if err != nil || stats["active"] != 2 {
		t.Fatalf("unexpected stats %v/%v", stats, err)
	}
}

func TestStoreAccessReads(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	podcast := testsupport.NewPodcast(t, st, "Daily")
	first := testsupport.NewEpisode(t, st, podcast.ID, "owls")
	testsupport.NewEpisode(t, st, podcast.ID, "tides")
	if ok, err := st.Cancel(context.Background(), first.ID); err != nil || !ok {
		t.Fatalf("Cancel: %v/%v", ok, err)
	}

	access := NewStoreAccess(st)
	ctx := context.Background()

	podcasts, err := access.Podcasts(ctx)
	if err != nil || len(podcasts) != 1 {
		t.Fatalf("unexpected podcasts %v/%v", podcasts, err)
	}
	ongoing, err := access.Episodes(ctx, podcast.ID, []string{"ongoing"})
	if err != nil || len(ongoing) != 1 || ongoing[0].Request.Topic != "tides" {
		t.Fatalf("unexpected ongoing episodes %+v/%v", ongoing, err)
	}
	if _, err := access.Episodes(ctx, 0, []string{"bogus"}); err == nil {
		t.Fatal("expected error for unknown status filter")
	}
	ep, err := access.Episode(ctx, first.ID)
	if err != nil || ep == nil || ep.Status != "cancelled" {
		t.Fatalf("unexpected episode %+v/%v", ep, err)
	}
	missing, err := access.Episode(ctx, 999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing episode, got %+v/%v", missing, err)
	}
	stats, err := access.Stats(ctx)
	if err != nil || stats["pending"] != 1 || stats["cancelled"] != 1 {
		t.Fatalf("unexpected stats %v/%v", stats, err)
	}
	health, err := access.DatabaseHealth(ctx)
	if err != nil || health.DBPath == "" {
		t.Fatalf("unexpected health %+v/%v", health, err)
	}
}

func TestOpenWithFallbackReportsBothFailures(t *testing.T) {
	_, err := OpenWithFallback(
		func() (*ipc.Client, error) { return nil, errors.New("daemon down") },
		func() (*store.Store, error) { return nil, errors.New("disk gone") },
	)
	if err == nil {
		t.Fatal("expected error when neither source opens")
	}
	for _, want := range []string{"daemon down", "disk gone"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}
