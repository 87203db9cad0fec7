package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"episodegen/internal/api"
	"episodegen/internal/testsupport"
)

const testToken = "secret"

type apiHarness struct {
	t      *testing.T
	server *httptest.Server
	daemon *Daemon
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken(testToken))
	d := newTestDaemon(t, cfg)
	server := httptest.NewServer(d.api.handler())
	t.Cleanup(server.Close)
	return &apiHarness{t: t, server: server, daemon: d}
}

func (h *apiHarness) do(method, path string, body any) *http.Response {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *apiHarness) expect(resp *http.Response, status int, out any) {
	h.t.Helper()
	if resp.StatusCode != status {
		data, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("expected status %d, got %d: %s", status, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
}

func (h *apiHarness) createPodcast(title string) api.Podcast {
	h.t.Helper()
	var podcast api.Podcast
	h.expect(h.do(http.MethodPost, "/api/podcasts", api.CreatePodcastRequest{Title: title}), http.StatusCreated, &podcast)
	return podcast
}

func (h *apiHarness) waitForStatus(id int64, status string) api.Episode {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		var resp api.EpisodeResponse
		h.expect(h.do(http.MethodGet, fmt.Sprintf("/api/episodes/%d", id), nil), http.StatusOK, &resp)
		if resp.Episode.Status == status {
			return resp.Episode
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("episode %d stuck in %s, want %s", id, resp.Episode.Status, status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	h := newAPIHarness(t)

	resp, err := http.Get(h.server.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}

	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", resp2.StatusCode)
	}
}

func TestAPIStatusReportsStages(t *testing.T) {
	h := newAPIHarness(t)
	resp := h.do(http.MethodGet, "/api/status", nil)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
	var status api.DaemonStatus
	h.expect(resp, http.StatusOK, &status)
	if len(status.StageHealth) != 3 {
		t.Fatalf("expected three stage health entries, got %+v", status.StageHealth)
	}
	if status.DatabasePath == "" {
		t.Fatal("expected database path")
	}
}

func TestAPIEpisodeLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	podcast := h.createPodcast("Daily")

	var handle api.RunHandle
	h.expect(h.do(http.MethodPost, "/api/episodes", api.EpisodeRequest{
		PodcastID: podcast.ID,
		Topic:     "tidal energy",
		Voice1:    "maya",
		Voice2:    "jake",
	}), http.StatusAccepted, &handle)
	if handle.EpisodeID == 0 || handle.RunRef == "" {
		t.Fatalf("unexpected handle %+v", handle)
	}

	episode := h.waitForStatus(handle.EpisodeID, "completed")
	if episode.Title != "About tidal energy" || episode.Audio == nil {
		t.Fatalf("unexpected completed episode %+v", episode)
	}

	var completed api.EpisodeListResponse
	h.expect(h.do(http.MethodGet, "/api/episodes?status=completed", nil), http.StatusOK, &completed)
	if len(completed.Episodes) != 1 || completed.Episodes[0].ID != handle.EpisodeID {
		t.Fatalf("expected one completed episode, got %+v", completed.Episodes)
	}
	var ongoing api.EpisodeListResponse
	h.expect(h.do(http.MethodGet, "/api/episodes?status=ongoing", nil), http.StatusOK, &ongoing)
	if len(ongoing.Episodes) != 0 {
		t.Fatalf("expected no ongoing episodes, got %+v", ongoing.Episodes)
	}
	h.expect(h.do(http.MethodGet, "/api/episodes?status=done", nil), http.StatusBadRequest, nil)

	var audioURL api.AudioURLResponse
	h.expect(h.do(http.MethodGet, fmt.Sprintf("/api/episodes/%d/audio", handle.EpisodeID), nil), http.StatusOK, &audioURL)
	if !strings.HasPrefix(audioURL.URL, "file://") || audioURL.ExpiresIn != int64((48*time.Hour)/time.Second) {
		t.Fatalf("unexpected audio url %+v", audioURL)
	}

	download := h.do(http.MethodGet, fmt.Sprintf("/api/episodes/%d/download", handle.EpisodeID), nil)
	h.expect(download, http.StatusFound, nil)
	if !strings.HasPrefix(download.Header.Get("Location"), "file://") {
		t.Fatalf("unexpected redirect %q", download.Header.Get("Location"))
	}

	// Cancelling a finished run leaves it completed.
	var cancelled api.EpisodeResponse
	h.expect(h.do(http.MethodPost, fmt.Sprintf("/api/episodes/%d/cancel", handle.EpisodeID), nil), http.StatusOK, &cancelled)
	if cancelled.Episode.Status != "completed" {
		t.Fatalf("expected completed after cancel, got %s", cancelled.Episode.Status)
	}

	var removed api.DeleteResponse
	h.expect(h.do(http.MethodDelete, fmt.Sprintf("/api/episodes/%d", handle.EpisodeID), nil), http.StatusOK, &removed)
	if !removed.Removed {
		t.Fatal("expected removed=true")
	}
	h.expect(h.do(http.MethodGet, fmt.Sprintf("/api/episodes/%d", handle.EpisodeID), nil), http.StatusNotFound, nil)
}

func TestAPIErrorMapping(t *testing.T) {
	h := newAPIHarness(t)
	podcast := h.createPodcast("Daily")

	var errResp api.ErrorResponse
	h.expect(h.do(http.MethodPost, "/api/episodes/999/cancel", nil), http.StatusNotFound, &errResp)
	if errResp.Kind != "not_found" {
		t.Fatalf("expected not_found kind, got %+v", errResp)
	}

	h.expect(h.do(http.MethodPost, "/api/episodes", api.EpisodeRequest{PodcastID: podcast.ID, Topic: "  ", Voice1: "maya"}), http.StatusBadRequest, &errResp)
	if errResp.Kind != "validation" {
		t.Fatalf("expected validation kind, got %+v", errResp)
	}

	h.expect(h.do(http.MethodPost, "/api/episodes", api.EpisodeRequest{PodcastID: podcast.ID + 100, Topic: "owls", Voice1: "maya"}), http.StatusNotFound, nil)
	h.expect(h.do(http.MethodGet, "/api/episodes/abc", nil), http.StatusBadRequest, nil)
	h.expect(h.do(http.MethodPost, "/api/podcasts", map[string]any{"title": "x", "bogus": true}), http.StatusBadRequest, nil)
	h.expect(h.do(http.MethodPost, "/api/podcasts", api.CreatePodcastRequest{Title: " "}), http.StatusBadRequest, nil)
	h.expect(h.do(http.MethodGet, "/api/episodes/999/audio", nil), http.StatusNotFound, nil)
	h.expect(h.do(http.MethodDelete, "/api/podcasts/999", nil), http.StatusNotFound, nil)
}

func TestAPIPodcastDeleteRemovesEpisodes(t *testing.T) {
	h := newAPIHarness(t)
	podcast := h.createPodcast("Daily")

	var handle api.RunHandle
	h.expect(h.do(http.MethodPost, "/api/episodes", api.EpisodeRequest{PodcastID: podcast.ID, Topic: "owls", Voice1: "maya"}), http.StatusAccepted, &handle)
	h.waitForStatus(handle.EpisodeID, "completed")

	var list api.PodcastListResponse
	h.expect(h.do(http.MethodGet, "/api/podcasts", nil), http.StatusOK, &list)
	if len(list.Podcasts) != 1 {
		t.Fatalf("expected one podcast, got %+v", list.Podcasts)
	}

	h.expect(h.do(http.MethodDelete, fmt.Sprintf("/api/podcasts/%d", podcast.ID), nil), http.StatusOK, nil)
	h.expect(h.do(http.MethodGet, fmt.Sprintf("/api/episodes/%d", handle.EpisodeID), nil), http.StatusNotFound, nil)
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	h := newAPIHarness(t)
	podcast := h.createPodcast("Daily")
	var handle api.RunHandle
	h.expect(h.do(http.MethodPost, "/api/episodes", api.EpisodeRequest{PodcastID: podcast.ID, Topic: "owls", Voice1: "maya"}), http.StatusAccepted, &handle)
	h.waitForStatus(handle.EpisodeID, "completed")

	resp, err := http.Get(h.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "episodegen_runs_started_total 1") {
		t.Fatalf("expected runs_started counter in metrics output")
	}
}

func TestStatusForError(t *testing.T) {
	if got := statusForError(context.Canceled); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unmarked errors, got %d", got)
	}
}

func TestBearerSchemeIsCaseInsensitive(t *testing.T) {
	h := newAPIHarness(t)
	req, _ := http.NewRequest(http.MethodGet, h.server.URL+"/api/status", nil)
	req.Header.Set("Authorization", "bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
