package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"episodegen/internal/api"
	"episodegen/internal/config"
	"episodegen/internal/logging"
	"episodegen/internal/services"
	"episodegen/internal/store"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	audioTTL time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:     strings.TrimSpace(cfg.Paths.APIBind),
		token:    strings.TrimSpace(cfg.Paths.APIToken),
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
		audioTTL: cfg.AudioURLTTL(),
	}
	srv.server = &http.Server{
		Handler:           srv.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/health/db", s.handleDatabaseHealth)
	mux.HandleFunc("POST /api/notifications/test", s.handleTestNotification)

	mux.HandleFunc("GET /api/podcasts", s.handleListPodcasts)
	mux.HandleFunc("POST /api/podcasts", s.handleCreatePodcast)
	mux.HandleFunc("DELETE /api/podcasts/{id}", s.handleDeletePodcast)

	mux.HandleFunc("GET /api/episodes", s.handleListEpisodes)
	mux.HandleFunc("POST /api/episodes", s.handleCreateEpisode)
	mux.HandleFunc("GET /api/episodes/{id}", s.handleGetEpisode)
	mux.HandleFunc("DELETE /api/episodes/{id}", s.handleDeleteEpisode)
	mux.HandleFunc("POST /api/episodes/{id}/cancel", s.handleCancelEpisode)
	mux.HandleFunc("POST /api/episodes/{id}/resume", s.handleResumeEpisode)
	mux.HandleFunc("GET /api/episodes/{id}/audio", s.handleAudioURL)
	mux.HandleFunc("GET /api/episodes/{id}/download", s.handleDownload)

	root := http.NewServeMux()
	root.Handle("/api/", authMiddleware(s.token, requestIDMiddleware(mux)))
	root.Handle("GET /metrics", s.daemon.metrics.Handler())
	return root
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		RunsInFlight: status.RunsInFlight,
		EpisodeStats: api.FromStats(status.EpisodeStats),
		StageHealth:  api.FromStageHealth(s.daemon.pipeline.HealthCheck(r.Context())),
	})
}

func (s *apiServer) handleDatabaseHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.daemon.DatabaseHealth(r.Context())
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sent": sent, "message": message})
}

func (s *apiServer) handleListPodcasts(w http.ResponseWriter, r *http.Request) {
	podcasts, err := s.daemon.store.ListPodcasts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PodcastListResponse{Podcasts: api.FromPodcasts(podcasts)})
}

func (s *apiServer) handleCreatePodcast(w http.ResponseWriter, r *http.Request) {
	var req api.CreatePodcastRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	podcast, err := s.daemon.store.NewPodcast(r.Context(), strings.TrimSpace(req.Title), strings.TrimSpace(req.Description))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromPodcast(podcast))
}

func (s *apiServer) handleDeletePodcast(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	removed, err := s.daemon.pipeline.DeletePodcast(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "podcast not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{Removed: true})
}

func (s *apiServer) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	statuses, err := api.ParseStatusFilter(query["status"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.ListFilter{Statuses: statuses}
	if value := strings.TrimSpace(query.Get("podcast")); value != "" {
		podcastID, err := strconv.ParseInt(value, 10, 64)
		if err != nil || podcastID <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid podcast id")
			return
		}
		filter.PodcastID = podcastID
	}
	episodes, err := s.daemon.store.ListEpisodes(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EpisodeListResponse{Episodes: api.FromEpisodes(episodes)})
}

func (s *apiServer) handleCreateEpisode(w http.ResponseWriter, r *http.Request) {
	var req api.EpisodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	handle, err := s.daemon.pipeline.Start(r.Context(), req.ToRequest())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.RunHandle{EpisodeID: handle.EpisodeID, RunRef: handle.RunRef})
}

func (s *apiServer) handleGetEpisode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	ep, err := s.daemon.store.GetEpisode(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if ep == nil {
		s.writeError(w, http.StatusNotFound, "episode not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.EpisodeResponse{Episode: api.FromEpisode(ep)})
}

func (s *apiServer) handleDeleteEpisode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	removed, err := s.daemon.pipeline.Delete(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "episode not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{Removed: true})
}

func (s *apiServer) handleCancelEpisode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.daemon.pipeline.Cancel(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.respondEpisode(w, r, id)
}

func (s *apiServer) handleResumeEpisode(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	handle, err := s.daemon.pipeline.ResumeEpisode(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.RunHandle{EpisodeID: handle.EpisodeID, RunRef: handle.RunRef})
}

func (s *apiServer) handleAudioURL(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	url, err := s.daemon.pipeline.AudioURL(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AudioURLResponse{URL: url, ExpiresIn: int64(s.audioTTL / time.Second)})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	url, err := s.daemon.pipeline.DownloadURL(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *apiServer) respondEpisode(w http.ResponseWriter, r *http.Request, id int64) {
	ep, err := s.daemon.store.GetEpisode(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if ep == nil {
		s.writeError(w, http.StatusNotFound, "episode not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.EpisodeResponse{Episode: api.FromEpisode(ep)})
}

func (s *apiServer) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// statusForError maps service error markers onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrExternalService), errors.Is(err, services.ErrTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed", logging.Error(err), logging.String(logging.FieldErrorKind, services.Kind(err)))
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: services.Kind(err)})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
