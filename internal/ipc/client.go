package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"episodegen/internal/api"
)

const dialTimeout = 2 * time.Second

// Error is a non-2xx response from the daemon API.
type Error struct {
	Status  int
	Kind    string
	Message string
}

func (e *Error) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("daemon returned %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client provides HTTP access to the daemon API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Dial returns a client for the daemon at addr after confirming it answers.
// addr may be a bare host:port or a full URL.
func Dial(addr, token string) (*Client, error) {
	c, err := New(addr, token)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if _, err := c.Status(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// New builds a client without probing the daemon.
func New(addr, token string) (*Client, error) {
	base, err := normalizeBaseURL(addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func normalizeBaseURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("daemon address is empty")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	parsed, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse daemon address: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("daemon address %q has no host", addr)
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var resp api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth(ctx context.Context) (*api.DatabaseHealth, error) {
	var resp api.DatabaseHealth
	if err := c.do(ctx, http.MethodGet, "/api/health/db", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotificationResponse reports the outcome of a notification test.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification(ctx context.Context) (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Podcasts lists podcasts.
func (c *Client) Podcasts(ctx context.Context) ([]api.Podcast, error) {
	var resp api.PodcastListResponse
	if err := c.do(ctx, http.MethodGet, "/api/podcasts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Podcasts, nil
}

// CreatePodcast creates a podcast.
func (c *Client) CreatePodcast(ctx context.Context, title, description string) (*api.Podcast, error) {
	var resp api.Podcast
	req := api.CreatePodcastRequest{Title: title, Description: description}
	if err := c.do(ctx, http.MethodPost, "/api/podcasts", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeletePodcast removes a podcast and its episodes.
func (c *Client) DeletePodcast(ctx context.Context, id int64) (bool, error) {
	return c.delete(ctx, "/api/podcasts/"+strconv.FormatInt(id, 10))
}

// Episodes lists episodes, optionally filtered by podcast and status.
func (c *Client) Episodes(ctx context.Context, podcastID int64, statuses []string) ([]api.Episode, error) {
	query := url.Values{}
	if podcastID > 0 {
		query.Set("podcast", strconv.FormatInt(podcastID, 10))
	}
	for _, status := range statuses {
		query.Add("status", status)
	}
	path := "/api/episodes"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.EpisodeListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Episodes, nil
}

// Episode returns one episode, or nil when it does not exist.
func (c *Client) Episode(ctx context.Context, id int64) (*api.Episode, error) {
	var resp api.EpisodeResponse
	if err := c.do(ctx, http.MethodGet, episodePath(id, ""), nil, &resp); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &resp.Episode, nil
}

// CreateEpisode starts generating an episode.
func (c *Client) CreateEpisode(ctx context.Context, req api.EpisodeRequest) (*api.RunHandle, error) {
	var resp api.RunHandle
	if err := c.do(ctx, http.MethodPost, "/api/episodes", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelEpisode cancels a live run and returns the episode afterwards.
func (c *Client) CancelEpisode(ctx context.Context, id int64) (*api.Episode, error) {
	var resp api.EpisodeResponse
	if err := c.do(ctx, http.MethodPost, episodePath(id, "/cancel"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Episode, nil
}

// ResumeEpisode relaunches a live episode that is not running.
func (c *Client) ResumeEpisode(ctx context.Context, id int64) (*api.RunHandle, error) {
	var resp api.RunHandle
	if err := c.do(ctx, http.MethodPost, episodePath(id, "/resume"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteEpisode removes an episode and its audio.
func (c *Client) DeleteEpisode(ctx context.Context, id int64) (bool, error) {
	return c.delete(ctx, episodePath(id, ""))
}

// AudioURL returns a time-limited playback URL.
func (c *Client) AudioURL(ctx context.Context, id int64) (*api.AudioURLResponse, error) {
	var resp api.AudioURLResponse
	if err := c.do(ctx, http.MethodGet, episodePath(id, "/audio"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func episodePath(id int64, suffix string) string {
	return "/api/episodes/" + strconv.FormatInt(id, 10) + suffix
}

func (c *Client) delete(ctx context.Context, path string) (bool, error) {
	var resp api.DeleteResponse
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return resp.Removed, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		apiErr := &Error{Status: resp.StatusCode}
		var payload api.ErrorResponse
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
