package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"episodegen/internal/ports"
	"episodegen/internal/services"
)

const (
	defaultBaseURL      = "https://api.exa.ai"
	defaultTimeout      = 30 * time.Second
	defaultResults      = 3
	defaultMaxResults   = 10
	defaultContentChars = 500
	userAgent           = "Episodegen/1.0"
)

// Config holds Exa client settings.
type Config struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
	DefaultResults int
	MaxResults     int
	ContentChars   int
}

// Client calls Exa's /search endpoint with text contents enabled.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient constructs an Exa client, filling defaults for zero values.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.DefaultResults <= 0 {
		cfg.DefaultResults = defaultResults
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.ContentChars <= 0 {
		cfg.ContentChars = defaultContentChars
	}
	if httpClient == nil {
		timeout := defaultTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

type searchRequest struct {
	Query      string         `json:"query"`
	NumResults int            `json:"numResults"`
	Type       string         `json:"type"`
	Contents   searchContents `json:"contents"`
}

type searchContents struct {
	Text bool `json:"text"`
}

type searchResponse struct {
	Results []struct {
		URL           string `json:"url"`
		Title         string `json:"title"`
		PublishedDate string `json:"publishedDate"`
		Text          string `json:"text"`
	} `json:"results"`
	Error string `json:"error"`
}

// ClampResults applies the default for non-positive counts and caps at the maximum.
func (c *Client) ClampResults(n int) int {
	if n <= 0 {
		return c.cfg.DefaultResults
	}
	if n > c.cfg.MaxResults {
		return c.cfg.MaxResults
	}
	return n
}

// Query runs a search and returns ranked documents.
func (c *Client) Query(ctx context.Context, text string, maxResults int) ([]ports.Document, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "search", "query", "query text required", nil)
	}
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "search", "query", "exa api key required", nil)
	}

	body, err := json.Marshal(searchRequest{
		Query:      text,
		NumResults: c.ClampResults(maxResults),
		Type:       "auto",
		Contents:   searchContents{Text: true},
	})
	if err != nil {
		return nil, fmt.Errorf("search: encode body: %w", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "search")
	if err != nil {
		return nil, fmt.Errorf("search: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: new request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrExternalService, "search", "exa request", "", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "search", "read response", "", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, services.Wrap(
			services.ErrExternalService,
			"search",
			"exa request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))),
			nil,
		)
	}

	var decoded searchResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "search", "decode response", "", err)
	}
	if decoded.Error != "" {
		return nil, services.Wrap(services.ErrExternalService, "search", "exa error", decoded.Error, nil)
	}

	docs := make([]ports.Document, 0, len(decoded.Results))
	for _, result := range decoded.Results {
		docs = append(docs, ports.Document{
			URL:           result.URL,
			Title:         strings.TrimSpace(result.Title),
			PublishedDate: result.PublishedDate,
			Content:       truncate(result.Text, c.cfg.ContentChars),
		})
	}
	return docs, nil
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if limit > 0 && len(runes) > limit {
		runes = runes[:limit]
	}
	return strings.TrimSpace(string(runes))
}
