package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"episodegen/internal/config"
)

const userAgent = "episodegen/1.0"

// Event identifies a notification type.
type Event string

const (
	EventEpisodeCompleted Event = "episode_completed"
	EventEpisodeFailed    Event = "episode_failed"
	EventEpisodeCancelled Event = "episode_cancelled"
	EventTest             Event = "test"
)

// Notice describes the episode an event is about. Empty fields are left out
// of the message.
type Notice struct {
	EpisodeID int64
	Title     string
	Topic     string
	Duration  time.Duration
	Step      string // stage label, e.g. "Voice"
	Kind      string // services error kind
}

// Service publishes episode events.
type Service interface {
	Publish(ctx context.Context, event Event, notice Notice) error
}

// NewService returns an ntfy publisher for the configured topic URL, or a
// no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	enabled := map[Event]bool{EventTest: true}
	enabled[EventEpisodeCompleted] = cfg.Notifications.Completed
	enabled[EventEpisodeFailed] = cfg.Notifications.Failed
	return &ntfyService{
		topicURL: topic,
		client:   &http.Client{Timeout: timeout},
		enabled:  enabled,
	}
}

// message is one ntfy publish, sent as a plain-text body plus headers.
type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	topicURL string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, notice Notice) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := render(event, notice)
	if !ok {
		return nil
	}
	return n.post(ctx, msg)
}

func render(event Event, n Notice) (message, bool) {
	switch event {
	case EventEpisodeCompleted:
		body := "🎙️ Episode ready: " + firstNonEmpty(n.Title, n.Topic, "Untitled episode")
		if n.Duration > 0 {
			body += " (" + n.Duration.Round(time.Second).String() + ")"
		}
		return message{
			title: "Episodegen - Episode Ready",
			body:  body,
			tags:  []string{"episodegen", "episode", "completed"},
		}, true
	case EventEpisodeFailed:
		lines := []string{"❌ Generation failed: " + firstNonEmpty(n.Topic, fmt.Sprintf("episode %d", n.EpisodeID))}
		if n.Step != "" {
			lines = append(lines, "Stage: "+n.Step)
		}
		if n.Kind != "" {
			lines = append(lines, "Reason: "+n.Kind)
		}
		return message{
			title:    "Episodegen - Failed",
			body:     strings.Join(lines, "\n"),
			tags:     []string{"episodegen", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Episodegen - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"episodegen", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) post(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topicURL, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", msg.title)
	req.Header.Set("Tags", strings.Join(msg.tags, ","))
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Notice) error { return nil }
