package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"episodegen/internal/config"
	"episodegen/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventEpisodeCompleted, notifications.Notice{Title: "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		notice         notifications.Notice
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "episode completed",
			event: notifications.EventEpisodeCompleted,
			notice: notifications.Notice{
				Title:    "The Quiet Tides",
				Duration: 192 * time.Second,
			},
			expectTitle:   "Episodegen - Episode Ready",
			expectMessage: "🎙️ Episode ready: The Quiet Tides (3m12s)",
			expectTags:    "episodegen,episode,completed",
		},
		{
			name:  "episode failed",
			event: notifications.EventEpisodeFailed,
			notice: notifications.Notice{
				EpisodeID: 4,
				Topic:     "Tidal energy",
				Step:      "Voice",
				Kind:      "timeout",
			},
			expectTitle:    "Episodegen - Failed",
			expectMessage:  "❌ Generation failed: Tidal energy\nStage: Voice\nReason: timeout",
			expectTags:     "episodegen,error,alert",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Episodegen - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "episodegen,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Completed = true
			cfg.Notifications.Failed = true

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.notice); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completed = false
	cfg.Notifications.Failed = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventEpisodeCompleted,
		notifications.EventEpisodeFailed,
		notifications.EventEpisodeCancelled,
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Notice{Title: "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, notifications.Notice{}); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestFailedNoticeFallsBackToEpisodeID(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Failed = true
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventEpisodeFailed, notifications.Notice{EpisodeID: 12}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if body != "❌ Generation failed: episode 12" {
		t.Fatalf("unexpected body %q", body)
	}
}
