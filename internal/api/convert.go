package api

import (
	"fmt"
	"strings"
	"time"

	"episodegen/internal/pipeline"
	"episodegen/internal/stage"
	"episodegen/internal/store"
)

// FromPodcast converts a podcast record to its API representation.
func FromPodcast(p *store.Podcast) Podcast {
	if p == nil {
		return Podcast{}
	}
	return Podcast{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

// FromPodcasts converts a slice of podcast records.
func FromPodcasts(podcasts []*store.Podcast) []Podcast {
	out := make([]Podcast, 0, len(podcasts))
	for _, p := range podcasts {
		if p != nil {
			out = append(out, FromPodcast(p))
		}
	}
	return out
}

// FromEpisode converts an episode record to its API representation.
func FromEpisode(ep *store.Episode) Episode {
	if ep == nil {
		return Episode{}
	}
	dto := Episode{
		ID:            ep.ID,
		PodcastID:     ep.PodcastID(),
		Request:       FromRequest(ep.Request),
		Status:        string(ep.Status),
		Step:          string(ep.Step),
		StepLabel:     pipeline.StageLabel(ep.Step),
		RunRef:        ep.RunRef,
		FailureMarker: ep.FailureMarker,
		UsageTokens:   ep.UsageTokens,
		CreatedAt:     formatTime(ep.CreatedAt),
		UpdatedAt:     formatTime(ep.UpdatedAt),
	}
	if step, kind, ok := pipeline.ParseFailureMarker(ep.FailureMarker); ok {
		dto.FailedStep = step
		dto.FailureKind = kind
	}
	if ep.LastHeartbeat != nil {
		dto.LastHeartbeat = formatTime(*ep.LastHeartbeat)
	}
	if ep.Content != nil {
		dto.Title = ep.Content.Title
		dto.Summary = ep.Content.Summary
		dto.Transcript = ep.Content.Transcript
	}
	if ep.Audio != nil {
		dto.Audio = &EpisodeAudio{
			ObjectKey:       ep.Audio.ObjectKey,
			DurationSeconds: ep.Audio.DurationSeconds,
			SizeBytes:       ep.Audio.SizeBytes,
		}
	}
	return dto
}

// FromEpisodes converts a slice of episode records.
func FromEpisodes(episodes []*store.Episode) []Episode {
	out := make([]Episode, 0, len(episodes))
	for _, ep := range episodes {
		if ep != nil {
			out = append(out, FromEpisode(ep))
		}
	}
	return out
}

// FromRequest converts a stored request.
func FromRequest(req store.Request) EpisodeRequest {
	return EpisodeRequest{
		PodcastID:   req.PodcastID,
		Topic:       req.Topic,
		Length:      string(req.Length),
		Level:       string(req.Level),
		Format:      string(req.Format),
		Voice1:      req.Voice1,
		Voice2:      req.Voice2,
		Instruction: req.Instruction,
	}
}

// ToRequest converts a transport request into a store request. Validation
// happens when the episode is created.
func (r EpisodeRequest) ToRequest() store.Request {
	return store.Request{
		PodcastID:   r.PodcastID,
		Topic:       r.Topic,
		Length:      store.Length(r.Length),
		Level:       store.Level(r.Level),
		Format:      store.Format(r.Format),
		Voice1:      r.Voice1,
		Voice2:      r.Voice2,
		Instruction: r.Instruction,
	}
}

// FromStats converts per-status counts into string keys.
func FromStats(stats map[store.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FromStageHealth converts stage readiness records.
func FromStageHealth(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromDatabaseHealth converts store diagnostics.
func FromDatabaseHealth(h store.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		DBPath:           h.DBPath,
		DatabaseExists:   h.DatabaseExists,
		DatabaseReadable: h.DatabaseReadable,
		SchemaVersion:    h.SchemaVersion,
		MissingTables:    h.MissingTables,
		IntegrityCheck:   h.IntegrityCheck,
		TotalEpisodes:    h.TotalEpisodes,
		Error:            h.Error,
	}
}

// ParseStatusFilter turns listing filters into statuses. "ongoing" expands to
// pending and active; "all" or no value means no filter.
func ParseStatusFilter(values []string) ([]store.Status, error) {
	var statuses []store.Status
	seen := make(map[store.Status]bool)
	add := func(status store.Status) {
		if !seen[status] {
			seen[status] = true
			statuses = append(statuses, status)
		}
	}
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			value := strings.ToLower(strings.TrimSpace(part))
			switch value {
			case "", "all":
				continue
			case "ongoing":
				for _, status := range store.OngoingStatuses {
					add(status)
				}
			default:
				status, ok := store.ParseStatus(value)
				if !ok {
					return nil, fmt.Errorf("unknown status filter %q", part)
				}
				add(status)
			}
		}
	}
	return statuses, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
