package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"episodegen/internal/api"
)

func episodeListRows(episodes []api.Episode) [][]string {
	rows := make([][]string, 0, len(episodes))
	for _, ep := range episodes {
		rows = append(rows, []string{
			strconv.FormatInt(ep.ID, 10),
			strconv.FormatInt(ep.PodcastID, 10),
			truncate(episodeHeadline(ep), 48),
			episodeState(ep),
			ep.CreatedAt,
		})
	}
	return rows
}

func episodeHeadline(ep api.Episode) string {
	if strings.TrimSpace(ep.Title) != "" {
		return ep.Title
	}
	return ep.Request.Topic
}

// episodeState folds status, step, and failure into one column.
func episodeState(ep api.Episode) string {
	switch ep.Status {
	case "active":
		if ep.StepLabel != "" {
			return "active (" + ep.StepLabel + ")"
		}
	case "failed":
		if ep.FailedStep != "" {
			return fmt.Sprintf("failed (%s: %s)", ep.FailedStep, ep.FailureKind)
		}
	}
	return ep.Status
}

func printEpisodeDetail(out io.Writer, ep api.Episode, showTranscript bool) {
	fmt.Fprintf(out, "Episode %d (podcast %d)\n", ep.ID, ep.PodcastID)
	fmt.Fprintf(out, "Status: %s\n", episodeState(ep))
	fmt.Fprintf(out, "Topic: %s\n", ep.Request.Topic)
	fmt.Fprintf(out, "Request: %s / %s / %s, voices %s\n",
		ep.Request.Length, ep.Request.Level, ep.Request.Format, voices(ep.Request))
	if ep.Request.Instruction != "" {
		fmt.Fprintf(out, "Instruction: %s\n", ep.Request.Instruction)
	}
	if ep.RunRef != "" {
		fmt.Fprintf(out, "Run: %s\n", ep.RunRef)
	}
	if ep.Title != "" {
		fmt.Fprintf(out, "Title: %s\n", ep.Title)
	}
	if ep.Summary != "" {
		fmt.Fprintf(out, "Summary: %s\n", ep.Summary)
	}
	if ep.Audio != nil {
		fmt.Fprintf(out, "Audio: %s (%s, %d bytes)\n",
			ep.Audio.ObjectKey, time.Duration(ep.Audio.DurationSeconds)*time.Second, ep.Audio.SizeBytes)
	}
	if ep.UsageTokens > 0 {
		fmt.Fprintf(out, "Tokens: %d\n", ep.UsageTokens)
	}
	fmt.Fprintf(out, "Created: %s\n", ep.CreatedAt)
	if ep.LastHeartbeat != "" {
		fmt.Fprintf(out, "Last heartbeat: %s\n", ep.LastHeartbeat)
	}
	if showTranscript && ep.Transcript != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, ep.Transcript)
	}
}

func voices(req api.EpisodeRequest) string {
	if req.Voice2 == "" {
		return req.Voice1
	}
	return req.Voice1 + " + " + req.Voice2
}

func statsRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for key, count := range stats {
		if count > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, strconv.Itoa(stats[key])})
	}
	return rows
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
