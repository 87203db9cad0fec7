package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"episodegen/internal/ports"
	"episodegen/internal/services"
	"episodegen/internal/store"
)

// Stage describes one step of the generation chain. Execute must not write to
// the store; the controller persists the output's effects.
type Stage interface {
	Step() store.Step
	Execute(ctx context.Context, in Input) (Output, error)
	HealthCheck(ctx context.Context) Health
}

// LoggerAware is implemented by stages that accept a run-scoped logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// ResearchOutput is the free-text research material.
type ResearchOutput struct {
	Text  string
	Usage ports.Usage
}

// ComposeOutput is the structured script.
type ComposeOutput struct {
	Title      string
	Summary    string
	Transcript string
	Usage      ports.Usage
}

// VoiceOutput references the stored audio.
type VoiceOutput struct {
	ObjectKey       string
	DurationSeconds int
	SizeBytes       int64
}

// Input is what a stage sees: the immutable request plus every prior output.
type Input struct {
	EpisodeID int64
	Request   store.Request
	Research  ResearchOutput
	Compose   ComposeOutput
}

// PodcastID returns the owning podcast.
func (in Input) PodcastID() int64 {
	return in.Request.PodcastID
}

// Ready reports whether the predecessor of step has produced its output.
func (in Input) Ready(step store.Step) error {
	switch step {
	case store.StepResearch:
		return nil
	case store.StepCompose:
		if strings.TrimSpace(in.Research.Text) == "" {
			return services.Wrap(services.ErrValidation, string(step), "prerequisite", "research output missing", nil)
		}
	case store.StepVoice:
		if strings.TrimSpace(in.Compose.Transcript) == "" {
			return services.Wrap(services.ErrValidation, string(step), "prerequisite", "transcript missing", nil)
		}
	default:
		return fmt.Errorf("unknown step %q", step)
	}
	return nil
}

// Output holds exactly one stage result.
type Output struct {
	Research *ResearchOutput
	Compose  *ComposeOutput
	Voice    *VoiceOutput
}

// Effects converts the output into the durable writes the store applies.
func (o Output) Effects() store.Effects {
	var effects store.Effects
	if o.Research != nil {
		effects.ResearchText = o.Research.Text
		effects.UsageTokens += o.Research.Usage.TotalTokens
	}
	if o.Compose != nil {
		effects.Content = &store.Content{
			Title:      o.Compose.Title,
			Summary:    o.Compose.Summary,
			Transcript: o.Compose.Transcript,
		}
		effects.UsageTokens += o.Compose.Usage.TotalTokens
	}
	if o.Voice != nil {
		effects.Audio = &store.Audio{
			ObjectKey:       o.Voice.ObjectKey,
			DurationSeconds: o.Voice.DurationSeconds,
			SizeBytes:       o.Voice.SizeBytes,
		}
	}
	return effects
}

// Check verifies that the output belongs to step and is non-empty.
func (o Output) Check(step store.Step) error {
	if err := o.Effects().Check(step); err != nil {
		return services.Wrap(services.ErrValidation, string(step), "effects", "stage produced another stage's artifact", err)
	}
	var present bool
	switch step {
	case store.StepResearch:
		present = o.Research != nil && strings.TrimSpace(o.Research.Text) != ""
	case store.StepCompose:
		present = o.Compose != nil && strings.TrimSpace(o.Compose.Transcript) != ""
	case store.StepVoice:
		present = o.Voice != nil && o.Voice.ObjectKey != ""
	}
	if !present {
		return services.Wrap(services.ErrExternalService, string(step), "output", "stage returned no result", nil)
	}
	return nil
}

// Apply folds a stage output into the next stage's input.
func (in Input) Apply(o Output) Input {
	if o.Research != nil {
		in.Research = *o.Research
	}
	if o.Compose != nil {
		in.Compose = *o.Compose
	}
	return in
}
