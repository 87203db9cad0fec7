package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"episodegen/internal/services"
	"episodegen/internal/store"
)

// StageLabel returns the human-readable name of a step ("Research").
func StageLabel(step store.Step) string {
	if step == store.StepNone {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(step), "_", " "))
}

// FailureMarker builds the short failure marker persisted on a failed run:
// failed:<step>:<kind>. Error text is never stored.
func FailureMarker(step store.Step, err error) string {
	name := string(step)
	if name == "" {
		name = "pipeline"
	}
	kind := services.Kind(err)
	if kind == "" {
		kind = "internal"
	}
	return fmt.Sprintf("failed:%s:%s", name, kind)
}

// ParseFailureMarker splits a marker into its step and kind.
func ParseFailureMarker(marker string) (step, kind string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(marker), ":", 3)
	if len(parts) != 3 || parts[0] != "failed" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func errorHint(kind string) string {
	switch kind {
	case "timeout":
		return "voice synthesis exceeded pipeline.voice_timeout_seconds; check the TTS provider"
	case "empty_audio":
		return "the TTS provider returned no audio for the transcript"
	case "external_service":
		return "check provider status and API keys"
	case "configuration":
		return "check credentials and provider settings in config.toml"
	case "validation":
		return "a prior stage output is missing; start a new episode"
	case "not_found":
		return "the episode or podcast was removed while generating"
	default:
		return "check logs for details"
	}
}
