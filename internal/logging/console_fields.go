package logging

import (
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type infoField struct {
	label string
	value string
}

// Keys listed here are printed first, in this order, on INFO and above.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	"status",
	"step",
	"topic",
	"title",
	FieldErrorKind,
	"error",
	FieldErrorHint,
	FieldImpact,
	"stage_duration",
	"duration_seconds",
	"audio_bytes",
	"object_key",
	"total_tokens",
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
func selectInfoFields(attrs []kv) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, len(attrs))
	hidden := 0

	consider := func(idx int) {
		attr := attrs[idx]
		used[idx] = true
		if skipInfoKey(attr.key) {
			return
		}
		if isDebugOnlyKey(attr.key) {
			hidden++
			return
		}
		value := formatValueForKey(attr.key, attr.value)
		if len(value) > 160 && attr.key != "error" {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(attr.key), value: value})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				consider(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			consider(idx)
		}
	}
	return result, hidden
}

func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}
	if strings.HasSuffix(key, "_bytes") && v.Kind() == slog.KindInt64 {
		return formatBytes(v.Int64())
	}
	value := formatValue(v)
	if key == "error" && len(value) > 200 {
		value = value[:200] + "…"
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldEpisodeID, FieldStage, FieldComponent:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case FieldCorrelationID, FieldRunRef, "prompt_tokens", "completion_tokens", "sample_rate", "channels":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_url")
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorKind:
		return "Error Kind"
	case FieldErrorHint:
		return "Hint"
	case "stage_duration":
		return "Duration"
	case "duration_seconds":
		return "Audio Length"
	case "audio_bytes":
		return "Audio Size"
	case "object_key":
		return "Object"
	case "total_tokens":
		return "Tokens"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}
