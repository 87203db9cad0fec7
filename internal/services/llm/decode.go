package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals a model reply into target. Replies wrapped in a
// markdown fence or surrounded by prose are unwrapped first.
func DecodeJSON(content string, target any) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(text), target)
	if err == nil {
		return nil
	}
	if inner := extractJSON(text); inner != "" && inner != text {
		if err = json.Unmarshal([]byte(inner), target); err == nil {
			return nil
		}
		text = inner
	}
	return fmt.Errorf("%w (payload: %s)", err, snippet(text))
}

func extractJSON(text string) string {
	if _, fenced, ok := strings.Cut(text, "```"); ok {
		fenced = strings.TrimLeft(fenced, " \t")
		if len(fenced) >= 4 && strings.EqualFold(fenced[:4], "json") {
			fenced = fenced[4:]
		}
		body, _, _ := strings.Cut(fenced, "```")
		text = strings.TrimSpace(body)
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}

// snippet collapses whitespace and truncates s for error messages.
func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "<empty>"
	}
	if runes := []rune(s); len(runes) > 160 {
		return string(runes[:160]) + "..."
	}
	return s
}
