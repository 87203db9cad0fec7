package tts

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultSpeaker voices untagged transcripts.
const DefaultSpeaker = "Speaker 1"

// Turn is one contiguous passage spoken by a single speaker.
type Turn struct {
	Speaker string
	Text    string
}

var speakerTag = regexp.MustCompile(`^\s*(Speaker\s+\d+)\s*:\s*(.*)$`)

// ParseTurns splits a transcript into speaker turns. Lines without a tag
// continue the current speaker's turn.
func ParseTurns(transcript string) []Turn {
	var (
		turns   []Turn
		current *Turn
	)
	for _, line := range strings.Split(transcript, "\n") {
		if m := speakerTag.FindStringSubmatch(line); m != nil {
			speaker := strings.Join(strings.Fields(m[1]), " ")
			turns = append(turns, Turn{Speaker: speaker, Text: strings.TrimSpace(m[2])})
			current = &turns[len(turns)-1]
			continue
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if current == nil {
			turns = append(turns, Turn{Speaker: DefaultSpeaker, Text: text})
			current = &turns[len(turns)-1]
			continue
		}
		if current.Text == "" {
			current.Text = text
		} else {
			current.Text += " " + text
		}
	}

	out := turns[:0]
	for _, turn := range turns {
		if turn.Text != "" {
			out = append(out, turn)
		}
	}
	return out
}

// speakers returns the sorted speaker labels of voices.
func speakers(voices map[string]string) []string {
	labels := make([]string, 0, len(voices))
	for label := range voices {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
