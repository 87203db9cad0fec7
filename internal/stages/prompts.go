package stages

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"episodegen/internal/store"
)

// ResearchSystemPrompt instructs the model to build a research brief.
const ResearchSystemPrompt = `You prepare research briefs for podcast episodes. Each request names a topic, a target length, a format, and an optional instruction from the listener.

Use the web_search tool before writing anything. Search once for familiar or simple topics and up to three times for unfamiliar or complex ones.

Lengths:
- short: highlights only, roughly 3 to 5 minutes of audio
- long: an in-depth treatment, roughly 8 to 10 minutes of audio

Formats:
- interview: questions and answers that dig into the subject
- conversation: a relaxed exchange between two friends
- story: a narrative told from beginning to end
- analysis: an expert breakdown of the subject

Write the brief with these parts:
1. Overview: what the brief covers and how it fits the request.
2. Hook: one or two reasons a listener should care.
3. Sections: two or three for short episodes, five or six for long ones.
4. Key moments: three to five surprising or memorable facts.
5. Takeaways: one to three closing ideas.
6. Sources: three to five credible sources you relied on.

Rules:
- Be accurate. Prefer facts you found over facts you remember.
- Start directly with the brief. No preamble about what you are about to write.
- Provide research only, never the script.
- Lean toward what the format needs: debate points and expert quotes for interviews, relatable examples for conversations, characters and chronology for stories, data and frameworks for analysis.`

// ComposeSystemPrompt instructs the model to write the final script.
const ComposeSystemPrompt = `You are a podcast scriptwriter. From a research brief and the original request, write an episode title, a summary, and a complete script.

Lengths:
- short: about 600 to 900 words
- long: about 1500 to 1800 words

Speakers:
- interview and conversation use two speakers. Tag every turn with "Speaker 1:" or "Speaker 2:" at the start of a line.
- story and analysis use one narrator. Do not tag lines.

Respond with a JSON object holding exactly these fields:
- title: short and specific to the episode
- summary: one paragraph that makes a listener curious without giving away the conclusions
- script: the full spoken text

Script rules:
- Only spoken words. No headings, stage notes, music cues, or sound effects. The cues [chuckle] and [laugh] are allowed where a real person would react, and [laugh] should be rare.
- Open strongly and end on something the listener will remember.
- Write for the ear. Vary sentence length and let punctuation carry the pacing.
- Match the register to the format: crisp for interviews, loose for conversations.
- Let each speaker's character show in word choice and reactions. When both speakers share a character, separate them by what they know and care about.
- interview: Speaker 1 asks and follows up, Speaker 2 explains.
- conversation: both speakers discover the topic together and may disagree.
- story: a clear arc with vivid description.
- analysis: break the topic into parts and connect them.
- Word counts are guides. Finish the episode naturally.`

var researchUserTemplate = template.Must(template.New("research").Parse(`Prepare a research brief for this episode request.

Topic: {{.Topic}}
Length: {{.Length}}
Level: {{.Level}}
Format: {{.Format}}
Instruction: {{.Instruction}}
`))

var composeUserTemplate = template.Must(template.New("compose").Parse(`Write the title, summary, and script for this request using the research brief below.

Request:
- Topic: {{.Topic}}
- Length: {{.Length}}
- Level: {{.Level}}
- Format: {{.Format}}
- Speaker 1: {{.Character1}}
{{- if .Character2}}
- Speaker 2: {{.Character2}}
{{- end}}
- Instruction: {{.Instruction}}

Research brief:
{{.Research}}
`))

var characters = map[string]string{
	"maya":  "Bright and upbeat, quick to find what is exciting about a topic",
	"jake":  "Jokes easily, pokes at assumptions, playfully sarcastic",
	"sofia": "Reflective storyteller who connects details to bigger questions",
	"alex":  "Direct and plainspoken, cuts straight to what matters",
}

const defaultCharacter = "Natural and conversational"

// Character describes a persona for the script writer.
func Character(persona string) string {
	if description, ok := characters[strings.ToLower(strings.TrimSpace(persona))]; ok {
		return description
	}
	return defaultCharacter
}

type promptData struct {
	Topic       string
	Length      store.Length
	Level       store.Level
	Format      store.Format
	Instruction string
	Character1  string
	Character2  string
	Research    string
}

func newPromptData(req store.Request) promptData {
	instruction := req.Instruction
	if instruction == "" {
		instruction = "None"
	}
	data := promptData{
		Topic:       req.Topic,
		Length:      req.Length,
		Level:       req.Level,
		Format:      req.Format,
		Instruction: instruction,
		Character1:  Character(req.Voice1),
	}
	if req.Format.SpeakerCount() > 1 {
		data.Character2 = Character(req.Voice2)
	}
	return data
}

// ResearchUserPrompt renders the research request.
func ResearchUserPrompt(req store.Request) (string, error) {
	return render(researchUserTemplate, newPromptData(req))
}

// ComposeUserPrompt renders the compose request with the research brief.
func ComposeUserPrompt(req store.Request, research string) (string, error) {
	data := newPromptData(req)
	data.Research = strings.TrimSpace(research)
	return render(composeUserTemplate, data)
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
