package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of an episode generation run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusActive,
	StatusCompleted,
	StatusCancelled,
	StatusFailed,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a known status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status absorbs further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// OngoingStatuses are the statuses shown in the "ongoing" listing.
var OngoingStatuses = []Status{StatusPending, StatusActive}

var liveStatuses = []Status{StatusPending, StatusActive}

// Step identifies the pipeline stage an active run is executing. The zero
// value means no stage is in flight.
type Step string

const (
	StepNone     Step = ""
	StepResearch Step = "research"
	StepCompose  Step = "compose"
	StepVoice    Step = "voice"
)

// Steps lists the pipeline stages in execution order.
var Steps = []Step{StepResearch, StepCompose, StepVoice}

// Next returns the stage that follows s, or StepNone after the last stage.
func (s Step) Next() Step {
	for i, step := range Steps {
		if step == s && i+1 < len(Steps) {
			return Steps[i+1]
		}
	}
	return StepNone
}

// ParseStep converts a string into a known step.
func ParseStep(value string) (Step, bool) {
	normalized := Step(strings.ToLower(strings.TrimSpace(value)))
	if normalized == StepNone {
		return StepNone, true
	}
	for _, step := range Steps {
		if step == normalized {
			return step, true
		}
	}
	return "", false
}

// Length selects the target episode length.
type Length string

const (
	LengthShort Length = "short"
	LengthLong  Length = "long"
)

// Level selects the assumed listener familiarity with the topic.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Format selects the episode style.
type Format string

const (
	FormatInterview    Format = "interview"
	FormatConversation Format = "conversation"
	FormatStory        Format = "story"
	FormatAnalysis     Format = "analysis"
)

// SpeakerCount returns how many voices the format uses.
func (f Format) SpeakerCount() int {
	switch f {
	case FormatInterview, FormatConversation:
		return 2
	default:
		return 1
	}
}

// Personas are the selectable host voices.
var Personas = []string{"maya", "jake", "sofia", "alex"}

// ErrInvalidRequest tags request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// Request captures a user's generation request. It is immutable after the
// episode is created.
type Request struct {
	PodcastID   int64
	Topic       string
	Length      Length
	Level       Level
	Format      Format
	Voice1      string
	Voice2      string
	Instruction string
}

// Normalize trims and lowercases enum fields and applies defaults.
func (r *Request) Normalize() {
	r.Topic = strings.TrimSpace(r.Topic)
	r.Length = Length(strings.ToLower(strings.TrimSpace(string(r.Length))))
	if r.Length == "" {
		r.Length = LengthShort
	}
	r.Level = Level(strings.ToLower(strings.TrimSpace(string(r.Level))))
	if r.Level == "" {
		r.Level = LevelIntermediate
	}
	r.Format = Format(strings.ToLower(strings.TrimSpace(string(r.Format))))
	if r.Format == "" {
		r.Format = FormatConversation
	}
	r.Voice1 = strings.ToLower(strings.TrimSpace(r.Voice1))
	r.Voice2 = strings.ToLower(strings.TrimSpace(r.Voice2))
	if r.Format.SpeakerCount() < 2 {
		r.Voice2 = ""
	}
	r.Instruction = strings.TrimSpace(r.Instruction)
}

// Validate reports the first invalid field.
func (r Request) Validate() error {
	if r.PodcastID <= 0 {
		return fmt.Errorf("%w: podcast id is required", ErrInvalidRequest)
	}
	if r.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	switch r.Length {
	case LengthShort, LengthLong:
	default:
		return fmt.Errorf("%w: length %q must be short or long", ErrInvalidRequest, r.Length)
	}
	switch r.Level {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
	default:
		return fmt.Errorf("%w: level %q must be beginner, intermediate, or advanced", ErrInvalidRequest, r.Level)
	}
	switch r.Format {
	case FormatInterview, FormatConversation, FormatStory, FormatAnalysis:
	default:
		return fmt.Errorf("%w: format %q is not supported", ErrInvalidRequest, r.Format)
	}
	if !isPersona(r.Voice1) {
		return fmt.Errorf("%w: voice1 %q must be one of %s", ErrInvalidRequest, r.Voice1, strings.Join(Personas, ", "))
	}
	if r.Voice2 != "" && !isPersona(r.Voice2) {
		return fmt.Errorf("%w: voice2 %q must be one of %s", ErrInvalidRequest, r.Voice2, strings.Join(Personas, ", "))
	}
	return nil
}

func isPersona(value string) bool {
	for _, persona := range Personas {
		if persona == value {
			return true
		}
	}
	return false
}

// Podcast is the parent entity that owns episodes.
type Podcast struct {
	ID          int64
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Content holds the composed title, summary, and transcript of an episode.
type Content struct {
	EpisodeID  int64
	Title      string
	Summary    string
	Transcript string
	CreatedAt  time.Time
}

// Audio describes the stored, encoded episode audio.
type Audio struct {
	EpisodeID       int64
	ObjectKey       string
	DurationSeconds int
	SizeBytes       int64
	CreatedAt       time.Time
}

// Episode is a generation run together with its request and artifacts.
type Episode struct {
	ID            int64
	Request       Request
	Status        Status
	Step          Step
	RunRef        string
	ResearchText  string
	UsageTokens   int64
	FailureMarker string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time

	Content *Content
	Audio   *Audio
}

// PodcastID returns the owning podcast identifier.
func (e *Episode) PodcastID() int64 {
	if e == nil {
		return 0
	}
	return e.Request.PodcastID
}

// Effects carries the durable side effect a stage is allowed to persist when
// it advances the run. Only the field matching the completing stage may be set.
type Effects struct {
	ResearchText string
	Content      *Content
	Audio        *Audio
	UsageTokens  int64
}

// ErrEffectNotAllowed reports a stage attempting to persist another stage's artifact.
var ErrEffectNotAllowed = errors.New("effect not allowed for stage")

// Check verifies that only the artifact owned by step is present.
func (e Effects) Check(step Step) error {
	if e.ResearchText != "" && step != StepResearch {
		return fmt.Errorf("%w: %s cannot write research notes", ErrEffectNotAllowed, step)
	}
	if e.Content != nil && step != StepCompose {
		return fmt.Errorf("%w: %s cannot write content", ErrEffectNotAllowed, step)
	}
	if e.Audio != nil && step != StepVoice {
		return fmt.Errorf("%w: %s cannot write audio", ErrEffectNotAllowed, step)
	}
	return nil
}

// ErrPodcastNotFound is returned when an episode references a missing podcast.
var ErrPodcastNotFound = errors.New("podcast not found")

// ListFilter narrows episode listings.
type ListFilter struct {
	PodcastID int64
	Statuses  []Status
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	IntegrityCheck   bool
	TotalEpisodes    int
	Error            string
}
