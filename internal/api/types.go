package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Podcast describes a podcast in a transport-friendly format.
type Podcast struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// EpisodeRequest is the generation request of an episode.
type EpisodeRequest struct {
	PodcastID   int64  `json:"podcastId"`
	Topic       string `json:"topic"`
	Length      string `json:"length,omitempty"`
	Level       string `json:"level,omitempty"`
	Format      string `json:"format,omitempty"`
	Voice1      string `json:"voice1"`
	Voice2      string `json:"voice2,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

// EpisodeAudio references the stored audio of a completed episode.
type EpisodeAudio struct {
	ObjectKey       string `json:"objectKey"`
	DurationSeconds int    `json:"durationSeconds"`
	SizeBytes       int64  `json:"sizeBytes"`
}

// Episode describes an episode and its generation run.
type Episode struct {
	ID            int64          `json:"id"`
	PodcastID     int64          `json:"podcastId"`
	Request       EpisodeRequest `json:"request"`
	Status        string         `json:"status"`
	Step          string         `json:"step,omitempty"`
	StepLabel     string         `json:"stepLabel,omitempty"`
	RunRef        string         `json:"runRef,omitempty"`
	FailureMarker string         `json:"failureMarker,omitempty"`
	FailedStep    string         `json:"failedStep,omitempty"`
	FailureKind   string         `json:"failureKind,omitempty"`
	Title         string         `json:"title,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	Transcript    string         `json:"transcript,omitempty"`
	Audio         *EpisodeAudio  `json:"audio,omitempty"`
	UsageTokens   int64          `json:"usageTokens"`
	CreatedAt     string         `json:"createdAt,omitempty"`
	UpdatedAt     string         `json:"updatedAt,omitempty"`
	LastHeartbeat string         `json:"lastHeartbeat,omitempty"`
}

// RunHandle is returned when a run is submitted or resumed.
type RunHandle struct {
	EpisodeID int64  `json:"episodeId"`
	RunRef    string `json:"runRef"`
}

// CreatePodcastRequest is the body of POST /api/podcasts.
type CreatePodcastRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// PodcastListResponse wraps a collection of podcasts.
type PodcastListResponse struct {
	Podcasts []Podcast `json:"podcasts"`
}

// EpisodeListResponse wraps a collection of episodes.
type EpisodeListResponse struct {
	Episodes []Episode `json:"episodes"`
}

// EpisodeResponse wraps a single episode.
type EpisodeResponse struct {
	Episode Episode `json:"episode"`
}

// AudioURLResponse carries a presigned audio URL.
type AudioURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expiresInSeconds"`
}

// DeleteResponse reports whether a record was removed.
type DeleteResponse struct {
	Removed bool `json:"removed"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	RunsInFlight int            `json:"runsInFlight"`
	EpisodeStats map[string]int `json:"episodeStats"`
	StageHealth  []StageHealth  `json:"stageHealth"`
}

// DatabaseHealth mirrors store diagnostics.
type DatabaseHealth struct {
	DBPath           string   `json:"dbPath"`
	DatabaseExists   bool     `json:"databaseExists"`
	DatabaseReadable bool     `json:"databaseReadable"`
	SchemaVersion    int      `json:"schemaVersion"`
	MissingTables    []string `json:"missingTables,omitempty"`
	IntegrityCheck   bool     `json:"integrityCheck"`
	TotalEpisodes    int      `json:"totalEpisodes"`
	Error            string   `json:"error,omitempty"`
}

// Healthy reports whether the database exists, is readable, has every table
// and passed the integrity check.
func (h DatabaseHealth) Healthy() bool {
	return h.DatabaseExists && h.DatabaseReadable && h.IntegrityCheck && len(h.MissingTables) == 0
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
