package ports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"episodegen/internal/audio"
)

// Usage reports token consumption for one or more model calls.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// ToolHandler executes a tool call with the model-supplied JSON arguments and
// returns the text fed back to the model.
type ToolHandler func(ctx context.Context, arguments json.RawMessage) (string, error)

// Tool is a function the model may call while generating.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     ToolHandler
}

// Schema constrains the model to a JSON object.
type Schema struct {
	Name       string
	Definition map[string]any
}

// LLMRequest is a single generation request.
type LLMRequest struct {
	System string
	User   string
	Tools  []Tool
	Schema *Schema
}

// LLMResponse is the final model text plus usage across all tool rounds.
type LLMResponse struct {
	Text  string
	Usage Usage
}

// LLM generates text, optionally calling tools or honouring a response schema.
type LLM interface {
	Generate(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// Document is one ranked search result.
type Document struct {
	URL           string
	Title         string
	PublishedDate string
	Content       string
}

// Search queries the web.
type Search interface {
	Query(ctx context.Context, text string, maxResults int) ([]Document, error)
}

// SpeechAudio is raw PCM returned by a speech provider.
type SpeechAudio struct {
	PCM    []byte
	Format audio.Format
}

// TTS renders a transcript with the given speaker label to voice mapping.
type TTS interface {
	Synthesize(ctx context.Context, transcript string, voices map[string]string) (SpeechAudio, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobStore is object storage for finished audio. Stat returns an error
// marked services.ErrNotFound when the object does not exist.
type BlobStore interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	PresignedGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
}

// Job is the body of a submitted run.
type Job func(ctx context.Context) error

// ErrRunNotFound is returned by Cancel when no run with the reference is in flight.
var ErrRunNotFound = errors.New("run not found")

// RunExecutor runs jobs asynchronously and cancels them by reference.
type RunExecutor interface {
	Submit(ctx context.Context, job Job) (string, error)
	Cancel(ctx context.Context, runRef string) error
}
