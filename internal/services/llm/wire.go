package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"episodegen/internal/ports"
	"episodegen/internal/services"
)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Tools          []toolSpec      `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
}

type responseFormat struct {
	Type       string        `json:"type"`
	JSONSchema *schemaFormat `json:"json_schema,omitempty"`
}

type schemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	Refusal    string     `json:"refusal,omitempty"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage tokenUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// reply returns the first choice that carries text or tool calls.
func (r chatResponse) reply() message {
	for _, choice := range r.Choices {
		if strings.TrimSpace(choice.Message.Content) != "" || len(choice.Message.ToolCalls) > 0 {
			return choice.Message
		}
	}
	if len(r.Choices) > 0 {
		return r.Choices[0].Message
	}
	return message{}
}

func (r chatResponse) finishReason() string {
	if len(r.Choices) == 0 {
		return "no_choices"
	}
	return r.Choices[0].FinishReason
}

type tokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

func (u tokenUsage) ports() ports.Usage {
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return ports.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: total}
}

// StatusError is a non-2xx reply from the completion endpoint. It unwraps to
// the services marker that matches the status class.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: http %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized, e.Code == http.StatusForbidden:
		return services.ErrConfiguration
	case e.Code == http.StatusRequestTimeout:
		return services.ErrTimeout
	case e.temporary():
		return services.ErrTransient
	default:
		return services.ErrExternalService
	}
}

func (e *StatusError) temporary() bool {
	return e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type emptyReplyError struct {
	finishReason string
	refusal      string
}

func (e *emptyReplyError) Error() string {
	if e.refusal != "" {
		return fmt.Sprintf("llm: model refused (finish_reason=%s): %s", e.finishReason, e.refusal)
	}
	return fmt.Sprintf("llm: empty reply (finish_reason=%s)", e.finishReason)
}

func (e *emptyReplyError) Unwrap() error { return services.ErrExternalService }

// transportError wraps a failed round trip. Timeouts classify as such.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "llm: request failed: " + e.err.Error() }

func (e *transportError) Unwrap() []error {
	marker := services.ErrExternalService
	if isTimeout(e.err) {
		marker = services.ErrTimeout
	}
	return []error{marker, e.err}
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
