package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"episodegen/internal/ports"
	"episodegen/internal/services"
)

const (
	defaultEndpoint    = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 120 * time.Second
	defaultToolRounds  = 3
	maxResponseBytes   = 4 << 20
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	MaxToolRounds  int
}

// Client talks to an OpenRouter-compatible chat completion endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	backoff backoff
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetry sets the attempt budget and the exponential backoff bounds.
func WithRetry(attempts int, base, max time.Duration) Option {
	return func(c *Client) {
		c.backoff.attempts = attempts
		c.backoff.base = base
		c.backoff.max = max
	}
}

// WithSleep replaces the context-aware wait between attempts. Tests use it to
// record delays.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.backoff.sleep = sleep
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoint
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultToolRounds
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		backoff: defaultBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate runs a chat completion. Tool calls are executed through the
// request's handlers and fed back until the model answers with text or the
// round budget is spent, after which tools are disabled for a final answer.
func (c *Client) Generate(ctx context.Context, req ports.LLMRequest) (ports.LLMResponse, error) {
	conv, err := c.newConversation(req)
	if err != nil {
		return ports.LLMResponse{}, err
	}

	var total ports.Usage
	for round := 0; ; round++ {
		allowTools := round < c.cfg.MaxToolRounds
		reply, usage, err := c.complete(ctx, conv.request(allowTools))
		if err != nil {
			return ports.LLMResponse{}, err
		}
		total = total.Add(usage)

		if allowTools && conv.hasTools() && len(reply.ToolCalls) > 0 {
			if err := conv.answerToolCalls(ctx, reply); err != nil {
				return ports.LLMResponse{}, err
			}
			continue
		}
		text := strings.TrimSpace(reply.Content)
		if text == "" {
			return ports.LLMResponse{}, &emptyReplyError{finishReason: "tool_calls"}
		}
		return ports.LLMResponse{Text: text, Usage: total}, nil
	}
}

type conversation struct {
	model    string
	schema   *ports.Schema
	messages []message
	tools    []toolSpec
	handlers map[string]ports.ToolHandler
}

func (c *Client) newConversation(req ports.LLMRequest) (*conversation, error) {
	system := strings.TrimSpace(req.System)
	user := strings.TrimSpace(req.User)
	switch {
	case c.cfg.APIKey == "":
		return nil, services.Wrap(services.ErrConfiguration, "llm", "generate", "api key required", nil)
	case system == "" || user == "":
		return nil, services.Wrap(services.ErrValidation, "llm", "generate", "system and user prompts required", nil)
	}
	conv := &conversation{
		model:    c.cfg.Model,
		schema:   req.Schema,
		messages: []message{{Role: "system", Content: system}, {Role: "user", Content: user}},
		handlers: make(map[string]ports.ToolHandler, len(req.Tools)),
	}
	for _, tool := range req.Tools {
		if tool.Handler == nil {
			return nil, services.Wrap(services.ErrValidation, "llm", "generate", fmt.Sprintf("tool %q has no handler", tool.Name), nil)
		}
		conv.handlers[tool.Name] = tool.Handler
		conv.tools = append(conv.tools, toolSpec{
			Type:     "function",
			Function: toolFunction{Name: tool.Name, Description: tool.Description, Parameters: tool.Parameters},
		})
	}
	return conv, nil
}

func (conv *conversation) hasTools() bool { return len(conv.tools) > 0 }

func (conv *conversation) request(allowTools bool) chatRequest {
	req := chatRequest{Model: conv.model, Messages: conv.messages}
	if conv.schema != nil {
		req.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &schemaFormat{
				Name:   conv.schema.Name,
				Strict: true,
				Schema: conv.schema.Definition,
			},
		}
	}
	if conv.hasTools() {
		req.Tools = conv.tools
		if !allowTools {
			req.ToolChoice = "none"
		}
	}
	return req
}

func (conv *conversation) answerToolCalls(ctx context.Context, reply message) error {
	conv.messages = append(conv.messages, message{Role: "assistant", Content: reply.Content, ToolCalls: reply.ToolCalls})
	for _, call := range reply.ToolCalls {
		handler, ok := conv.handlers[call.Function.Name]
		if !ok {
			return services.Wrap(services.ErrExternalService, "llm", "tool call", fmt.Sprintf("model called unknown tool %q", call.Function.Name), nil)
		}
		result, err := handler(ctx, json.RawMessage(call.Function.Arguments))
		if err != nil {
			return fmt.Errorf("llm tool %s: %w", call.Function.Name, err)
		}
		conv.messages = append(conv.messages, message{
			Role:       "tool",
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    result,
		})
	}
	return nil
}

// complete performs one logical completion, retrying transient failures.
func (c *Client) complete(ctx context.Context, req chatRequest) (message, ports.Usage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return message{}, ports.Usage{}, fmt.Errorf("llm: encode request: %w", err)
	}
	var resp chatResponse
	err = c.backoff.run(ctx, func() error {
		r, postErr := c.post(ctx, body)
		if postErr != nil {
			return postErr
		}
		reply := r.reply()
		if strings.TrimSpace(reply.Content) == "" && len(reply.ToolCalls) == 0 {
			return &emptyReplyError{finishReason: r.finishReason(), refusal: reply.Refusal}
		}
		resp = r
		return nil
	})
	if err != nil {
		return message{}, ports.Usage{}, err
	}
	return resp.reply(), resp.Usage.ports(), nil
}

func (c *Client) post(ctx context.Context, body []byte) (chatResponse, error) {
	var out chatResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return out, &transportError{err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return out, &transportError{err: err}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return out, &StatusError{
			Code:       resp.StatusCode,
			Body:       snippet(string(data)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, services.Wrap(services.ErrExternalService, "llm", "decode response", snippet(string(data)), err)
	}
	if out.Error != nil {
		return out, services.Wrap(services.ErrExternalService, "llm", "api error", out.Error.Message, nil)
	}
	return out, nil
}
