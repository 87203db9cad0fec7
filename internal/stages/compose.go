package stages

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"episodegen/internal/logging"
	"episodegen/internal/ports"
	"episodegen/internal/services"
	"episodegen/internal/services/llm"
	"episodegen/internal/stage"
	"episodegen/internal/store"
)

//go:embed compose_schema.json
var composeSchemaJSON []byte

const composeSchemaURL = "compose_schema.json"

// Script is the structured response the compose model must return.
type Script struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Script  string `json:"script"`
}

// Compose writes the episode title, summary, and script.
type Compose struct {
	llm       ports.LLM
	schema    *jsonschema.Schema
	reqSchema *ports.Schema
	logger    *slog.Logger
}

// NewCompose constructs the compose stage and compiles the response schema.
func NewCompose(client ports.LLM, logger *slog.Logger) (*Compose, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(composeSchemaURL, bytes.NewReader(composeSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add compose schema: %w", err)
	}
	schema, err := compiler.Compile(composeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile compose schema: %w", err)
	}
	var definition map[string]any
	if err := json.Unmarshal(composeSchemaJSON, &definition); err != nil {
		return nil, fmt.Errorf("decode compose schema: %w", err)
	}
	c := &Compose{
		llm:       client,
		schema:    schema,
		reqSchema: &ports.Schema{Name: "episode_script", Definition: definition},
	}
	c.SetLogger(logger)
	return c, nil
}

// SetLogger updates the stage's logging destination.
func (c *Compose) SetLogger(logger *slog.Logger) {
	c.logger = logging.NewComponentLogger(logger, "compose")
}

// Step identifies the stage.
func (c *Compose) Step() store.Step { return store.StepCompose }

// Execute generates the script from the research brief. A response that does
// not satisfy the schema fails the stage without retrying.
func (c *Compose) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	logger := logging.WithContext(ctx, c.logger)

	user, err := ComposeUserPrompt(in.Request, in.Research.Text)
	if err != nil {
		return stage.Output{}, err
	}
	resp, err := c.llm.Generate(ctx, ports.LLMRequest{
		System: ComposeSystemPrompt,
		User:   user,
		Schema: c.reqSchema,
	})
	if err != nil {
		return stage.Output{}, err
	}

	script, err := c.decode(resp.Text)
	if err != nil {
		return stage.Output{}, err
	}
	logger.Info("script composed",
		logging.String(logging.FieldEventType, "compose_completed"),
		logging.String("title", script.Title),
		logging.Int("script_chars", len(script.Script)),
		logging.Int64("prompt_tokens", resp.Usage.PromptTokens),
		logging.Int64("completion_tokens", resp.Usage.CompletionTokens),
		logging.Int64("total_tokens", resp.Usage.TotalTokens),
	)
	return stage.Output{Compose: &stage.ComposeOutput{
		Title:      script.Title,
		Summary:    script.Summary,
		Transcript: script.Script,
		Usage:      resp.Usage,
	}}, nil
}

func (c *Compose) decode(text string) (Script, error) {
	const op = "schema"
	var raw any
	if err := llm.DecodeJSON(text, &raw); err != nil {
		return Script{}, services.Wrap(services.ErrExternalService, string(store.StepCompose), op, "response is not json", err)
	}
	if err := c.schema.Validate(raw); err != nil {
		return Script{}, services.Wrap(services.ErrExternalService, string(store.StepCompose), op, "response violates schema", err)
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return Script{}, fmt.Errorf("re-encode script: %w", err)
	}
	var script Script
	if err := json.Unmarshal(normalized, &script); err != nil {
		return Script{}, fmt.Errorf("decode script: %w", err)
	}
	script.Title = strings.TrimSpace(script.Title)
	script.Summary = strings.TrimSpace(script.Summary)
	script.Script = strings.TrimSpace(script.Script)
	if script.Title == "" || script.Summary == "" || script.Script == "" {
		return Script{}, services.Wrap(services.ErrExternalService, string(store.StepCompose), op, "response has blank fields", nil)
	}
	return script, nil
}

// HealthCheck reports whether the stage can run.
func (c *Compose) HealthCheck(context.Context) stage.Health {
	if c.llm == nil {
		return stage.Unhealthy("compose", "llm client unavailable")
	}
	return stage.Healthy("compose")
}
