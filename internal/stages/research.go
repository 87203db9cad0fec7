package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"episodegen/internal/logging"
	"episodegen/internal/ports"
	"episodegen/internal/services"
	"episodegen/internal/stage"
	"episodegen/internal/store"
)

// WebSearchTool is the tool name exposed to the research model.
const WebSearchTool = "web_search"

const defaultSearchResults = 3

// Research gathers background material for an episode.
type Research struct {
	llm    ports.LLM
	search ports.Search
	logger *slog.Logger
}

// NewResearch constructs the research stage.
func NewResearch(llm ports.LLM, search ports.Search, logger *slog.Logger) *Research {
	r := &Research{llm: llm, search: search}
	r.SetLogger(logger)
	return r
}

// SetLogger updates the stage's logging destination.
func (r *Research) SetLogger(logger *slog.Logger) {
	r.logger = logging.NewComponentLogger(logger, "research")
}

// Step identifies the stage.
func (r *Research) Step() store.Step { return store.StepResearch }

// Execute asks the model for a research brief, letting it call web_search.
func (r *Research) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	logger := logging.WithContext(ctx, r.logger)

	user, err := ResearchUserPrompt(in.Request)
	if err != nil {
		return stage.Output{}, err
	}
	var searches int
	resp, err := r.llm.Generate(ctx, ports.LLMRequest{
		System: ResearchSystemPrompt,
		User:   user,
		Tools: []ports.Tool{{
			Name:        WebSearchTool,
			Description: "Search the web for current events, unfamiliar topics, sources, and fact checks. Returns each result's URL, title, date, and an excerpt.",
			Parameters:  webSearchParameters,
			Handler: func(ctx context.Context, arguments json.RawMessage) (string, error) {
				searches++
				return r.runSearch(ctx, logger, arguments)
			},
		}},
	})
	if err != nil {
		return stage.Output{}, err
	}

	text := strings.TrimSpace(resp.Text)
	logger.Info("research completed",
		logging.String(logging.FieldEventType, "research_completed"),
		logging.Int("searches", searches),
		logging.Int("research_chars", len(text)),
		logging.Int64("prompt_tokens", resp.Usage.PromptTokens),
		logging.Int64("completion_tokens", resp.Usage.CompletionTokens),
		logging.Int64("total_tokens", resp.Usage.TotalTokens),
	)
	return stage.Output{Research: &stage.ResearchOutput{Text: text, Usage: resp.Usage}}, nil
}

var webSearchParameters = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "Specific search query.",
		},
		"num_results": map[string]any{
			"type":        "integer",
			"description": "Number of results, 1 to 10. Use 1 or 2 for quick facts and up to 10 for in-depth research.",
			"minimum":     1,
			"maximum":     10,
		},
	},
	"required":             []string{"query"},
	"additionalProperties": false,
}

type webSearchArgs struct {
	Query      string `json:"query"`
	NumResults int    `json:"num_results"`
}

func (r *Research) runSearch(ctx context.Context, logger *slog.Logger, arguments json.RawMessage) (string, error) {
	var args webSearchArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return "", services.Wrap(services.ErrExternalService, string(store.StepResearch), "web_search", "malformed tool arguments", err)
	}
	if args.NumResults <= 0 {
		args.NumResults = defaultSearchResults
	}
	docs, err := r.search.Query(ctx, args.Query, args.NumResults)
	if err != nil {
		return "", err
	}
	logger.Debug("web search",
		logging.String("query", args.Query),
		logging.Int("requested", args.NumResults),
		logging.Int("results", len(docs)),
	)
	return FormatDocuments(docs), nil
}

// FormatDocuments renders search results for the model.
func FormatDocuments(docs []ports.Document) string {
	if len(docs) == 0 {
		return "No results found."
	}
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, fmt.Sprintf("URL: %s\nTITLE: %s\nDATE: %s\nCONTENT:\n%s",
			doc.URL, doc.Title, doc.PublishedDate, strings.TrimSpace(doc.Content)))
	}
	return strings.Join(parts, "\n---\n")
}

// HealthCheck reports whether the stage's collaborators are configured.
func (r *Research) HealthCheck(context.Context) stage.Health {
	const name = "research"
	switch {
	case r.llm == nil:
		return stage.Unhealthy(name, "llm client unavailable")
	case r.search == nil:
		return stage.Unhealthy(name, "search client unavailable")
	default:
		return stage.Healthy(name)
	}
}
