package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmBackend implements Backend over a remote provider via gollm. Remote
// providers keep no server-side inference state between requests, so ClearSlot
// does nothing; context isolation still holds because every Complete rebuilds
// the prompt from the transcript it is given.
type GollmBackend struct {
	provider      string
	llm           gollm.LLM
	contextWindow int
	retry         RetryPolicy
}

// GollmOption configures a GollmBackend.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey        string
	model         string
	maxTokens     int
	temperature   float64
	contextWindow int
	retry         RetryPolicy
}

// WithAPIKey sets the API key. When empty, gollm reads it from the provider's
// environment variable.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// WithModel sets the model identifier.
func WithModel(model string) GollmOption {
	return func(c *gollmConfig) { c.model = model }
}

// WithContextWindow sets the advertised context window in tokens.
func WithContextWindow(n int) GollmOption {
	return func(c *gollmConfig) { c.contextWindow = n }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) GollmOption {
	return func(c *gollmConfig) { c.retry = p }
}

// NewGollmBackend creates a backend for the given provider ("openai",
// "anthropic", ...).
func NewGollmBackend(provider string, opts ...GollmOption) (*GollmBackend, error) {
	cfg := &gollmConfig{
		maxTokens:     4096,
		temperature:   0.7,
		contextWindow: 128000,
		retry:         DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are handled here
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}

	instance, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmBackend{
		provider:      provider,
		llm:           instance,
		contextWindow: cfg.contextWindow,
		retry:         cfg.retry,
	}, nil
}

// Provider returns the provider identifier.
func (b *GollmBackend) Provider() string { return b.provider }

// ContextWindow returns the advertised context size in tokens.
func (b *GollmBackend) ContextWindow() int { return b.contextWindow }

// ClearSlot is a no-op for remote providers; the transcript is resent in full
// on every Complete.
func (b *GollmBackend) ClearSlot() {}

// Complete sends the transcript to the provider and parses the reply into an
// assistant message, extracting any embedded tool calls.
func (b *GollmBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	prompt := b.translateRequest(req)

	text, err := Retry(ctx, b.retry, func(ctx context.Context) (string, error) {
		out, genErr := b.llm.Generate(ctx, prompt)
		if genErr != nil {
			return "", classifyError(b.provider, genErr)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return b.buildCompletion(req, text), nil
}

// translateRequest converts a Request into a gollm Prompt. System messages
// become the system prompt; everything else is flattened into the user prompt
// with role markers, since gollm's prompt model is not multi-turn.
func (b *GollmBackend) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.Content + "\n"
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, fmt.Sprintf("[Tool Call %s]: %s(%s)", tc.ID, tc.Function.Name, tc.Function.Arguments))
			}
		case RoleTool:
			parts = append(parts, "[Tool Result "+msg.ToolCallID+"]: "+msg.Content)
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}

	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		promptOpts = append(promptOpts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// buildCompletion constructs a Completion from generated text, splitting out
// any tool calls the model embedded in the reply.
func (b *GollmBackend) buildCompletion(req Request, text string) *Completion {
	calls := parseEmbeddedToolCalls(text)
	content := text
	if len(calls) > 0 {
		content = stripToolCallJSON(text)
	}

	inputTokens := 0
	for _, msg := range req.Messages {
		inputTokens += len(msg.Content) / 4
	}

	return &Completion{
		Message: Message{
			Role:      RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		},
		Timings: Timings{
			// Providers do not expose llama-server style timings; estimate
			// token counts from text length.
			PromptN:    inputTokens,
			PredictedN: len(text) / 4,
		},
	}
}

// parseEmbeddedToolCalls extracts tool calls the model emitted as JSON in the
// response text. Handles both {"tool_calls": [...]} objects and bare
// [{"name": ..., "arguments": ...}] arrays.
func parseEmbeddedToolCalls(text string) []ToolCall {
	type rawCall struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	var raw []rawCall

	if start := strings.Index(text, `{"tool_calls"`); start != -1 {
		var wrapper struct {
			ToolCalls []rawCall `json:"tool_calls"`
		}
		if err := json.Unmarshal([]byte(text[start:]), &wrapper); err == nil {
			raw = wrapper.ToolCalls
		}
	} else if start := strings.Index(text, `[{"name"`); start != -1 {
		if err := json.Unmarshal([]byte(text[start:]), &raw); err != nil {
			raw = nil
		}
	}

	calls := make([]ToolCall, 0, len(raw))
	for _, rc := range raw {
		if rc.Name == "" {
			continue
		}
		calls = append(calls, ToolCall{
			ID: "call_" + uuid.NewString()[:8],
			Function: FunctionCall{
				Name:      rc.Name,
				Arguments: string(rc.Arguments),
			},
		})
	}
	return calls
}

// stripToolCallJSON removes the parsed tool-call JSON from the reply text.
func stripToolCallJSON(text string) string {
	for _, marker := range []string{`{"tool_calls"`, `[{"name"`} {
		if idx := strings.Index(text, marker); idx != -1 {
			text = strings.TrimSpace(text[:idx])
		}
	}
	return text
}
