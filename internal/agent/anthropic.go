package agent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/types"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
	maxRetries       = 3
)

const planSystemPrompt = "You write implementation plans for software tickets. " +
	"Answer in markdown with sections Approach, Files, Tests and Risks. Be concrete and brief."

var planPromptTemplate = template.Must(template.New("plan").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(`Ticket {{.ID}}: {{.Summary}}
{{- if .Area}}
Area: {{.Area}}{{end}}
{{- if .Workstream}}
Workstream: {{.Workstream}}{{end}}
Priority: {{.Priority}}
{{- if .BlockedBy}}
Builds on: {{join .BlockedBy ", "}}{{end}}

Write the implementation plan for this ticket.`))

// AnthropicPlanner asks the Anthropic Messages API for a plan and writes the
// answer to the plans directory.
type AnthropicPlanner struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	plansDir  string
}

// AnthropicOption configures an AnthropicPlanner.
type AnthropicOption func(*anthropicOptions)

type anthropicOptions struct {
	apiKey    string
	model     string
	maxTokens int
	client    []option.RequestOption
}

// WithModel selects the model.
func WithModel(model string) AnthropicOption {
	return func(o *anthropicOptions) { o.model = model }
}

// WithMaxTokens caps the plan length.
func WithMaxTokens(n int) AnthropicOption {
	return func(o *anthropicOptions) { o.maxTokens = n }
}

// WithAPIKey sets the key instead of reading ANTHROPIC_API_KEY.
func WithAPIKey(key string) AnthropicOption {
	return func(o *anthropicOptions) { o.apiKey = key }
}

// WithRequestOptions passes raw SDK options (base URL, HTTP client, retries).
func WithRequestOptions(opts ...option.RequestOption) AnthropicOption {
	return func(o *anthropicOptions) { o.client = append(o.client, opts...) }
}

// NewAnthropicPlanner creates a planner writing plans under plansDir.
func NewAnthropicPlanner(plansDir string, opts ...AnthropicOption) (*AnthropicPlanner, error) {
	o := anthropicOptions{
		apiKey:    os.Getenv("ANTHROPIC_API_KEY"),
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ErrNotConfigured)
	}
	if o.maxTokens <= 0 {
		o.maxTokens = defaultMaxTokens
	}

	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(o.apiKey),
		option.WithMaxRetries(maxRetries),
	}, o.client...)

	return &AnthropicPlanner{
		client:    anthropic.NewClient(reqOpts...),
		model:     o.model,
		maxTokens: int64(o.maxTokens),
		plansDir:  plansDir,
	}, nil
}

// Plan requests a plan for t and stores it at PlanPath(plansDir, t.ID).
func (p *AnthropicPlanner) Plan(ctx context.Context, t *types.Ticket) (PlanResult, error) {
	prompt, err := renderPlanPrompt(t)
	if err != nil {
		return PlanResult{}, err
	}

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: planSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return PlanResult{}, fmt.Errorf("planning request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return PlanResult{}, fmt.Errorf("planning response for %s had no text", t.ID)
	}

	path := PlanPath(p.plansDir, t.ID)
	if err := writePlan(path, text.String()); err != nil {
		return PlanResult{}, err
	}
	return PlanResult{Artifact: path}, nil
}

func renderPlanPrompt(t *types.Ticket) (string, error) {
	var buf bytes.Buffer
	if err := planPromptTemplate.Execute(&buf, t); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
