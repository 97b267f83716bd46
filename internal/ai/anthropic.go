package ai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// ProviderAnthropic is the provider name recorded on AI analyses
	ProviderAnthropic = "anthropic"

	// DefaultModel is used when no model is configured
	DefaultModel = "claude-sonnet-4-5-20250929"

	defaultMaxTokens int64 = 2048
)

// AnthropicConfig holds adapter configuration
type AnthropicConfig struct {
	APIKey    string // Falls back to ANTHROPIC_API_KEY
	BaseURL   string // Optional, for proxies and tests
	MaxTokens int64  // Default: 2048
}

// Anthropic implements Client with the Anthropic Messages API
type Anthropic struct {
	client    *anthropic.Client
	maxTokens int64
}

// Compile-time check that Anthropic implements Client
var _ Client = (*Anthropic)(nil)

// NewAnthropic creates the adapter
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Guarded and the remediation layer own retry policy
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, maxTokens: maxTokens}, nil
}

// Chat sends a non-streamed Messages request. System messages are folded
// into the system prompt.
func (a *Anthropic) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(opts.Temperature),
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(params.Messages) == 0 {
		return nil, fmt.Errorf("at least one user message is required")
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &ChatResponse{
		Content:      text.String(),
		Model:        string(resp.Model),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// ListModels returns the model IDs available to the API key
func (a *Anthropic) ListModels(ctx context.Context) ([]string, error) {
	page, err := a.client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(100)})
	if err != nil {
		return nil, fmt.Errorf("anthropic list models failed: %w", err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
