package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicNarrator narrates with the Anthropic Messages API.
type AnthropicNarrator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicNarrator builds a narrator for model.
//
// Precondition: apiKey and model must be non-empty; maxTokens > 0.
// baseURL may be empty to use the default endpoint.
func NewAnthropicNarrator(apiKey, baseURL, model string, maxTokens int, opts ...anthropicoption.RequestOption) *AnthropicNarrator {
	all := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, anthropicoption.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	return &AnthropicNarrator{
		client:    anthropic.NewClient(all...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

func (n *AnthropicNarrator) Narrate(ctx context.Context, p Prompt) (Narration, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(n.model),
		MaxTokens: n.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}
	msg, err := n.client.Messages.New(ctx, params)
	if err != nil {
		return Narration{}, fmt.Errorf("anthropic messages: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return Narration{}, fmt.Errorf("anthropic messages: empty reply: %w", ErrUnavailable)
	}
	return SplitItems(b.String()), nil
}
