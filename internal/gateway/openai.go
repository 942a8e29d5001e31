package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
)

func openaiClient(apiKey, baseURL string, opts []openaioption.RequestOption) openai.Client {
	all := []openaioption.RequestOption{openaioption.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, openaioption.WithBaseURL(baseURL))
	}
	return openai.NewClient(append(all, opts...)...)
}

// OpenAINarrator narrates with an OpenAI-compatible chat completions API,
// including routers such as OpenRouter selected through baseURL.
type OpenAINarrator struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// NewOpenAINarrator builds a narrator for model.
//
// Precondition: apiKey and model must be non-empty; maxTokens > 0.
func NewOpenAINarrator(apiKey, baseURL, model string, maxTokens int, opts ...openaioption.RequestOption) *OpenAINarrator {
	return &OpenAINarrator{
		client:    openaiClient(apiKey, baseURL, opts),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

func (n *OpenAINarrator) Narrate(ctx context.Context, p Prompt) (Narration, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if p.System != "" {
		msgs = append(msgs, openai.SystemMessage(p.System))
	}
	msgs = append(msgs, openai.UserMessage(p.User))

	resp, err := n.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(n.model),
		Messages:  msgs,
		MaxTokens: openai.Int(n.maxTokens),
	})
	if err != nil {
		return Narration{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Narration{}, fmt.Errorf("openai chat completion: empty reply: %w", ErrUnavailable)
	}
	return SplitItems(resp.Choices[0].Message.Content), nil
}

// OpenAIImager generates images with an OpenAI-compatible images API.
type OpenAIImager struct {
	client openai.Client
	model  string
	sizes  map[Kind]string
}

// NewOpenAIImager builds an imager for model. sizes maps each Kind to an API
// size string such as "1024x1024".
//
// Precondition: apiKey and model must be non-empty.
func NewOpenAIImager(apiKey, baseURL, model string, sizes map[Kind]string, opts ...openaioption.RequestOption) *OpenAIImager {
	return &OpenAIImager{
		client: openaiClient(apiKey, baseURL, opts),
		model:  model,
		sizes:  sizes,
	}
}

func (g *OpenAIImager) Generate(ctx context.Context, kind Kind, prompt string) (string, error) {
	params := openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(g.model),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	}
	if size, ok := g.sizes[kind]; ok && size != "" {
		params.Size = openai.ImageGenerateParamsSize(size)
	}
	resp, err := g.client.Images.Generate(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai image %s: %w", kind, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", fmt.Errorf("openai image %s: empty reply: %w", kind, ErrUnavailable)
	}
	return resp.Data[0].B64JSON, nil
}
