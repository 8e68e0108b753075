package advisory

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/firstsignal/signalbot/pkg/config"
)

type openaiProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(cfg config.AdvisoryConfig) *openaiProvider {
	return &openaiProvider{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}
}

func (p *openaiProvider) Name() string {
	return "openai"
}

func (p *openaiProvider) Generate(ctx context.Context, contextText string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(contextText),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai returned an empty response")
	}
	return text, nil
}
