package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
)

// OpenAIGateway uses chat completions in JSON object mode. The API has no
// schema parameter in that mode, so the reply schema rides along as a hint.
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	hint        string
	temperature float32
	maxTokens   int
}

func NewOpenAIGateway(cfg model.LLMConfig, variant backend.Variant) (*OpenAIGateway, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
	}
	clientCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAI.BaseURL
	}
	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.OpenAI.Model,
		hint:        SchemaHint(variant),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (g *OpenAIGateway) GetResponse(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	return g.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt + g.hint},
		{Role: openai.ChatMessageRoleUser, Content: userMessage},
	}, &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject})
}

func (g *OpenAIGateway) GetDesignResponse(ctx context.Context, prompt string) (string, error) {
	return g.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, nil)
}

func (g *OpenAIGateway) complete(ctx context.Context, msgs []openai.ChatCompletionMessage, format *openai.ChatCompletionResponseFormat) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          g.model,
		Messages:       msgs,
		ResponseFormat: format,
		Temperature:    g.temperature,
		MaxTokens:      g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices returned")
	}
	logUsage(g.model, &schema.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	})
	return resp.Choices[0].Message.Content, nil
}
