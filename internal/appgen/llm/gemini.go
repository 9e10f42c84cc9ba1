package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
	logx "github.com/genapp-poc-v1/server/pkg/logger"
)

// GeminiGateway requests structured JSON through genai and runs design
// prompts through the eino Gemini chat model.
type GeminiGateway struct {
	client      *genai.Client
	design      *gemini.ChatModel
	model       string
	designModel string
	schema      *genai.Schema
	temperature float32
	maxTokens   int
}

func NewGeminiGateway(ctx context.Context, cfg model.LLMConfig, variant backend.Variant) (*GeminiGateway, error) {
	if cfg.Gemini.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Gemini.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.Gemini.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	temperature := cfg.Temperature
	maxTokens := cfg.MaxTokens
	design, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Gemini.DesignModel,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini design model")
		return nil, fmt.Errorf("error creating Gemini design model: %w", err)
	}

	return &GeminiGateway{
		client:      client,
		design:      design,
		model:       cfg.Gemini.Model,
		designModel: cfg.Gemini.DesignModel,
		schema:      genaiReplySchema(variant),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (g *GeminiGateway) GetResponse(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   g.schema,
		Temperature:      genai.Ptr(g.temperature),
		MaxOutputTokens:  int32(g.maxTokens),
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(userMessage), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if resp.UsageMetadata != nil {
		logUsage(g.model, &schema.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		})
	}
	return resp.Text(), nil
}

func (g *GeminiGateway) GetDesignResponse(ctx context.Context, prompt string) (string, error) {
	msg, err := g.design.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("gemini design: %w", err)
	}
	if msg.ResponseMeta != nil {
		logUsage(g.designModel, msg.ResponseMeta.Usage)
	}
	return msg.Content, nil
}

// logUsage computes and logs the usage cost of one model call.
func logUsage(modelName string, usage *schema.TokenUsage) {
	if usage == nil {
		return
	}
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	logx.Debug().
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
