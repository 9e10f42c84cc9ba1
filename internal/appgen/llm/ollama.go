package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
)

// OllamaGateway calls a local Ollama server's /api/generate with the reply
// schema as its format. It has no design entry point.
type OllamaGateway struct {
	httpClient *http.Client
	url        string
	model      string
	format     map[string]any
}

func NewOllamaGateway(cfg model.OllamaConfig, variant backend.Variant) *OllamaGateway {
	return &OllamaGateway{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        strings.TrimRight(cfg.URL, "/"),
		model:      cfg.Model,
		format:     ReplySchema(variant),
	}
}

type ollamaRequest struct {
	Model  string         `json:"model"`
	System string         `json:"system,omitempty"`
	Prompt string         `json:"prompt"`
	Stream bool           `json:"stream"`
	Format map[string]any `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (g *OllamaGateway) GetResponse(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  g.model,
		System: systemPrompt,
		Prompt: userMessage,
		Stream: false,
		Format: g.format,
	})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	logUsage(g.model, &schema.TokenUsage{
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
		TotalTokens:      out.PromptEvalCount + out.EvalCount,
	})
	return out.Response, nil
}
