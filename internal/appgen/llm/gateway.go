// Package llm talks to model providers. Every provider answers GetResponse
// with untrusted text that is expected to be a JSON reply for the configured
// backend variant. Providers able to run open-ended prompts also implement
// Designer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
)

// ErrDesignUnsupported is returned by Design for providers without a design entry point.
var ErrDesignUnsupported = errors.New("provider does not support design requests")

type Gateway interface {
	GetResponse(ctx context.Context, userMessage, systemPrompt string) (string, error)
}

type Designer interface {
	GetDesignResponse(ctx context.Context, prompt string) (string, error)
}

// Design runs an open-ended prompt, failing with ErrDesignUnsupported when g
// cannot.
func Design(ctx context.Context, g Gateway, prompt string) (string, error) {
	d, ok := g.(Designer)
	if !ok {
		return "", ErrDesignUnsupported
	}
	return d.GetDesignResponse(ctx, prompt)
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// NewGateway builds the configured provider, wrapped with request logging.
func NewGateway(ctx context.Context, cfg model.LLMConfig, variant backend.Variant) (Gateway, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	var (
		g   Gateway
		err error
	)
	switch provider {
	case ProviderGemini:
		g, err = NewGeminiGateway(ctx, cfg, variant)
	case ProviderOpenAI:
		g, err = NewOpenAIGateway(cfg, variant)
	case ProviderOllama:
		g = NewOllamaGateway(cfg.Ollama, variant)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithLogging(g, provider), nil
}
