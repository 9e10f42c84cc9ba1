package llm

import (
	"context"
	"time"

	"github.com/genapp-poc-v1/server/internal/appgen/metrics"
	logx "github.com/genapp-poc-v1/server/pkg/logger"
)

// WithLogging logs every request and response verbatim and records call
// durations. The design capability of g is preserved.
func WithLogging(g Gateway, provider string) Gateway {
	lg := &loggedGateway{next: g, provider: provider}
	if d, ok := g.(Designer); ok {
		return &loggedDesigner{loggedGateway: lg, design: d}
	}
	return lg
}

type loggedGateway struct {
	next     Gateway
	provider string
}

func (l *loggedGateway) GetResponse(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	logx.Info().
		Str("provider", l.provider).
		Str("system_prompt", systemPrompt).
		Str("user_message", userMessage).
		Msg("LLM request")

	start := time.Now()
	out, err := l.next.GetResponse(ctx, userMessage, systemPrompt)
	metrics.RecordModelCall(l.provider, "response", err, time.Since(start))
	if err != nil {
		logx.Error().Err(err).Str("provider", l.provider).Msg("LLM request failed")
		return "", err
	}

	logx.Info().
		Str("provider", l.provider).
		Dur("elapsed", time.Since(start)).
		Str("response", out).
		Msg("LLM response")
	return out, nil
}

type loggedDesigner struct {
	*loggedGateway
	design Designer
}

func (l *loggedDesigner) GetDesignResponse(ctx context.Context, prompt string) (string, error) {
	logx.Info().Str("provider", l.provider).Str("prompt", prompt).Msg("LLM design request")

	start := time.Now()
	out, err := l.design.GetDesignResponse(ctx, prompt)
	metrics.RecordModelCall(l.provider, "design", err, time.Since(start))
	if err != nil {
		logx.Error().Err(err).Str("provider", l.provider).Msg("LLM design request failed")
		return "", err
	}

	logx.Info().
		Str("provider", l.provider).
		Dur("elapsed", time.Since(start)).
		Str("response", out).
		Msg("LLM design response")
	return out, nil
}
