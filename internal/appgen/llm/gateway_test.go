package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
)

type echoGateway struct {
	user, system string
}

func (e *echoGateway) GetResponse(_ context.Context, user, system string) (string, error) {
	e.user, e.system = user, system
	return `{"commands":[]}`, nil
}

type designGateway struct{ echoGateway }

func (d *designGateway) GetDesignResponse(_ context.Context, prompt string) (string, error) {
	return "design for " + prompt, nil
}

func TestDesignRequiresCapability(t *testing.T) {
	_, err := Design(context.Background(), &echoGateway{}, "todo")
	assert.ErrorIs(t, err, ErrDesignUnsupported)

	out, err := Design(context.Background(), &designGateway{}, "todo")
	require.NoError(t, err)
	assert.Equal(t, "design for todo", out)
}

func TestWithLoggingPreservesDesignCapability(t *testing.T) {
	_, ok := WithLogging(&echoGateway{}, "fake").(Designer)
	assert.False(t, ok)

	wrapped := WithLogging(&designGateway{}, "fake")
	out, err := Design(context.Background(), wrapped, "blog")
	require.NoError(t, err)
	assert.Equal(t, "design for blog", out)
}

func TestNewGatewayRejectsUnknownProvider(t *testing.T) {
	_, err := NewGateway(context.Background(), model.LLMConfig{Provider: "claude"}, backend.Relational)
	assert.Error(t, err)
}

func TestChatModelAdapter(t *testing.T) {
	g := &echoGateway{}
	cm := NewChatModel(g)

	msg, err := cm.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("rules"),
		schema.SystemMessage("schema"),
		schema.UserMessage("GET /"),
	})
	require.NoError(t, err)
	assert.Equal(t, schema.Assistant, msg.Role)
	assert.Equal(t, `{"commands":[]}`, msg.Content)
	assert.Equal(t, "GET /", g.user)
	assert.Equal(t, "rules\n\nschema", g.system)

	sr, err := cm.Stream(context.Background(), []*schema.Message{schema.UserMessage("GET /x")})
	require.NoError(t, err)
	defer sr.Close()
	chunk, err := sr.Recv()
	require.NoError(t, err)
	assert.Equal(t, `{"commands":[]}`, chunk.Content)
}

func TestOllamaGateway(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"response": `{"redis_commands":[]}`, "eval_count": 3})
	}))
	defer srv.Close()

	g := NewOllamaGateway(model.OllamaConfig{URL: srv.URL + "/", Model: "gemma3:12b", Timeout: time.Second}, backend.KeyValue)
	out, err := g.GetResponse(context.Background(), "GET /", "be an app")
	require.NoError(t, err)
	assert.Equal(t, `{"redis_commands":[]}`, out)

	assert.Equal(t, "gemma3:12b", got.Model)
	assert.Equal(t, "be an app", got.System)
	assert.Equal(t, "GET /", got.Prompt)
	assert.False(t, got.Stream)
	assert.Contains(t, got.Format["properties"], "redis_commands")

	_, ok := Gateway(g).(Designer)
	assert.False(t, ok)
}

func TestOllamaGatewayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	g := NewOllamaGateway(model.OllamaConfig{URL: srv.URL, Model: "x", Timeout: time.Second}, backend.Relational)
	_, err := g.GetResponse(context.Background(), "GET /", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "model not found")
}

func TestOpenAIGateway(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "c1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": `{"commands":[]}`}}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
		})
	}))
	defer srv.Close()

	g, err := NewOpenAIGateway(model.LLMConfig{
		MaxTokens: 100,
		OpenAI:    model.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"},
	}, backend.Relational)
	require.NoError(t, err)

	out, err := g.GetResponse(context.Background(), "GET /", "system")
	require.NoError(t, err)
	assert.Equal(t, `{"commands":[]}`, out)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].(map[string]any)["content"], "JSON schema")

	got = nil
	out, err = Design(context.Background(), g, "describe")
	require.NoError(t, err)
	assert.Equal(t, `{"commands":[]}`, out)
	assert.Nil(t, got["response_format"])
}

func TestReplySchemaShapes(t *testing.T) {
	rel := ReplySchema(backend.Relational)
	assert.Contains(t, rel["properties"], "commands")
	assert.Contains(t, rel["properties"], "Javascript")

	kv := ReplySchema(backend.KeyValue)
	assert.Contains(t, kv["properties"], "redis_commands")

	assert.Equal(t, []string{"redis_commands"}, genaiReplySchema(backend.KeyValue).Required)
}
