package llm

import (
	"encoding/json"

	"google.golang.org/genai"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
)

// ReplySchema is the JSON schema of a reply for the variant, in the plain
// map form accepted by Ollama's format field and used for prompt hints.
func ReplySchema(v backend.Variant) map[string]any {
	if v == backend.KeyValue {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"redis_commands": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"command":  map[string]any{"type": "string"},
							"args":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"redirect": map[string]any{"type": "string"},
						},
						"required": []string{"command", "args"},
					},
				},
				"template": map[string]any{"type": "string"},
			},
			"required": []string{"redis_commands"},
		}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"commands": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":     map[string]any{"type": "string"},
						"query":    map[string]any{"type": "string"},
						"redirect": map[string]any{"type": "string"},
					},
					"required": []string{"name", "query"},
				},
			},
			"template":   map[string]any{"type": "string"},
			"CSS":        map[string]any{"type": "string"},
			"Javascript": map[string]any{"type": "string"},
		},
		"required": []string{"commands"},
	}
}

// SchemaHint is appended to system prompts for providers without native
// schema support.
func SchemaHint(v backend.Variant) string {
	b, _ := json.Marshal(ReplySchema(v))
	return "\n\nRespond with a single JSON object matching this JSON schema:\n" + string(b)
}

func genaiReplySchema(v backend.Variant) *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	if v == backend.KeyValue {
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"redis_commands": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"command":  str,
							"args":     {Type: genai.TypeArray, Items: str},
							"redirect": str,
						},
						Required: []string{"command", "args"},
					},
				},
				"template": str,
			},
			Required: []string{"redis_commands"},
		}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"commands": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":     str,
						"query":    str,
						"redirect": str,
					},
					Required: []string{"name", "query"},
				},
			},
			"template":   str,
			"CSS":        str,
			"Javascript": str,
		},
		Required: []string{"commands"},
	}
}
