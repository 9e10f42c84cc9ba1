package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
)

const maxErrSnippet = 200 // limit error snippet size

// Repair applies the fixed clean-up to raw model text: trim, strip one leading
// ```json (or bare ```) fence and one trailing ``` fence, trim again and close
// a truncated object with a single "}". Nothing else is attempted.
func Repair(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "}") {
		s += "}"
	}
	return s
}

// StripMarkupFence removes one ```html (or bare ```) fence pair around design markup.
func StripMarkupFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```html") {
		s = s[len("```html"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

type relationalReply struct {
	Commands   []backend.SQLCommand `json:"commands"`
	Template   string               `json:"template"`
	CSS        string               `json:"CSS"`
	Javascript string               `json:"Javascript"`
}

type keyValueReply struct {
	RedisCommands []backend.KVCommand `json:"redis_commands"`
	// Commands is the shape used by initialization replies.
	Commands   []backend.KVCommand `json:"commands"`
	Template   string              `json:"template"`
	CSS        string              `json:"CSS"`
	Javascript string              `json:"Javascript"`
}

// Parse decodes repaired text with the typed parser of the variant.
func Parse(v backend.Variant, text string) (*model.Reply, error) {
	if v == backend.KeyValue {
		return ParseKeyValue(text)
	}
	return ParseRelational(text)
}

// ParseRelational decodes {commands:[{name,query,redirect?}], template, CSS?, Javascript?}.
func ParseRelational(text string) (*model.Reply, error) {
	var r relationalReply
	if err := decodeObject(text, &r); err != nil {
		return nil, err
	}

	cmds := make([]backend.Command, 0, len(r.Commands))
	for i, c := range r.Commands {
		if strings.TrimSpace(c.Query) == "" {
			return nil, fmt.Errorf("command %d: missing query", i+1)
		}
		cmds = append(cmds, c)
	}
	return &model.Reply{Commands: cmds, Template: r.Template, CSS: r.CSS, Javascript: r.Javascript}, nil
}

// ParseKeyValue decodes {redis_commands:[{command,args}], template}; the
// initialization form {commands:[...]} is accepted as well.
func ParseKeyValue(text string) (*model.Reply, error) {
	var r keyValueReply
	if err := decodeObject(text, &r); err != nil {
		return nil, err
	}

	src := r.RedisCommands
	if len(src) == 0 {
		src = r.Commands
	}
	cmds := make([]backend.Command, 0, len(src))
	for i, c := range src {
		if strings.TrimSpace(c.Command) == "" {
			return nil, fmt.Errorf("command %d: missing command", i+1)
		}
		cmds = append(cmds, c)
	}
	return &model.Reply{Commands: cmds, Template: r.Template, CSS: r.CSS, Javascript: r.Javascript}, nil
}

func decodeObject(text string, dst any) error {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("reply is not a JSON object: %q", snippet(text))
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return fmt.Errorf("invalid JSON reply: %w", err)
	}
	return nil
}

func snippet(s string) string {
	if len(s) > maxErrSnippet {
		return s[:maxErrSnippet] + "..."
	}
	return s
}
