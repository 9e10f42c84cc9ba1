package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Command is one model-issued instruction. The concrete type selects the variant.
type Command interface {
	// ResultKey is the key the command's outcome is stored under.
	ResultKey() string
	// RedirectTarget is the optional redirect carried by the command.
	RedirectTarget() string
}

// SQLCommand is a relational command: a named query.
type SQLCommand struct {
	Name     string `json:"name"`
	Query    string `json:"query"`
	Redirect string `json:"redirect,omitempty"`
}

func (c SQLCommand) ResultKey() string      { return c.Name }
func (c SQLCommand) RedirectTarget() string { return c.Redirect }

// KVCommand is a key-value command: a verb plus arguments.
type KVCommand struct {
	Command  string `json:"command"`
	Args     Args   `json:"args"`
	Redirect string `json:"redirect,omitempty"`
}

// ResultKey is the first argument, or the verb for argument-less commands.
func (c KVCommand) ResultKey() string {
	if len(c.Args) > 0 {
		return c.Args[0]
	}
	return c.Command
}

func (c KVCommand) RedirectTarget() string { return c.Redirect }

// Args accepts JSON strings, numbers and booleans; models frequently emit
// scores and counters unquoted.
type Args []string

func (a *Args) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("args must be an array: %w", err)
	}
	out := make(Args, 0, len(raw))
	for i, r := range raw {
		var v any
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("arg %d: %w", i, err)
		}
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case json.Number:
			out = append(out, t.String())
		case bool:
			out = append(out, strconv.FormatBool(t))
		case nil:
			out = append(out, "")
		default:
			return fmt.Errorf("arg %d: unsupported type %T", i, v)
		}
	}
	*a = out
	return nil
}
