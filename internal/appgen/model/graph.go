package model

import (
	"github.com/genapp-poc-v1/server/internal/appgen/backend"
)

// PageRequest is one browser request addressed to a tenant's application.
type PageRequest struct {
	TenantID    string
	Path        string
	Method      string
	Body        []byte
	Query       map[string]string
	Form        map[string]string
	RefererPath string
	Fragment    bool
}

// SynthesisInput is the graph input: the request plus everything resolved before it.
type SynthesisInput struct {
	Request  PageRequest
	Settings TenantSettings
	Backend  backend.Client
}

// Reply is a decoded model response, normalized across backend variants.
type Reply struct {
	Commands   []backend.Command
	Template   string
	CSS        string
	Javascript string
}

// ParsedReply carries either a Reply or the parse failure with the raw text.
type ParsedReply struct {
	Reply *Reply
	Raw   string
	Err   error
}

// Execution is the outcome of running a reply's commands.
type Execution struct {
	Reply    *Reply
	Raw      string
	Results  backend.Results
	Redirect string
}

type Outcome string

const (
	OutcomeRendered    Outcome = "rendered"
	OutcomeRedirect    Outcome = "redirect"
	OutcomeParseError  Outcome = "parse_error"
	OutcomeRenderError Outcome = "render_error"
	OutcomePlaceholder Outcome = "placeholder"
)

// PageResult is what the HTTP layer writes back.
type PageResult struct {
	Outcome  Outcome
	Status   int
	Location string
	Body     string
}

// SynthesisState stores per-invocation state for the synthesis graph.
// It is registered as graph local state and touched only inside state
// handlers or compose.ProcessState.
type SynthesisState struct {
	Request  PageRequest
	Settings TenantSettings
	Backend  backend.Client

	PageInstructions string
	// FallbackUsed reports that the prompt carries the referring page's template.
	FallbackUsed bool
	Reply        *Reply
}
