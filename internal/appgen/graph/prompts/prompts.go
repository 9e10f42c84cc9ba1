// Package prompts renders the system prompts and messages sent to the model.
// Templates are embedded text with {placeholder} tokens replaced literally, so
// JSON examples and Jinja markup inside them never need escaping.
package prompts

import (
	_ "embed"
	"strings"
	"unicode/utf8"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
	logx "github.com/genapp-poc-v1/server/pkg/logger"
)

var (
	//go:embed template/page_system.txt
	pageSystemPrompt string
	//go:embed template/page_instructions.txt
	pageInstructionsPrompt string
	//go:embed template/cached_template.txt
	cachedTemplatePrompt string
	//go:embed template/sql_response.txt
	sqlResponsePrompt string
	//go:embed template/redis_response.txt
	redisResponsePrompt string
	//go:embed template/redis_commands_help.txt
	redisCommandsHelp string
	//go:embed template/sql_init.txt
	sqlInitPrompt string
	//go:embed template/redis_init.txt
	redisInitPrompt string
	//go:embed template/design_narrative.txt
	designNarrativePrompt string
	//go:embed template/design_markup.txt
	designMarkupPrompt string
)

// PageInputs is everything the page system prompt is built from.
type PageInputs struct {
	Variant          backend.Variant
	ApplicationType  string
	Schema           string
	RootPrompt       string
	PageInstructions string
	// Cached is the newest template of the page or, failing that, of the referring page.
	Cached *model.CachedTemplate
}

// PagePrompt is the rendered system prompt and whether it carries a
// referring page's template.
type PagePrompt struct {
	System       string
	FallbackUsed bool
}

// DefaultRootPrompt is used until the initializer stores a design narrative.
func DefaultRootPrompt(applicationType string) string {
	return "A world-class enterprise-grade " + applicationType
}

// ResponseInstructions returns the variant's reply instructions.
func ResponseInstructions(v backend.Variant) string {
	if v == backend.KeyValue {
		return strings.TrimSpace(redisCommandsHelp) + "\n\n" + strings.TrimSpace(redisResponsePrompt)
	}
	return strings.TrimSpace(sqlResponsePrompt)
}

// BuildPageSystem assembles the page system prompt.
func BuildPageSystem(in PageInputs) PagePrompt {
	root := strings.TrimSpace(in.RootPrompt)
	if root == "" {
		root = DefaultRootPrompt(in.ApplicationType)
	}
	schema := strings.TrimSpace(in.Schema)
	if schema == "" {
		schema = "(no data stored yet)"
	}

	var b strings.Builder
	b.WriteString(strings.NewReplacer(
		"{application_type}", in.ApplicationType,
		"{response_instructions}", ResponseInstructions(in.Variant),
		"{schema}", schema,
		"{root_prompt}", root,
	).Replace(pageSystemPrompt))

	if s := strings.TrimSpace(in.PageInstructions); s != "" {
		b.WriteString(strings.NewReplacer("{page_instructions}", s).Replace(pageInstructionsPrompt))
	}

	out := PagePrompt{}
	if in.Cached != nil && strings.TrimSpace(in.Cached.Template) != "" {
		source := "this page"
		if in.Cached.Fallback {
			source = "the page the user came from (" + in.Cached.PagePath + ")"
		}
		b.WriteString(strings.NewReplacer(
			"{template_source}", source,
			"{template}", in.Cached.Template,
		).Replace(cachedTemplatePrompt))
		out.FallbackUsed = in.Cached.Fallback
	}

	out.System = b.String()
	return out
}

// BuildUserMessage renders "{METHOD} {path}" and appends the body for
// non-GET requests. Bodies that are not valid UTF-8 are logged and dropped.
func BuildUserMessage(method, path string, body []byte) string {
	method = strings.ToUpper(method)
	msg := method + " " + path
	if method == "GET" || len(body) == 0 {
		return msg
	}
	if !utf8.Valid(body) {
		logx.Warn().Str("method", method).Str("path", path).Int("bytes", len(body)).
			Msg("Dropping request body that is not valid UTF-8")
		return msg
	}
	return msg + "\n" + string(body)
}

// RenderInit renders the variant's population prompt.
func RenderInit(v backend.Variant, applicationType string) string {
	tpl := sqlInitPrompt
	if v == backend.KeyValue {
		tpl = redisInitPrompt
	}
	return strings.NewReplacer(
		"{application_type}", applicationType,
		"{data_model_key}", backend.DataModelKey,
	).Replace(tpl)
}

func RenderDesignNarrative(applicationType string) string {
	return strings.NewReplacer("{application_type}", applicationType).Replace(designNarrativePrompt)
}

func RenderDesignMarkup(applicationType, narrative string) string {
	return strings.NewReplacer(
		"{application_type}", applicationType,
		"{narrative}", narrative,
	).Replace(designMarkupPrompt)
}
