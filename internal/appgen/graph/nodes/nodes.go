package nodes

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/graph/parsers"
	"github.com/genapp-poc-v1/server/internal/appgen/graph/prompts"
	"github.com/genapp-poc-v1/server/internal/appgen/graph/render"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
	logx "github.com/genapp-poc-v1/server/pkg/logger"
)

const (
	NodePromptBuilder = "prompt_builder"
	NodePagePrompt    = "page_prompt"
	NodePageModel     = "page_model"
	NodeReplyParser   = "reply_parser"
	NodeErrorPanel    = "error_panel"
	NodeExecutor      = "executor"
	NodeRedirect      = "redirect"
	NodeRenderer      = "renderer"
	NodeFinalize      = "finalize"
)

// messagesKey is the placeholder the page prompt template expands.
const messagesKey = "messages"

// Labels shown in the error panel.
const (
	LabelInvalidReply  = "Invalid JSON Response"
	LabelTemplateError = "Template Error"
)

// NewPromptBuilderPreHandler seeds the per-request state from the graph input.
func NewPromptBuilderPreHandler() func(context.Context, model.SynthesisInput, *model.SynthesisState) (model.SynthesisInput, error) {
	return func(ctx context.Context, in model.SynthesisInput, s *model.SynthesisState) (model.SynthesisInput, error) {
		s.Request = in.Request
		s.Settings = in.Settings
		s.Backend = in.Backend
		s.FallbackUsed = false
		s.Reply = nil
		return in, nil
	}
}

// NewPromptBuilderNode collects the schema, page instructions and cached
// template and emits the system and user messages for the page prompt.
func NewPromptBuilderNode(settings model.SettingsRepository) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.SynthesisInput) (map[string]any, error) {
		if in.Backend == nil {
			return nil, fmt.Errorf("backend client is nil")
		}
		req := in.Request

		dbSchema, err := in.Backend.GetSchema(ctx)
		if err != nil {
			return nil, fmt.Errorf("error reading schema: %w", err)
		}

		instructions, err := settings.GetPageInstructions(ctx, req.TenantID, req.Path)
		if err != nil {
			return nil, fmt.Errorf("error loading page instructions: %w", err)
		}

		cached, err := settings.LatestTemplate(ctx, req.TenantID, req.Path, req.RefererPath)
		if err != nil {
			return nil, fmt.Errorf("error loading cached template: %w", err)
		}

		page := prompts.BuildPageSystem(prompts.PageInputs{
			Variant:          in.Backend.Variant(),
			ApplicationType:  in.Settings.ApplicationType,
			Schema:           dbSchema,
			RootPrompt:       in.Settings.PromptTemplate,
			PageInstructions: instructions,
			Cached:           cached,
		})

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.SynthesisState) error {
			s.PageInstructions = instructions
			s.FallbackUsed = page.FallbackUsed
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		logx.Debug().
			Str("tenant_id", req.TenantID).
			Str("path", req.Path).
			Bool("cached_template", cached != nil).
			Bool("fallback_used", page.FallbackUsed).
			Msg("Page prompt assembled")

		return map[string]any{
			messagesKey: []*schema.Message{
				schema.SystemMessage(page.System),
				schema.UserMessage(prompts.BuildUserMessage(req.Method, req.Path, req.Body)),
			},
		}, nil
	})
}

// NewPagePromptTemplate passes the assembled messages through a ChatTemplate
// so prompt callbacks fire. The placeholder does no interpolation, which
// keeps braces in system prompts and cached markup intact.
func NewPagePromptTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.MessagesPlaceholder(messagesKey, false),
	)
}

// NewReplyParserNode repairs and decodes the model reply for the request's backend variant.
func NewReplyParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (model.ParsedReply, error) {
		if msg == nil {
			return model.ParsedReply{Err: fmt.Errorf("empty model reply")}, nil
		}

		var variant backend.Variant
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.SynthesisState) error {
			if s.Backend == nil {
				return fmt.Errorf("missing backend client in state")
			}
			variant = s.Backend.Variant()
			return nil
		})
		if err != nil {
			return model.ParsedReply{}, fmt.Errorf("failed to access state: %w", err)
		}

		reply, err := parsers.Parse(variant, parsers.Repair(msg.Content))
		if err != nil {
			logx.Warn().Err(err).Str("variant", string(variant)).Msg("Error parsing model reply")
			return model.ParsedReply{Raw: msg.Content, Err: err}, nil
		}
		return model.ParsedReply{Reply: reply, Raw: msg.Content}, nil
	})
}

// NewReplyParserPostHandler keeps the decoded reply for the finalize node.
func NewReplyParserPostHandler() func(context.Context, model.ParsedReply, *model.SynthesisState) (model.ParsedReply, error) {
	return func(ctx context.Context, out model.ParsedReply, s *model.SynthesisState) (model.ParsedReply, error) {
		s.Reply = out.Reply
		return out, nil
	}
}

// NewReplyCondition routes undecodable replies to the error panel.
func NewReplyCondition() func(context.Context, model.ParsedReply) (string, error) {
	return func(ctx context.Context, in model.ParsedReply) (string, error) {
		if in.Err != nil || in.Reply == nil {
			return NodeErrorPanel, nil
		}
		return NodeExecutor, nil
	}
}

// NewErrorPanelNode renders the diagnostic for a reply that could not be parsed.
func NewErrorPanelNode(r *render.Renderer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ParsedReply) (*model.PageResult, error) {
		cause := in.Err
		if cause == nil {
			cause = fmt.Errorf("empty reply")
		}
		return &model.PageResult{
			Outcome: model.OutcomeParseError,
			Status:  http.StatusOK,
			Body:    r.ErrorPanel(LabelInvalidReply, cause, in.Raw),
		}, nil
	})
}

// NewExecutorNode runs the reply's commands in order and records the
// first redirect target among them.
func NewExecutorNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ParsedReply) (model.Execution, error) {
		var client backend.Client
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.SynthesisState) error {
			if s.Backend == nil {
				return fmt.Errorf("missing backend client in state")
			}
			client = s.Backend
			return nil
		})
		if err != nil {
			return model.Execution{}, fmt.Errorf("failed to access state: %w", err)
		}

		results, err := client.ExecuteCommands(ctx, in.Reply.Commands)
		if err != nil {
			return model.Execution{}, fmt.Errorf("error executing commands: %w", err)
		}

		exec := model.Execution{Reply: in.Reply, Raw: in.Raw, Results: results}
		for _, cmd := range in.Reply.Commands {
			if target := strings.TrimSpace(cmd.RedirectTarget()); target != "" {
				exec.Redirect = target
				break
			}
		}
		return exec, nil
	})
}

// NewRedirectCondition short-circuits rendering when a command asked for a redirect.
func NewRedirectCondition() func(context.Context, model.Execution) (string, error) {
	return func(ctx context.Context, in model.Execution) (string, error) {
		if in.Redirect != "" {
			return NodeRedirect, nil
		}
		return NodeRenderer, nil
	}
}

// NewRedirectNode answers with a See Other to the tenant-scoped target.
func NewRedirectNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.Execution) (*model.PageResult, error) {
		var tenantID string
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.SynthesisState) error {
			tenantID = s.Request.TenantID
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		location := render.ResolveRedirect(in.Redirect, tenantID)
		logx.Debug().Str("tenant_id", tenantID).Str("location", location).Msg("Redirecting after commands")
		return &model.PageResult{
			Outcome:  model.OutcomeRedirect,
			Status:   http.StatusSeeOther,
			Location: location,
		}, nil
	})
}

// NewRendererNode caches the reply template, renders it against the command
// results and rewrites links into the tenant's namespace.
func NewRendererNode(settings model.SettingsRepository, r *render.Renderer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.Execution) (*model.PageResult, error) {
		var (
			req    model.PageRequest
			client backend.Client
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.SynthesisState) error {
			if s.Backend == nil {
				return fmt.Errorf("missing backend client in state")
			}
			req = s.Request
			client = s.Backend
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		tpl := in.Reply.Template
		if strings.TrimSpace(tpl) == "" {
			return &model.PageResult{Outcome: model.OutcomeRendered, Status: http.StatusOK}, nil
		}

		if err := settings.SaveTemplate(ctx, req.TenantID, req.Path, tpl); err != nil {
			logx.Error().Err(err).Str("tenant_id", req.TenantID).Str("path", req.Path).
				Msg("Error caching page template")
		}

		out, err := r.Page(tpl, TemplateContext(ctx, req, client, in.Results))
		if err != nil {
			logx.Warn().Err(err).Str("tenant_id", req.TenantID).Str("path", req.Path).
				Msg("Error rendering page template")
			return &model.PageResult{
				Outcome: model.OutcomeRenderError,
				Status:  http.StatusOK,
				Body:    r.ErrorPanel(LabelTemplateError, err, in.Raw),
			}, nil
		}

		return &model.PageResult{
			Outcome: model.OutcomeRendered,
			Status:  http.StatusOK,
			Body:    render.RewriteLinks(out, req.TenantID),
		}, nil
	})
}

// TemplateContext is the data a generated template renders against.
func TemplateContext(ctx context.Context, req model.PageRequest, client backend.Client, results backend.Results) map[string]any {
	data := map[string]any{
		"results": map[string]any(results),
		"path":    req.Path,
		"request": map[string]any{
			"method": strings.ToUpper(req.Method),
			"path":   req.Path,
			"query":  req.Query,
			"form":   req.Form,
		},
	}
	if client != nil {
		data["db"] = client.Template(ctx)
		if client.Variant() == backend.KeyValue {
			data["redis_results"] = data["results"]
		}
	}
	return data
}

// NewFinalizeNode wraps the page body in the application shell unless the
// request asked for a fragment.
func NewFinalizeNode(r *render.Renderer) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *model.PageResult) (*model.PageResult, error) {
		var s model.SynthesisState
		err := compose.ProcessState(ctx, func(_ context.Context, st *model.SynthesisState) error {
			s = *st
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if in == nil || s.Request.Fragment {
			return in, nil
		}

		d := render.ShellData{
			Title:            s.Settings.Title(),
			TenantID:         s.Request.TenantID,
			PagePath:         s.Request.Path,
			Body:             in.Body,
			Settings:         &s.Settings,
			PageInstructions: s.PageInstructions,
		}
		if s.Reply != nil {
			d.CSS = s.Reply.CSS
			d.Javascript = s.Reply.Javascript
		}

		page, err := r.Shell(d)
		if err != nil {
			return nil, err
		}
		out := *in
		out.Body = page
		return &out, nil
	})
}
