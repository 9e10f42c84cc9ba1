package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino/compose"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/graph/nodes"
	"github.com/genapp-poc-v1/server/internal/appgen/graph/observers"
	"github.com/genapp-poc-v1/server/internal/appgen/graph/render"
	"github.com/genapp-poc-v1/server/internal/appgen/llm"
	"github.com/genapp-poc-v1/server/internal/appgen/metrics"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
	logx "github.com/genapp-poc-v1/server/pkg/logger"
)

// placeholderRefresh is how often the placeholder page reloads itself, in seconds.
const placeholderRefresh = 5

// Initializer starts tenant initialization without blocking the caller.
type Initializer interface {
	Trigger(ctx context.Context, tenantID string)
}

// Config holds everything the synthesis engine is built from.
type Config struct {
	Gateway     llm.Gateway
	Settings    model.SettingsRepository
	Backends    backend.Opener
	Initializer Initializer
	Renderer    *render.Renderer
}

// GraphBuilder handles the construction of the page synthesis graph
type GraphBuilder struct {
	config *Config
	graph  *compose.Graph[model.SynthesisInput, *model.PageResult]
}

// Engine turns a page request into a rendered page, a redirect or a placeholder.
type Engine struct {
	cfg      Config
	runnable compose.Runnable[model.SynthesisInput, *model.PageResult]
}

// NewEngine validates cfg and compiles the synthesis graph.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings repository is nil")
	}
	if cfg.Backends == nil {
		return nil, fmt.Errorf("backend opener is nil")
	}
	if cfg.Initializer == nil {
		return nil, fmt.Errorf("initializer is nil")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.NewRenderer()
	}

	runnable, err := BuildGraph(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	logx.Debug().Str("backend", string(cfg.Backends.Variant())).Msg("Synthesis graph built successfully")
	return &Engine{cfg: cfg, runnable: runnable}, nil
}

// Synthesize serves one page request for a tenant.
func (e *Engine) Synthesize(ctx context.Context, req model.PageRequest) (*model.PageResult, error) {
	req.Path = model.NormalizePagePath(req.Path)
	if req.RefererPath != "" {
		req.RefererPath = model.NormalizePagePath(req.RefererPath)
	}

	settings, err := e.cfg.Settings.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	client, err := e.cfg.Backends.Open(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("error opening backend: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			logx.Warn().Err(cerr).Str("tenant_id", req.TenantID).Msg("Error closing backend")
		}
	}()

	ready, err := client.IsInitialized(ctx)
	if err != nil {
		return nil, fmt.Errorf("error checking initialization: %w", err)
	}
	// a relational backend reports ready once any table exists, so a run
	// that failed after populate still counts as not ready
	if !ready || settings.Init.Status != model.InitInitialized {
		if settings.Init.Status != model.InitFailed {
			e.cfg.Initializer.Trigger(ctx, req.TenantID)
		}
		res, err := e.placeholder(req, *settings)
		if err != nil {
			return nil, err
		}
		metrics.RecordSynthesis(string(res.Outcome))
		return res, nil
	}

	res, err := e.runnable.Invoke(ctx, model.SynthesisInput{
		Request:  req,
		Settings: *settings,
		Backend:  client,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		logx.Error().Err(err).Str("tenant_id", req.TenantID).Str("path", req.Path).Msg("Page synthesis failed")
		return nil, err
	}
	if res == nil {
		return nil, errors.New("synthesis graph returned no result")
	}

	metrics.RecordSynthesis(string(res.Outcome))
	logx.Info().
		Str("tenant_id", req.TenantID).
		Str("method", req.Method).
		Str("path", req.Path).
		Str("outcome", string(res.Outcome)).
		Msg("Page synthesized")
	return res, nil
}

func (e *Engine) placeholder(req model.PageRequest, settings model.TenantSettings) (*model.PageResult, error) {
	body := e.cfg.Renderer.Placeholder(settings)
	res := &model.PageResult{Outcome: model.OutcomePlaceholder, Status: http.StatusOK, Body: body}
	if req.Fragment {
		return res, nil
	}
	page, err := e.cfg.Renderer.Shell(render.ShellData{
		Title:    settings.Title(),
		TenantID: req.TenantID,
		PagePath: req.Path,
		Body:     body,
		Refresh:  placeholderRefresh,
	})
	if err != nil {
		return nil, err
	}
	res.Body = page
	return res, nil
}

// BuildGraph constructs and returns the compiled synthesis graph
func BuildGraph(ctx context.Context, config *Config) (compose.Runnable[model.SynthesisInput, *model.PageResult], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Gateway == nil {
		return nil, fmt.Errorf("model gateway is nil")
	}
	if config.Settings == nil || config.Renderer == nil {
		return nil, fmt.Errorf("settings repository or renderer is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.SynthesisInput, *model.PageResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.SynthesisState {
				return &model.SynthesisState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	g := b.graph
	steps := []struct {
		name string
		add  func() error
	}{
		{nodes.NodePromptBuilder, func() error {
			return g.AddLambdaNode(nodes.NodePromptBuilder,
				nodes.NewPromptBuilderNode(b.config.Settings),
				compose.WithStatePreHandler(nodes.NewPromptBuilderPreHandler()),
			)
		}},
		{nodes.NodePagePrompt, func() error {
			return g.AddChatTemplateNode(nodes.NodePagePrompt, nodes.NewPagePromptTemplate())
		}},
		{nodes.NodePageModel, func() error {
			return g.AddChatModelNode(nodes.NodePageModel, llm.NewChatModel(b.config.Gateway))
		}},
		{nodes.NodeReplyParser, func() error {
			return g.AddLambdaNode(nodes.NodeReplyParser,
				nodes.NewReplyParserNode(),
				compose.WithStatePostHandler(nodes.NewReplyParserPostHandler()),
			)
		}},
		{nodes.NodeErrorPanel, func() error {
			return g.AddLambdaNode(nodes.NodeErrorPanel, nodes.NewErrorPanelNode(b.config.Renderer))
		}},
		{nodes.NodeExecutor, func() error {
			return g.AddLambdaNode(nodes.NodeExecutor, nodes.NewExecutorNode())
		}},
		{nodes.NodeRedirect, func() error {
			return g.AddLambdaNode(nodes.NodeRedirect, nodes.NewRedirectNode())
		}},
		{nodes.NodeRenderer, func() error {
			return g.AddLambdaNode(nodes.NodeRenderer, nodes.NewRendererNode(b.config.Settings, b.config.Renderer))
		}},
		{nodes.NodeFinalize, func() error {
			return g.AddLambdaNode(nodes.NodeFinalize, nodes.NewFinalizeNode(b.config.Renderer))
		}},
	}

	for _, s := range steps {
		if err := s.add(); err != nil {
			logx.Error().Err(err).Str("node", s.name).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", s.name, err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodePromptBuilder},
		{nodes.NodePromptBuilder, nodes.NodePagePrompt},
		{nodes.NodePagePrompt, nodes.NodePageModel},
		{nodes.NodePageModel, nodes.NodeReplyParser},
		{nodes.NodeErrorPanel, nodes.NodeFinalize},
		{nodes.NodeRenderer, nodes.NodeFinalize},
		{nodes.NodeRedirect, compose.END},
		{nodes.NodeFinalize, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	replyBranch := compose.NewGraphBranch(
		nodes.NewReplyCondition(),
		map[string]bool{
			nodes.NodeErrorPanel: true,
			nodes.NodeExecutor:   true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeReplyParser, replyBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding reply branch")
		return fmt.Errorf("error adding reply branch: %w", err)
	}

	redirectBranch := compose.NewGraphBranch(
		nodes.NewRedirectCondition(),
		map[string]bool{
			nodes.NodeRedirect: true,
			nodes.NodeRenderer: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeExecutor, redirectBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding redirect branch")
		return fmt.Errorf("error adding redirect branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.SynthesisInput, *model.PageResult], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(20))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
