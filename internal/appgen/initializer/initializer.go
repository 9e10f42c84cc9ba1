// Package initializer designs a new tenant's application and fills its
// backend with sample data, at most once per tenant.
package initializer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genapp-poc-v1/server/internal/appgen/backend"
	"github.com/genapp-poc-v1/server/internal/appgen/graph/parsers"
	"github.com/genapp-poc-v1/server/internal/appgen/graph/prompts"
	"github.com/genapp-poc-v1/server/internal/appgen/llm"
	"github.com/genapp-poc-v1/server/internal/appgen/metrics"
	"github.com/genapp-poc-v1/server/internal/appgen/model"
	"github.com/genapp-poc-v1/server/internal/appgen/repo"
	logx "github.com/genapp-poc-v1/server/pkg/logger"
)

// Run results reported to metrics.
const (
	ResultInitialized = "initialized"
	ResultFailed      = "failed"
	ResultSkipped     = "skipped"
)

type Config struct {
	Gateway  llm.Gateway
	Settings model.SettingsRepository
	Backends backend.Opener
	Policy   model.RetryPolicy
	ClaimTTL time.Duration
}

type Initializer struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	completed map[string]struct{}

	wg sync.WaitGroup
}

func New(cfg Config) (*Initializer, error) {
	if cfg.Gateway == nil || cfg.Settings == nil || cfg.Backends == nil {
		return nil, fmt.Errorf("initializer needs a gateway, a settings repository and a backend opener")
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 10 * time.Minute
	}
	return &Initializer{
		cfg:       cfg,
		now:       time.Now,
		locks:     map[string]*sync.Mutex{},
		completed: map[string]struct{}{},
	}, nil
}

// Trigger runs Run in the background, detached from ctx's cancellation.
func (i *Initializer) Trigger(ctx context.Context, tenantID string) {
	ctx = context.WithoutCancel(ctx)
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := i.Run(ctx, tenantID); err != nil {
			logx.Error().Err(err).Str("tenant_id", tenantID).Msg("Tenant initialization failed")
		}
	}()
}

// Wait blocks until every triggered run has returned.
func (i *Initializer) Wait() {
	i.wg.Wait()
}

// Run initializes tenantID unless another run holds it, it already
// completed, or its persisted claim cannot be taken.
func (i *Initializer) Run(ctx context.Context, tenantID string) error {
	lock := i.lockFor(tenantID)
	if !lock.TryLock() {
		logx.Debug().Str("tenant_id", tenantID).Msg("Initialization already running")
		return nil
	}
	defer lock.Unlock()

	if i.isCompleted(tenantID) {
		return nil
	}

	owner := uuid.NewString()
	claimed, err := i.cfg.Settings.ClaimInitialization(ctx, tenantID, owner, i.now(), i.cfg.ClaimTTL)
	if err != nil {
		return fmt.Errorf("error claiming initialization: %w", err)
	}
	if !claimed {
		metrics.RecordInitRun(ResultSkipped)
		logx.Debug().Str("tenant_id", tenantID).Msg("Initialization claim not available")
		return nil
	}

	logx.Info().Str("tenant_id", tenantID).Str("owner", owner).Msg("Initializing tenant")

	if err := i.initialize(ctx, tenantID, owner); err != nil {
		if errors.Is(err, repo.ErrClaimLost) {
			metrics.RecordInitRun(ResultSkipped)
			logx.Warn().Str("tenant_id", tenantID).Str("owner", owner).Msg("Initialization claim taken over by another owner")
			return nil
		}
		metrics.RecordInitRun(ResultFailed)
		claim, ferr := i.cfg.Settings.MarkInitFailed(ctx, tenantID, owner, err.Error(), i.now(), i.cfg.Policy)
		if ferr != nil {
			logx.Error().Err(ferr).Str("tenant_id", tenantID).Msg("Error recording initialization failure")
		} else {
			logx.Warn().
				Str("tenant_id", tenantID).
				Str("status", string(claim.Status)).
				Int("attempts", claim.Attempts).
				Time("retry_at", claim.RetryAt).
				Msg("Initialization attempt recorded as failed")
		}
		return err
	}

	i.markCompleted(tenantID)
	metrics.RecordInitRun(ResultInitialized)
	logx.Info().Str("tenant_id", tenantID).Msg("Tenant initialization complete")
	return nil
}

func (i *Initializer) initialize(ctx context.Context, tenantID, owner string) error {
	settings, err := i.cfg.Settings.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	client, err := i.cfg.Backends.Open(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("error opening backend: %w", err)
	}
	defer client.Close()

	narrative, markup, err := i.design(ctx, settings.ApplicationType)
	if err != nil {
		return err
	}

	if err := i.populate(ctx, client, settings.ApplicationType); err != nil {
		return err
	}

	if err := i.cfg.Settings.SetPromptTemplate(ctx, tenantID, narrative); err != nil {
		return err
	}
	if markup != "" {
		if err := i.cfg.Settings.SaveTemplate(ctx, tenantID, "/", markup); err != nil {
			return err
		}
	}
	if err := client.MarkInitialized(ctx); err != nil {
		return fmt.Errorf("error marking backend initialized: %w", err)
	}
	return i.cfg.Settings.MarkInitialized(ctx, tenantID, owner)
}

// design asks for a narrative and then for the markup of the landing page.
// Providers without design support fall back to the default root prompt and
// no markup.
func (i *Initializer) design(ctx context.Context, applicationType string) (string, string, error) {
	narrative, err := llm.Design(ctx, i.cfg.Gateway, prompts.RenderDesignNarrative(applicationType))
	if errors.Is(err, llm.ErrDesignUnsupported) {
		logx.Warn().Str("application_type", applicationType).Msg("Provider cannot design; using the application description")
		return prompts.DefaultRootPrompt(applicationType), "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("error designing application: %w", err)
	}

	markup, err := llm.Design(ctx, i.cfg.Gateway, prompts.RenderDesignMarkup(applicationType, narrative))
	if err != nil {
		return "", "", fmt.Errorf("error designing markup: %w", err)
	}
	return narrative, parsers.StripMarkupFence(markup), nil
}

func (i *Initializer) populate(ctx context.Context, client backend.Client, applicationType string) error {
	variant := client.Variant()
	raw, err := i.cfg.Gateway.GetResponse(ctx, prompts.RenderInit(variant, applicationType), "")
	if err != nil {
		return fmt.Errorf("error requesting sample data: %w", err)
	}

	reply, err := parsers.Parse(variant, parsers.Repair(raw))
	if err != nil {
		return fmt.Errorf("error parsing sample data: %w", err)
	}

	results, err := client.ExecuteCommands(ctx, reply.Commands)
	if err != nil {
		return fmt.Errorf("error executing sample data: %w", err)
	}

	failed := 0
	for _, v := range results {
		if backend.IsErrorResult(v) {
			failed++
		}
	}
	logx.Debug().
		Int("commands", len(reply.Commands)).
		Int("failed", failed).
		Msg("Sample data executed")
	return nil
}

func (i *Initializer) lockFor(tenantID string) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	l, ok := i.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		i.locks[tenantID] = l
	}
	return l
}

func (i *Initializer) isCompleted(tenantID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.completed[tenantID]
	return ok
}

// markCompleted records tenantID and drops its lock; later runs stop at the
// completed check.
func (i *Initializer) markCompleted(tenantID string) {
	i.mu.Lock()
	i.completed[tenantID] = struct{}{}
	delete(i.locks, tenantID)
	i.mu.Unlock()
}
