package model

import (
	"context"
	"path"
	"strings"
	"time"
)

type InitStatus string

const (
	InitUninitialized InitStatus = "uninitialized"
	InitInitializing  InitStatus = "initializing"
	InitInitialized   InitStatus = "initialized"
	InitFailed        InitStatus = "failed"
)

// InitClaim is the persisted initialization record of a tenant.
type InitClaim struct {
	Status    InitStatus
	Owner     string
	ClaimedAt time.Time
	Attempts  int
	RetryAt   time.Time
	LastError string
}

// TenantSettings is the per-tenant application configuration.
type TenantSettings struct {
	TenantID        string
	ApplicationType string
	// PromptTemplate is the root instruction prompt; it starts as the design narrative.
	PromptTemplate string
	Init           InitClaim
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Title is shown in the application shell.
func (s TenantSettings) Title() string {
	return "AI Powered " + s.ApplicationType
}

// SettingsUpdate carries an operator edit from the settings form.
type SettingsUpdate struct {
	TenantID         string
	PagePath         string
	ApplicationType  string
	PromptTemplate   *string
	PageInstructions *string
	ClearTemplates   bool
}

// CachedTemplate is the newest markup stored for a page.
type CachedTemplate struct {
	TenantID  string
	PagePath  string
	Template  string
	CreatedAt time.Time
	// Fallback is set when the markup belongs to the referring page.
	Fallback bool
}

type SettingsRepository interface {
	CreateTenant(ctx context.Context, tenantID, applicationType string) (*TenantSettings, error)
	GetTenant(ctx context.Context, tenantID string) (*TenantSettings, error)
	UpdateSettings(ctx context.Context, u SettingsUpdate) error
	SetPromptTemplate(ctx context.Context, tenantID, prompt string) error

	GetPageInstructions(ctx context.Context, tenantID, pagePath string) (string, error)

	SaveTemplate(ctx context.Context, tenantID, pagePath, template string) error
	// LatestTemplate returns the newest template for pagePath, falling back to
	// refererPath. It returns nil when neither has one.
	LatestTemplate(ctx context.Context, tenantID, pagePath, refererPath string) (*CachedTemplate, error)

	ClaimInitialization(ctx context.Context, tenantID, owner string, now time.Time, ttl time.Duration) (bool, error)
	MarkInitialized(ctx context.Context, tenantID, owner string) error
	MarkInitFailed(ctx context.Context, tenantID, owner, reason string, now time.Time, policy RetryPolicy) (*InitClaim, error)
}

// RetryPolicy bounds initialization retries with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Next returns when attempt number attempts+1 may start, or exhausted once
// attempts reaches MaxAttempts.
func (p RetryPolicy) Next(attempts int, now time.Time) (retryAt time.Time, exhausted bool) {
	if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
		return time.Time{}, true
	}
	shift := attempts - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 16 {
		shift = 16
	}
	return now.Add(p.Backoff << shift), false
}

// NormalizePagePath cleans a page route: leading slash, no duplicate
// separators, dot segments resolved and no trailing slash except root.
func NormalizePagePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
