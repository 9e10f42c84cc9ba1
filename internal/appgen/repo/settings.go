// Package repo persists tenant settings, page instructions, cached page
// templates and the initialization claim in a single SQLite database.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/genapp-poc-v1/server/internal/appgen/model"
	errx "github.com/genapp-poc-v1/server/internal/core/error"
)

// ErrClaimLost is returned when a claim owner finishes after losing its claim.
var ErrClaimLost = errors.New("initialization claim no longer held")

const schemaDDL = `
CREATE TABLE IF NOT EXISTS app_settings (
	guid             TEXT PRIMARY KEY,
	application_type TEXT NOT NULL,
	prompt_template  TEXT NOT NULL DEFAULT '',
	init_status      TEXT NOT NULL DEFAULT 'uninitialized',
	init_owner       TEXT NOT NULL DEFAULT '',
	init_claimed_at  INTEGER NOT NULL DEFAULT 0,
	init_attempts    INTEGER NOT NULL DEFAULT 0,
	init_retry_at    INTEGER NOT NULL DEFAULT 0,
	init_error       TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS page_instructions (
	guid              TEXT NOT NULL,
	page_path         TEXT NOT NULL,
	page_instructions TEXT NOT NULL,
	PRIMARY KEY (guid, page_path)
);
CREATE TABLE IF NOT EXISTS generated_templates (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	guid       TEXT NOT NULL,
	page_path  TEXT NOT NULL,
	template   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generated_templates_page ON generated_templates (guid, page_path, id);
`

// SettingsRepository is the SQLite implementation of model.SettingsRepository.
// Timestamps are stored as unix milliseconds.
type SettingsRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ model.SettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository creates the tables if needed and returns the store.
func NewSettingsRepository(ctx context.Context, db *sql.DB) (*SettingsRepository, error) {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return nil, errx.WrapSQLite(fmt.Errorf("failed to migrate settings schema: %w", err))
	}
	return &SettingsRepository{db: db, now: time.Now}, nil
}

func (r *SettingsRepository) CreateTenant(ctx context.Context, tenantID, applicationType string) (*model.TenantSettings, error) {
	now := r.now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO app_settings (guid, application_type, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		tenantID, applicationType, millis(now), millis(now))
	if err != nil {
		return nil, errx.WrapSQLite(fmt.Errorf("failed to create tenant: %w", err))
	}
	return r.GetTenant(ctx, tenantID)
}

func (r *SettingsRepository) GetTenant(ctx context.Context, tenantID string) (*model.TenantSettings, error) {
	var (
		s                                   model.TenantSettings
		status                              string
		claimedAt, retryAt, created, updated int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT guid, application_type, prompt_template, init_status, init_owner, init_claimed_at,
		       init_attempts, init_retry_at, init_error, created_at, updated_at
		FROM app_settings WHERE guid = ?`, tenantID,
	).Scan(&s.TenantID, &s.ApplicationType, &s.PromptTemplate, &status, &s.Init.Owner, &claimedAt,
		&s.Init.Attempts, &retryAt, &s.Init.LastError, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errx.TenantNotFound(tenantID)
	}
	if err != nil {
		return nil, errx.WrapSQLite(fmt.Errorf("failed to load tenant: %w", err))
	}

	s.Init.Status = model.InitStatus(status)
	s.Init.ClaimedAt = fromMillis(claimedAt)
	s.Init.RetryAt = fromMillis(retryAt)
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(updated)
	return &s, nil
}

// UpdateSettings applies an operator edit. Any edit resets the initialization
// attempt counter so a failed tenant becomes retryable again.
func (r *SettingsRepository) UpdateSettings(ctx context.Context, u model.SettingsUpdate) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		now := millis(r.now())

		res, err := tx.ExecContext(ctx, `
			UPDATE app_settings SET
				application_type = COALESCE(NULLIF(?, ''), application_type),
				prompt_template  = COALESCE(?, prompt_template),
				init_attempts    = 0,
				init_retry_at    = 0,
				init_status      = CASE init_status WHEN 'failed' THEN 'uninitialized' ELSE init_status END,
				updated_at       = ?
			WHERE guid = ?`,
			u.ApplicationType, nullable(u.PromptTemplate), now, u.TenantID)
		if err != nil {
			return fmt.Errorf("failed to update settings: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errx.TenantNotFound(u.TenantID)
		}

		if u.PageInstructions != nil {
			pagePath := model.NormalizePagePath(u.PagePath)
			if *u.PageInstructions == "" {
				_, err = tx.ExecContext(ctx,
					`DELETE FROM page_instructions WHERE guid = ? AND page_path = ?`, u.TenantID, pagePath)
			} else {
				_, err = tx.ExecContext(ctx, `
					INSERT INTO page_instructions (guid, page_path, page_instructions) VALUES (?, ?, ?)
					ON CONFLICT (guid, page_path) DO UPDATE SET page_instructions = excluded.page_instructions`,
					u.TenantID, pagePath, *u.PageInstructions)
			}
			if err != nil {
				return fmt.Errorf("failed to save page instructions: %w", err)
			}
		}

		if u.ClearTemplates {
			if _, err := tx.ExecContext(ctx, `DELETE FROM generated_templates WHERE guid = ?`, u.TenantID); err != nil {
				return fmt.Errorf("failed to clear templates: %w", err)
			}
		}
		return nil
	})
}

func (r *SettingsRepository) SetPromptTemplate(ctx context.Context, tenantID, prompt string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE app_settings SET prompt_template = ?, updated_at = ? WHERE guid = ?`,
		prompt, millis(r.now()), tenantID)
	if err != nil {
		return errx.WrapSQLite(fmt.Errorf("failed to save prompt template: %w", err))
	}
	return nil
}

func (r *SettingsRepository) GetPageInstructions(ctx context.Context, tenantID, pagePath string) (string, error) {
	var text string
	err := r.db.QueryRowContext(ctx,
		`SELECT page_instructions FROM page_instructions WHERE guid = ? AND page_path = ?`,
		tenantID, model.NormalizePagePath(pagePath)).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errx.WrapSQLite(fmt.Errorf("failed to load page instructions: %w", err))
	}
	return text, nil
}

func (r *SettingsRepository) SaveTemplate(ctx context.Context, tenantID, pagePath, template string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO generated_templates (guid, page_path, template, created_at) VALUES (?, ?, ?, ?)`,
		tenantID, model.NormalizePagePath(pagePath), template, millis(r.now()))
	if err != nil {
		return errx.WrapSQLite(fmt.Errorf("failed to save template: %w", err))
	}
	return nil
}

func (r *SettingsRepository) LatestTemplate(ctx context.Context, tenantID, pagePath, refererPath string) (*model.CachedTemplate, error) {
	pagePath = model.NormalizePagePath(pagePath)
	t, err := r.latest(ctx, tenantID, pagePath)
	if err != nil || t != nil || refererPath == "" {
		return t, err
	}

	refererPath = model.NormalizePagePath(refererPath)
	if refererPath == pagePath {
		return nil, nil
	}
	t, err = r.latest(ctx, tenantID, refererPath)
	if t != nil {
		t.Fallback = true
	}
	return t, err
}

func (r *SettingsRepository) latest(ctx context.Context, tenantID, pagePath string) (*model.CachedTemplate, error) {
	var (
		t       = model.CachedTemplate{TenantID: tenantID, PagePath: pagePath}
		created int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT template, created_at FROM generated_templates
		WHERE guid = ? AND page_path = ? ORDER BY id DESC LIMIT 1`,
		tenantID, pagePath).Scan(&t.Template, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errx.WrapSQLite(fmt.Errorf("failed to load template: %w", err))
	}
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

func (r *SettingsRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errx.WrapSQLite(fmt.Errorf("failed to begin transaction: %w", err))
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		var appErr *errx.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return errx.WrapSQLite(err)
	}
	if err := tx.Commit(); err != nil {
		return errx.WrapSQLite(fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
