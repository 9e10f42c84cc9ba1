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

// ClaimInitialization moves the tenant to "initializing" for owner. The claim
// succeeds when the tenant is uninitialized and its retry time has passed, when
// owner already holds it, or when another owner's claim is older than ttl.
func (r *SettingsRepository) ClaimInitialization(ctx context.Context, tenantID, owner string, now time.Time, ttl time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE app_settings SET
			init_status = 'initializing', init_owner = ?, init_claimed_at = ?, updated_at = ?
		WHERE guid = ? AND (
			(init_status = 'uninitialized' AND init_retry_at <= ?)
			OR (init_status = 'initializing' AND (init_owner = ? OR init_claimed_at <= ?))
		)`,
		owner, millis(now), millis(now), tenantID, millis(now), owner, millis(now.Add(-ttl)))
	if err != nil {
		return false, errx.WrapSQLite(fmt.Errorf("failed to claim initialization: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errx.WrapSQLite(err)
	}
	return n == 1, nil
}

func (r *SettingsRepository) MarkInitialized(ctx context.Context, tenantID, owner string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE app_settings SET
			init_status = 'initialized', init_owner = '', init_error = '', init_retry_at = 0, updated_at = ?
		WHERE guid = ? AND init_owner = ?`,
		millis(r.now()), tenantID, owner)
	if err != nil {
		return errx.WrapSQLite(fmt.Errorf("failed to mark initialized: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClaimLost
	}
	return nil
}

// MarkInitFailed releases owner's claim, counts the attempt and schedules the
// next one. Once the policy is exhausted the tenant stays "failed" until its
// settings are edited.
func (r *SettingsRepository) MarkInitFailed(ctx context.Context, tenantID, owner, reason string, now time.Time, policy model.RetryPolicy) (*model.InitClaim, error) {
	var claim model.InitClaim
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var attempts int
		err := tx.QueryRowContext(ctx,
			`SELECT init_attempts FROM app_settings WHERE guid = ? AND init_owner = ?`, tenantID, owner,
		).Scan(&attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrClaimLost
		}
		if err != nil {
			return fmt.Errorf("failed to read attempts: %w", err)
		}

		attempts++
		retryAt, exhausted := policy.Next(attempts, now)
		status := model.InitUninitialized
		if exhausted {
			status = model.InitFailed
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE app_settings SET
				init_status = ?, init_owner = '', init_attempts = ?, init_retry_at = ?, init_error = ?, updated_at = ?
			WHERE guid = ?`,
			string(status), attempts, millis(retryAt), reason, millis(now), tenantID)
		if err != nil {
			return fmt.Errorf("failed to record initialization failure: %w", err)
		}

		claim = model.InitClaim{Status: status, Attempts: attempts, RetryAt: retryAt, LastError: reason}
		return nil
	})
	if errors.Is(err, ErrClaimLost) {
		return nil, ErrClaimLost
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}
