package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"shopimport/internal/types"
)

// TenantSettingsRepo is the durable store for per-tenant subscription records.
//
// Key invariants:
//   - The record is mutated exclusively through Reconcile, which runs a
//     read-modify-write inside a transaction holding a row lock
//     (SELECT ... FOR UPDATE). Concurrent reconciliations for the same tenant
//     serialize on the row; different tenants never block each other.
//   - A failed write leaves the previous record authoritative; there are no
//     partial updates.
type TenantSettingsRepo struct {
	db     TxDB
	logger *slog.Logger
}

// NewTenantSettingsRepo creates a TenantSettingsRepo backed by the given pool.
func NewTenantSettingsRepo(db TxDB, logger *slog.Logger) *TenantSettingsRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantSettingsRepo{db: db, logger: logger}
}

// Get returns the tenant's subscription record. Tenants that have never been
// written return the default FREE/ACTIVE record without creating a row;
// creation is deferred to the first Reconcile.
func (r *TenantSettingsRepo) Get(ctx context.Context, tenantID string) (types.SubscriptionRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT tenant_id, plan_id, status, external_subscription_ref, period_start, period_end
		 FROM tenant_subscriptions
		 WHERE tenant_id = $1`,
		tenantID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewSubscriptionRecord(tenantID, time.Now().UTC()), nil
		}
		return types.SubscriptionRecord{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to read subscription record", err)
	}
	return rec, nil
}

// Reconcile atomically applies fn to the tenant's current record and persists
// the result. The row is locked for the duration of the transaction, so the
// read-modify-write is serialized per tenant. If the tenant has no row yet,
// the default FREE/ACTIVE record is inserted first so the lock has something
// to hold.
//
// If fn returns an error, the transaction is rolled back and nothing changes.
// The updated record is returned on success.
func (r *TenantSettingsRepo) Reconcile(
	ctx context.Context,
	tenantID string,
	fn func(types.SubscriptionRecord) (types.SubscriptionRecord, error),
) (types.SubscriptionRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return types.SubscriptionRecord{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to begin reconcile transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Ensure the row exists so FOR UPDATE can lock it. First observation of a
	// tenant starts on the zero-cost plan.
	defaultRec := types.NewSubscriptionRecord(tenantID, time.Now().UTC())
	_, err = tx.Exec(ctx,
		`INSERT INTO tenant_subscriptions (tenant_id, plan_id, status, external_subscription_ref, period_start, period_end)
		 VALUES ($1, $2, $3, NULL, $4, NULL)
		 ON CONFLICT (tenant_id) DO NOTHING`,
		tenantID, defaultRec.PlanID, defaultRec.Status, defaultRec.PeriodStart,
	)
	if err != nil {
		return types.SubscriptionRecord{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to ensure subscription record", err)
	}

	current, err := scanRecord(tx.QueryRow(ctx,
		`SELECT tenant_id, plan_id, status, external_subscription_ref, period_start, period_end
		 FROM tenant_subscriptions
		 WHERE tenant_id = $1
		 FOR UPDATE`,
		tenantID,
	))
	if err != nil {
		return types.SubscriptionRecord{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to lock subscription record", err)
	}

	next, err := fn(current)
	if err != nil {
		return types.SubscriptionRecord{}, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE tenant_subscriptions
		 SET plan_id = $1,
		     status = $2,
		     external_subscription_ref = $3,
		     period_start = $4,
		     period_end = $5,
		     updated_at = NOW()
		 WHERE tenant_id = $6`,
		next.PlanID, next.Status, next.ExternalRef, next.PeriodStart, next.PeriodEnd, tenantID,
	)
	if err != nil {
		return types.SubscriptionRecord{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to write subscription record", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.SubscriptionRecord{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to commit subscription record", err)
	}

	return next, nil
}

// scanRecord maps one tenant_subscriptions row into a SubscriptionRecord.
func scanRecord(row pgx.Row) (types.SubscriptionRecord, error) {
	var rec types.SubscriptionRecord
	err := row.Scan(
		&rec.TenantID,
		&rec.PlanID,
		&rec.Status,
		&rec.ExternalRef,
		&rec.PeriodStart,
		&rec.PeriodEnd,
	)
	if err != nil {
		return types.SubscriptionRecord{}, err
	}
	return rec, nil
}
