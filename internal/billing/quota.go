package billing

import (
	"context"
	"log/slog"

	"shopimport/internal/types"
)

// RecordReader provides read-only access to the reconciled subscription
// record. The enforcer never mutates it.
type RecordReader interface {
	Get(ctx context.Context, tenantID string) (types.SubscriptionRecord, error)
}

// ProductCounter reports how many products a tenant has imported. The counter
// is owned by the import pipeline; the enforcer only reads it.
type ProductCounter interface {
	CountByTenant(ctx context.Context, tenantID string) (int, error)
}

// Enforcer answers whether a tenant may import one more product under its
// current plan. Pure read; it has no side effects.
type Enforcer struct {
	catalog *Catalog
	records RecordReader
	counter ProductCounter
	logger  *slog.Logger
}

// NewEnforcer wires the quota enforcer.
func NewEnforcer(catalog *Catalog, records RecordReader, counter ProductCounter, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{
		catalog: catalog,
		records: records,
		counter: counter,
		logger:  logger,
	}
}

// CheckLimit returns the quota decision for one more import. Tenants without
// a record are on the free plan. A plan quota of -1 is unlimited: always
// allowed, with Remaining reported as -1.
func (e *Enforcer) CheckLimit(ctx context.Context, tenantID string) (types.QuotaDecision, error) {
	rec, err := e.records.Get(ctx, tenantID)
	if err != nil {
		return types.QuotaDecision{}, err
	}

	plan, ok := e.catalog.Get(rec.PlanID)
	if !ok {
		// A record should never hold a plan outside the catalog; fall back
		// to the free tier rather than failing the import flow.
		e.logger.Warn("subscription record holds unknown plan",
			slog.String("tenant", tenantID),
			slog.String("plan", string(rec.PlanID)),
		)
		plan = e.catalog.Free()
	}

	count, err := e.counter.CountByTenant(ctx, tenantID)
	if err != nil {
		return types.QuotaDecision{}, err
	}

	if plan.Unlimited() {
		return types.QuotaDecision{
			Allowed:      true,
			CurrentCount: count,
			Limit:        types.UnlimitedQuota,
			Remaining:    types.UnlimitedQuota,
			PlanID:       plan.ID,
		}, nil
	}

	remaining := plan.ProductQuota - count
	if remaining < 0 {
		remaining = 0
	}

	return types.QuotaDecision{
		Allowed:      count < plan.ProductQuota,
		CurrentCount: count,
		Limit:        plan.ProductQuota,
		Remaining:    remaining,
		PlanID:       plan.ID,
	}, nil
}
