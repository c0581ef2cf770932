package billing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"shopimport/internal/types"
)

// PendingExternalRef is stored when a checkout return confirms payment but
// carries no charge reference and none was known before. The next webhook or
// manual sync replaces it with the real reference.
const PendingExternalRef = "confirmed-pending-ref"

// Outcome reports what a merge did beyond the record itself.
type Outcome struct {
	// Changed is true when the merge produced a record different from the
	// stored one.
	Changed bool
	// NeedsSync is true when the signal could not determine the plan and a
	// gateway sync is required. The record is untouched in that case.
	NeedsSync bool
	// PlanMismatch is true when an active subscription's amount matched no
	// catalog plan and the tenant was conservatively resolved to FREE.
	PlanMismatch     bool
	MismatchAmount   float64
	MismatchCurrency string
}

// Merge computes the next subscription record from the current one and a
// signal. It is a pure function: no I/O, no clock reads, fully deterministic
// for a given now. Every write path goes through Merge so the record
// invariants hold after every transition:
//
//	PlanID == FREE      => ExternalRef == nil
//	Status == CANCELLED => PlanID == FREE
//
// Signals are applied as unconditional overwrites; no attempt is made to
// reorder them by timestamp. The platform treats its own webhook stream as
// eventually-consistent truth and so do we.
func Merge(catalog *Catalog, old types.SubscriptionRecord, sig Signal, now time.Time) (types.SubscriptionRecord, Outcome) {
	switch s := sig.(type) {
	case CheckoutReturn:
		return mergeCheckoutReturn(catalog, old, s, now)
	case WebhookUpdate:
		return mergeWebhookUpdate(catalog, old, s, now)
	case ManualSync:
		return mergeManualSync(catalog, old, s, now)
	default:
		return old, Outcome{}
	}
}

func mergeCheckoutReturn(catalog *Catalog, old types.SubscriptionRecord, s CheckoutReturn, now time.Time) (types.SubscriptionRecord, Outcome) {
	plan, ok := catalog.Get(s.PlanHint)
	if s.PlanHint == "" || !ok {
		// Never guess a plan. The tenant stays on its last known plan until
		// a gateway sync resolves the real one.
		return old, Outcome{NeedsSync: true}
	}

	ref := s.ExternalRef
	if ref == nil {
		ref = old.ExternalRef
	}
	if ref == nil {
		pending := PendingExternalRef
		ref = &pending
	}

	next := old
	next.PlanID = plan.ID
	next.Status = types.SubStatusActive
	next.ExternalRef = ref
	next.PeriodStart = now
	end := now.Add(plan.Interval)
	next.PeriodEnd = &end

	next = enforceInvariants(next)
	return next, Outcome{Changed: !recordsEqual(old, next)}
}

func mergeWebhookUpdate(catalog *Catalog, old types.SubscriptionRecord, s WebhookUpdate, now time.Time) (types.SubscriptionRecord, Outcome) {
	switch strings.ToUpper(s.Status) {
	case "CANCELLED", "EXPIRED":
		next := revertToFree(old, now)
		return next, Outcome{Changed: !recordsEqual(old, next)}

	case "ACTIVE":
		out := Outcome{}
		plan, matched := catalog.MatchPrice(s.Amount)
		if !matched {
			plan = catalog.Free()
			out.PlanMismatch = true
			out.MismatchAmount = s.Amount
			out.MismatchCurrency = s.Currency
		}

		next := old
		next.PlanID = plan.ID
		next.Status = types.SubStatusActive
		next.ExternalRef = nil
		if s.ExternalRef != "" {
			ref := s.ExternalRef
			next.ExternalRef = &ref
		}
		next.PeriodStart = now
		if s.PeriodEnd != nil {
			end := *s.PeriodEnd
			next.PeriodEnd = &end
		}

		next = enforceInvariants(next)
		out.Changed = !recordsEqual(old, next)
		return next, out

	default:
		// Unrecognized status (e.g. PENDING, FROZEN): the platform will send
		// a terminal status later. Nothing to apply.
		return old, Outcome{}
	}
}

func mergeManualSync(catalog *Catalog, old types.SubscriptionRecord, s ManualSync, now time.Time) (types.SubscriptionRecord, Outcome) {
	if len(s.Subscriptions) == 0 {
		next := revertToFree(old, now)
		return next, Outcome{Changed: !recordsEqual(old, next)}
	}

	// The platform allows at most one active subscription per tenant.
	entry := s.Subscriptions[0]
	status := strings.ToUpper(entry.Status)
	if status == "CANCELLED" || status == "EXPIRED" {
		next := revertToFree(old, now)
		return next, Outcome{Changed: !recordsEqual(old, next)}
	}

	out := Outcome{}
	plan, matched := catalog.MatchPrice(entry.Amount)
	if !matched {
		plan = catalog.Free()
		out.PlanMismatch = true
		out.MismatchAmount = entry.Amount
		out.MismatchCurrency = entry.Currency
	}

	next := old
	next.PlanID = plan.ID
	next.Status = normalizeStatus(status)
	next.ExternalRef = nil
	if entry.Ref != "" {
		ref := entry.Ref
		next.ExternalRef = &ref
	}
	next.PeriodStart = now
	if entry.PeriodEnd != nil {
		end := *entry.PeriodEnd
		next.PeriodEnd = &end
	}

	next = enforceInvariants(next)
	out.Changed = !recordsEqual(old, next)
	return next, out
}

// revertToFree is the transition shared by cancellation webhooks and empty
// sync results. Idempotent for a fixed now.
func revertToFree(old types.SubscriptionRecord, now time.Time) types.SubscriptionRecord {
	return types.SubscriptionRecord{
		TenantID:    old.TenantID,
		PlanID:      types.PlanFree,
		Status:      types.SubStatusActive,
		ExternalRef: nil,
		PeriodStart: now,
		PeriodEnd:   nil,
	}
}

// enforceInvariants is the last step of every transition that does not revert
// to free. It guarantees no signal path can produce a FREE plan holding a
// stale external ref, or a cancelled record on a paid tier.
func enforceInvariants(rec types.SubscriptionRecord) types.SubscriptionRecord {
	if rec.Status == types.SubStatusCancelled {
		rec.PlanID = types.PlanFree
	}
	if rec.PlanID == types.PlanFree {
		rec.ExternalRef = nil
	}
	return rec
}

// normalizeStatus coerces an uppercased gateway status into the local
// vocabulary. Anything unrecognized is treated as active, since the gateway
// only returns live subscriptions from the active-subscription query.
func normalizeStatus(upper string) types.SubscriptionStatus {
	switch types.SubscriptionStatus(upper) {
	case types.SubStatusActive, types.SubStatusPending, types.SubStatusCancelled:
		return types.SubscriptionStatus(upper)
	default:
		return types.SubStatusActive
	}
}

func recordsEqual(a, b types.SubscriptionRecord) bool {
	if a.TenantID != b.TenantID || a.PlanID != b.PlanID || a.Status != b.Status {
		return false
	}
	if (a.ExternalRef == nil) != (b.ExternalRef == nil) {
		return false
	}
	if a.ExternalRef != nil && *a.ExternalRef != *b.ExternalRef {
		return false
	}
	if !a.PeriodStart.Equal(b.PeriodStart) {
		return false
	}
	if (a.PeriodEnd == nil) != (b.PeriodEnd == nil) {
		return false
	}
	if a.PeriodEnd != nil && !a.PeriodEnd.Equal(*b.PeriodEnd) {
		return false
	}
	return true
}

// SettingsStore is the durable per-tenant record store the reconciler writes
// through. Reconcile must run the apply function under per-tenant
// serialization and commit all-or-nothing.
type SettingsStore interface {
	Get(ctx context.Context, tenantID string) (types.SubscriptionRecord, error)
	Reconcile(ctx context.Context, tenantID string, fn func(types.SubscriptionRecord) (types.SubscriptionRecord, error)) (types.SubscriptionRecord, error)
}

// MetricEmitter receives operator-visibility signals. Implemented by the
// CloudWatch emitter in production and a no-op elsewhere.
type MetricEmitter interface {
	EmitPlanMismatch(ctx context.Context, tenantID string, amount float64, currency string)
}

// Reconciler is the single authority for mutating subscription records. All
// three update paths funnel through Reconcile, which wraps the pure Merge in
// the store's atomic read-modify-write.
type Reconciler struct {
	catalog *Catalog
	store   SettingsStore
	metrics MetricEmitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewReconciler wires the reconciler. metrics may be nil.
func NewReconciler(catalog *Catalog, store SettingsStore, metrics MetricEmitter, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		catalog: catalog,
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile merges the signal into the tenant's record and persists the
// result atomically. A failed durable write returns a retryable error and
// leaves the previous record authoritative. The returned record is the state
// after the merge; Outcome.NeedsSync tells the caller the plan could not be
// determined and a gateway sync is required.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID string, sig Signal) (types.SubscriptionRecord, Outcome, error) {
	var out Outcome
	rec, err := r.store.Reconcile(ctx, tenantID, func(current types.SubscriptionRecord) (types.SubscriptionRecord, error) {
		next, o := Merge(r.catalog, current, sig, r.now())
		out = o
		return next, nil
	})
	if err != nil {
		return types.SubscriptionRecord{}, Outcome{}, err
	}

	if out.PlanMismatch {
		// A currency or pricing change upstream could silently downgrade
		// paying tenants, so the FREE fallback must be loud.
		r.logger.Warn("subscription amount matched no plan, tenant resolved to free tier",
			slog.String("tenant", tenantID),
			slog.Float64("amount", out.MismatchAmount),
			slog.String("currency", out.MismatchCurrency),
		)
		if r.metrics != nil {
			r.metrics.EmitPlanMismatch(ctx, tenantID, out.MismatchAmount, out.MismatchCurrency)
		}
	}

	return rec, out, nil
}

// Record returns the tenant's current subscription record without mutating
// anything. Unknown tenants read as the default FREE/ACTIVE record.
func (r *Reconciler) Record(ctx context.Context, tenantID string) (types.SubscriptionRecord, error) {
	return r.store.Get(ctx, tenantID)
}
