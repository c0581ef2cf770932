// Package billing holds the service's core billing logic: the immutable plan
// catalog, the subscription reconciler that merges signals from the three
// update paths into the per-tenant record, and the quota enforcer that gates
// product imports on the reconciled plan.
package billing

import (
	"math"
	"time"

	"shopimport/internal/types"
)

// PriceTolerance is the maximum absolute difference between a reported
// subscription amount and a catalog price for the two to be considered the
// same plan. Gateways report amounts as decimal strings and rounding differs
// across currencies.
const PriceTolerance = 0.02

// BillingInterval is the length of one billing period for every paid plan.
const BillingInterval = 30 * 24 * time.Hour

// Catalog is the immutable set of billing plans. Defined once at startup and
// never mutated.
type Catalog struct {
	plans []types.Plan
	byID  map[types.PlanID]types.Plan
}

// NewCatalog returns the production plan catalog.
func NewCatalog() *Catalog {
	plans := []types.Plan{
		{
			ID:           types.PlanFree,
			DisplayName:  "Free",
			Price:        0.00,
			Currency:     "EUR",
			Interval:     BillingInterval,
			ProductQuota: 20,
		},
		{
			ID:           types.PlanStandard,
			DisplayName:  "Standard",
			Price:        9.99,
			Currency:     "EUR",
			Interval:     BillingInterval,
			ProductQuota: 500,
		},
		{
			ID:           types.PlanPro,
			DisplayName:  "Pro",
			Price:        19.99,
			Currency:     "EUR",
			Interval:     BillingInterval,
			ProductQuota: types.UnlimitedQuota,
		},
	}

	byID := make(map[types.PlanID]types.Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}

	return &Catalog{plans: plans, byID: byID}
}

// Get looks up a plan by ID.
func (c *Catalog) Get(id types.PlanID) (types.Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Free returns the zero-cost plan every tenant starts on.
func (c *Catalog) Free() types.Plan {
	return c.byID[types.PlanFree]
}

// All returns the catalog entries in display order.
func (c *Catalog) All() []types.Plan {
	out := make([]types.Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// MatchPrice resolves the plan whose price is within PriceTolerance of the
// given amount. Paid plans are checked before the free plan so that a small
// positive amount never resolves to FREE by accident. The second return is
// false when no plan matches; callers fall back to FREE and flag the
// mismatch for operator review.
func (c *Catalog) MatchPrice(amount float64) (types.Plan, bool) {
	var free types.Plan
	for _, p := range c.plans {
		if p.ID == types.PlanFree {
			free = p
			continue
		}
		if math.Abs(amount-p.Price) < PriceTolerance {
			return p, true
		}
	}
	if math.Abs(amount-free.Price) < PriceTolerance {
		return free, true
	}
	return types.Plan{}, false
}
