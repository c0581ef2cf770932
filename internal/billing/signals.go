package billing

import (
	"time"

	"shopimport/internal/types"
)

// Signal is a billing state update from one of the three paths: the checkout
// redirect, the platform webhook, or an on-demand gateway sync. The interface
// is sealed so the reconciler's merge can switch over a closed set of
// variants.
type Signal interface {
	isSignal()
}

// CheckoutReturn is produced when the merchant lands back from the billing
// confirmation page. Payment was captured before the redirect fired, but the
// redirect may have lost query state, so the plan hint can be absent.
type CheckoutReturn struct {
	// ExternalRef is the charge reference from the redirect, when present.
	ExternalRef *string
	// PlanHint is the plan the merchant checked out for. Empty or unknown
	// values mean the redirect lost it and a manual sync must resolve the
	// plan.
	PlanHint types.PlanID
}

func (CheckoutReturn) isSignal() {}

// WebhookUpdate carries the platform's asynchronous subscription
// notification. Delivery is at-least-once with no ordering guarantee, so the
// merge applies it as an unconditional overwrite.
type WebhookUpdate struct {
	// Status is the platform's status string, normalized to upper case
	// before matching.
	Status      string
	Amount      float64
	Currency    string
	ExternalRef string
	PeriodEnd   *time.Time
}

func (WebhookUpdate) isSignal() {}

// ManualSync carries the result of actively querying the gateway for the
// tenant's active subscriptions. An empty list means the tenant has no
// active subscription and reverts to the free plan.
type ManualSync struct {
	Subscriptions []types.ExternalSubscription
}

func (ManualSync) isSignal() {}
