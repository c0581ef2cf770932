package types

import "time"

// PlanID identifies a billing tier in the plan catalog.
type PlanID string

const (
	PlanFree     PlanID = "FREE"
	PlanStandard PlanID = "STANDARD"
	PlanPro      PlanID = "PRO"
)

// SubscriptionStatus is the local status vocabulary for a tenant's subscription.
// External gateway statuses are uppercased into this vocabulary on ingestion.
type SubscriptionStatus string

const (
	SubStatusActive    SubscriptionStatus = "ACTIVE"
	SubStatusPending   SubscriptionStatus = "PENDING"
	SubStatusCancelled SubscriptionStatus = "CANCELLED"
)

// UnlimitedQuota marks a plan with no product-count ceiling.
const UnlimitedQuota = -1

// Plan is an immutable catalog entry for a billing tier.
type Plan struct {
	ID           PlanID        `json:"id"`
	DisplayName  string        `json:"display_name"`
	Price        float64       `json:"price"` // 2dp, in Currency
	Currency     string        `json:"currency"`
	Interval     time.Duration `json:"-"`             // billing period length
	ProductQuota int           `json:"product_quota"` // UnlimitedQuota = no limit
}

// Unlimited reports whether the plan has no product quota.
func (p Plan) Unlimited() bool {
	return p.ProductQuota == UnlimitedQuota
}

// SubscriptionRecord is the reconciled, locally authoritative billing state
// for one tenant. It is mutated exclusively by the billing reconciler; every
// write goes through the single merge path so the record invariants hold:
//
//	PlanID == FREE      => ExternalRef == nil
//	Status == CANCELLED => PlanID == FREE
type SubscriptionRecord struct {
	TenantID    string             `json:"tenant_id"`
	PlanID      PlanID             `json:"plan_id"`
	Status      SubscriptionStatus `json:"status"`
	ExternalRef *string            `json:"external_subscription_ref,omitempty"`
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   *time.Time         `json:"period_end,omitempty"`
}

// NewSubscriptionRecord returns the record a tenant starts on when first
// observed: the zero-cost plan, active, no external subscription.
func NewSubscriptionRecord(tenantID string, now time.Time) SubscriptionRecord {
	return SubscriptionRecord{
		TenantID:    tenantID,
		PlanID:      PlanFree,
		Status:      SubStatusActive,
		PeriodStart: now,
	}
}

// ExternalSubscription is the gateway's view of an active subscription,
// returned by the billing platform's active-subscription query. The Ref is
// opaque to this system.
type ExternalSubscription struct {
	Ref       string     `json:"ref"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Amount    float64    `json:"amount"`
	Currency  string     `json:"currency"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
}

// QuotaDecision is the quota enforcer's answer for "may this tenant import
// one more product". Remaining is UnlimitedQuota when the plan has no ceiling.
type QuotaDecision struct {
	Allowed      bool   `json:"allowed"`
	CurrentCount int    `json:"current_count"`
	Limit        int    `json:"limit"`
	Remaining    int    `json:"remaining"`
	PlanID       PlanID `json:"plan_id"`
}

// ImportMode selects how an imported listing is sold in the storefront.
type ImportMode string

const (
	ImportModeDropshipping ImportMode = "DROPSHIPPING"
	ImportModeAffiliate    ImportMode = "AFFILIATE"
)

// PricingMode selects how the markup in TenantPreferences.PricingValue is applied.
type PricingMode string

const (
	PricingModeMultiplier PricingMode = "MULTIPLIER"
	PricingModeFixed      PricingMode = "FIXED"
)

// TenantPreferences holds the per-tenant UI and import settings that are NOT
// billing state. They live in their own table and repository so that the
// subscription record stays behind the reconciler's get/reconcile interface.
type TenantPreferences struct {
	TenantID          string      `json:"tenant_id"`
	AffiliateID       string      `json:"affiliate_id,omitempty"`
	AffiliateMode     bool        `json:"affiliate_mode"`
	ButtonText        string      `json:"button_text"`
	ButtonEnabled     bool        `json:"button_enabled"`
	ButtonPosition    string      `json:"button_position"`
	PricingMode       PricingMode `json:"pricing_mode"`
	PricingValue      float64     `json:"pricing_value"`
	DefaultImportMode ImportMode  `json:"default_import_mode"`
	TermsAccepted     bool        `json:"terms_accepted"`
	TermsAcceptedAt   *time.Time  `json:"terms_accepted_at,omitempty"`
}

// DefaultTenantPreferences returns the preferences a tenant starts with.
func DefaultTenantPreferences(tenantID string) TenantPreferences {
	return TenantPreferences{
		TenantID:          tenantID,
		ButtonText:        "Buy on Amazon",
		ButtonEnabled:     true,
		ButtonPosition:    "AFTER_BUY_NOW",
		PricingMode:       PricingModeMultiplier,
		PricingValue:      1.0,
		DefaultImportMode: ImportModeDropshipping,
	}
}

// ScrapedProduct is a normalized product listing fetched from the upstream
// catalog by the scraper collaborator.
type ScrapedProduct struct {
	ASIN        string   `json:"asin"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Images      []string `json:"images,omitempty"`
	Variants    []string `json:"variants,omitempty"`
	SourceURL   string   `json:"source_url"`
}

// ImportedProduct records one completed catalog import for a tenant. The
// per-tenant count of these rows is the input to quota enforcement; the
// counter is owned by the import pipeline and only ever grows.
type ImportedProduct struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	StoreProdID   string     `json:"store_product_id"`
	StoreHandle   string     `json:"store_handle,omitempty"`
	SourceURL     string     `json:"source_url"`
	SourceASIN    string     `json:"source_asin,omitempty"`
	Title         string     `json:"title"`
	Price         float64    `json:"price"`
	OriginalPrice float64    `json:"original_price"`
	ImportMode    ImportMode `json:"import_mode"`
	Status        string     `json:"status"` // DRAFT or ACTIVE
	CreatedAt     time.Time  `json:"created_at"`
}
