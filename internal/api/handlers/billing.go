package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"shopimport/internal/billing"
	"shopimport/internal/core"
	"shopimport/internal/types"
)

// BillingGateway abstracts the commerce platform's billing API.
type BillingGateway interface {
	CreateSubscription(ctx context.Context, tenantID string, plan types.Plan) (confirmationURL string, err error)
	CancelSubscription(ctx context.Context, tenantID, externalRef string) error
	ListActiveSubscriptions(ctx context.Context, tenantID string) ([]types.ExternalSubscription, error)
}

// RecordReader reads the reconciled subscription record.
type RecordReader interface {
	Record(ctx context.Context, tenantID string) (types.SubscriptionRecord, error)
}

// QuotaChecker answers whether one more import is allowed.
type QuotaChecker interface {
	CheckLimit(ctx context.Context, tenantID string) (types.QuotaDecision, error)
}

// SubscribeRequest is the body for POST /v1/billing/subscription.
type SubscribeRequest struct {
	Plan types.PlanID `json:"plan" validate:"required,oneof=FREE STANDARD PRO"`
}

// SubscribeResponse carries the platform confirmation URL the merchant must
// visit to approve the charge. Empty for the free plan, which needs no
// checkout.
type SubscribeResponse struct {
	ConfirmationURL string                   `json:"confirmation_url,omitempty"`
	Record          types.SubscriptionRecord `json:"record"`
}

// StatusResponse is the body for GET /v1/billing/status.
type StatusResponse struct {
	Record types.SubscriptionRecord `json:"record"`
	Plan   types.Plan               `json:"plan"`
	Quota  types.QuotaDecision      `json:"quota"`
}

// SyncResponse is the body for POST /v1/billing/sync.
type SyncResponse struct {
	Record types.SubscriptionRecord `json:"record"`
	Synced bool                     `json:"synced"`
}

// BillingHandler serves the authenticated billing endpoints: subscribe,
// cancel, manual sync, and status.
type BillingHandler struct {
	gateway    BillingGateway
	reconciler SubscriptionReconciler
	records    RecordReader
	quota      QuotaChecker
	catalog    *billing.Catalog
	validator  *core.Validator
	logger     *slog.Logger

	// syncGroup collapses concurrent manual syncs for the same tenant into
	// one gateway call.
	syncGroup singleflight.Group
}

// NewBillingHandler creates a BillingHandler with the provided dependencies.
func NewBillingHandler(
	gateway BillingGateway,
	reconciler SubscriptionReconciler,
	records RecordReader,
	quota QuotaChecker,
	catalog *billing.Catalog,
	v *core.Validator,
	logger *slog.Logger,
) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		gateway:    gateway,
		reconciler: reconciler,
		records:    records,
		quota:      quota,
		catalog:    catalog,
		validator:  v,
		logger:     logger,
	}
}

// RegisterRoutes mounts the billing endpoints under the authenticated router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/subscription", h.Subscribe)
	r.Delete("/billing/subscription", h.Cancel)
	r.Post("/billing/sync", h.Sync)
	r.Get("/billing/status", h.Status)
	r.Get("/billing/plans", h.Plans)
}

// Subscribe starts a checkout for a paid plan and returns the confirmation
// URL. Choosing the free plan short-circuits to a local reconciliation with
// no gateway call.
func (h *BillingHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := types.GetTenant(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no tenant in context", nil))
		return
	}

	var req SubscribeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan, ok := h.catalog.Get(req.Plan)
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPlan, "unknown plan", nil))
		return
	}

	if plan.ID == types.PlanFree {
		rec, _, err := h.reconciler.Reconcile(r.Context(), tenantID, billing.ManualSync{})
		if err != nil {
			core.Error(w, r, err)
			return
		}
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SubscribeResponse{Record: rec}})
		return
	}

	confirmationURL, err := h.gateway.CreateSubscription(r.Context(), tenantID, plan)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	rec, err := h.records.Record(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SubscribeResponse{
		ConfirmationURL: confirmationURL,
		Record:          rec,
	}})
}

// Cancel cancels the tenant's subscription at the gateway, then reverts the
// local record to the free plan.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := types.GetTenant(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no tenant in context", nil))
		return
	}

	rec, err := h.records.Record(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if rec.ExternalRef != nil && *rec.ExternalRef != billing.PendingExternalRef {
		if err := h.gateway.CancelSubscription(r.Context(), tenantID, *rec.ExternalRef); err != nil {
			// The local record stays untouched; the merchant can retry.
			core.Error(w, r, err)
			return
		}
	}

	rec, _, err = h.reconciler.Reconcile(r.Context(), tenantID, billing.ManualSync{})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SubscribeResponse{Record: rec}})
}

// Sync queries the gateway for the tenant's active subscriptions and feeds
// the result into the reconciler. Concurrent syncs for one tenant share a
// single gateway round trip. A gateway timeout leaves the record unchanged
// and the needs-sync state preserved for a future retry.
func (h *BillingHandler) Sync(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := types.GetTenant(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no tenant in context", nil))
		return
	}

	result, err, _ := h.syncGroup.Do(tenantID, func() (any, error) {
		subs, err := h.gateway.ListActiveSubscriptions(r.Context(), tenantID)
		if err != nil {
			return nil, err
		}
		rec, _, err := h.reconciler.Reconcile(r.Context(), tenantID, billing.ManualSync{Subscriptions: subs})
		if err != nil {
			return nil, err
		}
		return rec, nil
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SyncResponse{
		Record: result.(types.SubscriptionRecord),
		Synced: true,
	}})
}

// Status returns the reconciled record, the resolved plan details, and the
// current quota decision.
func (h *BillingHandler) Status(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := types.GetTenant(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no tenant in context", nil))
		return
	}

	rec, err := h.records.Record(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	plan, ok := h.catalog.Get(rec.PlanID)
	if !ok {
		plan = h.catalog.Free()
	}

	quota, err := h.quota.CheckLimit(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: StatusResponse{
		Record: rec,
		Plan:   plan,
		Quota:  quota,
	}})
}

// Plans returns the plan catalog for the pricing page.
func (h *BillingHandler) Plans(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.catalog.All()})
}
