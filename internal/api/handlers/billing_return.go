package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"shopimport/internal/billing"
	"shopimport/internal/types"
)

// Redirect flags appended to the app URL after a checkout return.
const (
	returnFlagCompleted = "billing_completed"
	returnFlagNeedsSync = "needs_manual_sync"
	returnFlagError     = "billing_error"
)

// BillingReturnHandler receives the merchant's redirect back from the
// platform's billing confirmation page. It must never surface a raw error
// page: whatever state the redirect arrives in, the merchant lands back in
// the app UI with a status flag.
type BillingReturnHandler struct {
	reconciler SubscriptionReconciler
	appURL     string
	logger     *slog.Logger
}

// NewBillingReturnHandler creates a BillingReturnHandler redirecting into
// appURL.
func NewBillingReturnHandler(reconciler SubscriptionReconciler, appURL string, logger *slog.Logger) *BillingReturnHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingReturnHandler{
		reconciler: reconciler,
		appURL:     strings.TrimSuffix(appURL, "/"),
		logger:     logger,
	}
}

// RegisterRoutes mounts the checkout-return endpoint on the public router.
func (h *BillingReturnHandler) RegisterRoutes(r chi.Router) {
	r.Get("/billing/return", h.HandleReturn)
}

// HandleReturn reconstructs a CheckoutReturn signal from whatever query
// state survived the redirect. The platform guarantees payment was captured
// before this fires, but any of charge_id, plan, and shop may be missing;
// the tenant can sometimes be recovered from the base64 host token. A
// missing or unknown plan degrades to the needs-sync path instead of
// guessing.
func (h *BillingReturnHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	tenantID := q.Get("shop")
	if tenantID == "" {
		tenantID = tenantFromHost(q.Get("host"))
	}
	if tenantID == "" {
		h.logger.Warn("checkout return without identifiable tenant")
		h.redirect(w, r, "", returnFlagError)
		return
	}

	var ref *string
	if chargeID := q.Get("charge_id"); chargeID != "" {
		ref = &chargeID
	}
	planHint := types.PlanID(strings.ToUpper(q.Get("plan")))

	_, outcome, err := h.reconciler.Reconcile(r.Context(), tenantID, billing.CheckoutReturn{
		ExternalRef: ref,
		PlanHint:    planHint,
	})
	switch {
	case err != nil:
		h.logger.Error("checkout return reconciliation failed",
			slog.String("tenant", tenantID),
			slog.String("error", err.Error()))
		h.redirect(w, r, tenantID, returnFlagError)
	case outcome.NeedsSync:
		h.logger.Info("checkout return without resolvable plan, manual sync required",
			slog.String("tenant", tenantID),
			slog.String("plan_hint", string(planHint)))
		h.redirect(w, r, tenantID, returnFlagNeedsSync)
	default:
		h.logger.Info("checkout return reconciled",
			slog.String("tenant", tenantID),
			slog.String("plan", string(planHint)))
		h.redirect(w, r, tenantID, returnFlagCompleted)
	}
}

func (h *BillingReturnHandler) redirect(w http.ResponseWriter, r *http.Request, tenantID, flag string) {
	v := url.Values{flag: {"1"}}
	if tenantID != "" {
		v.Set("shop", tenantID)
	}
	http.Redirect(w, r, h.appURL+"?"+v.Encode(), http.StatusFound)
}

// tenantFromHost decodes the platform's opaque host token, which embeds the
// shop domain as base64("{shop}/{path}").
func tenantFromHost(host string) string {
	if host == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(host)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(host)
		if err != nil {
			return ""
		}
	}
	shop, _, _ := strings.Cut(string(decoded), "/")
	return shop
}
