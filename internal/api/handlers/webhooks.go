// Package handlers contains the HTTP handler implementations for the
// importer API. Each handler declares the narrow service interfaces it
// depends on, takes implementations through its constructor, and mounts its
// routes via RegisterRoutes.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"shopimport/internal/billing"
	"shopimport/internal/core"
	"shopimport/internal/types"
)

// Header names used by the platform on webhook deliveries.
const (
	webhookSignatureHeader = "X-Shopimport-Hmac-Sha256"
	webhookShopHeader      = "X-Shopimport-Shop-Domain"
)

// maxWebhookBodySize caps the webhook payload read. Subscription payloads are
// small; anything larger is not a platform delivery.
const maxWebhookBodySize = 1 << 20

// WebhookVerifier checks the platform's signature over the raw request body.
type WebhookVerifier interface {
	Verify(body []byte, signature string) bool
}

// SubscriptionReconciler applies a billing signal to a tenant's record.
type SubscriptionReconciler interface {
	Reconcile(ctx context.Context, tenantID string, sig billing.Signal) (types.SubscriptionRecord, billing.Outcome, error)
}

// WebhookMetrics counts webhook outcomes for operator dashboards.
type WebhookMetrics interface {
	EmitWebhookOutcome(ctx context.Context, outcome string)
}

// subscriptionWebhookPayload is the platform's subscription-update
// notification. Only the fields the reconciler needs are decoded.
type subscriptionWebhookPayload struct {
	AppSubscription *struct {
		AdminGraphQLAPIID string     `json:"admin_graphql_api_id"`
		Name              string     `json:"name"`
		Status            string     `json:"status"`
		Price             string     `json:"price"`
		Currency          string     `json:"currency"`
		CurrentPeriodEnd  *time.Time `json:"current_period_end"`
	} `json:"app_subscription"`
}

// WebhookHandler receives platform-signed subscription updates. It sits
// outside tenant auth; the HMAC signature is the sole authentication.
type WebhookHandler struct {
	verifier   WebhookVerifier
	reconciler SubscriptionReconciler
	metrics    WebhookMetrics
	logger     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. metrics may be nil.
func NewWebhookHandler(verifier WebhookVerifier, reconciler SubscriptionReconciler, metrics WebhookMetrics, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook endpoint on the public router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/subscriptions", h.HandleSubscriptionUpdate)
}

// HandleSubscriptionUpdate processes one subscription notification:
//
//	signature failure          -> 401, nothing reconciled
//	missing subscription object -> 400
//	reconciled and persisted    -> 200 empty body
//	internal failure            -> 500, the platform redelivers
//
// The 500 path is deliberate: platform redelivery is the only retry
// mechanism, so success must not be acknowledged before the durable write
// completes.
func (h *WebhookHandler) HandleSubscriptionUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		h.emit(r.Context(), "read_error")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected, "failed to read webhook body", err))
		return
	}

	if !h.verifier.Verify(body, r.Header.Get(webhookSignatureHeader)) {
		h.emit(r.Context(), "unauthorized")
		h.logger.Warn("webhook signature verification failed",
			slog.String("remote_addr", r.RemoteAddr))
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSignatureInvalid, "webhook signature verification failed", nil))
		return
	}

	tenantID := r.Header.Get(webhookShopHeader)
	if tenantID == "" {
		h.emit(r.Context(), "invalid")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField, "missing shop domain header", nil))
		return
	}

	var payload subscriptionWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.emit(r.Context(), "invalid")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON, "malformed webhook payload", err))
		return
	}
	if payload.AppSubscription == nil {
		h.emit(r.Context(), "invalid")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField, "payload has no app_subscription object", nil))
		return
	}

	sub := payload.AppSubscription
	amount := 0.0
	if sub.Price != "" {
		amount, err = strconv.ParseFloat(sub.Price, 64)
		if err != nil {
			h.logger.Warn("unparseable price in webhook payload",
				slog.String("tenant", tenantID),
				slog.String("price", sub.Price))
			amount = 0.0
		}
	}

	_, outcome, err := h.reconciler.Reconcile(r.Context(), tenantID, billing.WebhookUpdate{
		Status:      sub.Status,
		Amount:      amount,
		Currency:    sub.Currency,
		ExternalRef: sub.AdminGraphQLAPIID,
		PeriodEnd:   sub.CurrentPeriodEnd,
	})
	if err != nil {
		h.emit(r.Context(), "error")
		h.logger.Error("webhook reconciliation failed",
			slog.String("tenant", tenantID),
			slog.String("error", err.Error()))
		core.Error(w, r, err)
		return
	}

	h.emit(r.Context(), "ok")
	h.logger.Info("subscription webhook reconciled",
		slog.String("tenant", tenantID),
		slog.String("status", sub.Status),
		slog.Bool("changed", outcome.Changed))
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) emit(ctx context.Context, outcome string) {
	if h.metrics != nil {
		h.metrics.EmitWebhookOutcome(ctx, outcome)
	}
}
