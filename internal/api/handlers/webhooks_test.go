package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shopimport/internal/billing"
	"shopimport/internal/types"
)

// mockVerifier accepts every signature equal to its configured value.
type mockVerifier struct {
	valid string
}

func (m *mockVerifier) Verify(_ []byte, signature string) bool {
	return signature == m.valid
}

// mockReconciler records the signals it receives and returns canned results.
type mockReconciler struct {
	rec     types.SubscriptionRecord
	out     billing.Outcome
	err     error
	tenants []string
	signals []billing.Signal
}

func (m *mockReconciler) Reconcile(_ context.Context, tenantID string, sig billing.Signal) (types.SubscriptionRecord, billing.Outcome, error) {
	m.tenants = append(m.tenants, tenantID)
	m.signals = append(m.signals, sig)
	if m.err != nil {
		return types.SubscriptionRecord{}, billing.Outcome{}, m.err
	}
	return m.rec, m.out, nil
}

func webhookRequest(body, signature, shop string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/subscriptions", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(webhookSignatureHeader, signature)
	}
	if shop != "" {
		req.Header.Set(webhookShopHeader, shop)
	}
	return req
}

const activeWebhookBody = `{"app_subscription":{"admin_graphql_api_id":"gid://sub/1","name":"Pro","status":"ACTIVE","price":"19.99","currency":"EUR"}}`

func TestWebhook_InvalidSignatureRejectedWithoutReconciling(t *testing.T) {
	rec := &mockReconciler{}
	h := NewWebhookHandler(&mockVerifier{valid: "good"}, rec, nil, nil)

	w := httptest.NewRecorder()
	h.HandleSubscriptionUpdate(w, webhookRequest(activeWebhookBody, "bad", "shop-1"))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if len(rec.signals) != 0 {
		t.Error("reconciler called despite bad signature")
	}
}

func TestWebhook_MissingSubscriptionObjectIs400(t *testing.T) {
	rec := &mockReconciler{}
	h := NewWebhookHandler(&mockVerifier{valid: "good"}, rec, nil, nil)

	w := httptest.NewRecorder()
	h.HandleSubscriptionUpdate(w, webhookRequest(`{"other":{}}`, "good", "shop-1"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(rec.signals) != 0 {
		t.Error("reconciler called on structurally invalid payload")
	}
}

func TestWebhook_MalformedJSONIs400(t *testing.T) {
	h := NewWebhookHandler(&mockVerifier{valid: "good"}, &mockReconciler{}, nil, nil)

	w := httptest.NewRecorder()
	h.HandleSubscriptionUpdate(w, webhookRequest(`{not json`, "good", "shop-1"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhook_MissingShopHeaderIs400(t *testing.T) {
	h := NewWebhookHandler(&mockVerifier{valid: "good"}, &mockReconciler{}, nil, nil)

	w := httptest.NewRecorder()
	h.HandleSubscriptionUpdate(w, webhookRequest(activeWebhookBody, "good", ""))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhook_SuccessIs200EmptyBody(t *testing.T) {
	rec := &mockReconciler{}
	h := NewWebhookHandler(&mockVerifier{valid: "good"}, rec, nil, nil)

	w := httptest.NewRecorder()
	h.HandleSubscriptionUpdate(w, webhookRequest(activeWebhookBody, "good", "shop-1.example.com"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}

	if len(rec.signals) != 1 || rec.tenants[0] != "shop-1.example.com" {
		t.Fatalf("reconciler calls = %v", rec.tenants)
	}
	sig, ok := rec.signals[0].(billing.WebhookUpdate)
	if !ok {
		t.Fatalf("signal type = %T", rec.signals[0])
	}
	if sig.Status != "ACTIVE" || sig.Amount != 19.99 || sig.ExternalRef != "gid://sub/1" {
		t.Errorf("signal = %+v", sig)
	}
}

func TestWebhook_PeriodEndPassedThrough(t *testing.T) {
	rec := &mockReconciler{}
	h := NewWebhookHandler(&mockVerifier{valid: "good"}, rec, nil, nil)

	body := `{"app_subscription":{"status":"ACTIVE","price":"9.99","current_period_end":"2026-04-14T12:00:00Z"}}`
	w := httptest.NewRecorder()
	h.HandleSubscriptionUpdate(w, webhookRequest(body, "good", "shop-1"))

	sig := rec.signals[0].(billing.WebhookUpdate)
	want := time.Date(2026, 4, 14, 12, 0, 0, 0, time.UTC)
	if sig.PeriodEnd == nil || !sig.PeriodEnd.Equal(want) {
		t.Errorf("PeriodEnd = %v, want %v", sig.PeriodEnd, want)
	}
}

func TestWebhook_InternalFailureIs500(t *testing.T) {
	rec := &mockReconciler{
		err: types.NewAppError(types.ErrCodeInternalDB, "write failed", errors.New("boom")),
	}
	h := NewWebhookHandler(&mockVerifier{valid: "good"}, rec, nil, nil)

	w := httptest.NewRecorder()
	h.HandleSubscriptionUpdate(w, webhookRequest(activeWebhookBody, "good", "shop-1"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the platform redelivers", w.Code)
	}
}
