package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"shopimport/internal/billing"
	"shopimport/internal/types"
)

const testAppURL = "https://importer.example.com/app"

func returnRequest(query url.Values) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/billing/return?"+query.Encode(), nil)
}

func assertRedirectFlag(t *testing.T, w *httptest.ResponseRecorder, flag string) url.Values {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad Location header: %v", err)
	}
	if got := loc.Query().Get(flag); got != "1" {
		t.Fatalf("Location %q missing flag %s", loc, flag)
	}
	return loc.Query()
}

func TestBillingReturn_CompletedFlow(t *testing.T) {
	rec := &mockReconciler{}
	h := NewBillingReturnHandler(rec, testAppURL, nil)

	w := httptest.NewRecorder()
	h.HandleReturn(w, returnRequest(url.Values{
		"shop":      {"shop-1.example.com"},
		"plan":      {"standard"},
		"charge_id": {"gid://charge/5"},
	}))

	q := assertRedirectFlag(t, w, returnFlagCompleted)
	if q.Get("shop") != "shop-1.example.com" {
		t.Errorf("shop = %q", q.Get("shop"))
	}

	sig := rec.signals[0].(billing.CheckoutReturn)
	if sig.PlanHint != types.PlanStandard {
		t.Errorf("PlanHint = %s, want STANDARD (uppercased)", sig.PlanHint)
	}
	if sig.ExternalRef == nil || *sig.ExternalRef != "gid://charge/5" {
		t.Errorf("ExternalRef = %v", sig.ExternalRef)
	}
}

func TestBillingReturn_NeedsSyncWhenPlanUnresolved(t *testing.T) {
	rec := &mockReconciler{out: billing.Outcome{NeedsSync: true}}
	h := NewBillingReturnHandler(rec, testAppURL, nil)

	w := httptest.NewRecorder()
	h.HandleReturn(w, returnRequest(url.Values{"shop": {"shop-1"}}))

	assertRedirectFlag(t, w, returnFlagNeedsSync)
}

func TestBillingReturn_TenantRecoveredFromHostToken(t *testing.T) {
	rec := &mockReconciler{}
	h := NewBillingReturnHandler(rec, testAppURL, nil)

	host := base64.StdEncoding.EncodeToString([]byte("shop-2.example.com/admin"))
	w := httptest.NewRecorder()
	h.HandleReturn(w, returnRequest(url.Values{
		"host": {host},
		"plan": {"PRO"},
	}))

	assertRedirectFlag(t, w, returnFlagCompleted)
	if rec.tenants[0] != "shop-2.example.com" {
		t.Errorf("tenant = %q, want decoded from host", rec.tenants[0])
	}
}

func TestBillingReturn_NoTenantIsBillingErrorRedirect(t *testing.T) {
	rec := &mockReconciler{}
	h := NewBillingReturnHandler(rec, testAppURL, nil)

	w := httptest.NewRecorder()
	h.HandleReturn(w, returnRequest(url.Values{"plan": {"PRO"}}))

	assertRedirectFlag(t, w, returnFlagError)
	if len(rec.signals) != 0 {
		t.Error("reconciler called without a tenant")
	}
}

func TestBillingReturn_ReconcileFailureRedirectsNotErrors(t *testing.T) {
	rec := &mockReconciler{
		err: types.NewAppError(types.ErrCodeInternalDB, "write failed", errors.New("boom")),
	}
	h := NewBillingReturnHandler(rec, testAppURL, nil)

	w := httptest.NewRecorder()
	h.HandleReturn(w, returnRequest(url.Values{"shop": {"shop-1"}, "plan": {"PRO"}}))

	// Never a raw error page: failures land back in the app with a flag.
	assertRedirectFlag(t, w, returnFlagError)
}

func TestBillingReturn_GarbageHostTokenIsError(t *testing.T) {
	h := NewBillingReturnHandler(&mockReconciler{}, testAppURL, nil)

	w := httptest.NewRecorder()
	h.HandleReturn(w, returnRequest(url.Values{"host": {"%%%not-base64"}}))

	assertRedirectFlag(t, w, returnFlagError)
}
