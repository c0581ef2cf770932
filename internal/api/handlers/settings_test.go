package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shopimport/internal/core"
	"shopimport/internal/types"
)

func newSettingsHandler(prefs *mockPrefs) *SettingsHandler {
	return NewSettingsHandler(prefs, core.NewValidator(nil), nil)
}

func TestSettingsGet_ReturnsDefaultsForNewTenant(t *testing.T) {
	h := newSettingsHandler(&mockPrefs{prefs: types.DefaultTenantPreferences("shop-1.example.com")})

	w := httptest.NewRecorder()
	h.Get(w, authedRequest(http.MethodGet, "/v1/settings", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Data types.TenantPreferences `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Data.ButtonText != "Buy on Amazon" || resp.Data.PricingValue != 1.0 {
		t.Errorf("prefs = %+v, want defaults", resp.Data)
	}
}

func TestSettingsUpdate_SetsTermsTimestampOnce(t *testing.T) {
	prefs := &mockPrefs{prefs: types.DefaultTenantPreferences("shop-1.example.com")}
	h := newSettingsHandler(prefs)

	body := `{"button_text":"Buy now","button_enabled":true,"button_position":"AFTER_BUY_NOW",` +
		`"pricing_mode":"MULTIPLIER","pricing_value":1.2,"default_import_mode":"DROPSHIPPING",` +
		`"affiliate_id":"","affiliate_mode":false,"terms_accepted":true}`
	w := httptest.NewRecorder()
	h.Update(w, authedRequest(http.MethodPut, "/v1/settings", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if len(prefs.saved) != 1 {
		t.Fatal("nothing saved")
	}

	saved := prefs.saved[0]
	if !saved.TermsAccepted || saved.TermsAcceptedAt == nil {
		t.Errorf("terms = %v at %v, want accepted with timestamp", saved.TermsAccepted, saved.TermsAcceptedAt)
	}
	if saved.ButtonText != "Buy now" || saved.PricingValue != 1.2 {
		t.Errorf("saved = %+v", saved)
	}
}

func TestSettingsUpdate_TermsCannotBeRevoked(t *testing.T) {
	prefs := &mockPrefs{prefs: acceptedPrefs("shop-1.example.com")}
	h := newSettingsHandler(prefs)

	body := `{"button_text":"Buy","button_enabled":true,"button_position":"AFTER_BUY_NOW",` +
		`"pricing_mode":"MULTIPLIER","pricing_value":1.0,"default_import_mode":"DROPSHIPPING",` +
		`"affiliate_id":"","affiliate_mode":false,"terms_accepted":false}`
	w := httptest.NewRecorder()
	h.Update(w, authedRequest(http.MethodPut, "/v1/settings", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !prefs.saved[0].TermsAccepted {
		t.Error("accepted terms were revoked by update")
	}
}

func TestSettingsUpdate_ZeroMultiplierIs400(t *testing.T) {
	h := newSettingsHandler(&mockPrefs{prefs: types.DefaultTenantPreferences("shop-1")})

	body := `{"button_text":"Buy","button_enabled":true,"button_position":"AFTER_BUY_NOW",` +
		`"pricing_mode":"MULTIPLIER","pricing_value":0,"default_import_mode":"DROPSHIPPING",` +
		`"affiliate_id":"","affiliate_mode":false,"terms_accepted":false}`
	w := httptest.NewRecorder()
	h.Update(w, authedRequest(http.MethodPut, "/v1/settings", body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSettingsUpdate_BadButtonPositionIs400(t *testing.T) {
	h := newSettingsHandler(&mockPrefs{prefs: types.DefaultTenantPreferences("shop-1")})

	body := `{"button_text":"Buy","button_enabled":true,"button_position":"SIDEBAR",` +
		`"pricing_mode":"MULTIPLIER","pricing_value":1.0,"default_import_mode":"DROPSHIPPING",` +
		`"affiliate_id":"","affiliate_mode":false,"terms_accepted":false}`
	w := httptest.NewRecorder()
	h.Update(w, authedRequest(http.MethodPut, "/v1/settings", body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
