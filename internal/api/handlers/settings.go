package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shopimport/internal/core"
	"shopimport/internal/types"
)

// PreferencesStore reads and writes tenant preferences.
type PreferencesStore interface {
	Get(ctx context.Context, tenantID string) (types.TenantPreferences, error)
	Upsert(ctx context.Context, p types.TenantPreferences) error
}

// UpdateSettingsRequest is the body for PUT /v1/settings. All fields are
// written as given; the terms acceptance timestamp is set server-side the
// first time TermsAccepted flips to true.
type UpdateSettingsRequest struct {
	AffiliateID       string            `json:"affiliate_id" validate:"omitempty,max=64"`
	AffiliateMode     bool              `json:"affiliate_mode"`
	ButtonText        string            `json:"button_text" validate:"required,max=64"`
	ButtonEnabled     bool              `json:"button_enabled"`
	ButtonPosition    string            `json:"button_position" validate:"required,oneof=AFTER_BUY_NOW BEFORE_BUY_NOW PRODUCT_DESCRIPTION"`
	PricingMode       types.PricingMode `json:"pricing_mode" validate:"required,oneof=MULTIPLIER FIXED"`
	PricingValue      float64           `json:"pricing_value" validate:"gte=0"`
	DefaultImportMode types.ImportMode  `json:"default_import_mode" validate:"required,oneof=DROPSHIPPING AFFILIATE"`
	TermsAccepted     bool              `json:"terms_accepted"`
}

// SettingsHandler serves the tenant preference endpoints. Billing state is
// deliberately not reachable here; it is owned by the reconciler.
type SettingsHandler struct {
	prefs     PreferencesStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(prefs PreferencesStore, v *core.Validator, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{prefs: prefs, validator: v, logger: logger}
}

// RegisterRoutes mounts the settings endpoints under the authenticated router.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.Get)
	r.Put("/settings", h.Update)
}

// Get returns the tenant's preferences, defaults included for tenants that
// never saved any.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := types.GetTenant(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no tenant in context", nil))
		return
	}

	prefs, err := h.prefs.Get(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: prefs})
}

// Update replaces the tenant's preferences.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := types.GetTenant(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no tenant in context", nil))
		return
	}

	var req UpdateSettingsRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.PricingMode == types.PricingModeMultiplier && req.PricingValue <= 0 {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidMarkup, "multiplier must be greater than zero", nil))
		return
	}

	current, err := h.prefs.Get(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	next := types.TenantPreferences{
		TenantID:          tenantID,
		AffiliateID:       req.AffiliateID,
		AffiliateMode:     req.AffiliateMode,
		ButtonText:        req.ButtonText,
		ButtonEnabled:     req.ButtonEnabled,
		ButtonPosition:    req.ButtonPosition,
		PricingMode:       req.PricingMode,
		PricingValue:      req.PricingValue,
		DefaultImportMode: req.DefaultImportMode,
		TermsAccepted:     current.TermsAccepted || req.TermsAccepted,
		TermsAcceptedAt:   current.TermsAcceptedAt,
	}
	if next.TermsAccepted && next.TermsAcceptedAt == nil {
		now := time.Now().UTC()
		next.TermsAcceptedAt = &now
	}

	if err := h.prefs.Upsert(r.Context(), next); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("settings updated", slog.String("tenant", tenantID))
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: next})
}
