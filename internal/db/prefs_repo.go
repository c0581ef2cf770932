package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"shopimport/internal/types"
)

// TenantPreferencesRepo stores per-tenant UI and import settings. Billing
// state is deliberately absent here; it lives in TenantSettingsRepo behind
// the reconciler.
type TenantPreferencesRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewTenantPreferencesRepo creates a TenantPreferencesRepo backed by the given pool.
func NewTenantPreferencesRepo(db DBTX, logger *slog.Logger) *TenantPreferencesRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantPreferencesRepo{db: db, logger: logger}
}

// Get returns the tenant's preferences, falling back to the defaults for
// tenants that have never saved any.
func (r *TenantPreferencesRepo) Get(ctx context.Context, tenantID string) (types.TenantPreferences, error) {
	var p types.TenantPreferences
	err := r.db.QueryRow(ctx,
		`SELECT tenant_id, affiliate_id, affiliate_mode, button_text, button_enabled,
		        button_position, pricing_mode, pricing_value, default_import_mode,
		        terms_accepted, terms_accepted_at
		 FROM tenant_preferences
		 WHERE tenant_id = $1`,
		tenantID,
	).Scan(
		&p.TenantID, &p.AffiliateID, &p.AffiliateMode, &p.ButtonText, &p.ButtonEnabled,
		&p.ButtonPosition, &p.PricingMode, &p.PricingValue, &p.DefaultImportMode,
		&p.TermsAccepted, &p.TermsAcceptedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.DefaultTenantPreferences(tenantID), nil
		}
		return types.TenantPreferences{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to read tenant preferences", err)
	}
	return p, nil
}

// Upsert writes the full preferences row for the tenant.
func (r *TenantPreferencesRepo) Upsert(ctx context.Context, p types.TenantPreferences) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tenant_preferences
		   (tenant_id, affiliate_id, affiliate_mode, button_text, button_enabled,
		    button_position, pricing_mode, pricing_value, default_import_mode,
		    terms_accepted, terms_accepted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   affiliate_id = EXCLUDED.affiliate_id,
		   affiliate_mode = EXCLUDED.affiliate_mode,
		   button_text = EXCLUDED.button_text,
		   button_enabled = EXCLUDED.button_enabled,
		   button_position = EXCLUDED.button_position,
		   pricing_mode = EXCLUDED.pricing_mode,
		   pricing_value = EXCLUDED.pricing_value,
		   default_import_mode = EXCLUDED.default_import_mode,
		   terms_accepted = EXCLUDED.terms_accepted,
		   terms_accepted_at = EXCLUDED.terms_accepted_at,
		   updated_at = NOW()`,
		p.TenantID, p.AffiliateID, p.AffiliateMode, p.ButtonText, p.ButtonEnabled,
		p.ButtonPosition, p.PricingMode, p.PricingValue, p.DefaultImportMode,
		p.TermsAccepted, p.TermsAcceptedAt,
	)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalDB, "failed to save tenant preferences", err)
	}
	return nil
}
