package handlers

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"shopimport/internal/core"
	"shopimport/internal/types"
)

// ProductScraper fetches a normalized listing from the upstream catalog.
type ProductScraper interface {
	Fetch(ctx context.Context, sourceURL string) (types.ScrapedProduct, error)
}

// ProductCreator creates a storefront product for an imported listing.
type ProductCreator interface {
	CreateProduct(ctx context.Context, tenantID string, p types.ScrapedProduct, price float64, status string) (id, handle string, err error)
}

// ProductStore persists and lists completed imports.
type ProductStore interface {
	Record(ctx context.Context, p types.ImportedProduct) (types.ImportedProduct, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]types.ImportedProduct, error)
}

// PreferencesReader reads the tenant's import settings.
type PreferencesReader interface {
	Get(ctx context.Context, tenantID string) (types.TenantPreferences, error)
}

// PreviewRequest is the body for POST /v1/imports/preview.
type PreviewRequest struct {
	SourceURL string `json:"source_url" validate:"required,url"`
}

// PreviewResponse shows the scraped listing with the tenant's markup applied
// before anything is created.
type PreviewResponse struct {
	Product       types.ScrapedProduct `json:"product"`
	OriginalPrice float64              `json:"original_price"`
	Price         float64              `json:"price"`
	ImportMode    types.ImportMode     `json:"import_mode"`
}

// ImportRequest is the body for POST /v1/imports.
type ImportRequest struct {
	SourceURL  string           `json:"source_url" validate:"required,url"`
	ImportMode types.ImportMode `json:"import_mode" validate:"omitempty,oneof=DROPSHIPPING AFFILIATE"`
}

// ImportsHandler serves the product import flow: preview, import, history,
// and the quota readout.
type ImportsHandler struct {
	scraper   ProductScraper
	creator   ProductCreator
	products  ProductStore
	prefs     PreferencesReader
	quota     QuotaChecker
	validator *core.Validator
	logger    *slog.Logger
}

// NewImportsHandler creates an ImportsHandler with the provided dependencies.
func NewImportsHandler(
	scraper ProductScraper,
	creator ProductCreator,
	products ProductStore,
	prefs PreferencesReader,
	quota QuotaChecker,
	v *core.Validator,
	logger *slog.Logger,
) *ImportsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportsHandler{
		scraper:   scraper,
		creator:   creator,
		products:  products,
		prefs:     prefs,
		quota:     quota,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts the import endpoints under the authenticated router.
func (h *ImportsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/imports/preview", h.Preview)
	r.Post("/imports", h.Import)
	r.Get("/imports", h.History)
	r.Get("/imports/limit", h.Limit)
}

// Preview scrapes the listing and applies the tenant's pricing markup
// without creating anything.
func (h *ImportsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := types.GetTenant(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no tenant in context", nil))
		return
	}

	var req PreviewRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	prefs, err := h.prefs.Get(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	product, err := h.scraper.Fetch(r.Context(), req.SourceURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PreviewResponse{
		Product:       product,
		OriginalPrice: product.Price,
		Price:         applyMarkup(prefs.PricingMode, prefs.PricingValue, product.Price),
		ImportMode:    prefs.DefaultImportMode,
	}})
}

// Import runs the full pipeline: terms gate, quota gate, scrape, markup,
// storefront creation, history record. Quota denial is a 403 with the
// current counts in the error details.
func (h *ImportsHandler) Import(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := types.GetTenant(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no tenant in context", nil))
		return
	}

	var req ImportRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	prefs, err := h.prefs.Get(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !prefs.TermsAccepted {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeTermsNotAccepted, "terms of service must be accepted before importing", nil))
		return
	}

	decision, err := h.quota.CheckLimit(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !decision.Allowed {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeLimitProducts,
			"product limit reached for the current plan",
			nil,
			map[string]any{
				"current_count": decision.CurrentCount,
				"limit":         decision.Limit,
				"plan":          decision.PlanID,
			},
		))
		return
	}

	product, err := h.scraper.Fetch(r.Context(), req.SourceURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	mode := req.ImportMode
	if mode == "" {
		mode = prefs.DefaultImportMode
	}
	price := applyMarkup(prefs.PricingMode, prefs.PricingValue, product.Price)

	storeID, handle, err := h.creator.CreateProduct(r.Context(), tenantID, product, price, "DRAFT")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	imported, err := h.products.Record(r.Context(), types.ImportedProduct{
		TenantID:      tenantID,
		StoreProdID:   storeID,
		StoreHandle:   handle,
		SourceURL:     product.SourceURL,
		SourceASIN:    product.ASIN,
		Title:         product.Title,
		Price:         price,
		OriginalPrice: product.Price,
		ImportMode:    mode,
		Status:        "DRAFT",
	})
	if err != nil {
		// The storefront product exists but the history row does not; the
		// next import attempt will re-count from the store of record.
		core.Error(w, r, err)
		return
	}

	h.logger.Info("product imported",
		slog.String("tenant", tenantID),
		slog.String("store_product_id", storeID),
		slog.String("mode", string(mode)))
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: imported})
}

// History lists the tenant's imports, newest first. The limit query
// parameter caps the page size at 200.
func (h *ImportsHandler) History(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := types.GetTenant(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no tenant in context", nil))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	products, err := h.products.ListByTenant(r.Context(), tenantID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: products})
}

// Limit exposes the quota decision to the UI.
func (h *ImportsHandler) Limit(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := types.GetTenant(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "no tenant in context", nil))
		return
	}

	decision, err := h.quota.CheckLimit(r.Context(), tenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: decision})
}

// applyMarkup computes the storefront price from the scraped price using the
// tenant's pricing preference, rounded to two decimals.
func applyMarkup(mode types.PricingMode, value, price float64) float64 {
	switch mode {
	case types.PricingModeFixed:
		price += value
	case types.PricingModeMultiplier:
		price *= value
	}
	return math.Round(price*100) / 100
}
