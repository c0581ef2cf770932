package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"shopimport/internal/types"
)

// ImportedProductRepo persists completed catalog imports. The per-tenant row
// count feeds quota enforcement; rows are only ever inserted, never updated
// or deleted, so the count is monotonic.
type ImportedProductRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewImportedProductRepo creates an ImportedProductRepo backed by the given pool.
func NewImportedProductRepo(db DBTX, logger *slog.Logger) *ImportedProductRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportedProductRepo{db: db, logger: logger}
}

// CountByTenant returns the number of products the tenant has imported.
func (r *ImportedProductRepo) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM imported_products WHERE tenant_id = $1`,
		tenantID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(
			types.ErrCodeInternalDB, "failed to count imported products", err)
	}
	return count, nil
}

// Record inserts a completed import and returns it with the generated ID and
// creation timestamp filled in.
func (r *ImportedProductRepo) Record(ctx context.Context, p types.ImportedProduct) (types.ImportedProduct, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO imported_products
		   (tenant_id, store_product_id, store_handle, source_url, source_asin,
		    title, price, original_price, import_mode, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		p.TenantID, p.StoreProdID, p.StoreHandle, p.SourceURL, p.SourceASIN,
		p.Title, p.Price, p.OriginalPrice, p.ImportMode, p.Status,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return types.ImportedProduct{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to record imported product", err)
	}
	return p, nil
}

// ListByTenant returns the tenant's import history, newest first.
func (r *ImportedProductRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]types.ImportedProduct, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, tenant_id, store_product_id, store_handle, source_url, source_asin,
		        title, price, original_price, import_mode, status, created_at
		 FROM imported_products
		 WHERE tenant_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalDB, "failed to list imported products", err)
	}
	defer rows.Close()

	products := []types.ImportedProduct{}
	for rows.Next() {
		var p types.ImportedProduct
		err := rows.Scan(
			&p.ID, &p.TenantID, &p.StoreProdID, &p.StoreHandle, &p.SourceURL, &p.SourceASIN,
			&p.Title, &p.Price, &p.OriginalPrice, &p.ImportMode, &p.Status, &p.CreatedAt,
		)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeInternalDB, "failed to scan imported product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalDB, "failed to iterate imported products", err)
	}

	return products, nil
}

// GetByStoreProductID looks up a single import by its storefront product ID.
func (r *ImportedProductRepo) GetByStoreProductID(ctx context.Context, tenantID, storeProductID string) (types.ImportedProduct, error) {
	var p types.ImportedProduct
	err := r.db.QueryRow(ctx,
		`SELECT id, tenant_id, store_product_id, store_handle, source_url, source_asin,
		        title, price, original_price, import_mode, status, created_at
		 FROM imported_products
		 WHERE tenant_id = $1 AND store_product_id = $2`,
		tenantID, storeProductID,
	).Scan(
		&p.ID, &p.TenantID, &p.StoreProdID, &p.StoreHandle, &p.SourceURL, &p.SourceASIN,
		&p.Title, &p.Price, &p.OriginalPrice, &p.ImportMode, &p.Status, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ImportedProduct{}, types.NewAppError(
				types.ErrCodeNotFoundProduct, "imported product not found", err)
		}
		return types.ImportedProduct{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to read imported product", err)
	}
	return p, nil
}
