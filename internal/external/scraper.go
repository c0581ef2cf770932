package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"shopimport/internal/config"
	"shopimport/internal/types"
)

// ScraperClient fetches normalized product listings from the upstream
// catalog scraping provider.
type ScraperClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewScraperClient builds the scraper client from configuration.
func NewScraperClient(cfg config.ScraperConfig, logger *slog.Logger, opts ...BaseClientOption) *ScraperClient {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &ScraperClient{
		base:    NewBaseClient(httpClient, "catalog-scraper", DefaultRetryPolicy(), opts...),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey.Unmask(),
		logger:  logger,
	}
}

// Fetch scrapes the listing at sourceURL and returns the normalized product.
func (c *ScraperClient) Fetch(ctx context.Context, sourceURL string) (types.ScrapedProduct, error) {
	endpoint := fmt.Sprintf("%s/v1/products?url=%s", c.baseURL, url.QueryEscape(sourceURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.ScrapedProduct{}, types.NewAppError(
			types.ErrCodeInternalUnexpected, "failed to build scraper request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return types.ScrapedProduct{}, types.NewAppError(
			types.ErrCodeUpstreamScraper, "catalog provider unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.ScrapedProduct{}, types.NewAppError(
			types.ErrCodeValidationInvalidURL, "no product found at source URL", nil)
	case resp.StatusCode != http.StatusOK:
		return types.ScrapedProduct{}, types.NewAppError(
			types.ErrCodeUpstreamScraper,
			fmt.Sprintf("catalog provider returned status %d", resp.StatusCode),
			nil,
		)
	}

	var product types.ScrapedProduct
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return types.ScrapedProduct{}, types.NewAppError(
			types.ErrCodeUpstreamScraper, "failed to decode scraped product", err)
	}
	if product.SourceURL == "" {
		product.SourceURL = sourceURL
	}
	return product, nil
}
