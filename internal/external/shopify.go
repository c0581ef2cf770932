package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shopimport/internal/config"
	"shopimport/internal/types"
)

// PlatformClient talks to the commerce platform's per-shop admin GraphQL API.
// It is the only component that performs network calls to the platform's
// billing and catalog endpoints; it holds no durable local state.
type PlatformClient struct {
	base        *BaseClient
	endpoint    string // template, %s replaced with the shop domain
	accessToken string
	publicURL   string
	testMode    bool
	logger      *slog.Logger
}

// NewPlatformClient builds the admin API client from configuration. All
// calls are bounded by the configured platform timeout.
func NewPlatformClient(cfg config.PlatformConfig, publicURL string, logger *slog.Logger, opts ...BaseClientOption) *PlatformClient {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &PlatformClient{
		base:        NewBaseClient(httpClient, "platform-admin", DefaultRetryPolicy(), opts...),
		endpoint:    cfg.AdminAPIURL,
		accessToken: cfg.AccessToken.Unmask(),
		publicURL:   publicURL,
		testMode:    cfg.TestMode,
		logger:      logger,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// graphql posts one query to the tenant's admin endpoint and decodes the
// data object into out.
func (c *PlatformClient) graphql(ctx context.Context, tenantID, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode admin API request", err)
	}

	endpoint := fmt.Sprintf(c.endpoint, tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build admin API request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.base.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamGateway, "billing gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("billing gateway returned status %d", resp.StatusCode),
			nil,
		)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamGateway, "failed to decode admin API response", err)
	}
	if len(envelope.Errors) > 0 {
		return types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("admin API error: %s", envelope.Errors[0].Message),
			nil,
		)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return types.NewAppError(types.ErrCodeUpstreamGateway, "failed to decode admin API data", err)
		}
	}
	return nil
}

const createSubscriptionMutation = `
mutation($name: String!, $returnUrl: URL!, $test: Boolean, $lineItems: [AppSubscriptionLineItemInput!]!) {
  appSubscriptionCreate(name: $name, returnUrl: $returnUrl, test: $test, lineItems: $lineItems) {
    appSubscription { id }
    confirmationUrl
    userErrors { field message }
  }
}`

// CreateSubscription starts a recurring subscription for a paid plan and
// returns the confirmation URL the merchant must be sent to. The return URL
// embeds the tenant and plan so the checkout-return signal can be
// reconstructed even if the platform drops other query state.
func (c *PlatformClient) CreateSubscription(ctx context.Context, tenantID string, plan types.Plan) (string, error) {
	if plan.ID == types.PlanFree {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidPlan, "the free plan has no checkout", nil)
	}

	returnURL := fmt.Sprintf("%s/billing/return?shop=%s&plan=%s",
		c.publicURL, url.QueryEscape(tenantID), url.QueryEscape(string(plan.ID)))

	var result struct {
		AppSubscriptionCreate struct {
			AppSubscription struct {
				ID string `json:"id"`
			} `json:"appSubscription"`
			ConfirmationURL string      `json:"confirmationUrl"`
			UserErrors      []userError `json:"userErrors"`
		} `json:"appSubscriptionCreate"`
	}

	err := c.graphql(ctx, tenantID, createSubscriptionMutation, map[string]any{
		"name":      plan.DisplayName,
		"returnUrl": returnURL,
		"test":      c.testMode,
		"lineItems": []map[string]any{{
			"plan": map[string]any{
				"appRecurringPricingDetails": map[string]any{
					"price": map[string]any{
						"amount":       fmt.Sprintf("%.2f", plan.Price),
						"currencyCode": plan.Currency,
					},
					"interval": "EVERY_30_DAYS",
				},
			},
		}},
	}, &result)
	if err != nil {
		return "", err
	}

	if ue := result.AppSubscriptionCreate.UserErrors; len(ue) > 0 {
		return "", types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("subscription creation rejected: %s", ue[0].Message),
			nil,
		)
	}
	if result.AppSubscriptionCreate.ConfirmationURL == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamGateway, "subscription created without confirmation URL", nil)
	}
	return result.AppSubscriptionCreate.ConfirmationURL, nil
}

const cancelSubscriptionMutation = `
mutation($id: ID!) {
  appSubscriptionCancel(id: $id) {
    appSubscription { id status }
    userErrors { field message }
  }
}`

// CancelSubscription cancels the subscription identified by externalRef.
func (c *PlatformClient) CancelSubscription(ctx context.Context, tenantID, externalRef string) error {
	var result struct {
		AppSubscriptionCancel struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"appSubscriptionCancel"`
	}

	err := c.graphql(ctx, tenantID, cancelSubscriptionMutation, map[string]any{
		"id": externalRef,
	}, &result)
	if err != nil {
		return err
	}

	if ue := result.AppSubscriptionCancel.UserErrors; len(ue) > 0 {
		return types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("subscription cancel rejected: %s", ue[0].Message),
			nil,
		)
	}
	return nil
}

const activeSubscriptionsQuery = `
{
  currentAppInstallation {
    activeSubscriptions {
      id
      name
      status
      currentPeriodEnd
      lineItems {
        plan {
          pricingDetails {
            ... on AppRecurringPricing {
              price { amount currencyCode }
            }
          }
        }
      }
    }
  }
}`

// ListActiveSubscriptions queries the tenant's active subscriptions. The
// result feeds the reconciler's manual-sync signal; an empty slice means no
// active subscription.
func (c *PlatformClient) ListActiveSubscriptions(ctx context.Context, tenantID string) ([]types.ExternalSubscription, error) {
	var result struct {
		CurrentAppInstallation struct {
			ActiveSubscriptions []struct {
				ID               string  `json:"id"`
				Name             string  `json:"name"`
				Status           string  `json:"status"`
				CurrentPeriodEnd *string `json:"currentPeriodEnd"`
				LineItems        []struct {
					Plan struct {
						PricingDetails struct {
							Price struct {
								Amount       string `json:"amount"`
								CurrencyCode string `json:"currencyCode"`
							} `json:"price"`
						} `json:"pricingDetails"`
					} `json:"plan"`
				} `json:"lineItems"`
			} `json:"activeSubscriptions"`
		} `json:"currentAppInstallation"`
	}

	if err := c.graphql(ctx, tenantID, activeSubscriptionsQuery, nil, &result); err != nil {
		return nil, err
	}

	subs := make([]types.ExternalSubscription, 0, len(result.CurrentAppInstallation.ActiveSubscriptions))
	for _, s := range result.CurrentAppInstallation.ActiveSubscriptions {
		sub := types.ExternalSubscription{
			Ref:    s.ID,
			Name:   s.Name,
			Status: s.Status,
		}
		if len(s.LineItems) > 0 {
			price := s.LineItems[0].Plan.PricingDetails.Price
			amount, err := strconv.ParseFloat(price.Amount, 64)
			if err != nil {
				c.logger.Warn("unparseable subscription amount from gateway",
					slog.String("tenant", tenantID),
					slog.String("amount", price.Amount),
				)
			} else {
				sub.Amount = amount
			}
			sub.Currency = price.CurrencyCode
		}
		if s.CurrentPeriodEnd != nil {
			if end, err := time.Parse(time.RFC3339, *s.CurrentPeriodEnd); err == nil {
				sub.PeriodEnd = &end
			}
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

const createProductMutation = `
mutation($input: ProductInput!) {
  productCreate(input: $input) {
    product { id handle }
    userErrors { field message }
  }
}`

// CreateProduct creates a storefront product for an imported listing and
// returns its platform ID and handle.
func (c *PlatformClient) CreateProduct(ctx context.Context, tenantID string, p types.ScrapedProduct, price float64, status string) (string, string, error) {
	var result struct {
		ProductCreate struct {
			Product struct {
				ID     string `json:"id"`
				Handle string `json:"handle"`
			} `json:"product"`
			UserErrors []userError `json:"userErrors"`
		} `json:"productCreate"`
	}

	err := c.graphql(ctx, tenantID, createProductMutation, map[string]any{
		"input": map[string]any{
			"title":           p.Title,
			"descriptionHtml": p.Description,
			"status":          status,
			"variants": []map[string]any{{
				"price": fmt.Sprintf("%.2f", price),
			}},
		},
	}, &result)
	if err != nil {
		return "", "", err
	}

	if ue := result.ProductCreate.UserErrors; len(ue) > 0 {
		return "", "", types.NewAppError(
			types.ErrCodeUpstreamGateway,
			fmt.Sprintf("product creation rejected: %s", ue[0].Message),
			nil,
		)
	}
	return result.ProductCreate.Product.ID, result.ProductCreate.Product.Handle, nil
}
