package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shopimport/internal/config"
	"shopimport/internal/types"
)

func testPlatformClient(t *testing.T, handler http.Handler) (*PlatformClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.PlatformConfig{
		// The shop domain lands in the path; the test server ignores it.
		AdminAPIURL: srv.URL + "/admin/%s/graphql.json",
		AccessToken: types.SecretString("token-123"),
		Timeout:     5 * time.Second,
		TestMode:    true,
	}
	return NewPlatformClient(cfg, "https://importer.example.com", nil,
		WithSleepFunc(func(time.Duration) {})), srv
}

func TestCreateSubscription_ReturnsConfirmationURL(t *testing.T) {
	var gotToken string
	var gotVars map[string]any

	client, _ := testPlatformClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		var req graphQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotVars = req.Variables

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"appSubscriptionCreate": map[string]any{
					"appSubscription": map[string]any{"id": "gid://sub/1"},
					"confirmationUrl": "https://platform.example/confirm/abc",
					"userErrors":      []any{},
				},
			},
		})
	}))

	url, err := client.CreateSubscription(context.Background(), "shop-1.example.com", types.Plan{
		ID: types.PlanStandard, DisplayName: "Standard", Price: 9.99, Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if url != "https://platform.example/confirm/abc" {
		t.Errorf("url = %q", url)
	}
	if gotToken != "token-123" {
		t.Errorf("access token = %q", gotToken)
	}
	returnURL, _ := gotVars["returnUrl"].(string)
	want := "https://importer.example.com/billing/return?shop=shop-1.example.com&plan=STANDARD"
	if returnURL != want {
		t.Errorf("returnUrl = %q, want %q", returnURL, want)
	}
}

func TestCreateSubscription_FreePlanRejectedLocally(t *testing.T) {
	called := false
	client, _ := testPlatformClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := client.CreateSubscription(context.Background(), "shop-1", types.Plan{ID: types.PlanFree})
	if err == nil {
		t.Fatal("expected error for free plan")
	}
	if called {
		t.Error("free plan must not reach the network")
	}
}

func TestCreateSubscription_UserErrorSurfaces(t *testing.T) {
	client, _ := testPlatformClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"appSubscriptionCreate": map[string]any{
					"userErrors": []map[string]any{{"message": "app not approved for billing"}},
				},
			},
		})
	}))

	_, err := client.CreateSubscription(context.Background(), "shop-1", types.Plan{
		ID: types.PlanPro, DisplayName: "Pro", Price: 19.99, Currency: "EUR",
	})
	if err == nil {
		t.Fatal("expected user error")
	}
}

func TestListActiveSubscriptions_ParsesEntries(t *testing.T) {
	client, _ := testPlatformClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"currentAppInstallation": map[string]any{
					"activeSubscriptions": []map[string]any{{
						"id":               "gid://sub/9",
						"name":             "Pro",
						"status":           "active",
						"currentPeriodEnd": "2026-04-14T12:00:00Z",
						"lineItems": []map[string]any{{
							"plan": map[string]any{
								"pricingDetails": map[string]any{
									"price": map[string]any{"amount": "19.99", "currencyCode": "EUR"},
								},
							},
						}},
					}},
				},
			},
		})
	}))

	subs, err := client.ListActiveSubscriptions(context.Background(), "shop-1")
	if err != nil {
		t.Fatalf("ListActiveSubscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("len = %d, want 1", len(subs))
	}

	s := subs[0]
	if s.Ref != "gid://sub/9" || s.Amount != 19.99 || s.Currency != "EUR" || s.Status != "active" {
		t.Errorf("sub = %+v", s)
	}
	if s.PeriodEnd == nil || !s.PeriodEnd.Equal(time.Date(2026, 4, 14, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("PeriodEnd = %v", s.PeriodEnd)
	}
}

func TestListActiveSubscriptions_EmptyList(t *testing.T) {
	client, _ := testPlatformClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"currentAppInstallation": map[string]any{"activeSubscriptions": []any{}},
			},
		})
	}))

	subs, err := client.ListActiveSubscriptions(context.Background(), "shop-1")
	if err != nil {
		t.Fatalf("ListActiveSubscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("len = %d, want 0", len(subs))
	}
}

func TestGraphQLErrorsMapToGatewayError(t *testing.T) {
	client, _ := testPlatformClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "throttled"}},
		})
	}))

	_, err := client.ListActiveSubscriptions(context.Background(), "shop-1")
	appErr, ok := err.(*types.AppError)
	if !ok || appErr.Code != types.ErrCodeUpstreamGateway {
		t.Fatalf("err = %v, want upstream_billing_gateway_unavailable", err)
	}
}

func TestCancelSubscription(t *testing.T) {
	client, _ := testPlatformClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Variables["id"] != "gid://sub/9" {
			t.Errorf("cancel id = %v", req.Variables["id"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"appSubscriptionCancel": map[string]any{"userErrors": []any{}},
			},
		})
	}))

	if err := client.CancelSubscription(context.Background(), "shop-1", "gid://sub/9"); err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
}
