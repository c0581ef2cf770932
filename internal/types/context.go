package types

import "context"

// Context Keys
type contextKey string

const (
	tenantKey    contextKey = "tenant"
	requestIDKey contextKey = "request_id"
)

// WithTenant stores the authenticated tenant (shop domain) in the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// GetTenant retrieves the authenticated tenant from the context.
func GetTenant(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantKey).(string)
	return id, ok && id != ""
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
