package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"shopimport/internal/types"
)

// responseCapture wraps an http.ResponseWriter to capture the status code
// written by downstream handlers. This is necessary for logging middleware
// that needs to observe the response status after the handler chain completes.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and delegates to the wrapped writer.
func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

// Write ensures the status code is captured even when WriteHeader is not
// called explicitly (the default is 200 per the net/http spec).
func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter, enabling http.ResponseController
// and other standard library helpers to access it.
func (rc *responseCapture) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

// RequestID assigns a unique request ID to every request, honoring an
// inbound X-Request-ID header when present, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := types.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Recoverer catches panics in the handler chain, logs the stack trace
// internally, and writes a standardized 500 error response to the client.
// This middleware MUST be the outermost handler in the chain.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				stack := debug.Stack()

				s.Logger.Error("panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("panic", fmt.Sprintf("%v", rvr)),
					slog.String("stack", string(stack)),
				)

				requestID := types.GetRequestID(r.Context())
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				// Manual formatting: we are in a panic recovery context and
				// must not risk another panic from json.Marshal.
				body := fmt.Sprintf(
					`{"error":{"code":"%s","message":"an unexpected error occurred","request_id":"%s"}}`,
					types.ErrCodeInternalUnexpected, escapeJSON(requestID),
				)
				_, _ = w.Write([]byte(body))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs request metadata (method, path, status, duration).
// Headers named in redactedHeaders (case-insensitive) are masked in output.
func RequestLogger(logger *slog.Logger, redactedHeaders []string) func(http.Handler) http.Handler {
	redactSet := make(map[string]struct{}, len(redactedHeaders))
	for _, h := range redactedHeaders {
		redactSet[strings.ToLower(h)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rc := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rc, r)

			duration := time.Since(start)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rc.statusCode),
				slog.Duration("duration", duration),
				slog.String("remote_addr", r.RemoteAddr),
			}

			if reqID := types.GetRequestID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			if tenant, ok := types.GetTenant(r.Context()); ok {
				attrs = append(attrs, slog.String("tenant", tenant))
			}

			switch {
			case rc.statusCode >= 500:
				logger.Error("request completed", attrs...)
			case rc.statusCode >= 400:
				logger.Warn("request completed", attrs...)
			default:
				logger.Info("request completed", attrs...)
			}
		})
	}
}

// SecurityHeaders sets standard security response headers on all API responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// TenantAuth authenticates embedded-app requests. The platform hands the app
// a session token of the form base64(tenant.expiryUnix).base64(hmac); the
// middleware verifies the HMAC with the shared app secret, checks expiry, and
// stores the tenant in the request context. Webhook and checkout-return
// endpoints are NOT behind this middleware; they carry their own verification.
func TenantAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				Error(w, r, types.NewAppError(
					types.ErrCodeAuthTokenMissing,
					"missing bearer session token",
					nil,
				))
				return
			}

			tenant, err := verifySessionToken(token, secret, time.Now())
			if err != nil {
				Error(w, r, types.NewAppError(
					types.ErrCodeAuthTokenInvalid,
					"invalid session token",
					err,
				))
				return
			}

			ctx := types.WithTenant(r.Context(), tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// verifySessionToken checks the token signature and expiry and returns the
// embedded tenant identifier.
func verifySessionToken(token, secret string, now time.Time) (string, error) {
	payloadB64, sigB64, found := strings.Cut(token, ".")
	if !found {
		return "", fmt.Errorf("malformed token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return "", fmt.Errorf("decoding token payload: %w", err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return "", fmt.Errorf("decoding token signature: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return "", fmt.Errorf("signature mismatch")
	}

	tenant, expStr, found := strings.Cut(string(payload), "|")
	if !found || tenant == "" {
		return "", fmt.Errorf("malformed token payload")
	}

	var exp int64
	if _, err := fmt.Sscanf(expStr, "%d", &exp); err != nil {
		return "", fmt.Errorf("malformed token expiry: %w", err)
	}
	if now.Unix() >= exp {
		return "", fmt.Errorf("token expired")
	}

	return tenant, nil
}

// SignSessionToken produces a session token accepted by TenantAuth. Exposed
// for the embedded-app frontend exchange and for tests.
func SignSessionToken(tenant, secret string, expiry time.Time) string {
	payload := fmt.Sprintf("%s|%d", tenant, expiry.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) +
		"." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// escapeJSON performs minimal JSON string escaping for known-safe strings.
func escapeJSON(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return s
}
