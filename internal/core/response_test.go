package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shopimport/internal/types"
)

func TestError_AppErrorMapsCodeToStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{types.ErrCodeAuthTokenMissing, http.StatusUnauthorized},
		{types.ErrCodeTermsNotAccepted, http.StatusForbidden},
		{types.ErrCodeLimitProducts, http.StatusForbidden},
		{types.ErrCodeNotFoundProduct, http.StatusNotFound},
		{types.ErrCodeInternalDB, http.StatusInternalServerError},
		{types.ErrCodeUpstreamGateway, http.StatusBadGateway},
		{types.ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		Error(w, r, types.NewAppError(tt.code, "boom", nil))

		if w.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.code, w.Code, tt.wantStatus)
		}

		var resp APIErrorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Error.Code != string(tt.code) {
			t.Errorf("%s: body code = %s", tt.code, resp.Error.Code)
		}
	}
}

func TestError_GenericErrorIs500WithoutLeak(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	Error(w, r, errors.New("pq: connection refused to db-internal-host"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "db-internal-host") {
		t.Error("internal error detail leaked to the client")
	}

	var resp APIErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("code = %s", resp.Error.Code)
	}
}

func TestError_WrappedAppErrorUnwrapped(t *testing.T) {
	inner := types.NewAppError(types.ErrCodeNotFoundProduct, "gone", nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	Error(w, r, inner)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Plan string `json:"plan"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"plan":"PRO"}`, false},
		{"empty body", ``, true},
		{"malformed", `{"plan":`, true},
		{"unknown field", `{"plan":"PRO","extra":1}`, true},
		{"two values", `{"plan":"PRO"}{"plan":"FREE"}`, true},
		{"wrong type", `{"plan":42}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var dst payload
			err := DecodeJSON(w, r, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				var appErr *types.AppError
				if !errors.As(err, &appErr) {
					t.Fatalf("error type = %T, want *types.AppError", err)
				}
				if appErr.Code != types.ErrCodeValidationInvalidJSON {
					t.Errorf("code = %s", appErr.Code)
				}
			}
		})
	}
}

func TestJSON_WritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	JSON(w, r, http.StatusCreated, APIResponse{Data: map[string]string{"id": "x"}})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Data["id"] != "x" {
		t.Errorf("data = %v", resp.Data)
	}
}
