package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteSetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)

	Write(rec, req, http.StatusForbidden, TypeForbidden, "Forbidden", errors.New("role user may not write"), "test")

	if got := rec.Header().Get("Content-Type"); got != contentType {
		t.Errorf("Content-Type = %q, want %q", got, contentType)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	var p ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if p.Type != TypeForbidden {
		t.Errorf("type = %q, want %q", p.Type, TypeForbidden)
	}
	if p.Instance != "/api/v1/events" {
		t.Errorf("instance = %q, want request path", p.Instance)
	}
	if p.Detail != "role user may not write" {
		t.Errorf("detail = %q, want raw error in test env", p.Detail)
	}
}

func TestWriteHidesDetailInProduction(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)

	Write(rec, req, http.StatusUnauthorized, TypeUnauthenticated, "Unauthenticated", errors.New("signature mismatch on token abc"), "production")

	var p ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if p.Detail != http.StatusText(http.StatusUnauthorized) {
		t.Errorf("detail = %q, want generic status text in production", p.Detail)
	}
}

func TestWriteProblemRespectsExplicitDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)

	Write(rec, req, http.StatusTooManyRequests, TypeRateLimited, "Too many requests", nil, "production",
		WithDetail("retry after 42s"))

	var p ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if p.Detail != "retry after 42s" {
		t.Errorf("detail = %q, want explicit detail", p.Detail)
	}
	if p.Status != http.StatusTooManyRequests {
		t.Errorf("status field = %d, want 429", p.Status)
	}
}
