package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAdminAuthStaticToken(t *testing.T) {
	a := NewStaticAdminAuth("s3cr3t")

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	if err := a.Authorize(req); err == nil {
		t.Fatalf("expected unauthorized without header")
	}

	req.Header.Set("Authorization", "Bearer wrong")
	if err := a.Authorize(req); err == nil {
		t.Fatalf("expected unauthorized for wrong token")
	}

	req.Header.Set("Authorization", "Bearer s3cr3t")
	if err := a.Authorize(req); err != nil {
		t.Fatalf("Authorize() error = %v, want nil", err)
	}
}

func TestAdminAuthJWT(t *testing.T) {
	a := NewJWTAdminAuth("signing-secret")
	token, err := a.IssueToken(time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if err := a.Authorize(req); err != nil {
		t.Fatalf("Authorize() error = %v, want nil", err)
	}

	other := NewJWTAdminAuth("different-secret")
	if err := other.Authorize(req); err == nil {
		t.Fatalf("expected unauthorized for token signed with a different secret")
	}
}

func TestAdminAuthDisabledWhenUnconfigured(t *testing.T) {
	var a *AdminAuth
	if a.Enabled() {
		t.Fatalf("nil AdminAuth must report disabled")
	}

	empty := NewStaticAdminAuth("")
	if empty.Enabled() {
		t.Fatalf("empty static token must report disabled")
	}
	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	if err := empty.Authorize(req); err != nil {
		t.Fatalf("disabled AdminAuth must authorize everything, got %v", err)
	}
}

func TestAdminAuthMiddlewareRejectsUnauthorized(t *testing.T) {
	a := NewStaticAdminAuth("s3cr3t")
	called := false
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Fatalf("handler must not run without a valid admin token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
