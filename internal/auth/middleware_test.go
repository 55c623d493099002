package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAuthMissingCookie(t *testing.T) {
	svc, _ := newTokenService(t)
	mw := NewMiddleware(svc)

	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a cookie")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != CodeUnauthorized {
		t.Fatalf("expected code %q, got %q", CodeUnauthorized, body.Code)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	svc, _ := newTokenService(t)
	mw := NewMiddleware(svc)

	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with an invalid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "garbage"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != CodeInvalidToken {
		t.Fatalf("expected code %q, got %q", CodeInvalidToken, body.Code)
	}
}

func TestRequireAuthAttachesIdentity(t *testing.T) {
	svc, _ := newTokenService(t)
	mw := NewMiddleware(svc)

	token, err := svc.IssueAccessToken("user-1", "a@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var got *Identity
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got == nil || got.UserID != "user-1" || got.Email != "a@x.com" {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestOptionalAuth(t *testing.T) {
	svc, _ := newTokenService(t)
	mw := NewMiddleware(svc)

	var got *Identity
	handler := mw.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// Anonymous request passes through with no identity.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got != nil {
		t.Fatalf("expected no identity, got %+v", got)
	}

	// Invalid token also passes through anonymously.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "garbage"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || got != nil {
		t.Fatalf("expected anonymous pass-through, code=%d identity=%+v", rec.Code, got)
	}

	// A valid token attaches the identity.
	token, err := svc.IssueAccessToken("user-1", "a@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got == nil || got.UserID != "user-1" {
		t.Fatalf("expected identity for valid token, got %+v", got)
	}
}
