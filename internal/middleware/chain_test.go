package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/proditifgorut/alatacraft/internal/model"
)

// TestMiddlewareChain_Session_GETRequest は
// Session ミドルウェアでGETリクエストが通ることを検証する。
func TestMiddlewareChain_Session_GETRequest(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{
				ID:         "valid-session",
				IdentityID: "identity-chain-test",
				ExpiresAt:  time.Now().Add(1 * time.Hour),
			}, nil
		},
	}

	sessionMW := NewSessionMiddleware(repo)

	var capturedIdentityID string
	handler := sessionMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identityID, _ := IdentityIDFromContext(r.Context())
		capturedIdentityID = identityID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedIdentityID != "identity-chain-test" {
		t.Errorf("identityID = %q, want %q", capturedIdentityID, "identity-chain-test")
	}
}

// TestMiddlewareChain_Session_POSTRequest_WithValidSession は
// Session ミドルウェアでPOSTリクエストがセッション付きで通ることを検証する。
func TestMiddlewareChain_Session_POSTRequest_WithValidSession(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{
				ID:         "valid-session",
				IdentityID: "identity-post-test",
				ExpiresAt:  time.Now().Add(1 * time.Hour),
			}, nil
		},
	}

	sessionMW := NewSessionMiddleware(repo)

	handlerCalled := false
	handler := sessionMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if !handlerCalled {
		t.Error("handler should have been called")
	}
}

// TestMiddlewareChain_NoSession_Returns401 は
// セッションがない場合に401が返されることを検証する。
func TestMiddlewareChain_NoSession_Returns401(t *testing.T) {
	repo := &mockSessionRepository{}

	sessionMW := NewSessionMiddleware(repo)

	handler := sessionMW(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	// セッション未認証で401が返ること
	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
