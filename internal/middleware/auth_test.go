package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubVerifier はTokenVerifierのスタブ実装。
type stubVerifier struct {
	VerifyFn func(tokenString string) (string, error)
}

func (s *stubVerifier) VerifyAccessToken(tokenString string) (string, error) {
	if s.VerifyFn != nil {
		return s.VerifyFn(tokenString)
	}
	return "", fmt.Errorf("invalid token")
}

func okHandler(t *testing.T, wantUserID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected user ID in context: %v", err)
		}
		if userID != wantUserID {
			t.Errorf("got user ID %q, want %q", userID, wantUserID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	verifier := &stubVerifier{
		VerifyFn: func(tokenString string) (string, error) {
			if tokenString != "valid-token" {
				t.Errorf("got token %q, want valid-token", tokenString)
			}
			return "user-1", nil
		},
	}

	handler := NewAuthMiddleware(verifier)(okHandler(t, "user-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookieName, Value: "valid-token"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestAuthMiddleware_MissingCookie(t *testing.T) {
	handler := NewAuthMiddleware(&stubVerifier{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("got Content-Type %q, want application/json", ct)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	verifier := &stubVerifier{
		VerifyFn: func(tokenString string) (string, error) {
			return "", fmt.Errorf("expired")
		},
	}

	handler := NewAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookieName, Value: "expired-token"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", rec.Code)
	}
}

func TestOptionalAuthMiddleware_PassesThroughUnauthenticated(t *testing.T) {
	handler := NewOptionalAuthMiddleware(&stubVerifier{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := UserIDFromContext(r.Context()); err == nil {
			t.Error("expected no user ID for unauthenticated request")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users/taro", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestOptionalAuthMiddleware_InjectsUserWhenValid(t *testing.T) {
	verifier := &stubVerifier{
		VerifyFn: func(tokenString string) (string, error) {
			return "user-1", nil
		},
	}

	handler := NewOptionalAuthMiddleware(verifier)(okHandler(t, "user-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/users/taro", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookieName, Value: "valid"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}
