package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/tripman/internal/middleware"
	"github.com/hitoshi/tripman/internal/model"
	"github.com/hitoshi/tripman/internal/search"
)

// mockSearchService はSearchServiceInterfaceのモック実装。
type mockSearchService struct {
	searchFn      func(ctx context.Context, query, viewerID string) (*search.Result, error)
	suggestionsFn func(ctx context.Context, query, viewerID string) (*search.Result, error)
}

func (m *mockSearchService) Search(ctx context.Context, query, viewerID string) (*search.Result, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, viewerID)
	}
	return &search.Result{}, nil
}

func (m *mockSearchService) Suggestions(ctx context.Context, query, viewerID string) (*search.Result, error) {
	if m.suggestionsFn != nil {
		return m.suggestionsFn(ctx, query, viewerID)
	}
	return &search.Result{}, nil
}

// stubTokenVerifier はアクセストークン検証のスタブ。
// "valid-token"のみを受理してuser-123に解決する。
type stubTokenVerifier struct{}

func (stubTokenVerifier) VerifyAccessToken(token string) (string, error) {
	if token == "valid-token" {
		return "user-123", nil
	}
	return "", errors.New("token invalid")
}

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()

	if deps.TokenVerifier == nil {
		deps.TokenVerifier = stubTokenVerifier{}
	}
	if deps.CORSAllowedOrigin == "" {
		deps.CORSAllowedOrigin = "http://localhost:3000"
	}
	if deps.RateLimiter == nil {
		rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			GeneralRate:     rate.Limit(100),
			GeneralBurst:    100,
			AuthRate:        rate.Limit(100),
			AuthBurst:       100,
			CleanupInterval: time.Hour,
		})
		t.Cleanup(rl.Stop)
		deps.RateLimiter = rl
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.AuthService == nil {
		deps.AuthService = &mockAuthService{}
	}
	if deps.UserService == nil {
		deps.UserService = &mockUserService{}
	}
	if deps.AvatarMaxSize == 0 {
		deps.AvatarMaxSize = 1 << 20
	}
	if deps.ItineraryService == nil {
		deps.ItineraryService = &mockItineraryService{}
	}
	if deps.SearchService == nil {
		deps.SearchService = &mockSearchService{}
	}

	return NewRouter(deps)
}

func TestRouter_ProtectedRoute_WithoutToken_ReturnsUnauthorized(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRouter_ProtectedRoute_WithValidToken(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		ItineraryService: &mockItineraryService{
			feedFn: func(ctx context.Context, viewerID string, limit int) ([]*model.ItinerarySummary, error) {
				if viewerID != "user-123" {
					t.Errorf("viewerID = %q, want %q", viewerID, "user-123")
				}
				return nil, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_PublicProfile_WithoutToken(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		UserService: &mockUserService{
			getProfileFn: func(ctx context.Context, idOrUsername, viewerID string, includeEmail bool) (*model.UserWithFollowStatus, error) {
				if viewerID != "" {
					t.Errorf("viewerID = %q, want empty for anonymous viewer", viewerID)
				}
				return &model.UserWithFollowStatus{User: model.User{ID: "user-123", Username: "taro"}}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users/taro", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_PublicItinerary_WithoutToken(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		ItineraryService: &mockItineraryService{
			getFn: func(ctx context.Context, id, viewerID string) (*model.Itinerary, error) {
				return &model.Itinerary{ID: id, IsPublic: true}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/itineraries/itin-1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_Search_PassesQuery(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		SearchService: &mockSearchService{
			searchFn: func(ctx context.Context, query, viewerID string) (*search.Result, error) {
				if query != "京都" {
					t.Errorf("query = %q, want %q", query, "京都")
				}
				return &search.Result{
					Users:       []*model.User{{ID: "user-1", Username: "kyoto_fan"}},
					Itineraries: []*model.ItinerarySummary{},
				}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=京都", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got search.Result
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got.Users) != 1 {
		t.Errorf("users count = %d, want 1", len(got.Users))
	}
}

func TestRouter_SearchSuggestions(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		SearchService: &mockSearchService{
			suggestionsFn: func(ctx context.Context, query, viewerID string) (*search.Result, error) {
				if query != "kyo" {
					t.Errorf("query = %q, want %q", query, "kyo")
				}
				return &search.Result{}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/search/suggestions?q=kyo", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_AuthEndpoint_RateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		AuthRate:        rate.Limit(0.001),
		AuthBurst:       1,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(rl.Stop)

	router := newTestRouter(t, &RouterDeps{RateLimiter: rl})

	// 1回目は通る（ボディ不正で400だがレート制限は通過している）
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "203.0.113.5:40000"
	router.ServeHTTP(httptest.NewRecorder(), req)

	// 同一IPの2回目は429
	req2 := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req2.RemoteAddr = "203.0.113.5:40001"
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)

	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w2.Code, http.StatusTooManyRequests)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/api/users/taro", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", got, "DENY")
	}
}

func TestRouter_CORS_Preflight(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{CORSAllowedOrigin: "http://localhost:3000"})

	req := httptest.NewRequest(http.MethodOptions, "/api/feed", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
	}
}

func TestRouter_MeRoute_NotShadowedByProfileRoute(t *testing.T) {
	meCalled := false
	router := newTestRouter(t, &RouterDeps{
		UserService: &mockUserService{
			getByIDFn: func(ctx context.Context, userID string) (*model.User, error) {
				meCalled = true
				return &model.User{ID: userID, Username: "taro"}, nil
			},
			getProfileFn: func(ctx context.Context, idOrUsername, viewerID string, includeEmail bool) (*model.UserWithFollowStatus, error) {
				t.Errorf("GetProfile called with %q, /api/users/me must route to Me", idOrUsername)
				return nil, model.NewUserNotFoundError()
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookieName, Value: "valid-token"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !meCalled {
		t.Error("expected Me handler to be called")
	}
}

// pingErrChecker は常に指定エラーを返すHealthChecker。
type pingErrChecker struct{ err error }

func (c pingErrChecker) PingContext(ctx context.Context) error { return c.err }

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{HealthChecker: pingErrChecker{}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_Health_DatabaseDown(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		HealthChecker: pingErrChecker{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_UnknownRoute_NotFound(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
