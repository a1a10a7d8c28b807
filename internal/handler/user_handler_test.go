package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tripman/internal/model"
	"github.com/hitoshi/tripman/internal/user"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	getProfileFn    func(ctx context.Context, idOrUsername, viewerID string, includeEmail bool) (*model.UserWithFollowStatus, error)
	getByIDFn       func(ctx context.Context, userID string) (*model.User, error)
	updateProfileFn func(ctx context.Context, targetID, viewerID string, input user.UpdateInput) (*model.User, error)
	uploadAvatarFn  func(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error)
	withdrawFn      func(ctx context.Context, targetID, viewerID string) error
	followFn        func(ctx context.Context, viewerID, targetID string) error
	unfollowFn      func(ctx context.Context, viewerID, targetID string) error
	isFollowingFn   func(ctx context.Context, viewerID, targetID string) (bool, error)
	listFollowersFn func(ctx context.Context, idOrUsername, viewerID string) ([]*model.UserWithFollowStatus, error)
	listFollowingFn func(ctx context.Context, idOrUsername, viewerID string) ([]*model.UserWithFollowStatus, error)
	listSuggestedFn func(ctx context.Context, viewerID string, limit int) ([]*model.User, error)
	listUsersFn     func(ctx context.Context, name, username string, limit int) ([]*model.User, error)
}

func (m *mockUserService) GetProfile(ctx context.Context, idOrUsername, viewerID string, includeEmail bool) (*model.UserWithFollowStatus, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, idOrUsername, viewerID, includeEmail)
	}
	return &model.UserWithFollowStatus{User: model.User{ID: idOrUsername}}, nil
}

func (m *mockUserService) GetByID(ctx context.Context, userID string) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, userID)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, targetID, viewerID string, input user.UpdateInput) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, targetID, viewerID, input)
	}
	return &model.User{ID: targetID}, nil
}

func (m *mockUserService) UploadAvatar(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error) {
	if m.uploadAvatarFn != nil {
		return m.uploadAvatarFn(ctx, userID, reader, size, contentType)
	}
	return "http://localhost:9000/avatars/avatars/" + userID + ".png", nil
}

func (m *mockUserService) Withdraw(ctx context.Context, targetID, viewerID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, targetID, viewerID)
	}
	return nil
}

func (m *mockUserService) Follow(ctx context.Context, viewerID, targetID string) error {
	if m.followFn != nil {
		return m.followFn(ctx, viewerID, targetID)
	}
	return nil
}

func (m *mockUserService) Unfollow(ctx context.Context, viewerID, targetID string) error {
	if m.unfollowFn != nil {
		return m.unfollowFn(ctx, viewerID, targetID)
	}
	return nil
}

func (m *mockUserService) IsFollowing(ctx context.Context, viewerID, targetID string) (bool, error) {
	if m.isFollowingFn != nil {
		return m.isFollowingFn(ctx, viewerID, targetID)
	}
	return false, nil
}

func (m *mockUserService) ListFollowers(ctx context.Context, idOrUsername, viewerID string) ([]*model.UserWithFollowStatus, error) {
	if m.listFollowersFn != nil {
		return m.listFollowersFn(ctx, idOrUsername, viewerID)
	}
	return nil, nil
}

func (m *mockUserService) ListFollowing(ctx context.Context, idOrUsername, viewerID string) ([]*model.UserWithFollowStatus, error) {
	if m.listFollowingFn != nil {
		return m.listFollowingFn(ctx, idOrUsername, viewerID)
	}
	return nil, nil
}

func (m *mockUserService) ListSuggested(ctx context.Context, viewerID string, limit int) ([]*model.User, error) {
	if m.listSuggestedFn != nil {
		return m.listSuggestedFn(ctx, viewerID, limit)
	}
	return nil, nil
}

func (m *mockUserService) ListUsers(ctx context.Context, name, username string, limit int) ([]*model.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, name, username, limit)
	}
	return nil, nil
}

// newUserTestRouter はURLパラメータの解決が必要なテスト用のルーターを組む。
func newUserTestRouter(h *UserHandler) chi.Router {
	r := chi.NewRouter()
	r.Get("/api/users", h.ListUsers)
	r.Get("/api/users/me", h.Me)
	r.Post("/api/users/me/avatar", h.UploadAvatar)
	r.Get("/api/users/suggested", h.ListSuggested)
	r.Get("/api/users/{id}", h.GetProfile)
	r.Put("/api/users/{id}", h.UpdateProfile)
	r.Delete("/api/users/{id}", h.Withdraw)
	r.Post("/api/users/{id}/follow", h.Follow)
	r.Delete("/api/users/{id}/follow", h.Unfollow)
	r.Get("/api/users/{id}/is-following", h.IsFollowing)
	r.Get("/api/users/{id}/followers", h.ListFollowers)
	r.Get("/api/users/{id}/following", h.ListFollowing)
	return r
}

// --- GET /api/users/me テスト ---

func TestUserHandler_Me_Success(t *testing.T) {
	svc := &mockUserService{
		getByIDFn: func(ctx context.Context, userID string) (*model.User, error) {
			return &model.User{ID: userID, Username: "taro", Email: "taro@example.com"}, nil
		},
	}
	h := NewUserHandler(svc, 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got model.User
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != "user-123" {
		t.Errorf("id = %q, want %q", got.ID, "user-123")
	}
	// 本人のレスポンスにはメールアドレスを含む
	if got.Email != "taro@example.com" {
		t.Errorf("email = %q, want %q", got.Email, "taro@example.com")
	}
}

func TestUserHandler_Me_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- GET /api/users/{id} テスト ---

func TestUserHandler_GetProfile_ByUsername(t *testing.T) {
	svc := &mockUserService{
		getProfileFn: func(ctx context.Context, idOrUsername, viewerID string, includeEmail bool) (*model.UserWithFollowStatus, error) {
			if idOrUsername != "taro" {
				t.Errorf("idOrUsername = %q, want %q", idOrUsername, "taro")
			}
			if viewerID != "viewer-1" {
				t.Errorf("viewerID = %q, want %q", viewerID, "viewer-1")
			}
			return &model.UserWithFollowStatus{
				User:        model.User{ID: "user-123", Username: "taro"},
				IsFollowing: true,
			}, nil
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	req := httptest.NewRequest(http.MethodGet, "/api/users/taro", nil)
	req = withUserID(req, "viewer-1")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got model.UserWithFollowStatus
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !got.IsFollowing {
		t.Error("expected isFollowing = true")
	}
}

func TestUserHandler_GetProfile_NotFound(t *testing.T) {
	svc := &mockUserService{
		getProfileFn: func(ctx context.Context, idOrUsername, viewerID string, includeEmail bool) (*model.UserWithFollowStatus, error) {
			return nil, model.NewUserNotFoundError()
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	req := httptest.NewRequest(http.MethodGet, "/api/users/unknown", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- POST /api/users/{id}/follow テスト ---

func TestUserHandler_Follow_Success(t *testing.T) {
	followCalled := false
	svc := &mockUserService{
		followFn: func(ctx context.Context, viewerID, targetID string) error {
			followCalled = true
			if viewerID != "viewer-1" || targetID != "user-123" {
				t.Errorf("follow(%q, %q), want follow(viewer-1, user-123)", viewerID, targetID)
			}
			return nil
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	req := httptest.NewRequest(http.MethodPost, "/api/users/user-123/follow", nil)
	req = withUserID(req, "viewer-1")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if !followCalled {
		t.Error("expected Follow to be called")
	}
}

func TestUserHandler_Follow_SelfFollow(t *testing.T) {
	svc := &mockUserService{
		followFn: func(ctx context.Context, viewerID, targetID string) error {
			return model.NewSelfFollowError()
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	req := httptest.NewRequest(http.MethodPost, "/api/users/viewer-1/follow", nil)
	req = withUserID(req, "viewer-1")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestUserHandler_Unfollow_Success(t *testing.T) {
	svc := &mockUserService{
		unfollowFn: func(ctx context.Context, viewerID, targetID string) error {
			return nil
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	req := httptest.NewRequest(http.MethodDelete, "/api/users/user-123/follow", nil)
	req = withUserID(req, "viewer-1")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestUserHandler_IsFollowing(t *testing.T) {
	svc := &mockUserService{
		isFollowingFn: func(ctx context.Context, viewerID, targetID string) (bool, error) {
			return true, nil
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	req := httptest.NewRequest(http.MethodGet, "/api/users/user-123/is-following", nil)
	req = withUserID(req, "viewer-1")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !got["isFollowing"] {
		t.Error("expected isFollowing = true")
	}
}

// --- PUT /api/users/{id} テスト ---

func TestUserHandler_UpdateProfile_Success(t *testing.T) {
	svc := &mockUserService{
		updateProfileFn: func(ctx context.Context, targetID, viewerID string, input user.UpdateInput) (*model.User, error) {
			if input.Name != "New Name" {
				t.Errorf("name = %q, want %q", input.Name, "New Name")
			}
			return &model.User{ID: targetID, Name: input.Name}, nil
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	body := bytes.NewReader([]byte(`{"name":"New Name","email":"new@example.com"}`))
	req := httptest.NewRequest(http.MethodPut, "/api/users/user-123", body)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestUserHandler_UpdateProfile_Forbidden(t *testing.T) {
	svc := &mockUserService{
		updateProfileFn: func(ctx context.Context, targetID, viewerID string, input user.UpdateInput) (*model.User, error) {
			return nil, model.NewForbiddenError()
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	body := bytes.NewReader([]byte(`{"name":"New Name"}`))
	req := httptest.NewRequest(http.MethodPut, "/api/users/other-user", body)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// --- POST /api/users/me/avatar テスト ---

// buildAvatarRequest はavatarフィールド付きのmultipartリクエストを組み立てる。
func buildAvatarRequest(t *testing.T, fieldName string, contentType string, payload []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+fieldName+`"; filename="avatar.png"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	part.Write(payload)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/users/me/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUserHandler_UploadAvatar_Success(t *testing.T) {
	svc := &mockUserService{
		uploadAvatarFn: func(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error) {
			if contentType != "image/png" {
				t.Errorf("contentType = %q, want %q", contentType, "image/png")
			}
			return "http://localhost:9000/avatars/avatars/user-123.png", nil
		},
	}
	h := NewUserHandler(svc, 1<<20)

	req := buildAvatarRequest(t, "avatar", "image/png", []byte("png-bytes"))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.UploadAvatar(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got["avatar"] == "" {
		t.Error("expected avatar URL in response")
	}
}

func TestUserHandler_UploadAvatar_MissingField(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, 1<<20)

	req := buildAvatarRequest(t, "file", "image/png", []byte("png-bytes"))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.UploadAvatar(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestUserHandler_UploadAvatar_TooLarge(t *testing.T) {
	svc := &mockUserService{
		uploadAvatarFn: func(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error) {
			return "", model.NewAvatarTooLargeError(1 << 20)
		},
	}
	h := NewUserHandler(svc, 1<<20)

	req := buildAvatarRequest(t, "avatar", "image/png", []byte("png-bytes"))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.UploadAvatar(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

// --- GET /api/users/suggested テスト ---

func TestUserHandler_ListSuggested_DefaultLimit(t *testing.T) {
	svc := &mockUserService{
		listSuggestedFn: func(ctx context.Context, viewerID string, limit int) ([]*model.User, error) {
			if limit != defaultSuggestedLimit {
				t.Errorf("limit = %d, want %d", limit, defaultSuggestedLimit)
			}
			return []*model.User{{ID: "user-999"}}, nil
		},
	}
	h := NewUserHandler(svc, 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/api/users/suggested", nil)
	req = withUserID(req, "viewer-1")
	w := httptest.NewRecorder()

	h.ListSuggested(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestUserHandler_ListSuggested_InvalidLimit(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/api/users/suggested?limit=999", nil)
	req = withUserID(req, "viewer-1")
	w := httptest.NewRecorder()

	h.ListSuggested(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- followers / following テスト ---

func TestUserHandler_ListFollowers_StripsEmail(t *testing.T) {
	svc := &mockUserService{
		listFollowersFn: func(ctx context.Context, idOrUsername, viewerID string) ([]*model.UserWithFollowStatus, error) {
			// サービス層でメールアドレスは除去済みの想定
			return []*model.UserWithFollowStatus{
				{User: model.User{ID: "follower-1", Username: "hanako"}},
			}, nil
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	req := httptest.NewRequest(http.MethodGet, "/api/users/taro/followers", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if bytes.Contains(body, []byte("email")) {
		t.Errorf("follower list should not contain email field: %s", body)
	}
}

// --- 公開ユーザーディレクトリ テスト ---

func TestUserHandler_ListUsers_PassesFilters(t *testing.T) {
	svc := &mockUserService{
		listUsersFn: func(ctx context.Context, name, username string, limit int) ([]*model.User, error) {
			if name != "Taro" || username != "" {
				t.Errorf("filters = (%q, %q), want (Taro, empty)", name, username)
			}
			if limit != defaultDirectoryLimit {
				t.Errorf("limit = %d, want %d", limit, defaultDirectoryLimit)
			}
			return []*model.User{{ID: "u1", Username: "taro"}}, nil
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	req := httptest.NewRequest(http.MethodGet, "/api/users?name=Taro", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestUserHandler_ListUsers_InvalidLimit(t *testing.T) {
	router := newUserTestRouter(NewUserHandler(&mockUserService{}, 1<<20))

	req := httptest.NewRequest(http.MethodGet, "/api/users?limit=0", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestUserHandler_GetProfile_PassesIncludeEmailFlag(t *testing.T) {
	var gotIncludeEmail bool
	svc := &mockUserService{
		getProfileFn: func(ctx context.Context, idOrUsername, viewerID string, includeEmail bool) (*model.UserWithFollowStatus, error) {
			gotIncludeEmail = includeEmail
			return &model.UserWithFollowStatus{User: model.User{ID: "user-123"}}, nil
		},
	}
	router := newUserTestRouter(NewUserHandler(svc, 1<<20))

	req := httptest.NewRequest(http.MethodGet, "/api/users/taro?includeEmail=true", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if !gotIncludeEmail {
		t.Error("includeEmail=true should be forwarded to the service")
	}

	// フラグなしではfalseで渡る
	req = httptest.NewRequest(http.MethodGet, "/api/users/taro", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if gotIncludeEmail {
		t.Error("missing includeEmail should be forwarded as false")
	}
}
