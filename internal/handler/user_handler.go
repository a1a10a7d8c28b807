package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tripman/internal/middleware"
	"github.com/hitoshi/tripman/internal/model"
	"github.com/hitoshi/tripman/internal/user"
)

// defaultSuggestedLimit はおすすめユーザーのデフォルト件数。
const defaultSuggestedLimit = 10

// defaultDirectoryLimit は公開ユーザーディレクトリのデフォルト件数。
const defaultDirectoryLimit = 20

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, idOrUsername, viewerID string, includeEmail bool) (*model.UserWithFollowStatus, error)
	GetByID(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, targetID, viewerID string, input user.UpdateInput) (*model.User, error)
	UploadAvatar(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error)
	Withdraw(ctx context.Context, targetID, viewerID string) error
	Follow(ctx context.Context, viewerID, targetID string) error
	Unfollow(ctx context.Context, viewerID, targetID string) error
	IsFollowing(ctx context.Context, viewerID, targetID string) (bool, error)
	ListFollowers(ctx context.Context, idOrUsername, viewerID string) ([]*model.UserWithFollowStatus, error)
	ListFollowing(ctx context.Context, idOrUsername, viewerID string) ([]*model.UserWithFollowStatus, error)
	ListSuggested(ctx context.Context, viewerID string, limit int) ([]*model.User, error)
	ListUsers(ctx context.Context, name, username string, limit int) ([]*model.User, error)
}

// UserHandler はユーザープロフィールとソーシャルグラフのHTTPハンドラー。
type UserHandler struct {
	service       UserServiceInterface
	avatarMaxSize int64
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, avatarMaxSize int64) *UserHandler {
	return &UserHandler{
		service:       service,
		avatarMaxSize: avatarMaxSize,
	}
}

// Me は現在のログインユーザーの情報を返す。
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	found, err := h.service.GetByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, found)
}

// GetProfile はIDまたはユーザー名でプロフィールを返す。
// GET /api/users/{id}?includeEmail=
// 未認証でも閲覧可能。認証済みの場合はisFollowingを閲覧者視点で返す。
// メールアドレスはincludeEmail=trueかつ閲覧者が本人の場合のみ含まれる。
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	idOrUsername := chi.URLParam(r, "id")
	viewerID, _ := middleware.UserIDFromContext(r.Context())
	includeEmail := r.URL.Query().Get("includeEmail") == "true"

	profile, err := h.service.GetProfile(r.Context(), idOrUsername, viewerID, includeEmail)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, profile)
}

// updateProfileRequest はプロフィール更新のリクエストボディ。
type updateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UpdateProfile はプロフィールを更新する。本人のみ実行できる。
// PUT /api/users/{id}
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディが不正です"))
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), chi.URLParam(r, "id"), viewerID, user.UpdateInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, updated)
}

// UploadAvatar はアバター画像をアップロードする。
// POST /api/users/me/avatar
// multipart/form-dataのavatarフィールドで画像を受け取る。
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	// multipart全体のサイズを制限する
	r.Body = http.MaxBytesReader(w, r.Body, h.avatarMaxSize+4096)

	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("avatarフィールドが必要です"))
		return
	}
	defer file.Close()

	url, err := h.service.UploadAvatar(r.Context(), userID, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"avatar": url})
}

// Withdraw はユーザーの退会処理を実行する。本人のみ実行できる。
// DELETE /api/users/{id}
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Withdraw(r.Context(), chi.URLParam(r, "id"), viewerID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Follow は対象ユーザーをフォローする。
// POST /api/users/{id}/follow
// 成功時は204を返す。既にフォロー済みでも204（冪等）。
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Follow(r.Context(), viewerID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unfollow は対象ユーザーのフォローを解除する。
// DELETE /api/users/{id}/follow
// 成功時は204を返す。フォローしていなくても204（冪等）。
func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Unfollow(r.Context(), viewerID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// IsFollowing は閲覧者が対象ユーザーをフォローしているかを返す。
// GET /api/users/{id}/is-following
func (h *UserHandler) IsFollowing(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	following, err := h.service.IsFollowing(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]bool{"isFollowing": following})
}

// ListFollowers は対象ユーザーのフォロワー一覧を返す。
// GET /api/users/{id}/followers
// {id}はユーザーIDまたはユーザー名。
func (h *UserHandler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.UserIDFromContext(r.Context())

	followers, err := h.service.ListFollowers(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, followers)
}

// ListFollowing は対象ユーザーのフォロー中一覧を返す。
// GET /api/users/{id}/following
// {id}はユーザーIDまたはユーザー名。
func (h *UserHandler) ListFollowing(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := middleware.UserIDFromContext(r.Context())

	following, err := h.service.ListFollowing(r.Context(), chi.URLParam(r, "id"), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, following)
}

// ListSuggested は閲覧者へのおすすめユーザーを返す。
// GET /api/users/suggested?limit=10
func (h *UserHandler) ListSuggested(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	limit := defaultSuggestedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 50 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("limitは1〜50で指定してください"))
			return
		}
		limit = parsed
	}

	suggested, err := h.service.ListSuggested(r.Context(), viewerID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, suggested)
}

// ListUsers は公開ユーザーディレクトリを返す。
// GET /api/users?name=&username=&limit=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := defaultDirectoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("limitは1〜100で指定してください"))
			return
		}
		limit = parsed
	}

	users, err := h.service.ListUsers(r.Context(),
		r.URL.Query().Get("name"), r.URL.Query().Get("username"), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, users)
}
