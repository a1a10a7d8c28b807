package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tripman/internal/auth"
	"github.com/hitoshi/tripman/internal/model"
	"github.com/hitoshi/tripman/internal/repository"
)

const (
	accessTokenCookieName  = "access_token"
	refreshTokenCookieName = "refresh_token"

	// refreshTokenCookiePath によりリフレッシュトークンは
	// リフレッシュエンドポイントへのリクエストにのみ送信される。
	refreshTokenCookiePath = "/auth/refresh-token"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, input auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, identifier, password string) (*model.User, *auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain       string
	CookieSecure       bool
	AccessTokenMaxAge  int // アクセストークンCookieの有効期間（秒）
	RefreshTokenMaxAge int // リフレッシュトークンCookieの有効期間（秒）
}

// AuthHandler はパスワード認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// registerRequest はユーザー登録のリクエストボディ。
// avatarは外部URLを指定でき、省略可能。
type registerRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
}

// loginRequest はログインのリクエストボディ。
// usernameOrEmailにはユーザー名またはメールアドレスを指定する。
type loginRequest struct {
	Identifier string `json:"usernameOrEmail"`
	Password   string `json:"password"`
}

// Register は新規ユーザーを登録する。
// POST /auth/register
// 成功時は201と作成されたユーザーを返す。Cookieは発行しない
// （クライアントは登録後にログインを行う）。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディが不正です"))
		return
	}

	if err := validateRegisterRequest(req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Avatar:   req.Avatar,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			writeAPIErrorResponse(w, http.StatusConflict, model.NewDuplicateUserError("ユーザー名"))
		case errors.Is(err, repository.ErrDuplicateEmail):
			writeAPIErrorResponse(w, http.StatusConflict, model.NewDuplicateUserError("メールアドレス"))
		default:
			handleServiceError(w, err)
		}
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/users/%s", created.ID))
	writeJSONResponse(w, http.StatusCreated, created)
}

// Login はユーザー名/メールアドレスとパスワードで認証する。
// POST /auth/login
// 成功時はアクセストークンとリフレッシュトークンをHTTP Only Cookieで発行し、
// ユーザー情報を返す。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディが不正です"))
		return
	}

	if req.Identifier == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("usernameOrEmailとpasswordは必須です"))
		return
	}

	user, pair, err := h.service.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
			return
		}
		handleServiceError(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	writeJSONResponse(w, http.StatusOK, user)
}

// Logout はトークンCookieを削除する。
// POST /auth/logout
// サーバー側に破棄すべき状態はないため、未ログインでも常に204を返す（冪等）。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearTokenCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh はリフレッシュトークンで新しいトークンの組を発行する。
// POST /auth/refresh-token
// 成功時は204を返し、新しいCookieを設定する。
// 失敗時は401を返し、Cookieを削除する。
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		h.clearTokenCookies(w)
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	pair, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) || errors.Is(err, auth.ErrTokenInvalid) {
			h.clearTokenCookies(w)
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		slog.Error("failed to refresh session", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	w.WriteHeader(http.StatusNoContent)
}

// setTokenCookies はアクセス/リフレッシュトークンのCookieを設定する。
func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.AccessTokenMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    pair.RefreshToken,
		Path:     refreshTokenCookiePath,
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.RefreshTokenMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearTokenCookies はトークンCookieを削除する。
func (h *AuthHandler) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    "",
		Path:     refreshTokenCookiePath,
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// validateRegisterRequest は登録リクエストの必須項目を検証する。
func validateRegisterRequest(req registerRequest) *model.APIError {
	if req.Name == "" {
		return model.NewInvalidInputError("名前は必須です")
	}
	if req.Username == "" {
		return model.NewInvalidInputError("ユーザー名は必須です")
	}
	if req.Email == "" {
		return model.NewInvalidInputError("メールアドレスは必須です")
	}
	if len(req.Password) < 8 {
		return model.NewInvalidInputError("パスワードは8文字以上を指定してください")
	}
	return nil
}
