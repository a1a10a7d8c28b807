package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/tripman/internal/middleware"
)

// HealthChecker はデータベース接続の死活確認インターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           middleware.HTTPMetricsRecorder // nilの場合はメトリクス記録なし

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー・ソーシャルグラフ
	UserService   UserServiceInterface
	AvatarMaxSize int64

	// 旅程・旅程リスト
	ItineraryService ItineraryServiceInterface

	// 検索
	SearchService SearchServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS → Logging
//
// 認証ルート（/auth/*）は認証不要だがIP単位のレート制限がかかる。
// 公開閲覧ルートはOptionalAuthで閲覧者を解決し、
// それ以外の/apiルートはAuth＋ユーザー単位レート制限を必須とする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.AvatarMaxSize)
	itineraryHandler := NewItineraryHandler(deps.ItineraryService)
	searchHandler := NewSearchHandler(deps.SearchService)

	// --- 認証ルート（認証不要・IP単位レート制限） ---
	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthEndpointMiddleware())

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Post("/refresh-token", authHandler.Refresh)
	})

	// --- 公開閲覧ルート（未認証でも閲覧可、認証済みなら閲覧者視点を反映） ---
	// Route()によるサブルーターのマウントは使わない。マウントのキャッチオールが
	// 認証必須グループの兄弟パターン（/api/users/meなど）を覆い隠すため、
	// 全パターンを同一のルーティングツリーへ直接登録する。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalAuthMiddleware(deps.TokenVerifier))

		r.Get("/api/itineraries/{id}", itineraryHandler.Get)
		r.Get("/api/search", searchHandler.Search)
		r.Get("/api/search/suggestions", searchHandler.Suggestions)

		// 公開ユーザーディレクトリ
		r.Get("/api/users", userHandler.ListUsers)

		// {id}はユーザーIDまたはユーザー名
		r.Get("/api/users/{id}", userHandler.GetProfile)
		r.Get("/api/users/{id}/followers", userHandler.ListFollowers)
		r.Get("/api/users/{id}/following", userHandler.ListFollowing)
	})

	// --- 認証必須ルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ユーザー管理
		r.Get("/api/users/me", userHandler.Me)
		r.Post("/api/users/me/avatar", userHandler.UploadAvatar)
		r.Get("/api/users/suggested", userHandler.ListSuggested)
		r.Put("/api/users/{id}", userHandler.UpdateProfile)
		r.Delete("/api/users/{id}", userHandler.Withdraw)

		// フォロー管理
		r.Post("/api/users/{id}/follow", userHandler.Follow)
		r.Delete("/api/users/{id}/follow", userHandler.Unfollow)
		r.Get("/api/users/{id}/is-following", userHandler.IsFollowing)

		// 旅程・旅程リストの一覧
		r.Get("/api/users/{id}/itineraries", itineraryHandler.ListByUser)
		r.Get("/api/users/{id}/lists", itineraryHandler.ListsByUser)

		// 旅程管理
		r.Post("/api/itineraries", itineraryHandler.Create)
		r.Put("/api/itineraries/{id}", itineraryHandler.Update)
		r.Delete("/api/itineraries/{id}", itineraryHandler.Delete)

		// フィード
		r.Get("/api/feed", itineraryHandler.Feed)

		// 旅程リスト管理
		r.Post("/api/lists", itineraryHandler.CreateList)
		r.Get("/api/lists/{id}", itineraryHandler.GetList)
		r.Put("/api/lists/{id}", itineraryHandler.UpdateList)
		r.Delete("/api/lists/{id}", itineraryHandler.DeleteList)
	})

	// 死活確認（ヘルスチェックサブコマンドとコンテナのHEALTHCHECKが利用）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	return r
}
