package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookmarker/internal/middleware"
)

// DefaultBodyLimit はリクエストボディの上限サイズ（100KiB）。
const DefaultBodyLimit = 100 << 10

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger         *slog.Logger
	TokenVerifier  middleware.TokenVerifier
	RateLimiter    *middleware.RateLimiter
	CORSOrigins    []string
	HTTPRecorder   middleware.HTTPRecorder
	BodyLimitBytes int64

	// 認証
	AuthService AuthServiceInterface

	// ブックマーク
	BookmarkService BookmarkServiceInterface
	PreviewFetcher  PreviewFetcher

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → RateLimit(General) → BodyLimit
//
// /user-api/* と /auth-api/get-user はさらにAuthMiddlewareを通る。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bodyLimit := deps.BodyLimitBytes
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyLimit
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSOrigins))
	r.Use(deps.RateLimiter.GeneralMiddleware())
	r.Use(middleware.NewBodyLimitMiddleware(bodyLimit))

	authHandler := NewAuthHandler(deps.AuthService)
	bookmarkHandler := NewBookmarkHandler(deps.BookmarkService, deps.PreviewFetcher)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	requireAuth := middleware.NewAuthMiddleware(deps.TokenVerifier)

	// --- 認証不要のルート ---
	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth-api", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.With(requireAuth).Get("/get-user", authHandler.GetUser)
	})

	// --- 認証が必要なルート ---
	r.Route("/user-api", func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/adduser", bookmarkHandler.AddBookmark)
		r.Get("/get-bookmarks", bookmarkHandler.ListBookmarks)
		r.Put("/update-bookmark/{id}", bookmarkHandler.UpdateBookmark)
		r.Delete("/delete-bookmark/{id}", bookmarkHandler.DeleteBookmark)

		// プレビューは外部へのリクエストを伴うためユーザーごとに追加制限する
		r.With(deps.RateLimiter.PreviewMiddleware()).Get("/preview", bookmarkHandler.Preview)
	})

	return r
}
