package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/proditifgorut/alatacraft/internal/middleware"
)

// HealthChecker はヘルスチェックが必要とするDB接続の部分集合。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(service, config)

	r.Route("/auth", func(r chi.Router) {
		// OAuthフロー
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)

		// セッション管理
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	return r
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	RequestRecorder   middleware.RequestRecorder

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメインサービス
	CatalogService CatalogServiceInterface
	OrderService   OrderServiceInterface
	ReviewService  ReviewServiceInterface
	ProfileService ProfileServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → SecurityHeaders → (Session) → Logging → (CSRF → RateLimit)
//
// 認可はすべてサービス層のポリシー評価で行い、ミドルウェアは認証のみを担う。
// 閲覧系の公開ルートはセッションなしで到達でき、匿名の呼び出しとして扱われる。
// /health と /metrics はアクセスログの対象外。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	logging := middleware.NewLoggingMiddleware(deps.Logger, deps.RequestRecorder)

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	orderHandler := NewOrderHandler(deps.OrderService)
	reviewHandler := NewReviewHandler(deps.ReviewService)
	profileHandler := NewProfileHandler(deps.ProfileService)

	// --- 運用エンドポイント ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---

	r.Group(func(r chi.Router) {
		r.Use(logging)

		// 認証ルート（OAuthフロー）
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google/login", authHandler.Login)
			r.Get("/google/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// CSRFトークン配布
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// カタログ閲覧（匿名可）
		r.Get("/api/categories", catalogHandler.ListCategories)
		r.Get("/api/products", catalogHandler.ListProducts)
		r.Get("/api/products/{id}", catalogHandler.GetProduct)

		// レビュー閲覧（匿名可）
		r.Get("/api/products/{id}/reviews", reviewHandler.ListReviews)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → Logging → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(logging)
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// プロフィール管理
		r.Get("/api/profile", profileHandler.GetProfile)
		r.Put("/api/profile", profileHandler.UpdateProfile)
		r.Delete("/api/profiles/{id}", profileHandler.DeleteProfile)

		// カテゴリ管理
		r.Post("/api/categories", catalogHandler.CreateCategory)
		r.Route("/api/categories/{id}", func(r chi.Router) {
			r.Put("/", catalogHandler.UpdateCategory)
			r.Delete("/", catalogHandler.DeleteCategory)
		})

		// 商品管理
		r.Post("/api/products", catalogHandler.CreateProduct)
		r.Put("/api/products/{id}", catalogHandler.UpdateProduct)
		r.Delete("/api/products/{id}", catalogHandler.DeleteProduct)

		// 注文
		r.Route("/api/orders", func(r chi.Router) {
			// POST /api/orders - 注文作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.OrderCreationMiddleware()).Post("/", orderHandler.CreateOrder)

			r.Get("/", orderHandler.ListOrders)
			r.Get("/all", orderHandler.ListAllOrders)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", orderHandler.GetOrder)
				r.Patch("/status", orderHandler.UpdateOrderStatus)
			})
		})

		// レビュー投稿・編集
		r.Post("/api/products/{id}/reviews", reviewHandler.CreateReview)
		r.Route("/api/reviews/{id}", func(r chi.Router) {
			r.Put("/", reviewHandler.UpdateReview)
			r.Delete("/", reviewHandler.DeleteReview)
		})
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// checkerがnilの場合はプロセス生存のみを報告する。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
