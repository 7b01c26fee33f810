package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proditifgorut/alatacraft/internal/auth"
	"github.com/proditifgorut/alatacraft/internal/catalog"
	"github.com/proditifgorut/alatacraft/internal/config"
	"github.com/proditifgorut/alatacraft/internal/database"
	"github.com/proditifgorut/alatacraft/internal/handler"
	"github.com/proditifgorut/alatacraft/internal/logger"
	"github.com/proditifgorut/alatacraft/internal/metrics"
	"github.com/proditifgorut/alatacraft/internal/middleware"
	"github.com/proditifgorut/alatacraft/internal/order"
	"github.com/proditifgorut/alatacraft/internal/policy"
	"github.com/proditifgorut/alatacraft/internal/profile"
	"github.com/proditifgorut/alatacraft/internal/repository"
	"github.com/proditifgorut/alatacraft/internal/review"
	"github.com/proditifgorut/alatacraft/internal/schema"
	"github.com/proditifgorut/alatacraft/internal/security"
	"github.com/proditifgorut/alatacraft/internal/seed"
	"github.com/proditifgorut/alatacraft/internal/worker/expire"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandReconcile:
		return runReconcile(cfg)
	case CommandSeed:
		return runSeed(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	identRepo := repository.NewPostgresIdentityRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)
	orderRepo := repository.NewPostgresOrderRepo(db)
	reviewRepo := repository.NewPostgresReviewRepo(db)

	// 3. メトリクスと認可評価器の初期化
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	evaluator := policy.NewEvaluator(profileRepo, orderRepo, collector, slog.Default())

	// 4. セキュリティサービスの初期化
	sanitizer := security.NewContentSanitizer()
	urlGuard := security.NewURLGuard()

	// 5. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		HTTPClient:   urlGuard.NewSafeClient(10 * time.Second),
	})
	profileService := profile.NewService(profileRepo, identRepo, sessionRepo, evaluator, sanitizer)
	authService := auth.NewService(
		oauthProvider, identRepo, profileRepo, sessionRepo, profileService,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	catalogService := catalog.NewService(categoryRepo, productRepo, evaluator, sanitizer, urlGuard)
	orderService := order.NewService(orderRepo, evaluator, sanitizer)
	reviewService := review.NewService(reviewRepo, productRepo, evaluator, sanitizer)

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート値はreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.OrderRate = rate.Limit(float64(cfg.RateLimitOrder) / 60.0)
	rateLimiterCfg.OrderBurst = cfg.RateLimitOrder

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterCfg),
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:          slog.Default(),
		RequestRecorder: collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		CatalogService: catalogService,
		OrderService:   orderService,
		ReviewService:  reviewService,
		ProfileService: profileService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、注文の自動キャンセルと期限切れセッション削除の
// 定期ジョブを起動する。SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	orderRepo := repository.NewPostgresOrderRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. 失効ジョブの初期化
	collector := metrics.NewCollector(prometheus.NewRegistry())
	job := expire.NewJob(orderRepo, sessionRepo, collector, slog.Default())
	job.ExpireAfter = cfg.OrderExpireAfter

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("interval", cfg.WorkerInterval),
		slog.Duration("expire_after", cfg.OrderExpireAfter),
	)

	// 失効ジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.WorkerInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runReconcile はスキーマリコンサイルを実行する。
// 列型の検査と修復、台帳の適用、ポリシーの再適用、収束検証を順に行う。
// いずれかの段階が失敗した場合はエラーで中断する。
func runReconcile(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("running schema reconciliation",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Bool("allow_destructive", cfg.ReconcileAllowDestructive),
	)

	reconciler := schema.NewReconciler(db, cfg.DatabaseURL, cfg.ReconcileAllowDestructive, nil, slog.Default())
	if err := reconciler.Run(context.Background()); err != nil {
		return fmt.Errorf("schema reconciliation failed: %w", err)
	}

	slog.Info("schema reconciliation completed successfully")
	return nil
}

// runSeed は種データを投入する。
// SEED_ALLOW_CLEARが有効な場合はカタログを空にしてから投入し直す。
func runSeed(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	categoryRepo := repository.NewPostgresCategoryRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)

	loader := seed.NewLoader(db, categoryRepo, productRepo, cfg.SeedAllowClear, nil, slog.Default())

	slog.Info("running seed load",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Bool("allow_clear", cfg.SeedAllowClear),
	)

	ctx := context.Background()
	if cfg.SeedAllowClear {
		if err := loader.ClearAndReseed(ctx); err != nil {
			return fmt.Errorf("seed load failed: %w", err)
		}
	} else {
		if err := loader.Run(ctx); err != nil {
			return fmt.Errorf("seed load failed: %w", err)
		}
	}

	slog.Info("seed load completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
