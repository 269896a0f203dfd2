package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/bookmarker/internal/auth"
	"github.com/hitoshi/bookmarker/internal/bookmark"
	"github.com/hitoshi/bookmarker/internal/config"
	"github.com/hitoshi/bookmarker/internal/database"
	"github.com/hitoshi/bookmarker/internal/handler"
	"github.com/hitoshi/bookmarker/internal/linkpreview"
	"github.com/hitoshi/bookmarker/internal/logger"
	"github.com/hitoshi/bookmarker/internal/metrics"
	"github.com/hitoshi/bookmarker/internal/middleware"
	"github.com/hitoshi/bookmarker/internal/repository"
	"github.com/hitoshi/bookmarker/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数（.envを含む）でConfigを読み込み、
// LOG_LEVELに合わせてロガーを再設定する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckURL())
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DBがPingに応答するまで待ち、必要ならマイグレーションを適用してから
// 全依存関係をワイヤリングしてHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.WaitForReady(ctx, db, cfg.DBConnectTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// 2. スキーマ
	if cfg.AutoMigrate {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations applied")
	}

	// 3. ルーターの構築
	router, cleanup, err := buildRouter(cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer cleanup()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PreviewTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, server)
}

// serve はctxがキャンセルされるまでサーバーを動かし、その後シャットダウンする。
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildRouter はリポジトリ・サービス・ミドルウェアを組み立ててルーターを返す。
// 返されるcleanupはレートリミッターのクリーンアップgoroutineを止める。
func buildRouter(cfg *config.Config, db *sql.DB, log *slog.Logger) (http.Handler, func(), error) {
	// リポジトリ
	accountRepo := repository.NewPostgresAccountRepo(db)
	bookmarkRepo := repository.NewPostgresBookmarkRepo(db)

	// メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 認証
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token manager: %w", err)
	}
	authService := auth.NewService(accountRepo, auth.NewBcryptHasher(cfg.BcryptCost), tokens, collector)

	// ブックマーク・プレビュー
	bookmarkService := bookmark.NewService(bookmarkRepo, collector)

	ssrfGuard := security.NewSSRFGuard()
	previewFetcher := linkpreview.NewFetcher(
		ssrfGuard,
		ssrfGuard.NewSafeClient(cfg.PreviewTimeout),
		security.NewTextSanitizer(),
		cfg.PreviewMaxSize,
	)

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralMax:       cfg.RateLimitMax,
		GeneralWindow:    cfg.RateLimitWindow,
		PreviewPerMinute: cfg.RateLimitPreviewPerMin,
		TrustProxy:       cfg.TrustProxy,
	})

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:          log,
		TokenVerifier:   authService,
		RateLimiter:     rl,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		HTTPRecorder:    collector,
		BodyLimitBytes:  handler.DefaultBodyLimit,
		AuthService:     authService,
		BookmarkService: bookmarkService,
		PreviewFetcher:  previewFetcher,
		HealthChecker:   db,
		MetricsHandler:  metrics.Handler(reg),
	})

	return router, rl.Stop, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// healthcheckURL はhealthcheckサブコマンドの確認先を返す。
// ポートはサーバーと同じくSERVER_PORT、PORT、3500の順に決まる。
func healthcheckURL() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = "3500"
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(target string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
