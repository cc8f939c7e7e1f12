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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/smrtstudy/internal/auth"
	"github.com/hitoshi/smrtstudy/internal/config"
	"github.com/hitoshi/smrtstudy/internal/database"
	"github.com/hitoshi/smrtstudy/internal/email"
	"github.com/hitoshi/smrtstudy/internal/entitlement"
	"github.com/hitoshi/smrtstudy/internal/handler"
	"github.com/hitoshi/smrtstudy/internal/logger"
	"github.com/hitoshi/smrtstudy/internal/material"
	"github.com/hitoshi/smrtstudy/internal/metrics"
	"github.com/hitoshi/smrtstudy/internal/middleware"
	"github.com/hitoshi/smrtstudy/internal/profile"
	"github.com/hitoshi/smrtstudy/internal/repository"
	"github.com/hitoshi/smrtstudy/internal/security"
	"github.com/hitoshi/smrtstudy/internal/storage"
	"github.com/hitoshi/smrtstudy/internal/studyset"
	"github.com/hitoshi/smrtstudy/internal/worker/cleanup"
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
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// oauthProviders は設定済みのOAuthプロバイダーをプロバイダー名をキーに構築する。
// クライアントIDが未設定のプロバイダーは組み込まない。
func oauthProviders(cfg *config.Config) map[string]auth.OAuthProvider {
	providers := make(map[string]auth.OAuthProvider)

	if cfg.GoogleClientID != "" {
		providers["google"] = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	}
	if cfg.GitHubClientID != "" {
		providers["github"] = auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		})
	}

	return providers
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
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	linkRepo := repository.NewPostgresMagicLinkRepo(db)
	otpRepo := repository.NewPostgresOTPChallengeRepo(db)
	resetRepo := repository.NewPostgresPasswordResetRepo(db)
	materialRepo := repository.NewPostgresMaterialRepo(db)
	studySetRepo := repository.NewPostgresStudySetRepo(db)
	studySessionRepo := repository.NewPostgresStudySessionRepo(db)
	statsRepo := repository.NewPostgresUserStatsRepo(db)

	// 3. 監視の初期化
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. 外部サービスクライアントの初期化
	sender := email.NewResendClient(cfg.EmailAPIKey, cfg.EmailFrom, slog.Default())

	billingAPI := entitlement.NewClient(cfg.BillingSecretKey, cfg.BillingAPIURL, slog.Default())
	var checkCache entitlement.CheckCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		checkCache = entitlement.NewRedisCheckCache(redisClient, cfg.EntitlementTTL)
		slog.Info("entitlement cache enabled", slog.String("redis_addr", cfg.RedisAddr))
	}

	store, err := storage.NewFSStore(cfg.StorageDir, cfg.StoragePublicURL)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	// 5. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 6. ドメインサービスの初期化
	authService := auth.NewService(
		oauthProviders(cfg),
		userRepo, identRepo, sessionRepo,
		linkRepo, otpRepo, resetRepo,
		sender,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge, BaseURL: cfg.BaseURL},
	)
	profileService := profile.NewService(userRepo, sessionRepo, store)
	entitlementService := entitlement.NewService(billingAPI, checkCache, collector, slog.Default())
	studySetService := studyset.NewService(studySetRepo, studySessionRepo, materialRepo, statsRepo, entitlementService)
	materialService := material.NewService(
		materialRepo, statsRepo, entitlementService,
		ssrfGuard, sanitizer, store,
		material.Config{
			WebImportTimeout: cfg.WebImportTimeout,
			WebImportMaxSize: cfg.WebImportMaxSize,
		},
	)

	// 7. レート制限の初期化（設定値はreq/min単位なのでreq/secに変換する）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
	rateLimiterCfg.AuthBurst = cfg.RateLimitAuth
	limiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer limiter.Stop()

	// 8. ルーターの構築
	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		UserFinder:        userRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		Metrics:  collector,
		Gatherer: registry,
		DB:       db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL: cfg.BaseURL,
			Cookie: handler.CookieConfig{
				Domain: cfg.CookieDomain,
				Secure: cfg.CookieSecure,
				MaxAge: cfg.SessionMaxAge,
			},
		},

		ProfileService: profileService,
		ObjectStore:    store,

		BillingService: entitlementService,

		StudySetService: studySetService,
		MaterialService: materialService,

		StatsRepo: statsRepo,
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
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
// 失効した認証データのクリーンアップジョブを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
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

	// 2. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	if cfg.TokenRetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.TokenRetentionDays
	}

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
		slog.Int("retention_days", cleanupJob.RetentionDays),
	)

	// 起動直後に1回実行し、以降は日次で実行する
	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
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

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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
