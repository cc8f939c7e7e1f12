package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/smrtstudy/internal/auth"
	"github.com/hitoshi/smrtstudy/internal/entitlement"
	"github.com/hitoshi/smrtstudy/internal/material"
	"github.com/hitoshi/smrtstudy/internal/metrics"
	"github.com/hitoshi/smrtstudy/internal/middleware"
	"github.com/hitoshi/smrtstudy/internal/profile"
	"github.com/hitoshi/smrtstudy/internal/repository"
	"github.com/hitoshi/smrtstudy/internal/storage"
	"github.com/hitoshi/smrtstudy/internal/studyset"
)

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*auth.Service)(nil)
var _ ProfileServiceInterface = (*profile.Service)(nil)
var _ BillingServiceInterface = (*entitlement.Service)(nil)
var _ FeatureChecker = (*entitlement.Service)(nil)
var _ StudySetServiceInterface = (*studyset.Service)(nil)
var _ MaterialServiceInterface = (*material.Service)(nil)

// Pinger はヘルスチェックで依存先の死活確認に使うインターフェース。
// *sql.DBがそのまま満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 監視
	Metrics  metrics.MetricsCollector // nil可
	Gatherer prometheus.Gatherer      // nilの場合/metricsを公開しない
	DB       Pinger                   // nilの場合ヘルスチェックは常にok

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール
	ProfileService ProfileServiceInterface
	ObjectStore    storage.ObjectStore

	// 課金・機能判定
	BillingService BillingServiceInterface

	// 学習セット・教材
	StudySetService StudySetServiceInterface
	MaterialService MaterialServiceInterface

	// ページ初期表示用
	StatsRepo repository.UserStatsRepository
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics
//	認証API:    → RateLimit(Auth, IP単位)
//	認証済みAPI: → Session → RateLimit(General, ユーザー単位) → CSRF
//	ページ:     → PageGate → Session → OnboardingGate
//
// /healthzと/metricsは認証なしで到達できる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.ObjectStore, deps.AuthConfig.Cookie)
	billingHandler := NewBillingHandler(deps.BillingService)
	studySetHandler := NewStudySetHandler(deps.StudySetService)
	materialHandler := NewMaterialHandler(deps.MaterialService)
	pageHandler := NewPageHandler(deps.ProfileService, deps.BillingService, deps.StatsRepo, deps.MaterialService, deps.StudySetService)

	// --- 認証不要のルート ---

	r.Get("/healthz", newHealthzHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証API（セッション発行前のためIP単位のレート制限をかける）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Route("/api/auth", func(r chi.Router) {
			r.Post("/sign-up", authHandler.SignUp)
			r.Post("/sign-in", authHandler.SignIn)
			r.Post("/otp/verify", authHandler.VerifyOTP)
			r.Post("/magic-link", authHandler.RequestMagicLink)
			r.Get("/magic-link/verify", authHandler.VerifyMagicLink)
			r.Post("/password-reset", authHandler.RequestPasswordReset)
			r.Post("/password-reset/confirm", authHandler.ResetPassword)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		r.Route("/auth/{provider}", func(r chi.Router) {
			r.Get("/login", authHandler.OAuthLogin)
			r.Get("/callback", authHandler.OAuthCallback)
		})
	})

	// --- 認証が必要なAPIルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// プロフィール
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.EditProfile)
			r.Post("/image", profileHandler.UploadProfileImage)
		})

		// 退会
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", profileHandler.Withdraw)
		})

		// 課金・機能判定
		r.Route("/api/billing", func(r chi.Router) {
			r.Post("/check", billingHandler.CheckFeature)
			r.Post("/track", billingHandler.TrackFeature)
			r.Post("/checkout", billingHandler.StartCheckout)
			r.Post("/portal", billingHandler.BillingPortal)
		})

		// 学習セット
		r.Route("/api/study-sets", func(r chi.Router) {
			r.Post("/", studySetHandler.Create)
			r.Get("/", studySetHandler.List)

			r.Route("/{studySetID}", func(r chi.Router) {
				r.Get("/", studySetHandler.Get)
				r.Get("/sessions", studySetHandler.ListSessions)
				r.Post("/sessions", studySetHandler.CompleteSession)
				r.Post("/sessions/start", studySetHandler.StartSession)
			})
		})

		// 教材
		r.Route("/api/materials", func(r chi.Router) {
			r.Get("/", materialHandler.List)
			r.Post("/text", materialHandler.ImportText)
			r.Post("/upload", materialHandler.ImportUpload)
			r.Post("/url", materialHandler.ImportURL)

			r.Get("/{materialID}", materialHandler.Get)
		})
	})

	// --- 認証ページルート ---
	// ゲートのみを通す。ログイン済みユーザーはダッシュボードへ誘導される。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewPageGateMiddleware())

		for _, path := range []string{"/sign-in", "/sign-up", "/magic-link", "/verify-email", "/reset-password"} {
			r.Get(path, pageHandler.AuthPage)
		}
	})

	// --- 認証済みページルート ---
	// ミドルウェアスタック: PageGate → Session → OnboardingGate
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewPageGateMiddleware())
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))

		// オンボーディングページはゲートの外
		r.Get("/setup-profile", pageHandler.SetupProfile)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewOnboardingGateMiddleware(deps.UserFinder))

			// 子パス（/dashboard/study-sets等）もゲートを通す必要があるため
			// ワイルドカードで同じシェルペイロードに束ねる
			r.Get("/dashboard", pageHandler.Dashboard)
			r.Get("/dashboard/*", pageHandler.Dashboard)
			r.Get("/overview", pageHandler.Overview)
			r.Get("/overview/*", pageHandler.Overview)
			r.Get("/materials", pageHandler.Materials)
			r.Get("/materials/*", pageHandler.Materials)
			r.Get("/quiz", pageHandler.Quiz)
			r.Get("/quiz/*", pageHandler.Quiz)
			r.Get("/settings", pageHandler.Settings)
			r.Get("/settings/*", pageHandler.Settings)
		})
	})

	return r
}

// newHealthzHandler は依存先の死活を確認するヘルスチェックハンドラーを返す。
func newHealthzHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Error("healthcheck failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
