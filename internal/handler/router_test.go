package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/smrtstudy/internal/metrics"
	"github.com/hitoshi/smrtstudy/internal/middleware"
	"github.com/hitoshi/smrtstudy/internal/model"
)

// --- モック定義 ---

type mockSessionFinder struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.sessions[id], nil
}

type mockUserFinder struct {
	users map[string]*model.User
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.users[id], nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	reg := prometheus.NewRegistry()
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	deps := &RouterDeps{
		SessionFinder: &mockSessionFinder{
			sessions: map[string]*model.Session{
				"valid-session":      {ID: "valid-session", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
				"onboarding-session": {ID: "onboarding-session", UserID: "new-user", ExpiresAt: time.Now().Add(time.Hour)},
			},
		},
		UserFinder: &mockUserFinder{
			users: map[string]*model.User{
				"user-1":   {ID: "user-1", OnboardingCompleted: true},
				"new-user": {ID: "new-user", OnboardingCompleted: false},
			},
		},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       limiter,
		CSRFConfig:        middleware.CSRFConfig{},
		Metrics:           metrics.NewCollector(reg),
		Gatherer:          reg,

		AuthService: &mockAuthService{
			getLoginURLFn: func(provider, state string) (string, error) {
				return "https://accounts.google.com/o/oauth2/auth?state=" + state, nil
			},
		},
		AuthConfig: AuthHandlerConfig{BaseURL: "http://localhost:3000", Cookie: CookieConfig{MaxAge: 86400}},

		ProfileService: &mockProfileService{
			getProfileFn: func(ctx context.Context, userID string) (*model.User, error) {
				return &model.User{ID: userID, OnboardingCompleted: userID == "user-1"}, nil
			},
		},
		ObjectStore: &mockObjectStore{},

		BillingService:  &mockBillingService{},
		StudySetService: &mockStudySetService{},
		MaterialService: &mockMaterialService{},
		StatsRepo:       &mockStatsRepo{},
	}

	return NewRouter(deps)
}

// --- 認証不要ルート ---

func TestRouter_Healthz_ReturnsOK(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_Metrics_Exposed(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_OAuthLogin_Redirects(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := resp.Header.Get("Location"); !strings.Contains(loc, "accounts.google.com") {
		t.Errorf("Location = %q", loc)
	}
}

// --- 認証済みAPIルート ---

func TestRouter_APIProfile_WithoutSession_Returns401(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestRouter_APIProfile_WithValidSession_Returns200(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_APIBillingCheck_WithoutCSRFToken_Returns403(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/billing/check", strings.NewReader(`{"feature_id":"quiz_mode"}`))
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestRouter_APIBillingCheck_WithCSRFToken_Returns200(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/billing/check", strings.NewReader(`{"feature_id":"quiz_mode"}`))
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "test-token"})
	req.Header.Set("X-CSRF-Token", "test-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// --- ページルート ---

func TestRouter_Dashboard_WithoutCookie_RedirectsToSignIn(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/sign-in?redirect=%2Fdashboard" {
		t.Errorf("Location = %q, want /sign-in?redirect=%%2Fdashboard", loc)
	}
}

func TestRouter_Dashboard_OnboardingIncomplete_RedirectsToSetupProfile(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "onboarding-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/setup-profile" {
		t.Errorf("Location = %q, want /setup-profile", loc)
	}
}

func TestRouter_Dashboard_OnboardingComplete_Returns200(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_DashboardChildPath_WithoutCookie_RedirectsToSignIn(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/study-sets", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/sign-in?redirect=%2Fdashboard%2Fstudy-sets" {
		t.Errorf("Location = %q, want /sign-in?redirect=%%2Fdashboard%%2Fstudy-sets", loc)
	}
}

func TestRouter_DashboardChildPath_OnboardingComplete_Returns200(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/study-sets", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_SettingsChildPath_WithoutCookie_RedirectsToSignIn(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/settings/notifications", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/sign-in?redirect=%2Fsettings%2Fnotifications" {
		t.Errorf("Location = %q, want /sign-in?redirect=%%2Fsettings%%2Fnotifications", loc)
	}
}

func TestRouter_SetupProfile_ReachableWithIncompleteOnboarding(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/setup-profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "onboarding-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_SignInPage_WithoutCookie_Returns200(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sign-in", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_SignInPage_WithCookie_RedirectsToDashboard(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sign-in", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", loc)
	}
}

func TestRouter_StaleSessionCookie_PassesGateButFailsAPI(t *testing.T) {
	// ページゲートはCookieの存在だけを見るため、無効なセッションは
	// セッションミドルウェアで401になる
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "stale-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
