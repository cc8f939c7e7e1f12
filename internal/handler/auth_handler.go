package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/smrtstudy/internal/auth"
	"github.com/hitoshi/smrtstudy/internal/metrics"
	"github.com/hitoshi/smrtstudy/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUpWithPassword(ctx context.Context, emailAddr, password, name string) (*model.Session, error)
	SignInWithPassword(ctx context.Context, emailAddr, password string) (*auth.SignInResult, error)
	VerifyOTP(ctx context.Context, userID, code string) (*model.Session, error)
	RequestMagicLink(ctx context.Context, emailAddr string) error
	VerifyMagicLink(ctx context.Context, token string) (*model.Session, error)
	RequestPasswordReset(ctx context.Context, emailAddr string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetLoginURL(provider, state string) (string, error)
	HandleOAuthCallback(ctx context.Context, provider, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL string
	Cookie  CookieConfig
}

// AuthHandler は認証関連のHTTPハンドラー。
// パスワード・マジックリンク・OTP・OAuthの各フローを提供する。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector // nilの場合は記録しない
}

// NewAuthHandler はAuthHandlerを生成する。collectorはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: collector,
	}
}

type signUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Name            string `json:"name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	TwoFactorRequired bool   `json:"two_factor_required"`
	UserID            string `json:"user_id,omitempty"`
}

type verifyOTPRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type userResponse struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	Name                string `json:"name"`
	ImageURL            string `json:"image_url,omitempty"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
	MarketingEmails     bool   `json:"marketing_emails"`
	TwoFactorEnabled    bool   `json:"two_factor_enabled"`
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:                  user.ID,
		Email:               user.Email,
		Name:                user.Name,
		ImageURL:            user.ImageURL,
		OnboardingCompleted: user.OnboardingCompleted,
		MarketingEmails:     user.MarketingEmails,
		TwoFactorEnabled:    user.TwoFactorEnabled,
	}
}

// SignUp はメールアドレスとパスワードで新規登録する。
// POST /api/auth/sign-up
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	// 確認用パスワードの一致はハンドラー層で検証する
	if req.Password != req.ConfirmPassword {
		h.recordSignUp("invalid")
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewPasswordMismatchError())
		return
	}

	session, err := h.service.SignUpWithPassword(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUserAlreadyExists {
			h.recordSignUp("duplicate")
		} else {
			h.recordSignUp("invalid")
		}
		handleServiceError(w, err)
		return
	}

	h.recordSignUp("success")
	setSessionCookie(w, h.config.Cookie, session.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": session.UserID})
}

// SignIn はメールアドレスとパスワードでログインする。
// 2段階認証が有効なユーザーにはセッションを発行せずOTPチャレンジを返す。
// POST /api/auth/sign-in
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	result, err := h.service.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if result.TwoFactorRequired {
		writeJSON(w, http.StatusOK, signInResponse{
			TwoFactorRequired: true,
			UserID:            result.UserID,
		})
		return
	}

	h.recordSignIn("password")
	setSessionCookie(w, h.config.Cookie, result.Session.ID)
	writeJSON(w, http.StatusOK, signInResponse{TwoFactorRequired: false})
}

// VerifyOTP は2段階認証のワンタイムコードを検証しセッションを発行する。
// POST /api/auth/otp/verify
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	session, err := h.service.VerifyOTP(r.Context(), req.UserID, req.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.recordSignIn("otp")
	setSessionCookie(w, h.config.Cookie, session.ID)
	writeJSON(w, http.StatusOK, signInResponse{TwoFactorRequired: false})
}

// RequestMagicLink はマジックリンクメールの送信を受け付ける。
// アドレスの存在有無を漏らさないため常に202を返す。
// POST /api/auth/magic-link
func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := h.service.RequestMagicLink(r.Context(), req.Email); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidEmail {
			handleServiceError(w, err)
			return
		}
		slog.Error("failed to request magic link", slog.String("error", err.Error()))
	}

	w.WriteHeader(http.StatusAccepted)
}

// VerifyMagicLink はメール内のリンクからトークンを検証しセッションを発行する。
// GET /api/auth/magic-link/verify?token=xxx
func (h *AuthHandler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidTokenError())
		return
	}

	session, err := h.service.VerifyMagicLink(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.recordSignIn("magic_link")
	setSessionCookie(w, h.config.Cookie, session.ID)
	http.Redirect(w, r, h.config.BaseURL+"/dashboard", http.StatusTemporaryRedirect)
}

// RequestPasswordReset はパスワード再設定メールの送信を受け付ける。
// アドレスの存在有無を漏らさないため常に202を返す。
// POST /api/auth/password-reset
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		slog.Error("failed to request password reset", slog.String("error", err.Error()))
	}

	w.WriteHeader(http.StatusAccepted)
}

// ResetPassword は再設定トークンで新しいパスワードを設定する。
// POST /api/auth/password-reset/confirm
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if req.NewPassword != req.ConfirmPassword {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewPasswordMismatchError())
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// OAuthLogin は指定プロバイダのOAuthフローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	url, err := h.service.GetLoginURL(provider, state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// OAuthCallback はOAuthコールバックを処理する。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("provider", provider),
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleOAuthCallback(r.Context(), provider, code)
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// 4. セッションCookieを設定してダッシュボードへ
	h.recordSignIn(provider)
	setSessionCookie(w, h.config.Cookie, session.ID)
	http.Redirect(w, r, h.config.BaseURL+"/dashboard", http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	clearSessionCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeUnauthorized(w)
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) recordSignIn(method string) {
	if h.metrics != nil {
		h.metrics.RecordSignIn(method)
	}
}

func (h *AuthHandler) recordSignUp(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordSignUp(outcome)
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
