// Package auth は認証フロー（パスワード、マジックリンク、OAuth、2段階認証）と
// セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/smrtstudy/internal/email"
	"github.com/hitoshi/smrtstudy/internal/model"
	"github.com/hitoshi/smrtstudy/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	ImageURL       string
	Provider       string // "google", "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int    // セッション有効期間（秒）
	BaseURL       string // マジックリンク等のメール内URLの組み立てに使用
}

const (
	// magicLinkTTL はマジックリンクの有効期間。
	magicLinkTTL = 15 * time.Minute
	// otpTTL はワンタイムコードの有効期間。
	otpTTL = 10 * time.Minute
	// passwordResetTTL はパスワード再設定トークンの有効期間。
	passwordResetTTL = 1 * time.Hour
)

// Service は認証に関するビジネスロジックを提供する。
// プロバイダー名（"google", "github"）をキーにOAuthプロバイダーを保持する。
type Service struct {
	providers   map[string]OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	linkRepo    repository.MagicLinkRepository
	otpRepo     repository.OTPChallengeRepository
	resetRepo   repository.PasswordResetRepository
	sender      email.Sender
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	providers map[string]OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	linkRepo repository.MagicLinkRepository,
	otpRepo repository.OTPChallengeRepository,
	resetRepo repository.PasswordResetRepository,
	sender email.Sender,
	config ServiceConfig,
) *Service {
	return &Service{
		providers:   providers,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		linkRepo:    linkRepo,
		otpRepo:     otpRepo,
		resetRepo:   resetRepo,
		sender:      sender,
		config:      config,
	}
}

// GetLoginURL は指定プロバイダーのOAuth認証URLを生成する。
// 未設定のプロバイダーの場合はエラーを返す。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("oauth provider not configured: %s", provider)
	}
	return p.GetLoginURL(state), nil
}

// HandleOAuthCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// 同一メールアドレスの既存ユーザーがいる場合はidentityを追加して紐付ける。
func (s *Service) HandleOAuthCallback(ctx context.Context, provider, code string) (*model.Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("oauth provider not configured: %s", provider)
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string

	switch {
	case identity != nil:
		// 3a. 既存ユーザー: identityからユーザーIDを取得
		userID = identity.UserID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)

	default:
		// 3b. 同一メールアドレスの既存ユーザーを検索
		existing, err := s.userRepo.FindByEmail(ctx, userInfo.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to find user by email: %w", err)
		}

		now := time.Now()
		if existing != nil {
			// 既存アカウントにIdPを追加紐付け
			newIdentity := &model.Identity{
				ID:             uuid.New().String(),
				UserID:         existing.ID,
				Provider:       userInfo.Provider,
				ProviderUserID: userInfo.ProviderUserID,
				CreatedAt:      now,
			}
			if err := s.identRepo.Create(ctx, newIdentity); err != nil {
				return nil, fmt.Errorf("failed to link identity: %w", err)
			}
			userID = existing.ID
			slog.Info("identity linked to existing user",
				slog.String("user_id", userID),
				slog.String("provider", userInfo.Provider),
			)
		} else {
			// 新規ユーザー: usersレコードとidentitiesレコードを同時に作成
			newUserID := uuid.New().String()
			newUser := &model.User{
				ID:        newUserID,
				Email:     userInfo.Email,
				Name:      userInfo.Name,
				ImageURL:  userInfo.ImageURL,
				CreatedAt: now,
				UpdatedAt: now,
			}
			newIdentity := &model.Identity{
				ID:             uuid.New().String(),
				UserID:         newUserID,
				Provider:       userInfo.Provider,
				ProviderUserID: userInfo.ProviderUserID,
				CreatedAt:      now,
			}
			if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
				return nil, fmt.Errorf("failed to create user and identity: %w", err)
			}
			userID = newUserID
			slog.Info("new user created",
				slog.String("user_id", userID),
				slog.String("provider", userInfo.Provider),
			)
		}
	}

	// 4. セッションを発行
	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効・期限切れの場合はUNAUTHORIZEDエラーを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generateToken はメールに埋め込むワンタイムトークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generateOTPCode は6桁のワンタイムコードを生成する。
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
