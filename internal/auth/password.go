package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/smrtstudy/internal/email"
	"github.com/hitoshi/smrtstudy/internal/model"
)

// minPasswordLength はパスワードの最低文字数。
const minPasswordLength = 8

// SignInResult はパスワードログインの結果を表す。
// 2段階認証が有効なユーザーの場合はセッションを発行せず、
// TwoFactorRequired=trueとコード入力画面への誘導情報を返す。
type SignInResult struct {
	Session           *model.Session
	TwoFactorRequired bool
	UserID            string
}

// SignUpWithPassword はメールアドレスとパスワードで新規登録しセッションを発行する。
func (s *Service) SignUpWithPassword(ctx context.Context, emailAddr, password, name string) (*model.Session, error) {
	emailAddr = normalizeEmail(emailAddr)

	if err := validateEmail(emailAddr); err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, model.NewWeakPasswordError()
	}

	existing, err := s.userRepo.FindByEmail(ctx, emailAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewUserAlreadyExistsError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        emailAddr,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user signed up with password",
		slog.String("user_id", user.ID),
	)

	// メールアドレス確認コードの送信はベストエフォート。
	// 失敗しても登録とセッション発行は成立させる。
	if err := s.issueOTPChallenge(ctx, user, model.OTPPurposeEmailVerify); err != nil {
		slog.Warn("failed to send verification email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// SignInWithPassword はメールアドレスとパスワードでログインする。
// 2段階認証が有効なユーザーにはセッションを発行せず、
// ワンタイムコードをメール送信してコード入力を要求する。
func (s *Service) SignInWithPassword(ctx context.Context, emailAddr, password string) (*SignInResult, error) {
	emailAddr = normalizeEmail(emailAddr)

	user, err := s.userRepo.FindByEmail(ctx, emailAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	// 未登録メールはUSER_NOT_FOUNDを返し、UI側で新規登録への誘導を可能にする
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	// OAuth連携のみでパスワード未設定のアカウントはINVALID_CREDENTIALS
	if user.PasswordHash == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	if user.TwoFactorEnabled {
		if err := s.issueOTPChallenge(ctx, user, model.OTPPurposeTwoFactor); err != nil {
			return nil, fmt.Errorf("failed to issue otp challenge: %w", err)
		}
		slog.Info("two-factor challenge issued",
			slog.String("user_id", user.ID),
		)
		return &SignInResult{TwoFactorRequired: true, UserID: user.ID}, nil
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &SignInResult{Session: session, UserID: user.ID}, nil
}

// VerifyOTP は2段階認証のワンタイムコードを検証しセッションを発行する。
// コードは一度使用すると消費済みになり再利用できない。
func (s *Service) VerifyOTP(ctx context.Context, userID, code string) (*model.Session, error) {
	challenge, err := s.otpRepo.FindActive(ctx, userID, model.OTPPurposeTwoFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to find otp challenge: %w", err)
	}
	if challenge == nil {
		return nil, model.NewInvalidOTPError()
	}
	if time.Now().After(challenge.ExpiresAt) {
		return nil, model.NewInvalidOTPError()
	}
	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
		return nil, model.NewInvalidOTPError()
	}

	if err := s.otpRepo.MarkConsumed(ctx, challenge.ID); err != nil {
		return nil, fmt.Errorf("failed to consume otp challenge: %w", err)
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("two-factor challenge verified",
		slog.String("user_id", userID),
	)
	return session, nil
}

// RequestPasswordReset はパスワード再設定メールを送信する。
// アカウント列挙を防ぐため、未登録のメールアドレスでもエラーを返さない。
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)

	user, err := s.userRepo.FindByEmail(ctx, emailAddr)
	if err != nil {
		return fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		slog.Info("password reset requested for unknown email")
		return nil
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	now := time.Now()
	reset := &model.PasswordReset{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: now.Add(passwordResetTTL),
		CreatedAt: now,
	}
	if err := s.resetRepo.Create(ctx, reset); err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}

	resetURL := s.config.BaseURL + "/reset-password?token=" + token
	msg := email.Message{
		To:      user.Email,
		Subject: "パスワードの再設定",
		HTML: fmt.Sprintf(
			`<p>以下のリンクからパスワードを再設定できます。リンクの有効期限は1時間です。</p><p><a href="%s">パスワードを再設定する</a></p><p>心当たりがない場合はこのメールを無視してください。</p>`,
			resetURL,
		),
		Text: "以下のURLからパスワードを再設定できます（有効期限1時間）: " + resetURL,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}

	slog.Info("password reset email sent",
		slog.String("user_id", user.ID),
	)
	return nil
}

// ResetPassword は再設定トークンを検証し新しいパスワードを設定する。
// 設定後は該当ユーザーの全セッションを破棄する。
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return model.NewWeakPasswordError()
	}

	reset, err := s.resetRepo.FindByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to find password reset: %w", err)
	}
	if reset == nil || reset.Used {
		return model.NewInvalidTokenError()
	}
	if time.Now().After(reset.ExpiresAt) {
		return model.NewTokenExpiredError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.resetRepo.MarkUsed(ctx, reset.ID); err != nil {
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, reset.UserID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	// パスワード変更後は既存セッションを全て無効化する
	if err := s.sessionRepo.DeleteByUserID(ctx, reset.UserID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	slog.Info("password reset completed",
		slog.String("user_id", reset.UserID),
	)
	return nil
}

// issueOTPChallenge はワンタイムコードを発行しメール送信する。
func (s *Service) issueOTPChallenge(ctx context.Context, user *model.User, purpose model.OTPPurpose) error {
	code, err := generateOTPCode()
	if err != nil {
		return fmt.Errorf("failed to generate otp code: %w", err)
	}

	now := time.Now()
	challenge := &model.OTPChallenge{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(otpTTL),
		CreatedAt: now,
	}
	if err := s.otpRepo.Create(ctx, challenge); err != nil {
		return fmt.Errorf("failed to create otp challenge: %w", err)
	}

	subject := "ログイン確認コード"
	if purpose == model.OTPPurposeEmailVerify {
		subject = "メールアドレスの確認"
	}
	msg := email.Message{
		To:      user.Email,
		Subject: subject,
		HTML:    fmt.Sprintf("<p>確認コード: <strong>%s</strong></p><p>コードの有効期限は10分です。</p>", code),
		Text:    fmt.Sprintf("確認コード: %s（有効期限10分）", code),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send otp email: %w", err)
	}

	return nil
}

// normalizeEmail はメールアドレスを小文字化しトリムする。
func normalizeEmail(emailAddr string) string {
	return strings.ToLower(strings.TrimSpace(emailAddr))
}

// validateEmail はメールアドレスの形式を検証する。
func validateEmail(emailAddr string) error {
	if emailAddr == "" {
		return model.NewInvalidEmailError()
	}
	addr, err := mail.ParseAddress(emailAddr)
	if err != nil || addr.Address != emailAddr {
		return model.NewInvalidEmailError()
	}
	return nil
}
