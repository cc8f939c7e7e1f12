// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 認証情報は外部IdP・パスワード・マジックリンクのいずれかで管理され、
// パスワードを持たないユーザーはPasswordHashが空になる。
type User struct {
	ID                  string
	Email               string
	Name                string
	ImageURL            string
	ProfileImageKey     string
	PasswordHash        string
	OnboardingCompleted bool
	MarketingEmails     bool
	TwoFactorEnabled    bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// GitHub・Googleなど複数のIdPを同一ユーザーに紐付けられる構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// MagicLink はパスワードレスログイン用のワンタイムトークンを表す。
// トークンは一度使用するとUsedがtrueになり再利用できない。
type MagicLink struct {
	ID        string
	Email     string
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// OTPPurpose はワンタイムコードの用途を表す。
type OTPPurpose string

const (
	// OTPPurposeTwoFactor はパスワードログイン後の2段階認証チャレンジ。
	OTPPurposeTwoFactor OTPPurpose = "two_factor"
	// OTPPurposeEmailVerify はメールアドレス確認。
	OTPPurposeEmailVerify OTPPurpose = "email_verify"
)

// OTPChallenge はメールで送付するワンタイムコードを表す。
type OTPChallenge struct {
	ID        string
	UserID    string
	Code      string
	Purpose   OTPPurpose
	ExpiresAt time.Time
	Consumed  bool
	CreatedAt time.Time
}

// PasswordReset はパスワード再設定用のワンタイムトークンを表す。
type PasswordReset struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
