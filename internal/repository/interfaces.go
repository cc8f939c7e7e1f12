// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/smrtstudy/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はプロフィール編集で変更されるフィールドを更新する。
	// name, image_url, profile_image_key, marketing_emails, onboarding_completed, updated_at。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、学習データはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create はidentityを作成する。既存ユーザーへのIdP追加紐付けで使用する。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// MagicLinkRepository はマジックリンクトークンの永続化インターフェース。
type MagicLinkRepository interface {
	// Create はマジックリンクを作成する。
	Create(ctx context.Context, link *model.MagicLink) error
	// FindByToken はトークンでマジックリンクを検索する。見つからない場合はnilを返す。
	// 期限切れ・使用済みの行もそのまま返し、判定は呼び出し元が行う。
	FindByToken(ctx context.Context, token string) (*model.MagicLink, error)
	// MarkUsed はマジックリンクを使用済みにする。
	MarkUsed(ctx context.Context, id string) error
}

// OTPChallengeRepository はワンタイムコードの永続化インターフェース。
type OTPChallengeRepository interface {
	// Create はチャレンジを作成する。
	Create(ctx context.Context, challenge *model.OTPChallenge) error
	// FindActive は指定ユーザー・用途の未消費チャレンジのうち最新の1件を返す。
	// 見つからない場合はnilを返す。期限の判定は呼び出し元が行う。
	FindActive(ctx context.Context, userID string, purpose model.OTPPurpose) (*model.OTPChallenge, error)
	// MarkConsumed はチャレンジを消費済みにする。
	MarkConsumed(ctx context.Context, id string) error
}

// PasswordResetRepository はパスワード再設定トークンの永続化インターフェース。
type PasswordResetRepository interface {
	// Create は再設定トークンを作成する。
	Create(ctx context.Context, reset *model.PasswordReset) error
	// FindByToken はトークンで再設定レコードを検索する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.PasswordReset, error)
	// MarkUsed は再設定トークンを使用済みにする。
	MarkUsed(ctx context.Context, id string) error
}

// MaterialRepository は学習素材の永続化インターフェース。
type MaterialRepository interface {
	// Create は素材を作成する。
	Create(ctx context.Context, material *model.Material) error
	// FindByID は指定IDの素材を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Material, error)
	// ListByUserID はユーザーの素材一覧をcreated_at降順カーソルで取得する。
	// cursorがゼロ値の場合は先頭から取得する。
	ListByUserID(ctx context.Context, userID string, cursor time.Time, limit int) ([]*model.Material, error)
	// UpdateStatus は素材の処理状態とエラーメッセージを更新する。
	UpdateStatus(ctx context.Context, id string, status model.MaterialStatus, errorMessage string) error
}

// StudySetRepository は学習セットの永続化インターフェース。
type StudySetRepository interface {
	// Create は学習セットを作成する。
	Create(ctx context.Context, set *model.StudySet) error
	// FindByID は指定IDの学習セットを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.StudySet, error)
	// ListByUserID はユーザーの学習セット一覧をcreated_at降順カーソルで取得する。
	// cursorがゼロ値の場合は先頭から取得する。
	ListByUserID(ctx context.Context, userID string, cursor time.Time, limit int) ([]*model.StudySet, error)
	// BumpStudyStats はtimes_studiedをインクリメントしlast_studied_atを更新する。
	// 生成済みコンテンツには一切触れない。
	BumpStudyStats(ctx context.Context, id string, studiedAt time.Time) error
}

// StudySessionRepository は学習セッション結果の永続化インターフェース。
type StudySessionRepository interface {
	// Create はセッション結果を作成する。
	Create(ctx context.Context, session *model.StudySession) error
	// ListByStudySet は学習セットに紐づくセッションをcompleted_at降順で取得する。
	ListByStudySet(ctx context.Context, userID, studySetID string, limit int) ([]*model.StudySession, error)
}

// UserStatsRepository は学習統計集計値の永続化インターフェース。
type UserStatsRepository interface {
	// FindByUserID は指定ユーザーの統計を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.UserStats, error)
	// Upsert は統計を冪等にUPSERTする。
	Upsert(ctx context.Context, stats *model.UserStats) error
}
