// Package profile はプロフィールの参照・編集と退会処理を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/smrtstudy/internal/model"
	"github.com/hitoshi/smrtstudy/internal/repository"
	"github.com/hitoshi/smrtstudy/internal/storage"
)

// 編集結果コード。UIはこの値で遷移を分岐する。
const (
	EditResultSuccess      = "SUCCESS"
	EditResultUnauthorized = "UNAUTHORIZED"
	EditResultInvalidImage = "INVALID_IMAGE"
)

// EditInput はプロフィール編集の入力を表す。
type EditInput struct {
	Name            string
	ImageKey        string // アップロード済み画像のオブジェクトキー。空なら画像は変更しない
	MarketingEmails bool
}

// Service はプロフィールに関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	store       storage.ObjectStore
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	store storage.ObjectStore,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		store:       store,
	}
}

// GetProfile は指定ユーザーのプロフィールを取得する。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// EditUserProfile はプロフィールを更新し結果コードを返す。
// 画像キーが指定された場合は公開URLに解決して保存し、古い画像を削除する。
// 画像キーの解決に失敗した場合は他のフィールドも更新せずINVALID_IMAGEを返す。
// 初回の編集完了をもってオンボーディング完了とみなす。
func (s *Service) EditUserProfile(ctx context.Context, userID string, input EditInput) (string, error) {
	if userID == "" {
		return EditResultUnauthorized, nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return EditResultUnauthorized, nil
	}

	oldImageKey := user.ProfileImageKey

	if input.ImageKey != "" {
		if !validImageKey(input.ImageKey) {
			return EditResultInvalidImage, nil
		}
		// キーが実在するオブジェクトを指すことを確認する
		rc, err := s.store.Open(ctx, input.ImageKey)
		if err != nil {
			slog.Warn("profile image key could not be resolved",
				slog.String("user_id", userID),
				slog.String("image_key", input.ImageKey),
			)
			return EditResultInvalidImage, nil
		}
		rc.Close()

		user.ProfileImageKey = input.ImageKey
		user.ImageURL = s.store.Resolve(input.ImageKey)
	}

	user.Name = strings.TrimSpace(input.Name)
	user.MarketingEmails = input.MarketingEmails
	user.OnboardingCompleted = true
	user.UpdatedAt = time.Now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return "", fmt.Errorf("failed to update profile: %w", err)
	}

	// 置き換えた古い画像の削除はベストエフォート
	if input.ImageKey != "" && oldImageKey != "" && oldImageKey != input.ImageKey {
		if err := s.store.Delete(ctx, oldImageKey); err != nil {
			slog.Warn("failed to delete old profile image",
				slog.String("user_id", userID),
				slog.String("image_key", oldImageKey),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.Info("profile updated",
		slog.String("user_id", userID),
	)
	return EditResultSuccess, nil
}

// Withdraw は退会処理を行う。
// 全セッションを先に失効させてからユーザーを削除する。
// 学習データはCASCADE削除、プロフィール画像のオブジェクト削除はベストエフォート。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if user.ProfileImageKey != "" {
		if err := s.store.Delete(ctx, user.ProfileImageKey); err != nil {
			slog.Warn("failed to delete profile image on withdrawal",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.Info("user withdrawn",
		slog.String("user_id", userID),
	)
	return nil
}

// validImageKey はプロフィール画像のオブジェクトキー形式を検証する。
// アップロードAPIが発行するprofile-images/配下のキーのみ受け付ける。
func validImageKey(key string) bool {
	if !strings.HasPrefix(key, "profile-images/") {
		return false
	}
	if strings.Contains(key, "..") {
		return false
	}
	return true
}
