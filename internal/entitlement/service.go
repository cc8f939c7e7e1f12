package entitlement

import (
	"context"
	"fmt"
	"log/slog"
)

// BillingAPI は課金SaaS APIの操作を抽象化する。Clientが実装する。
type BillingAPI interface {
	Check(ctx context.Context, userID, featureID string) (*CheckResult, error)
	Track(ctx context.Context, userID, featureID string, value int) error
	Checkout(ctx context.Context, userID, productID, successURL string) (string, error)
	BillingPortal(ctx context.Context, userID, returnURL string) (string, error)
}

// Recorder はエンタイトルメント関連のメトリクス記録を抽象化する。
type Recorder interface {
	// RecordCheck は機能判定の結果を記録する。outcomeは "allowed" | "denied" | "error"。
	RecordCheck(featureID, outcome string)
	// RecordTrackFailure は使用量記録の失敗を記録する。
	RecordTrackFailure(featureID string)
}

// nopRecorder はメトリクス未設定時のRecorder。
type nopRecorder struct{}

func (nopRecorder) RecordCheck(string, string) {}
func (nopRecorder) RecordTrackFailure(string)  {}

// Access は機能利用可否判定の結果を表す。
// Allowedがfalseの場合、UpgradeRequiredで理由を区別する:
// trueならプラン上限による拒否（アップグレード導線を表示）、
// falseなら判定自体の失敗（フェイルクローズ）。
type Access struct {
	Allowed         bool `json:"allowed"`
	UpgradeRequired bool `json:"upgradeRequired"`
}

// Service は機能利用可否判定と使用量記録のアプリケーションサービス。
// 判定結果は短期キャッシュされ、課金APIの呼び出し回数を抑える。
type Service struct {
	api      BillingAPI
	cache    CheckCache
	logger   *slog.Logger
	recorder Recorder
}

// NewService はServiceを生成する。cacheとrecorderはnilでもよい。
func NewService(api BillingAPI, cache CheckCache, recorder Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		api:      api,
		cache:    cache,
		logger:   logger,
		recorder: recorder,
	}
}

// CheckFeatureAccess は指定ユーザーの機能利用可否を判定する。
// フェイルクローズ方式: 課金APIに到達できない場合は利用不可として扱い、
// その際はUpgradeRequired=falseにしてアップグレード導線を出さない。
// 未知の機能IDは利用不可として扱う。
func (s *Service) CheckFeatureAccess(ctx context.Context, userID, featureID string) Access {
	if !IsKnownFeature(featureID) {
		s.logger.Warn("unknown feature id in access check",
			slog.String("feature_id", featureID),
		)
		return Access{Allowed: false, UpgradeRequired: false}
	}

	// 1. キャッシュ参照（キャッシュ障害は判定に影響させない）
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, userID, featureID)
		if err != nil {
			s.logger.Warn("entitlement cache get failed",
				slog.String("error", err.Error()),
				slog.String("feature_id", featureID),
			)
		} else if cached != nil {
			return s.accessFromResult(featureID, cached)
		}
	}

	// 2. 課金APIで判定
	result, err := s.api.Check(ctx, userID, featureID)
	if err != nil {
		s.logger.Error("feature access check failed",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
			slog.String("feature_id", featureID),
		)
		s.recorder.RecordCheck(featureID, "error")
		return Access{Allowed: false, UpgradeRequired: false}
	}

	// 3. 結果をキャッシュ（失敗しても判定結果はそのまま返す）
	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, featureID, result); err != nil {
			s.logger.Warn("entitlement cache set failed",
				slog.String("error", err.Error()),
				slog.String("feature_id", featureID),
			)
		}
	}

	return s.accessFromResult(featureID, result)
}

func (s *Service) accessFromResult(featureID string, result *CheckResult) Access {
	if result.Allowed {
		s.recorder.RecordCheck(featureID, "allowed")
		return Access{Allowed: true, UpgradeRequired: false}
	}
	s.recorder.RecordCheck(featureID, "denied")
	return Access{Allowed: false, UpgradeRequired: true}
}

// TrackFeatureUsage は機能の使用量を1件記録する。
// 記録の失敗はユーザー操作を妨げないため、エラーを返さずログとメトリクスに残す。
func (s *Service) TrackFeatureUsage(ctx context.Context, userID, featureID string) {
	if err := s.api.Track(ctx, userID, featureID, 1); err != nil {
		s.logger.Error("feature usage tracking failed",
			slog.String("error", err.Error()),
			slog.String("user_id", userID),
			slog.String("feature_id", featureID),
		)
		s.recorder.RecordTrackFailure(featureID)
	}
}

// StartCheckout は指定プランの購入フローを開始しリダイレクト先URLを返す。
// 成功後はプランが変わるため、該当ユーザーの判定キャッシュを破棄する。
func (s *Service) StartCheckout(ctx context.Context, userID, productID, successURL string) (string, error) {
	if !IsKnownProduct(productID) {
		return "", fmt.Errorf("unknown product id: %s", productID)
	}

	url, err := s.api.Checkout(ctx, userID, productID, successURL)
	if err != nil {
		return "", fmt.Errorf("failed to start checkout: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.logger.Warn("entitlement cache invalidate failed",
				slog.String("error", err.Error()),
				slog.String("user_id", userID),
			)
		}
	}

	return url, nil
}

// BillingPortalURL は請求管理ポータルのURLを取得する。
func (s *Service) BillingPortalURL(ctx context.Context, userID, returnURL string) (string, error) {
	url, err := s.api.BillingPortal(ctx, userID, returnURL)
	if err != nil {
		return "", fmt.Errorf("failed to get billing portal url: %w", err)
	}
	return url, nil
}

// compile-time interface check
var _ BillingAPI = (*Client)(nil)
