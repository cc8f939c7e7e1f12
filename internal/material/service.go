// Package material は学習素材の取り込み（テキスト貼り付け、ファイルアップロード、
// WebページURL）と参照を提供する。
package material

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/smrtstudy/internal/entitlement"
	"github.com/hitoshi/smrtstudy/internal/model"
	"github.com/hitoshi/smrtstudy/internal/repository"
	"github.com/hitoshi/smrtstudy/internal/security"
	"github.com/hitoshi/smrtstudy/internal/storage"
)

const (
	// previewLength は一覧表示用プレビューの最大文字数。
	previewLength = 500
	// defaultListLimit は一覧取得のデフォルト件数。
	defaultListLimit = 20
	// maxListLimit は一覧取得の最大件数。
	maxListLimit = 100
)

// allowedUploadMIMETypes はファイルアップロードで受け付けるMIMEタイプ。
var allowedUploadMIMETypes = map[string]bool{
	"application/pdf": true,
}

// EntitlementChecker は機能利用可否判定と使用量記録を抽象化する。
type EntitlementChecker interface {
	CheckFeatureAccess(ctx context.Context, userID, featureID string) entitlement.Access
	TrackFeatureUsage(ctx context.Context, userID, featureID string)
}

// Config は取り込み処理の設定。
type Config struct {
	WebImportTimeout time.Duration
	WebImportMaxSize int64
}

// Service は学習素材に関するビジネスロジックを提供する。
type Service struct {
	materialRepo repository.MaterialRepository
	statsRepo    repository.UserStatsRepository
	entitlements EntitlementChecker
	guard        security.SSRFGuardService
	sanitizer    security.ContentSanitizerService
	store        storage.ObjectStore
	config       Config
}

// NewService はServiceを生成する。
func NewService(
	materialRepo repository.MaterialRepository,
	statsRepo repository.UserStatsRepository,
	entitlements EntitlementChecker,
	guard security.SSRFGuardService,
	sanitizer security.ContentSanitizerService,
	store storage.ObjectStore,
	config Config,
) *Service {
	return &Service{
		materialRepo: materialRepo,
		statsRepo:    statsRepo,
		entitlements: entitlements,
		guard:        guard,
		sanitizer:    sanitizer,
		store:        store,
		config:       config,
	}
}

// ImportText は貼り付けテキストを学習素材として取り込む。
func (s *Service) ImportText(ctx context.Context, userID, title, text string) (*model.Material, error) {
	access := s.entitlements.CheckFeatureAccess(ctx, userID, entitlement.FeatureStudySets)
	if !access.Allowed {
		return nil, accessError(access, entitlement.FeatureStudySets)
	}

	// 貼り付けテキストにHTMLが混入していてもタグは保存しない。
	// StripTagsは残りのテキストをエスケープするため元の文字に戻す。
	text = strings.TrimSpace(html.UnescapeString(s.sanitizer.StripTags(text)))
	if text == "" {
		return nil, model.NewFetchFailedError("テキストが空です")
	}

	now := time.Now()
	m := &model.Material{
		ID:              uuid.New().String(),
		UserID:          userID,
		Title:           fallbackTitle(title, "貼り付けテキスト"),
		SourceType:      model.MaterialSourceText,
		ContentMarkdown: text,
		ContentPreview:  makePreview(text),
		WordCount:       countWords(text),
		Status:          model.MaterialStatusReady,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.materialRepo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create material: %w", err)
	}

	s.entitlements.TrackFeatureUsage(ctx, userID, entitlement.FeatureStudySets)
	s.bumpUploadStats(ctx, userID)

	slog.Info("material imported from text",
		slog.String("user_id", userID),
		slog.String("material_id", m.ID),
		slog.Int("word_count", m.WordCount),
	)
	return m, nil
}

// ImportUpload はアップロードファイルを学習素材として取り込む。
// ファイル本体はオブジェクトストレージに保存し、本文抽出は後続処理に委ねる。
func (s *Service) ImportUpload(ctx context.Context, userID, title, fileName, mimeType string, size int64, r io.Reader) (*model.Material, error) {
	access := s.entitlements.CheckFeatureAccess(ctx, userID, entitlement.FeatureFileUploads)
	if !access.Allowed {
		return nil, accessError(access, entitlement.FeatureFileUploads)
	}

	if !allowedUploadMIMETypes[mimeType] {
		return nil, model.NewFetchFailedError(fmt.Sprintf("対応していないファイル形式です: %s", mimeType))
	}

	materialID := uuid.New().String()
	objectKey := "materials/" + userID + "/" + materialID + ".pdf"
	if err := s.store.Save(ctx, objectKey, mimeType, r); err != nil {
		return nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	now := time.Now()
	m := &model.Material{
		ID:         materialID,
		UserID:     userID,
		Title:      fallbackTitle(title, fileName),
		SourceType: model.MaterialSourcePDF,
		ObjectKey:  objectKey,
		Status:     model.MaterialStatusProcessing,
		FileSize:   size,
		FileName:   fileName,
		MimeType:   mimeType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.materialRepo.Create(ctx, m); err != nil {
		// レコード化に失敗したらオブジェクトを残さない
		if delErr := s.store.Delete(ctx, objectKey); delErr != nil {
			slog.Warn("failed to clean up orphan object",
				slog.String("object_key", objectKey),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("failed to create material: %w", err)
	}

	s.entitlements.TrackFeatureUsage(ctx, userID, entitlement.FeatureFileUploads)
	s.bumpUploadStats(ctx, userID)

	slog.Info("material imported from upload",
		slog.String("user_id", userID),
		slog.String("material_id", m.ID),
		slog.Int64("file_size", size),
	)
	return m, nil
}

// ImportURL はWebページを取得し学習素材として取り込む。
// SSRF防止のため事前のURL検証とDialerレベルのIP検証を併用する。
func (s *Service) ImportURL(ctx context.Context, userID, rawURL string) (*model.Material, error) {
	access := s.entitlements.CheckFeatureAccess(ctx, userID, entitlement.FeatureWebScraping)
	if !access.Allowed {
		return nil, accessError(access, entitlement.FeatureWebScraping)
	}

	if err := s.guard.ValidateURL(rawURL); err != nil {
		return nil, model.NewSSRFBlockedError()
	}

	page, err := s.fetchPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	title, text := extractContent(page)
	text = strings.TrimSpace(html.UnescapeString(s.sanitizer.StripTags(text)))
	if text == "" {
		return nil, model.NewFetchFailedError("ページから本文を抽出できませんでした")
	}

	// 表示用に、スクリプト等を除去し許可タグのみ残した原文HTMLも保持する
	sanitizedHTML := strings.TrimSpace(s.sanitizer.Sanitize(string(page)))

	now := time.Now()
	m := &model.Material{
		ID:              uuid.New().String(),
		UserID:          userID,
		Title:           fallbackTitle(title, rawURL),
		SourceType:      model.MaterialSourceURL,
		SourceURL:       rawURL,
		ContentMarkdown: text,
		ContentHTML:     sanitizedHTML,
		ContentPreview:  makePreview(text),
		WordCount:       countWords(text),
		Status:          model.MaterialStatusReady,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.materialRepo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create material: %w", err)
	}

	s.entitlements.TrackFeatureUsage(ctx, userID, entitlement.FeatureWebScraping)
	s.bumpUploadStats(ctx, userID)

	slog.Info("material imported from url",
		slog.String("user_id", userID),
		slog.String("material_id", m.ID),
		slog.Int("word_count", m.WordCount),
	)
	return m, nil
}

// Get は指定IDの素材を取得する。他ユーザーの素材は存在しない扱いにする。
func (s *Service) Get(ctx context.Context, userID, materialID string) (*model.Material, error) {
	m, err := s.materialRepo.FindByID(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("failed to find material: %w", err)
	}
	if m == nil || m.UserID != userID {
		return nil, model.NewMaterialNotFoundError(materialID)
	}
	return m, nil
}

// List はユーザーの素材一覧をcreated_at降順カーソルで取得する。
func (s *Service) List(ctx context.Context, userID string, cursor time.Time, limit int) ([]*model.Material, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	materials, err := s.materialRepo.ListByUserID(ctx, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	return materials, nil
}

// fetchPage はSSRF防止クライアントでページを取得する。
// レスポンスは設定された最大サイズまでしか読まない。
func (s *Service) fetchPage(ctx context.Context, rawURL string) ([]byte, error) {
	client := s.guard.NewSafeClient(s.config.WebImportTimeout, s.config.WebImportMaxSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", "SmrtStudy/1.0 Content Importer")

	resp, err := client.Do(req)
	if err != nil {
		// safeurlのDialer検証で弾かれた場合もここに来る
		if strings.Contains(err.Error(), "prohibited") || strings.Contains(err.Error(), "blocked") {
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewFetchFailedError(fmt.Sprintf("ステータス %d が返されました", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.WebImportMaxSize))
	if err != nil {
		return nil, model.NewFetchFailedError(err.Error())
	}
	return body, nil
}

// bumpUploadStats は学習統計の素材取り込み数を加算する。失敗しても取り込みは成功扱い。
func (s *Service) bumpUploadStats(ctx context.Context, userID string) {
	stats, err := s.statsRepo.FindByUserID(ctx, userID)
	if err != nil {
		slog.Warn("failed to load user stats", slog.String("error", err.Error()))
		return
	}
	if stats == nil {
		stats = &model.UserStats{UserID: userID}
	}
	stats.TotalMaterialsUploaded++
	stats.UpdatedAt = time.Now()
	if err := s.statsRepo.Upsert(ctx, stats); err != nil {
		slog.Warn("failed to update user stats", slog.String("error", err.Error()))
	}
}

// accessError はAccessの内容に応じたAPIErrorを返す。
func accessError(access entitlement.Access, featureID string) error {
	if access.UpgradeRequired {
		return model.NewFeatureLimitReachedError(featureID)
	}
	return model.NewBillingUnavailableError()
}

// fallbackTitle はタイトルが空の場合に代替タイトルを返す。
func fallbackTitle(title, fallback string) string {
	title = strings.TrimSpace(title)
	if title != "" {
		return title
	}
	return fallback
}

// makePreview は本文の先頭500文字（rune単位）のプレビューを返す。
func makePreview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength])
}

// countWords は空白区切りの単語数を数える。
func countWords(text string) int {
	return len(strings.Fields(text))
}
