// Package studyset は学習セットの参照と学習セッションの記録を提供する。
package studyset

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/smrtstudy/internal/entitlement"
	"github.com/hitoshi/smrtstudy/internal/model"
	"github.com/hitoshi/smrtstudy/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	// sessionHistoryLimit は1学習セットあたりの履歴取得件数。
	sessionHistoryLimit = 50
)

// sessionTypeFeatures は学習セッション種別と機能IDの対応。
var sessionTypeFeatures = map[model.StudySessionType]string{
	model.StudySessionQuiz:       entitlement.FeatureQuizMode,
	model.StudySessionFlashcards: entitlement.FeaturePracticeMode,
}

// EntitlementChecker は機能利用可否判定と使用量記録を抽象化する。
type EntitlementChecker interface {
	CheckFeatureAccess(ctx context.Context, userID, featureID string) entitlement.Access
	TrackFeatureUsage(ctx context.Context, userID, featureID string)
}

// CreateInput は学習セット作成の入力を表す。
// 生成済みコンテンツを受け取って保存する。作成後のコンテンツは変更されない。
type CreateInput struct {
	MaterialID  string
	Title       string
	Description string
	Summary     string
	MCQs        []model.MCQ
	Flashcards  []model.Flashcard
	ModelUsed   string
	CreditsUsed int
}

// CompleteInput は学習セッション完了の入力を表す。
type CompleteInput struct {
	StudySetID         string
	SessionType        model.StudySessionType
	QuizAnswers        []model.QuizAnswer
	FlashcardsReviewed []model.FlashcardReview
	DurationSeconds    int
}

// Service は学習セットに関するビジネスロジックを提供する。
type Service struct {
	studySetRepo repository.StudySetRepository
	sessionRepo  repository.StudySessionRepository
	materialRepo repository.MaterialRepository
	statsRepo    repository.UserStatsRepository
	entitlements EntitlementChecker
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	studySetRepo repository.StudySetRepository,
	sessionRepo repository.StudySessionRepository,
	materialRepo repository.MaterialRepository,
	statsRepo repository.UserStatsRepository,
	entitlements EntitlementChecker,
) *Service {
	return &Service{
		studySetRepo: studySetRepo,
		sessionRepo:  sessionRepo,
		materialRepo: materialRepo,
		statsRepo:    statsRepo,
		entitlements: entitlements,
		now:          time.Now,
	}
}

// Create は生成済みコンテンツから学習セットを作成する。
// 生成はクレジットを消費するためai_questionsの利用可否を事前に確認する。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.StudySet, error) {
	access := s.entitlements.CheckFeatureAccess(ctx, userID, entitlement.FeatureAIQuestions)
	if !access.Allowed {
		return nil, accessError(access, entitlement.FeatureAIQuestions)
	}

	material, err := s.materialRepo.FindByID(ctx, input.MaterialID)
	if err != nil {
		return nil, fmt.Errorf("failed to find material: %w", err)
	}
	if material == nil || material.UserID != userID {
		return nil, model.NewMaterialNotFoundError(input.MaterialID)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = material.Title
	}

	set := &model.StudySet{
		ID:          uuid.New().String(),
		UserID:      userID,
		MaterialID:  input.MaterialID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Summary:     input.Summary,
		MCQs:        input.MCQs,
		Flashcards:  input.Flashcards,
		ModelUsed:   input.ModelUsed,
		CreditsUsed: input.CreditsUsed,
		CreatedAt:   s.now(),
	}
	if err := s.studySetRepo.Create(ctx, set); err != nil {
		return nil, fmt.Errorf("failed to create study set: %w", err)
	}

	s.entitlements.TrackFeatureUsage(ctx, userID, entitlement.FeatureAIQuestions)
	s.updateStats(ctx, userID, func(stats *model.UserStats) {
		stats.TotalStudySetsCreated++
	})

	slog.Info("study set created",
		slog.String("user_id", userID),
		slog.String("study_set_id", set.ID),
		slog.Int("mcq_count", len(set.MCQs)),
		slog.Int("flashcard_count", len(set.Flashcards)),
	)
	return set, nil
}

// Get は指定IDの学習セットを取得する。他ユーザーのセットは存在しない扱いにする。
func (s *Service) Get(ctx context.Context, userID, studySetID string) (*model.StudySet, error) {
	set, err := s.studySetRepo.FindByID(ctx, studySetID)
	if err != nil {
		return nil, fmt.Errorf("failed to find study set: %w", err)
	}
	if set == nil || set.UserID != userID {
		return nil, model.NewStudySetNotFoundError(studySetID)
	}
	return set, nil
}

// List はユーザーの学習セット一覧をcreated_at降順カーソルで取得する。
func (s *Service) List(ctx context.Context, userID string, cursor time.Time, limit int) ([]*model.StudySet, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	sets, err := s.studySetRepo.ListByUserID(ctx, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list study sets: %w", err)
	}
	return sets, nil
}

// StartStudySession は学習セッション開始前の利用可否を判定する。
// セッション種別ごとに対応する機能IDで判定し、拒否された場合はAPIErrorを返す。
func (s *Service) StartStudySession(ctx context.Context, userID, studySetID string, sessionType model.StudySessionType) (*model.StudySet, error) {
	featureID, ok := sessionTypeFeatures[sessionType]
	if !ok {
		return nil, model.NewInvalidSessionTypeError(string(sessionType))
	}

	set, err := s.Get(ctx, userID, studySetID)
	if err != nil {
		return nil, err
	}

	access := s.entitlements.CheckFeatureAccess(ctx, userID, featureID)
	if !access.Allowed {
		return nil, accessError(access, featureID)
	}

	return set, nil
}

// CompleteStudySession は学習セッションの結果を記録する。
// セッションの保存に加えて学習セットの学習回数とユーザー統計を更新する。
// 使用量の記録はフェイルオープンで、失敗してもセッション完了は成功扱い。
func (s *Service) CompleteStudySession(ctx context.Context, userID string, input CompleteInput) (*model.StudySession, error) {
	featureID, ok := sessionTypeFeatures[input.SessionType]
	if !ok {
		return nil, model.NewInvalidSessionTypeError(string(input.SessionType))
	}

	if _, err := s.Get(ctx, userID, input.StudySetID); err != nil {
		return nil, err
	}

	completedAt := s.now()
	session := &model.StudySession{
		ID:                 uuid.New().String(),
		UserID:             userID,
		StudySetID:         input.StudySetID,
		SessionType:        input.SessionType,
		QuizAnswers:        input.QuizAnswers,
		FlashcardsReviewed: input.FlashcardsReviewed,
		DurationSeconds:    input.DurationSeconds,
		CompletedAt:        completedAt,
	}

	correct := 0
	if input.SessionType == model.StudySessionQuiz && len(input.QuizAnswers) > 0 {
		for _, a := range input.QuizAnswers {
			if a.WasCorrect {
				correct++
			}
		}
		score := correct * 100 / len(input.QuizAnswers)
		session.QuizScore = &score
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create study session: %w", err)
	}

	if err := s.studySetRepo.BumpStudyStats(ctx, input.StudySetID, completedAt); err != nil {
		slog.Warn("failed to bump study set stats",
			slog.String("study_set_id", input.StudySetID),
			slog.String("error", err.Error()),
		)
	}

	s.updateStats(ctx, userID, func(stats *model.UserStats) {
		stats.TotalStudySessions++
		stats.TotalQuestionsAnswered += len(input.QuizAnswers)
		stats.TotalCorrectAnswers += correct
		stats.TotalStudyTimeSeconds += input.DurationSeconds
		applyStreak(stats, completedAt)
	})

	s.entitlements.TrackFeatureUsage(ctx, userID, featureID)

	slog.Info("study session completed",
		slog.String("user_id", userID),
		slog.String("study_set_id", input.StudySetID),
		slog.String("session_type", string(input.SessionType)),
		slog.Int("duration_seconds", input.DurationSeconds),
	)
	return session, nil
}

// ListSessions は学習セットの直近のセッション履歴を取得する。
// 学習セットと同じ所有者チェックを行う。
func (s *Service) ListSessions(ctx context.Context, userID, studySetID string) ([]*model.StudySession, error) {
	if _, err := s.Get(ctx, userID, studySetID); err != nil {
		return nil, err
	}

	sessions, err := s.sessionRepo.ListByStudySet(ctx, userID, studySetID, sessionHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list study sessions: %w", err)
	}
	return sessions, nil
}

// updateStats はユーザー統計を読み取り・更新する。失敗しても呼び出し元の処理は成功扱い。
func (s *Service) updateStats(ctx context.Context, userID string, apply func(*model.UserStats)) {
	stats, err := s.statsRepo.FindByUserID(ctx, userID)
	if err != nil {
		slog.Warn("failed to load user stats", slog.String("error", err.Error()))
		return
	}
	if stats == nil {
		stats = &model.UserStats{UserID: userID}
	}
	apply(stats)
	stats.UpdatedAt = s.now()
	if err := s.statsRepo.Upsert(ctx, stats); err != nil {
		slog.Warn("failed to update user stats", slog.String("error", err.Error()))
	}
}

// applyStreak は連続学習日数を更新する。
// 同日中の複数セッションはストリークを進めず、前日からの継続で+1、
// 1日以上空いたら1にリセットする。日付の比較はローカル日付で行う。
func applyStreak(stats *model.UserStats, completedAt time.Time) {
	today := truncateToDate(completedAt)

	switch {
	case stats.LastStudyDate == nil:
		stats.CurrentStreak = 1
	case truncateToDate(*stats.LastStudyDate).Equal(today):
		// 同日中は変化なし
	case truncateToDate(*stats.LastStudyDate).AddDate(0, 0, 1).Equal(today):
		stats.CurrentStreak++
	default:
		stats.CurrentStreak = 1
	}

	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}
	stats.LastStudyDate = &today
}

// truncateToDate は時刻を切り捨てて日付のみにする。
func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// accessError はAccessの内容に応じたAPIErrorを返す。
func accessError(access entitlement.Access, featureID string) error {
	if access.UpgradeRequired {
		return model.NewFeatureLimitReachedError(featureID)
	}
	return model.NewBillingUnavailableError()
}
