package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/smrtstudy/internal/entitlement"
	"github.com/hitoshi/smrtstudy/internal/middleware"
	"github.com/hitoshi/smrtstudy/internal/model"
	"github.com/hitoshi/smrtstudy/internal/repository"
)

// snapshotFeatures はページ初期表示に同梱する機能判定の対象。
var snapshotFeatures = []string{
	entitlement.FeatureAIQuestions,
	entitlement.FeatureStudySets,
	entitlement.FeatureFileUploads,
	entitlement.FeatureWebScraping,
	entitlement.FeaturePracticeMode,
	entitlement.FeatureQuizMode,
	entitlement.FeatureReviewMode,
}

// FeatureChecker はページハンドラーが必要とする機能判定インターフェース。
type FeatureChecker interface {
	CheckFeatureAccess(ctx context.Context, userID, featureID string) entitlement.Access
}

// PageHandler は認証済みページの初期表示ペイロードを返すHTTPハンドラー。
// フロントエンドはこのペイロードでユーザー情報と機能判定を初期化する。
type PageHandler struct {
	profile      ProfileServiceInterface
	entitlements FeatureChecker
	statsRepo    repository.UserStatsRepository
	materials    MaterialServiceInterface
	studySets    StudySetServiceInterface
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(
	profile ProfileServiceInterface,
	entitlements FeatureChecker,
	statsRepo repository.UserStatsRepository,
	materials MaterialServiceInterface,
	studySets StudySetServiceInterface,
) *PageHandler {
	return &PageHandler{
		profile:      profile,
		entitlements: entitlements,
		statsRepo:    statsRepo,
		materials:    materials,
		studySets:    studySets,
	}
}

type dashboardPayload struct {
	User         userResponse                  `json:"user"`
	Entitlements map[string]entitlement.Access `json:"entitlements"`
}

type statsPayload struct {
	TotalMaterialsUploaded int        `json:"total_materials_uploaded"`
	TotalStudySetsCreated  int        `json:"total_study_sets_created"`
	TotalStudySessions     int        `json:"total_study_sessions"`
	TotalQuestionsAnswered int        `json:"total_questions_answered"`
	TotalCorrectAnswers    int        `json:"total_correct_answers"`
	TotalStudyTimeSeconds  int        `json:"total_study_time_seconds"`
	CurrentStreak          int        `json:"current_streak"`
	LongestStreak          int        `json:"longest_streak"`
	LastStudyDate          *time.Time `json:"last_study_date,omitempty"`
}

type overviewPayload struct {
	User  userResponse `json:"user"`
	Stats statsPayload `json:"stats"`
}

type settingsPayload struct {
	User userResponse `json:"user"`
}

type materialsPagePayload struct {
	User      userResponse       `json:"user"`
	Materials []materialResponse `json:"materials"`
}

type quizPagePayload struct {
	User      userResponse       `json:"user"`
	StudySets []studySetResponse `json:"study_sets"`
}

// Dashboard はダッシュボードの初期表示ペイロードを返す。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.profile.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	access := make(map[string]entitlement.Access, len(snapshotFeatures))
	for _, featureID := range snapshotFeatures {
		access[featureID] = h.entitlements.CheckFeatureAccess(r.Context(), userID, featureID)
	}

	writeJSON(w, http.StatusOK, dashboardPayload{
		User:         toUserResponse(user),
		Entitlements: access,
	})
}

// Overview は学習統計ページの初期表示ペイロードを返す。
// 統計レコードが未作成のユーザーにはゼロ値を返す。
// GET /overview
func (h *PageHandler) Overview(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.profile.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	stats, err := h.statsRepo.FindByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if stats == nil {
		stats = &model.UserStats{UserID: userID}
	}

	writeJSON(w, http.StatusOK, overviewPayload{
		User: toUserResponse(user),
		Stats: statsPayload{
			TotalMaterialsUploaded: stats.TotalMaterialsUploaded,
			TotalStudySetsCreated:  stats.TotalStudySetsCreated,
			TotalStudySessions:     stats.TotalStudySessions,
			TotalQuestionsAnswered: stats.TotalQuestionsAnswered,
			TotalCorrectAnswers:    stats.TotalCorrectAnswers,
			TotalStudyTimeSeconds:  stats.TotalStudyTimeSeconds,
			CurrentStreak:          stats.CurrentStreak,
			LongestStreak:          stats.LongestStreak,
			LastStudyDate:          stats.LastStudyDate,
		},
	})
}

// Materials は教材一覧ページの初期表示ペイロードを返す。
// GET /materials
func (h *PageHandler) Materials(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.profile.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	materials, err := h.materials.List(r.Context(), userID, time.Time{}, 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]materialResponse, 0, len(materials))
	for _, m := range materials {
		items = append(items, toMaterialResponse(m))
	}

	writeJSON(w, http.StatusOK, materialsPagePayload{
		User:      toUserResponse(user),
		Materials: items,
	})
}

// Quiz はクイズ選択ページの初期表示ペイロードを返す。
// GET /quiz
func (h *PageHandler) Quiz(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.profile.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	sets, err := h.studySets.List(r.Context(), userID, time.Time{}, 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]studySetResponse, 0, len(sets))
	for _, set := range sets {
		items = append(items, toStudySetResponse(set))
	}

	writeJSON(w, http.StatusOK, quizPagePayload{
		User:      toUserResponse(user),
		StudySets: items,
	})
}

// Settings は設定ページの初期表示ペイロードを返す。
// GET /settings
func (h *PageHandler) Settings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.profile.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settingsPayload{User: toUserResponse(user)})
}

// AuthPage はサインイン・サインアップ等の認証ページに対する応答を返す。
// ログイン済みユーザーはゲートでダッシュボードへリダイレクトされるため、
// ここに到達するのは未ログインのリクエストのみ。ペイロードは持たない。
// GET /sign-in ほか
func (h *PageHandler) AuthPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetupProfile はオンボーディングページの初期表示ペイロードを返す。
// オンボーディング未完了でも到達できる必要があるためゲートの外に置く。
// GET /setup-profile
func (h *PageHandler) SetupProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.profile.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settingsPayload{User: toUserResponse(user)})
}
