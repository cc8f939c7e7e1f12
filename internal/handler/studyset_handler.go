package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/smrtstudy/internal/middleware"
	"github.com/hitoshi/smrtstudy/internal/model"
	"github.com/hitoshi/smrtstudy/internal/studyset"
)

// StudySetServiceInterface は学習セットハンドラーが必要とするサービスインターフェース。
type StudySetServiceInterface interface {
	Create(ctx context.Context, userID string, input studyset.CreateInput) (*model.StudySet, error)
	Get(ctx context.Context, userID, studySetID string) (*model.StudySet, error)
	List(ctx context.Context, userID string, cursor time.Time, limit int) ([]*model.StudySet, error)
	StartStudySession(ctx context.Context, userID, studySetID string, sessionType model.StudySessionType) (*model.StudySet, error)
	CompleteStudySession(ctx context.Context, userID string, input studyset.CompleteInput) (*model.StudySession, error)
	ListSessions(ctx context.Context, userID, studySetID string) ([]*model.StudySession, error)
}

// StudySetHandler は学習セットと学習セッション関連のHTTPハンドラー。
type StudySetHandler struct {
	service StudySetServiceInterface
}

// NewStudySetHandler はStudySetHandlerを生成する。
func NewStudySetHandler(service StudySetServiceInterface) *StudySetHandler {
	return &StudySetHandler{service: service}
}

type createStudySetRequest struct {
	MaterialID  string            `json:"material_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Summary     string            `json:"summary"`
	MCQs        []model.MCQ       `json:"mcqs"`
	Flashcards  []model.Flashcard `json:"flashcards"`
	ModelUsed   string            `json:"model_used"`
	CreditsUsed int               `json:"credits_used"`
}

type startSessionRequest struct {
	SessionType string `json:"session_type"`
}

type completeSessionRequest struct {
	SessionType        string                  `json:"session_type"`
	QuizAnswers        []model.QuizAnswer      `json:"quiz_answers"`
	FlashcardsReviewed []model.FlashcardReview `json:"flashcards_reviewed"`
	DurationSeconds    int                     `json:"duration_seconds"`
}

type studySetResponse struct {
	ID            string            `json:"id"`
	MaterialID    string            `json:"material_id"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Summary       string            `json:"summary"`
	MCQs          []model.MCQ       `json:"mcqs"`
	Flashcards    []model.Flashcard `json:"flashcards"`
	ModelUsed     string            `json:"model_used"`
	CreditsUsed   int               `json:"credits_used"`
	TimesStudied  int               `json:"times_studied"`
	LastStudiedAt *time.Time        `json:"last_studied_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

type studySessionResponse struct {
	ID              string    `json:"id"`
	StudySetID      string    `json:"study_set_id"`
	SessionType     string    `json:"session_type"`
	QuizScore       *int      `json:"quiz_score,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	CompletedAt     time.Time `json:"completed_at"`
}

func toStudySetResponse(set *model.StudySet) studySetResponse {
	return studySetResponse{
		ID:            set.ID,
		MaterialID:    set.MaterialID,
		Title:         set.Title,
		Description:   set.Description,
		Summary:       set.Summary,
		MCQs:          set.MCQs,
		Flashcards:    set.Flashcards,
		ModelUsed:     set.ModelUsed,
		CreditsUsed:   set.CreditsUsed,
		TimesStudied:  set.TimesStudied,
		LastStudiedAt: set.LastStudiedAt,
		CreatedAt:     set.CreatedAt,
	}
}

func toStudySessionResponse(session *model.StudySession) studySessionResponse {
	return studySessionResponse{
		ID:              session.ID,
		StudySetID:      session.StudySetID,
		SessionType:     string(session.SessionType),
		QuizScore:       session.QuizScore,
		DurationSeconds: session.DurationSeconds,
		CompletedAt:     session.CompletedAt,
	}
}

// Create は教材から生成された学習セットを登録する。
// POST /api/study-sets
func (h *StudySetHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createStudySetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	set, err := h.service.Create(r.Context(), userID, studyset.CreateInput{
		MaterialID:  req.MaterialID,
		Title:       req.Title,
		Description: req.Description,
		Summary:     req.Summary,
		MCQs:        req.MCQs,
		Flashcards:  req.Flashcards,
		ModelUsed:   req.ModelUsed,
		CreditsUsed: req.CreditsUsed,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStudySetResponse(set))
}

// List は学習セットの一覧を新しい順で返す。
// GET /api/study-sets?cursor=xxx&limit=20
func (h *StudySetHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	cursor, limit := parseListQuery(r)
	sets, err := h.service.List(r.Context(), userID, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]studySetResponse, 0, len(sets))
	for _, set := range sets {
		items = append(items, toStudySetResponse(set))
	}
	writeJSON(w, http.StatusOK, map[string]any{"study_sets": items})
}

// Get は学習セットの詳細を返す。
// GET /api/study-sets/{studySetID}
func (h *StudySetHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	studySetID := chi.URLParam(r, "studySetID")
	set, err := h.service.Get(r.Context(), userID, studySetID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStudySetResponse(set))
}

// StartSession は学習セッションの開始可否を判定し学習セットの内容を返す。
// POST /api/study-sets/{studySetID}/sessions/start
func (h *StudySetHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	studySetID := chi.URLParam(r, "studySetID")
	set, err := h.service.StartStudySession(r.Context(), userID, studySetID, model.StudySessionType(req.SessionType))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStudySetResponse(set))
}

// CompleteSession は学習セッションの完了を記録する。
// POST /api/study-sets/{studySetID}/sessions
func (h *StudySetHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req completeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	studySetID := chi.URLParam(r, "studySetID")
	session, err := h.service.CompleteStudySession(r.Context(), userID, studyset.CompleteInput{
		StudySetID:         studySetID,
		SessionType:        model.StudySessionType(req.SessionType),
		QuizAnswers:        req.QuizAnswers,
		FlashcardsReviewed: req.FlashcardsReviewed,
		DurationSeconds:    req.DurationSeconds,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStudySessionResponse(session))
}

// ListSessions は学習セットの最近のセッション履歴を返す。
// GET /api/study-sets/{studySetID}/sessions
func (h *StudySetHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	studySetID := chi.URLParam(r, "studySetID")
	sessions, err := h.service.ListSessions(r.Context(), userID, studySetID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]studySessionResponse, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, toStudySessionResponse(session))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": items})
}

// parseListQuery は一覧系エンドポイント共通のカーソル・件数パラメータを解析する。
// cursorはRFC3339形式。不正値は未指定として扱う。
func parseListQuery(r *http.Request) (time.Time, int) {
	var cursor time.Time
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			cursor = t
		}
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	return cursor, limit
}
