package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/smrtstudy/internal/entitlement"
	"github.com/hitoshi/smrtstudy/internal/model"
)

// --- モック定義 ---

type mockStatsRepo struct {
	findFn func(ctx context.Context, userID string) (*model.UserStats, error)
}

func (m *mockStatsRepo) FindByUserID(ctx context.Context, userID string) (*model.UserStats, error) {
	if m.findFn != nil {
		return m.findFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockStatsRepo) Upsert(ctx context.Context, stats *model.UserStats) error {
	return nil
}

func newTestPageHandler(stats *mockStatsRepo, check func(ctx context.Context, userID, featureID string) entitlement.Access) *PageHandler {
	profileSvc := &mockProfileService{
		getProfileFn: func(ctx context.Context, userID string) (*model.User, error) {
			return &model.User{ID: userID, Email: "user@example.com", OnboardingCompleted: true}, nil
		},
	}
	return NewPageHandler(profileSvc, &mockBillingService{checkFn: check}, stats, &mockMaterialService{}, &mockStudySetService{})
}

// --- ダッシュボード ---

func TestPageHandler_Dashboard_IncludesEntitlementSnapshot(t *testing.T) {
	h := newTestPageHandler(&mockStatsRepo{}, func(ctx context.Context, userID, featureID string) entitlement.Access {
		// web_scrapingだけアップグレードが必要なプランを再現
		if featureID == entitlement.FeatureWebScraping {
			return entitlement.Access{Allowed: false, UpgradeRequired: true}
		}
		return entitlement.Access{Allowed: true}
	})

	w := httptest.NewRecorder()
	h.Dashboard(w, authedRequest(http.MethodGet, "/dashboard", nil, "user-1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got dashboardPayload
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.User.ID != "user-1" {
		t.Errorf("user.id = %q, want user-1", got.User.ID)
	}
	if len(got.Entitlements) != len(snapshotFeatures) {
		t.Errorf("len(entitlements) = %d, want %d", len(got.Entitlements), len(snapshotFeatures))
	}
	if !got.Entitlements[entitlement.FeatureQuizMode].Allowed {
		t.Error("quiz_mode should be allowed")
	}
	if !got.Entitlements[entitlement.FeatureWebScraping].UpgradeRequired {
		t.Error("web_scraping should require upgrade")
	}
}

func TestPageHandler_Dashboard_NoSession_ReturnsUnauthorized(t *testing.T) {
	h := newTestPageHandler(&mockStatsRepo{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	h.Dashboard(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// --- 学習統計 ---

func TestPageHandler_Overview_ReturnsStats(t *testing.T) {
	stats := &mockStatsRepo{
		findFn: func(ctx context.Context, userID string) (*model.UserStats, error) {
			return &model.UserStats{
				UserID:                 userID,
				TotalStudySessions:     12,
				TotalQuestionsAnswered: 96,
				TotalCorrectAnswers:    80,
				CurrentStreak:          4,
				LongestStreak:          9,
			}, nil
		},
	}
	h := newTestPageHandler(stats, nil)

	w := httptest.NewRecorder()
	h.Overview(w, authedRequest(http.MethodGet, "/overview", nil, "user-1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got overviewPayload
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Stats.TotalStudySessions != 12 || got.Stats.CurrentStreak != 4 {
		t.Errorf("unexpected stats: %+v", got.Stats)
	}
}

func TestPageHandler_Overview_NoStatsRecord_ReturnsZeroValues(t *testing.T) {
	// 統計レコード未作成のユーザーにはゼロ値を返す
	h := newTestPageHandler(&mockStatsRepo{}, nil)

	w := httptest.NewRecorder()
	h.Overview(w, authedRequest(http.MethodGet, "/overview", nil, "new-user"))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got overviewPayload
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Stats.TotalStudySessions != 0 || got.Stats.LastStudyDate != nil {
		t.Errorf("unexpected stats: %+v", got.Stats)
	}
}

// --- 教材一覧・クイズ選択 ---

func TestPageHandler_Materials_ReturnsUserAndMaterials(t *testing.T) {
	profileSvc := &mockProfileService{
		getProfileFn: func(ctx context.Context, userID string) (*model.User, error) {
			return &model.User{ID: userID, OnboardingCompleted: true}, nil
		},
	}
	materialSvc := &mockMaterialService{
		listFn: func(ctx context.Context, userID string, cursor time.Time, limit int) ([]*model.Material, error) {
			return []*model.Material{{ID: "mat-1", Title: "生物学ノート"}}, nil
		},
	}
	h := NewPageHandler(profileSvc, &mockBillingService{}, &mockStatsRepo{}, materialSvc, &mockStudySetService{})

	w := httptest.NewRecorder()
	h.Materials(w, authedRequest(http.MethodGet, "/materials", nil, "user-1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got materialsPagePayload
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.User.ID != "user-1" {
		t.Errorf("user.id = %q, want user-1", got.User.ID)
	}
	if len(got.Materials) != 1 || got.Materials[0].Title != "生物学ノート" {
		t.Errorf("unexpected materials: %+v", got.Materials)
	}
}

func TestPageHandler_Quiz_ReturnsStudySets(t *testing.T) {
	profileSvc := &mockProfileService{
		getProfileFn: func(ctx context.Context, userID string) (*model.User, error) {
			return &model.User{ID: userID, OnboardingCompleted: true}, nil
		},
	}
	studySetSvc := &mockStudySetService{
		listFn: func(ctx context.Context, userID string, cursor time.Time, limit int) ([]*model.StudySet, error) {
			return []*model.StudySet{{ID: "set-1"}, {ID: "set-2"}}, nil
		},
	}
	h := NewPageHandler(profileSvc, &mockBillingService{}, &mockStatsRepo{}, &mockMaterialService{}, studySetSvc)

	w := httptest.NewRecorder()
	h.Quiz(w, authedRequest(http.MethodGet, "/quiz", nil, "user-1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got quizPagePayload
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got.StudySets) != 2 {
		t.Errorf("len(study_sets) = %d, want 2", len(got.StudySets))
	}
}

// --- 設定・オンボーディング ---

func TestPageHandler_Settings_ReturnsUser(t *testing.T) {
	h := newTestPageHandler(&mockStatsRepo{}, nil)

	w := httptest.NewRecorder()
	h.Settings(w, authedRequest(http.MethodGet, "/settings", nil, "user-1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got settingsPayload
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.User.Email != "user@example.com" {
		t.Errorf("user.email = %q", got.User.Email)
	}
}

func TestPageHandler_SetupProfile_ReturnsUser(t *testing.T) {
	h := newTestPageHandler(&mockStatsRepo{}, nil)

	w := httptest.NewRecorder()
	h.SetupProfile(w, authedRequest(http.MethodGet, "/setup-profile", nil, "user-1"))

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}
