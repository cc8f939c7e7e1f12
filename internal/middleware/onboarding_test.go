package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/smrtstudy/internal/model"
)

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}

func onboardingHandler(finder UserFinder) http.Handler {
	mw := NewOnboardingGateMiddleware(finder)
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func requestWithUserID(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

// プロフィール設定済みユーザーが通過できることを検証
func TestOnboardingGate_CompletedUserPasses(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, OnboardingCompleted: true}, nil
		},
	}

	w := httptest.NewRecorder()
	onboardingHandler(finder).ServeHTTP(w, requestWithUserID("user-1"))

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Result().StatusCode)
	}
}

// プロフィール未設定ユーザーが/setup-profileへリダイレクトされることを検証
func TestOnboardingGate_IncompleteUserRedirects(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, OnboardingCompleted: false}, nil
		},
	}

	w := httptest.NewRecorder()
	onboardingHandler(finder).ServeHTTP(w, requestWithUserID("user-1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/setup-profile" {
		t.Errorf("location = %q, want /setup-profile", loc)
	}
}

// ユーザーレコードが存在しない場合もリダイレクトされることを検証
func TestOnboardingGate_MissingUserRedirects(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}

	w := httptest.NewRecorder()
	onboardingHandler(finder).ServeHTTP(w, requestWithUserID("ghost-user"))

	if w.Result().StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", w.Result().StatusCode)
	}
}

// DB障害時は500を返すことを検証
func TestOnboardingGate_RepositoryError(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, errors.New("db down")
		},
	}

	w := httptest.NewRecorder()
	onboardingHandler(finder).ServeHTTP(w, requestWithUserID("user-1"))

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Result().StatusCode)
	}
}

// コンテキストにユーザーIDがない場合はリダイレクトされることを検証
func TestOnboardingGate_NoUserIDInContext(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			t.Fatal("finder should not be called")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	onboardingHandler(finder).ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", w.Result().StatusCode)
	}
}
