package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/smrtstudy/internal/model"
)

// setupProfilePath はプロフィール未設定ユーザーの誘導先。
const setupProfilePath = "/setup-profile"

// UserFinder はユーザーの検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// NewOnboardingGateMiddleware はプロフィール設定完了を要求するミドルウェアを返す。
// セッションミドルウェアの後に配置する。ユーザーレコードが存在しないか
// onboarding_completedがfalseの場合は/setup-profileへ302リダイレクトする。
// ダッシュボード配下の通過条件はこのミドルウェアだけが判定する。
func NewOnboardingGateMiddleware(userFinder UserFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Redirect(w, r, setupProfilePath, http.StatusFound)
				return
			}

			user, err := userFinder.FindByID(r.Context(), userID)
			if err != nil {
				slog.Error("failed to find user for onboarding gate",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if user == nil || !user.OnboardingCompleted {
				http.Redirect(w, r, setupProfilePath, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
