package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// protectedPagePrefixes はセッションCookieが必要なページルート。
// プレフィックス一致で配下のページも対象になる。
var protectedPagePrefixes = []string{
	"/dashboard",
	"/overview",
	"/materials",
	"/quiz",
	"/settings",
}

// authPagePrefixes はログイン済みユーザーをダッシュボードへ誘導するページルート。
var authPagePrefixes = []string{
	"/sign-in",
	"/sign-up",
	"/verify-email",
	"/reset-password",
	"/magic-link",
}

// NewPageGateMiddleware はページルートのリダイレクト制御ミドルウェアを返す。
// 保護ページにCookieなしでアクセスした場合は元のパスをredirectパラメータに
// 付けてサインインへ、認証ページにCookieありでアクセスした場合は
// ダッシュボードへ302リダイレクトする。
// ここではCookieの存在だけを見る。有効性の検証はAPI側のセッション
// ミドルウェアが行うため、失効済みCookieはAPIの401で顕在化する。
func NewPageGateMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasSession := hasSessionCookie(r)
			path := r.URL.Path

			if matchesPrefix(path, protectedPagePrefixes) && !hasSession {
				target := "/sign-in?redirect=" + url.QueryEscape(path)
				http.Redirect(w, r, target, http.StatusFound)
				return
			}

			if matchesPrefix(path, authPagePrefixes) && hasSession {
				http.Redirect(w, r, "/dashboard", http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// hasSessionCookie はセッションCookieが存在するかを返す。
// パースエラーは存在しない扱いにする。
func hasSessionCookie(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookieName)
	return err == nil && cookie.Value != ""
}

// matchesPrefix はパスがいずれかのプレフィックスに一致するかを返す。
// /dashboardは/dashboard自体と/dashboard/配下に一致し、/dashboard-xには一致しない。
func matchesPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
