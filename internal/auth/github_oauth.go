package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultGitHubAuthURL   = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL  = "https://github.com/login/oauth/access_token"
	defaultGitHubUserURL   = "https://api.github.com/user"
	defaultGitHubEmailsURL = "https://api.github.com/user/emails"
)

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string
}

// GitHubOAuthProvider はGitHub OAuthによる認証を提供する。
type GitHubOAuthProvider struct {
	config GitHubOAuthConfig
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig) *GitHubOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGitHubAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGitHubTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultGitHubUserURL
	}
	if config.EmailsURL == "" {
		config.EmailsURL = defaultGitHubEmailsURL
	}
	return &GitHubOAuthProvider{config: config}
}

// GetLoginURL はGitHub OAuthの認証URLを生成する。
// スコープにはread:userとuser:emailを含む。
func (p *GitHubOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":    {p.config.ClientID},
		"redirect_uri": {p.config.RedirectURL},
		"scope":        {"read:user user:email"},
		"state":        {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// githubTokenResponse はGitHubのトークンエンドポイントのレスポンス。
type githubTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// githubUser はGitHubのユーザーエンドポイントのレスポンス。
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// githubEmail はGitHubのメールアドレスエンドポイントのレスポンス要素。
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// プロフィールのメールアドレスが非公開の場合はemailsエンドポイントから
// プライマリかつ検証済みのアドレスを取得する。
func (p *GitHubOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	// 1. 認可コードをアクセストークンに交換
	tokenResp, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	user, err := p.fetchUser(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	// 3. メールアドレスが非公開の場合はemailsエンドポイントから取得
	emailAddr := user.Email
	if emailAddr == "" {
		emailAddr, err = p.fetchPrimaryEmail(ctx, tokenResp.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch primary email: %w", err)
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &OAuthUserInfo{
		ProviderUserID: fmt.Sprintf("%d", user.ID),
		Email:          emailAddr,
		Name:           name,
		ImageURL:       user.AvatarURL,
		Provider:       "github",
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (p *GitHubOAuthProvider) exchangeToken(ctx context.Context, code string) (*githubTokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp githubTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

// fetchUser はアクセストークンでGitHubのユーザー情報を取得する。
func (p *GitHubOAuthProvider) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	body, err := p.get(ctx, p.config.UserURL, accessToken)
	if err != nil {
		return nil, err
	}

	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}

	if user.ID == 0 {
		return nil, fmt.Errorf("empty user id in response")
	}

	return &user, nil
}

// fetchPrimaryEmail はプライマリかつ検証済みのメールアドレスを取得する。
func (p *GitHubOAuthProvider) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	body, err := p.get(ctx, p.config.EmailsURL, accessToken)
	if err != nil {
		return "", err
	}

	var emails []githubEmail
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", fmt.Errorf("failed to parse emails response: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("no verified primary email found")
}

// get は認証付きGETリクエストを実行しレスポンスボディを返す。
func (p *GitHubOAuthProvider) get(ctx context.Context, rawURL, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// compile-time interface check
var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
