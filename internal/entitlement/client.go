package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// defaultEndpoint は課金SaaS APIのベースURL。
	defaultEndpoint = "https://api.useautumn.com/v1"
	// requestTimeout はAPI呼び出し1回あたりのタイムアウト。
	requestTimeout = 10 * time.Second
)

// CheckResult は機能利用可否判定の結果。
type CheckResult struct {
	Allowed bool `json:"allowed"`
	// Balance は残り利用可能回数。無制限プランではnil。
	Balance *int `json:"balance,omitempty"`
}

// Client は課金SaaS APIのクライアント。
// 機能判定（check）、使用量記録（track）、チェックアウト、
// 請求ポータルの4エンドポイントを扱う。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	secretKey  string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// endpointが空の場合はデフォルトのAPIエンドポイントを使用する。
func NewClient(secretKey, endpoint string, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		secretKey:  secretKey,
		endpoint:   endpoint,
	}
}

// post はJSONボディをPOSTしレスポンスをoutにデコードする。
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("リクエストボディの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("課金APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error("課金APIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(raw)),
		)
		return fmt.Errorf("課金APIがステータス %d を返しました", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
		}
	}
	return nil
}

// Check は指定ユーザーの機能利用可否を判定する。
func (c *Client) Check(ctx context.Context, userID, featureID string) (*CheckResult, error) {
	body := map[string]string{
		"customer_id": userID,
		"feature_id":  featureID,
	}
	result := &CheckResult{}
	if err := c.post(ctx, "/check", body, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Track は機能の使用量を1件記録する。
func (c *Client) Track(ctx context.Context, userID, featureID string, value int) error {
	body := map[string]any{
		"customer_id": userID,
		"feature_id":  featureID,
		"value":       value,
	}
	return c.post(ctx, "/track", body, nil)
}

// checkoutResponse はチェックアウトAPIのレスポンス。
type checkoutResponse struct {
	URL string `json:"url"`
}

// Checkout は指定プランの購入フローを開始しリダイレクト先URLを返す。
func (c *Client) Checkout(ctx context.Context, userID, productID, successURL string) (string, error) {
	body := map[string]string{
		"customer_id": userID,
		"product_id":  productID,
		"success_url": successURL,
	}
	result := &checkoutResponse{}
	if err := c.post(ctx, "/checkout", body, result); err != nil {
		return "", err
	}
	return result.URL, nil
}

// billingPortalResponse は請求ポータルAPIのレスポンス。
type billingPortalResponse struct {
	URL string `json:"url"`
}

// BillingPortal は請求管理ポータルのURLを取得する。
func (c *Client) BillingPortal(ctx context.Context, userID, returnURL string) (string, error) {
	body := map[string]string{
		"customer_id": userID,
		"return_url":  returnURL,
	}
	result := &billingPortalResponse{}
	if err := c.post(ctx, fmt.Sprintf("/customers/%s/billing_portal", userID), body, result); err != nil {
		return "", err
	}
	return result.URL, nil
}
