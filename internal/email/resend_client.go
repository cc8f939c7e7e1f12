package email

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
	// defaultEndpoint はResendのメール送信APIのエンドポイント。
	defaultEndpoint = "https://api.resend.com/emails"
	// requestTimeout はメール送信1回あたりのタイムアウト。
	requestTimeout = 10 * time.Second
)

// ResendClient はResend APIを使用したメール送信クライアント。
type ResendClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	from       string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewResendClient はResendClientの新しいインスタンスを生成する。
// fromは "SmrtStudy <noreply@email.smrtstudy.com>" 形式の送信元アドレス。
func NewResendClient(apiKey, from string, logger *slog.Logger) *ResendClient {
	return &ResendClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		apiKey:     apiKey,
		from:       from,
		endpoint:   defaultEndpoint,
	}
}

// sendRequest はResend APIのリクエストボディ。
type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Send はメールを1通送信する。
// APIがエラーステータスを返した場合はエラーを返す（呼び出し元がリトライ判断を行う）。
func (c *ResendClient) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("リクエストボディの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("メール送信APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("subject", msg.Subject),
		)
		return fmt.Errorf("メール送信APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error("メール送信APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("subject", msg.Subject),
			slog.String("body", string(body)),
		)
		return fmt.Errorf("メール送信APIがステータス %d を返しました", resp.StatusCode)
	}

	c.logger.Info("メールを送信しました",
		slog.String("subject", msg.Subject),
	)
	return nil
}

// compile-time interface check
var _ Sender = (*ResendClient)(nil)
