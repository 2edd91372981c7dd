package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hitoshi/remindman/internal/model"
)

// WebhookStatusError はWebhook先がエラーステータスを返したことを表す。
type WebhookStatusError struct {
	StatusCode int
}

// Error はerrorインターフェースを実装する。
func (e *WebhookStatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// HTTPStatus はHTTPステータスコードを返す。配送側のリトライ分類用。
func (e *WebhookStatusError) HTTPStatus() int {
	return e.StatusCode
}

// WebhookSink はユーザーが登録したWebhook URLへ通知をHTTP POSTするシンク。
// SSRF防止機能付きのHTTPクライアントを注入すること（security.SSRFGuardService参照）。
type WebhookSink struct {
	httpClient *http.Client
}

// NewWebhookSink はWebhookSinkを生成する。
func NewWebhookSink(httpClient *http.Client) *WebhookSink {
	return &WebhookSink{httpClient: httpClient}
}

// webhookPayload はWebhook通知のJSONボディ。
type webhookPayload struct {
	ReminderID string `json:"reminder_id"`
	TelegramID int64  `json:"telegram_id"`
	Text       string `json:"text"`
}

// Send は通知をユーザーのWebhook URLへPOSTする。
// 2xx以外のレスポンスはWebhookStatusErrorとして返す。
func (s *WebhookSink) Send(ctx context.Context, due *model.DueReminder, text string) error {
	payload, err := json.Marshal(webhookPayload{
		ReminderID: due.ID,
		TelegramID: due.TelegramID,
		Text:       text,
	})
	if err != nil {
		return fmt.Errorf("Webhookペイロードのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, due.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Webhookの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &WebhookStatusError{StatusCode: resp.StatusCode}
	}

	return nil
}

// compile-time interface check
var _ Sink = (*WebhookSink)(nil)
