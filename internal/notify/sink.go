// Package notify はリマインダー通知の送信先（シンク）を提供する。
// Telegram送信とユーザー設定のWebhook送信の2実装を持ち、
// RouterSinkがユーザーごとに送信先を選択する。
package notify

import (
	"context"

	"github.com/hitoshi/remindman/internal/model"
)

// Sink は通知メッセージの送信インターフェース。
// 送信は一時的に失敗しうる。呼び出し元がリトライ可否を分類する。
type Sink interface {
	// Send は通知テキストをリマインダーの所有ユーザーへ送信する。
	Send(ctx context.Context, due *model.DueReminder, text string) error
}

// HTTPStatusCarrier はHTTPステータスコードを持つ送信エラーのインターフェース。
// 配送プロトコルがリトライ可否の分類に使用する。
type HTTPStatusCarrier interface {
	HTTPStatus() int
}

// RouterSink はユーザーの設定に応じて送信先シンクを選択する。
// Webhook URLが設定されていればWebhook、なければTelegramへ送信する。
type RouterSink struct {
	telegram Sink
	webhook  Sink
}

// NewRouterSink はRouterSinkを生成する。
func NewRouterSink(telegram, webhook Sink) *RouterSink {
	return &RouterSink{
		telegram: telegram,
		webhook:  webhook,
	}
}

// Send は通知をユーザーごとの設定に従ったシンクへ送信する。
func (s *RouterSink) Send(ctx context.Context, due *model.DueReminder, text string) error {
	if due.WebhookURL != "" {
		return s.webhook.Send(ctx, due, text)
	}
	return s.telegram.Send(ctx, due, text)
}

// compile-time interface check
var _ Sink = (*RouterSink)(nil)
