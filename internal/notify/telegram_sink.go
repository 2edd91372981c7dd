package notify

import (
	"context"

	"github.com/hitoshi/remindman/internal/model"
	"github.com/hitoshi/remindman/internal/telegram"
)

// MessageSender はTelegramへのメッセージ送信インターフェース。
// テスト時にモックに差し替え可能。
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.ReplyKeyboard) error
}

// TelegramSink はTelegram Bot API経由で通知を送信するシンク。
type TelegramSink struct {
	sender MessageSender
}

// NewTelegramSink はTelegramSinkを生成する。
func NewTelegramSink(sender MessageSender) *TelegramSink {
	return &TelegramSink{sender: sender}
}

// Send は通知テキストを所有ユーザーのTelegramチャットへ送信する。
// メニューは添付しない（通知はプレーンメッセージ）。
func (s *TelegramSink) Send(ctx context.Context, due *model.DueReminder, text string) error {
	return s.sender.SendMessage(ctx, due.TelegramID, text, nil)
}

// compile-time interface check
var _ Sink = (*TelegramSink)(nil)
