package bot

import (
	"context"

	"github.com/hitoshi/remindman/internal/conversation"
	"github.com/hitoshi/remindman/internal/telegram"
)

// MessageSender は返信送信に使うTelegramクライアントのインターフェース。
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.ReplyKeyboard) error
}

// Replier は対話エンジンの返信をTelegramのsendMessageへ変換する。
type Replier struct {
	sender MessageSender
}

// NewReplier はReplierの新しいインスタンスを生成する。
func NewReplier(sender MessageSender) *Replier {
	return &Replier{sender: sender}
}

// Reply は返信メッセージを送信する。
// menuがnilでない場合は返信用キーボードとして添付する。
func (r *Replier) Reply(ctx context.Context, telegramID int64, text string, menu conversation.Menu) error {
	var keyboard *telegram.ReplyKeyboard
	if menu != nil {
		keyboard = &telegram.ReplyKeyboard{Rows: menu}
	}
	return r.sender.SendMessage(ctx, telegramID, text, keyboard)
}
