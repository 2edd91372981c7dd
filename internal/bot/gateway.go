package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/remindman/internal/telegram"
)

// pollErrorBackoff は取得エラー後に次の取得まで待機する時間。
const pollErrorBackoff = 3 * time.Second

// UpdatesClient はゲートウェイが必要とする更新取得のインターフェース。
type UpdatesClient interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// MessageHandler は受信メッセージを処理するインターフェース。
type MessageHandler interface {
	HandleMessage(ctx context.Context, telegramID int64, name, text string)
}

// Gateway はTelegramからロングポーリングで更新を受信し、
// ユーザー単位のディスパッチャ経由でメッセージ処理へ引き渡す。
type Gateway struct {
	client      UpdatesClient
	dispatcher  *Dispatcher
	handler     MessageHandler
	logger      *slog.Logger
	pollTimeout time.Duration
}

// NewGateway はGatewayの新しいインスタンスを生成する。
func NewGateway(client UpdatesClient, dispatcher *Dispatcher, handler MessageHandler, pollTimeout time.Duration, logger *slog.Logger) *Gateway {
	return &Gateway{
		client:      client,
		dispatcher:  dispatcher,
		handler:     handler,
		logger:      logger,
		pollTimeout: pollTimeout,
	}
}

// Run は更新の受信ループを開始する。コンテキストがキャンセルされるまで実行を継続する。
// 取得エラーは一定時間待機してから再試行する。
func (g *Gateway) Run(ctx context.Context) {
	g.logger.Info("更新の受信を開始します",
		slog.String("poll_timeout", g.pollTimeout.String()),
	)

	var offset int64
	for {
		if ctx.Err() != nil {
			g.logger.Info("更新の受信を停止します")
			return
		}

		updates, err := g.client.GetUpdates(ctx, offset, g.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				g.logger.Info("更新の受信を停止します")
				return
			}
			g.logger.Error("更新の取得に失敗しました",
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
			case <-time.After(pollErrorBackoff):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			g.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate は1件の更新をディスパッチャへ引き渡す。
// テキストメッセージ以外の更新は無視する。
func (g *Gateway) handleUpdate(ctx context.Context, update telegram.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}

	telegramID := msg.Chat.ID
	name := ""
	if msg.From != nil {
		name = msg.From.FirstName
	}
	text := msg.Text

	g.dispatcher.Dispatch(telegramID, func() {
		g.handler.HandleMessage(ctx, telegramID, name, text)
	})
}
