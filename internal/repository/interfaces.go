// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/remindman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByTelegramID は指定Telegram IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// ToggleTimeFormat は時刻表示形式（24時間/12時間）を反転し、更新後のユーザーを返す。
	// 見つからない場合はnilを返す。
	ToggleTimeFormat(ctx context.Context, telegramID int64) (*model.User, error)

	// UpdateWebhookURL は通知先Webhook URLを更新する。空文字列で解除する。
	// ユーザーが存在した場合はtrueを返す。
	UpdateWebhookURL(ctx context.Context, telegramID int64, webhookURL string) (bool, error)
}

// ReminderRepository はリマインダーデータの永続化インターフェース。
type ReminderRepository interface {
	// Create はリマインダーを作成する。
	Create(ctx context.Context, reminder *model.Reminder) error

	// ListUndeliveredByUser は指定ユーザーの未配送リマインダーを登録順で取得する。
	ListUndeliveredByUser(ctx context.Context, userID string) ([]*model.Reminder, error)

	// DeleteByUserAndID は(ユーザーID, リマインダーID)でリマインダーを削除する。
	// 所有者スコープの削除であり、他ユーザーのIDを指定しても削除されない。
	// 削除された場合はtrueを返す。
	DeleteByUserAndID(ctx context.Context, userID, reminderID string) (bool, error)

	// MarkDelivered は配送済みフラグを立てる。冪等であり、
	// すでに配送済みの場合も成功として扱う。レコードが存在した場合はtrueを返す。
	MarkDelivered(ctx context.Context, reminderID string) (bool, error)

	// ListDueUndelivered はremind_atが現在時刻以前かつ未配送のリマインダーを
	// 所有ユーザーの配送先情報とともに全ユーザー横断で取得する。
	ListDueUndelivered(ctx context.Context) ([]*model.DueReminder, error)

	// DeleteDeliveredBefore は指定時刻より前に通知予定だった配送済みリマインダーを
	// 削除し、削除件数を返す。保持期間超過分のクリーンアップ用。
	DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
