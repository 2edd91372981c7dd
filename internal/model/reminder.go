package model

import "time"

// Reminder は1件のリマインダーを表す。
// Deliveredはfalse→trueに一度だけ遷移し、決して戻らない。
// 配送はフラグを立てるだけでレコードを削除しない（履歴として残る）。
type Reminder struct {
	ID        string
	UserID    string
	Text      string
	RemindAt  time.Time
	Delivered bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DueReminder は配送対象のリマインダーと所有ユーザーの配送先情報をまとめたもの。
// ポーラーが1クエリで取得し、配送プロトコルに渡す。
type DueReminder struct {
	ID         string
	Text       string
	RemindAt   time.Time
	TelegramID int64
	UserName   string
	WebhookURL string
}
