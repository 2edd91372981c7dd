// Package model はドメインモデルを定義する。
package model

import "time"

// User はボットの利用ユーザーを表す。
// TelegramIDが外部に対する安定識別子であり、初回コンタクト時に登録される。
type User struct {
	ID              string
	TelegramID      int64
	Name            string
	Use24HourFormat bool
	// WebhookURL が設定されている場合、通知はTelegramではなく
	// このURLへのHTTP POSTで配送される。未設定なら空文字列。
	WebhookURL string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
