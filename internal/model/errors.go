// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, reminder, user, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeReminderNotFound    = "REMINDER_NOT_FOUND"
	ErrCodeEmptyReminderText   = "EMPTY_REMINDER_TEXT"
	ErrCodeInvalidRemindAt     = "INVALID_REMIND_AT"
	ErrCodeInvalidDeleteTarget = "INVALID_DELETE_TARGET"
	ErrCodeInvalidWebhookURL   = "INVALID_WEBHOOK_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
)

// NewUserNotFoundError はユーザー未登録エラーを生成する。
func NewUserNotFoundError(telegramID int64) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %d", telegramID),
		Category: "user",
		Action:   "先に /start で登録してください。",
	}
}

// NewReminderNotFoundError はリマインダー未検出エラーを生成する。
// 他ユーザー所有のリマインダーIDを指定した場合も同じエラーになる（所有者スコープ）。
func NewReminderNotFoundError(reminderID string) *APIError {
	return &APIError{
		Code:     ErrCodeReminderNotFound,
		Message:  fmt.Sprintf("指定されたリマインダーが見つかりません: %s", reminderID),
		Category: "reminder",
		Action:   "リマインダー一覧を確認してください。",
	}
}

// NewEmptyReminderTextError はリマインダー本文が空のエラーを生成する。
func NewEmptyReminderTextError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyReminderText,
		Message:  "リマインダーの本文が空です。",
		Category: "validation",
		Action:   "リマインダーの内容を入力してください。",
	}
}

// NewInvalidRemindAtError は通知日時の形式不正エラーを生成する。
func NewInvalidRemindAtError(input string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRemindAt,
		Message:  fmt.Sprintf("通知日時の形式が不正です: %s", input),
		Category: "validation",
		Action:   "「2025-04-30 14:30」の形式で入力してください。",
	}
}

// NewInvalidDeleteTargetError は削除対象の指定不正エラーを生成する。
func NewInvalidDeleteTargetError(input string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDeleteTarget,
		Message:  fmt.Sprintf("削除対象の番号が不正です: %s", input),
		Category: "validation",
		Action:   "一覧に表示された番号を入力してください。",
	}
}

// NewInvalidWebhookURLError はWebhook URLの形式不正エラーを生成する。
func NewInvalidWebhookURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWebhookURL,
		Message:  fmt.Sprintf("Webhook URLが不正です: %s", reason),
		Category: "validation",
		Action:   "httpsのURLを指定してください。",
	}
}

// NewSSRFBlockedError はSSRF防止によりブロックされたエラーを生成する。
func NewSSRFBlockedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  fmt.Sprintf("このURLへの通知は許可されていません: %s", reason),
		Category: "validation",
		Action:   "外部向けのhttps URLを指定してください。",
	}
}
