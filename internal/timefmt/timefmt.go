// Package timefmt は通知日時の表示フォーマットとパースを提供する。
// 状態を持たない純粋関数のみで構成される。
package timefmt

import (
	"errors"
	"strings"
	"time"
)

const (
	// Layout24 は24時間表示のレイアウト（例: 2025-04-30 14:30）。
	// 通知日時の入力形式としても使用する。
	Layout24 = "2006-01-02 15:04"
	// Layout12 は12時間表示のレイアウト（例: 2025-04-30 02:30 PM）。
	Layout12 = "2006-01-02 03:04 PM"
)

// ErrInvalidInstant はゼロ値など表示不能な日時に対するエラー。
var ErrInvalidInstant = errors.New("timefmt: invalid instant")

// Format は日時をユーザーの表示形式設定に従ってフォーマットする。
// use24hがtrueなら「YYYY-MM-DD HH:MM」、falseなら「YYYY-MM-DD hh:MM AM/PM」。
func Format(instant time.Time, use24h bool) (string, error) {
	if instant.IsZero() {
		return "", ErrInvalidInstant
	}
	if use24h {
		return instant.Format(Layout24), nil
	}
	return instant.Format(Layout12), nil
}

// ParseDueInstant はユーザー入力のテキストを通知日時としてパースする。
// 受け付ける形式はLayout24（例: 2025-04-30 14:30）のみ。
// 形式不正の場合はエラーを返し、呼び出し側が再入力を促す。
func ParseDueInstant(text string) (time.Time, error) {
	return time.ParseInLocation(Layout24, strings.TrimSpace(text), time.Local)
}
