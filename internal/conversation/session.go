// Package conversation はユーザーごとの対話状態機械を提供する。
// 複数ステップの入力フロー（リマインダー作成・削除・設定変更）を
// ユーザー単位で独立に管理する。
package conversation

import (
	"sync"
	"time"
)

// State は対話セッションの状態。
type State int

const (
	// StateIdle は初期状態。メインメニューのトリガーのみを受け付ける。
	StateIdle State = iota
	// StateAwaitingReminderText はリマインダー本文の入力待ち。
	StateAwaitingReminderText
	// StateAwaitingReminderTime は通知日時の入力待ち。
	StateAwaitingReminderTime
	// StateAwaitingDeletionTarget は削除対象番号の入力待ち。
	StateAwaitingDeletionTarget
	// StateInSettingsMenu は設定メニュー内。
	StateInSettingsMenu
)

// Session は1ユーザー分の対話状態と入力途中のデータを保持する。
// Telegram IDをキーとしてEngineが管理し、ユーザー間で共有されることはない。
// 旧実装はプロセス全体で1つの作業バッファを共有しており、複数ユーザーの
// 同時操作で下書きが混線していた。本実装はユーザーごとのセッションで分離する。
type Session struct {
	mu sync.Mutex

	state State

	// draftText はリマインダー作成フローで入力済みの本文。
	draftText string

	// deletionTargets は削除フロー開始時に表示した一覧の順のリマインダーID。
	// ユーザーは1始まりの番号で削除対象を指定する。
	deletionTargets []string

	// lastActivity はアイドルセッション回収の判定に使う最終操作時刻。
	lastActivity time.Time

	// reaped はジャニターがこのセッションをマップから破棄済みであることを示す。
	// ロック取得待ちの間に破棄されたセッションへ状態遷移を適用しないための印。
	reaped bool
}

// reset はセッションを初期状態に戻し、入力途中のデータを破棄する。
// 呼び出し側がs.muを保持していること。
func (s *Session) reset() {
	s.state = StateIdle
	s.draftText = ""
	s.deletionTargets = nil
}
