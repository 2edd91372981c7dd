package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/remindman/internal/model"
	"github.com/hitoshi/remindman/internal/timefmt"
)

// UserService はエンジンが必要とするユーザーサービスのインターフェース。
type UserService interface {
	// Register はユーザーを登録する。Telegram IDに対して冪等。
	Register(ctx context.Context, telegramID int64, name string) (*model.User, error)
	// TogglePreference は時刻表示形式を反転し、切り替え後の値を返す。
	TogglePreference(ctx context.Context, telegramID int64) (bool, error)
}

// ReminderService はエンジンが必要とするリマインダーサービスのインターフェース。
type ReminderService interface {
	// Create はリマインダーを作成する。
	Create(ctx context.Context, telegramID int64, text, remindAtRaw string) (*model.Reminder, error)
	// List は未配送リマインダー一覧と時刻表示形式設定を返す。
	List(ctx context.Context, telegramID int64) ([]*model.Reminder, bool, error)
	// Delete は所有者スコープでリマインダーを削除する。
	Delete(ctx context.Context, telegramID int64, reminderID string) error
}

// Replier は対話の返信送信インターフェース。
// menuがnilでない場合はボタンメニューを添付する。
type Replier interface {
	Reply(ctx context.Context, telegramID int64, text string, menu Menu) error
}

// Engine はユーザーごとの対話状態機械を管理する。
// セッションはTelegram IDをキーに遅延生成され、フロー完了・キャンセル・
// アイドルタイムアウトで初期状態に戻る。
// 同一ユーザーのメッセージ順序はディスパッチャ側（internal/bot）が保証し、
// エンジンはセッション単位のロックで状態遷移の原子性を保証する。
type Engine struct {
	users     UserService
	reminders ReminderService
	replier   Replier
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewEngine はEngineの新しいインスタンスを生成する。
func NewEngine(users UserService, reminders ReminderService, replier Replier, logger *slog.Logger) *Engine {
	return &Engine{
		users:     users,
		reminders: reminders,
		replier:   replier,
		logger:    logger,
		sessions:  make(map[int64]*Session),
	}
}

// session は指定ユーザーのセッションを取得する。存在しなければ生成する。
func (e *Engine) session(telegramID int64) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[telegramID]
	if !ok {
		sess = &Session{state: StateIdle}
		e.sessions[telegramID] = sess
	}
	return sess
}

// lockSession は指定ユーザーのセッションをロック済みで返す。
// ロック取得待ちの間にジャニターがセッションを破棄した場合は、
// 破棄済みの実体に遷移を適用しないよう新しいセッションを引き直す。
func (e *Engine) lockSession(telegramID int64) *Session {
	for {
		sess := e.session(telegramID)
		sess.mu.Lock()
		if !sess.reaped {
			return sess
		}
		sess.mu.Unlock()
	}
}

// SessionState は指定ユーザーの現在の状態を返す。セッション未生成ならStateIdle。
// テストおよびデバッグ用。
func (e *Engine) SessionState(telegramID int64) State {
	e.mu.Lock()
	sess, ok := e.sessions[telegramID]
	e.mu.Unlock()
	if !ok {
		return StateIdle
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

// HandleMessage は1件の受信メッセージを現在の状態に従って処理する。
// 「/start」はどの状態からでも登録＋メインメニュー表示にリセットする。
// ストア呼び出しの失敗時はエラーメッセージを返信し、セッションは必ず
// Idleに戻る（非Idle状態で固まったまま残ることはない）。
func (e *Engine) HandleMessage(ctx context.Context, telegramID int64, name, text string) {
	sess := e.lockSession(telegramID)
	defer sess.mu.Unlock()

	sess.lastActivity = time.Now()

	if strings.TrimSpace(text) == "/start" {
		e.handleStart(ctx, telegramID, name, sess)
		return
	}

	switch sess.state {
	case StateIdle:
		e.handleIdle(ctx, telegramID, text, sess)
	case StateAwaitingReminderText:
		e.handleReminderText(ctx, telegramID, text, sess)
	case StateAwaitingReminderTime:
		e.handleReminderTime(ctx, telegramID, text, sess)
	case StateAwaitingDeletionTarget:
		e.handleDeletionTarget(ctx, telegramID, text, sess)
	case StateInSettingsMenu:
		e.handleSettings(ctx, telegramID, text, sess)
	}
}

// handleStart はユーザー登録と挨拶を行い、セッションを初期状態に戻す。
func (e *Engine) handleStart(ctx context.Context, telegramID int64, name string, sess *Session) {
	sess.reset()

	if _, err := e.users.Register(ctx, telegramID, name); err != nil {
		e.logger.Error("ユーザー登録に失敗しました",
			slog.Int64("telegram_id", telegramID),
			slog.String("error", err.Error()),
		)
		e.reply(ctx, telegramID, "⚠️ Registration failed. Please try again later.", nil)
		return
	}

	e.reply(ctx, telegramID, "Hello! I'm your organizer 📒", MainMenu())
}

// handleIdle はIdle状態のメッセージを処理する。
// 定義済みトリガー以外のテキストは何もしない（サイレント無視）。
func (e *Engine) handleIdle(ctx context.Context, telegramID int64, text string, sess *Session) {
	switch text {
	case TriggerNewReminder:
		sess.state = StateAwaitingReminderText
		e.reply(ctx, telegramID, "Enter the reminder text:", nil)

	case TriggerListReminders:
		e.sendReminderList(ctx, telegramID)

	case TriggerDeleteReminder:
		ids, shown := e.sendReminderList(ctx, telegramID)
		if !shown || len(ids) == 0 {
			return
		}
		sess.deletionTargets = ids
		sess.state = StateAwaitingDeletionTarget
		e.reply(ctx, telegramID, "Enter the number of the reminder you want to delete:", nil)

	case TriggerSettings:
		sess.state = StateInSettingsMenu
		e.reply(ctx, telegramID, "Settings:", SettingsMenu())
	}
}

// handleReminderText は本文入力を下書きに保存し、通知日時の入力へ進む。
func (e *Engine) handleReminderText(ctx context.Context, telegramID int64, text string, sess *Session) {
	sess.draftText = text
	sess.state = StateAwaitingReminderTime
	e.reply(ctx, telegramID, "When should I remind you? (format: 2025-04-30 14:30)", nil)
}

// handleReminderTime は通知日時入力を検証し、リマインダーを作成する。
// 形式不正は保存せずに再入力を促す（状態は維持）。
// その他のエラーはセッションをIdleに戻す。
func (e *Engine) handleReminderTime(ctx context.Context, telegramID int64, text string, sess *Session) {
	_, err := e.reminders.Create(ctx, telegramID, sess.draftText, text)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidRemindAt {
			e.reply(ctx, telegramID,
				"❌ Invalid date format. Please use: 2025-04-30 14:30", nil)
			return
		}

		e.logger.Error("リマインダーの作成に失敗しました",
			slog.Int64("telegram_id", telegramID),
			slog.String("error", err.Error()),
		)
		sess.reset()
		e.reply(ctx, telegramID, "⚠️ Error saving the reminder!", MainMenu())
		return
	}

	sess.reset()
	e.reply(ctx, telegramID, "✅ Reminder saved!", MainMenu())
}

// handleDeletionTarget は削除対象番号の入力を検証し、リマインダーを削除する。
// 番号として不正な入力は再入力を促し、状態も削除候補も維持する。
func (e *Engine) handleDeletionTarget(ctx context.Context, telegramID int64, text string, sess *Session) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(sess.deletionTargets) {
		e.reply(ctx, telegramID, "❌ Invalid number. Please enter a number from the list.", nil)
		return
	}

	reminderID := sess.deletionTargets[n-1]
	if err := e.reminders.Delete(ctx, telegramID, reminderID); err != nil {
		e.logger.Error("リマインダーの削除に失敗しました",
			slog.Int64("telegram_id", telegramID),
			slog.String("reminder_id", reminderID),
			slog.String("error", err.Error()),
		)
		sess.reset()
		e.reply(ctx, telegramID, "⚠️ Error deleting the reminder!", MainMenu())
		return
	}

	sess.reset()
	e.reply(ctx, telegramID, "✅ Reminder deleted!", MainMenu())
}

// handleSettings は設定メニュー内のメッセージを処理する。
func (e *Engine) handleSettings(ctx context.Context, telegramID int64, text string, sess *Session) {
	switch text {
	case TriggerToggleFormat:
		use24h, err := e.users.TogglePreference(ctx, telegramID)
		if err != nil {
			e.logger.Error("時刻表示形式の切り替えに失敗しました",
				slog.Int64("telegram_id", telegramID),
				slog.String("error", err.Error()),
			)
			sess.reset()
			e.reply(ctx, telegramID, "⚠️ Error changing time format!", MainMenu())
			return
		}

		format := "12-hour"
		if use24h {
			format = "24-hour"
		}
		e.reply(ctx, telegramID, fmt.Sprintf("✅ Time format changed to %s!", format), SettingsMenu())

	case TriggerBackToMain:
		sess.reset()
		e.reply(ctx, telegramID, "Main menu:", MainMenu())
	}
}

// sendReminderList は未配送リマインダーの番号付き一覧を送信する。
// 一覧表示順のリマインダーIDと、送信に成功したかどうかを返す。
// 各通知日時はユーザーの表示形式設定に従ってフォーマットされる。
func (e *Engine) sendReminderList(ctx context.Context, telegramID int64) ([]string, bool) {
	reminders, use24h, err := e.reminders.List(ctx, telegramID)
	if err != nil {
		e.logger.Error("リマインダー一覧の取得に失敗しました",
			slog.Int64("telegram_id", telegramID),
			slog.String("error", err.Error()),
		)
		e.reply(ctx, telegramID, "Error retrieving the list of reminders.", nil)
		return nil, false
	}

	if len(reminders) == 0 {
		e.reply(ctx, telegramID, "You have no active reminders.", nil)
		return nil, true
	}

	var b strings.Builder
	b.WriteString("Your reminders:\n")
	ids := make([]string, 0, len(reminders))
	for i, r := range reminders {
		at, err := timefmt.Format(r.RemindAt, use24h)
		if err != nil {
			at = r.RemindAt.String()
		}
		fmt.Fprintf(&b, "\n%d. %s (at %s)", i+1, r.Text, at)
		ids = append(ids, r.ID)
	}

	e.reply(ctx, telegramID, b.String(), nil)
	return ids, true
}

// reply は返信を送信する。送信失敗は対話を止めず、ログのみ記録する。
func (e *Engine) reply(ctx context.Context, telegramID int64, text string, menu Menu) {
	if err := e.replier.Reply(ctx, telegramID, text, menu); err != nil {
		e.logger.Error("返信の送信に失敗しました",
			slog.Int64("telegram_id", telegramID),
			slog.String("error", err.Error()),
		)
	}
}

// StartJanitor はアイドルセッションの回収ループを起動する。
// idleTimeoutを超えて操作のないセッションは入力途中のデータごと破棄される。
// コンテキストがキャンセルされるまで実行を継続する。
func (e *Engine) StartJanitor(ctx context.Context, idleTimeout time.Duration) {
	interval := idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reapIdleSessions(idleTimeout)
		}
	}
}

// reapIdleSessions はアイドルタイムアウトを超えたセッションを破棄する。
func (e *Engine) reapIdleSessions(idleTimeout time.Duration) {
	cutoff := time.Now().Add(-idleTimeout)

	e.mu.Lock()
	defer e.mu.Unlock()

	for telegramID, sess := range e.sessions {
		sess.mu.Lock()
		idle := sess.lastActivity.Before(cutoff)
		wasActive := sess.state != StateIdle
		if idle {
			sess.reset()
			sess.reaped = true
		}
		sess.mu.Unlock()

		if idle {
			delete(e.sessions, telegramID)
			if wasActive {
				e.logger.Info("アイドルセッションを破棄しました",
					slog.Int64("telegram_id", telegramID),
				)
			}
		}
	}
}
