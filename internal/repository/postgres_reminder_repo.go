package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/remindman/internal/model"
)

// PostgresReminderRepo はPostgreSQLを使用したリマインダーリポジトリ。
type PostgresReminderRepo struct {
	db *sql.DB
}

// NewPostgresReminderRepo はPostgresReminderRepoを生成する。
func NewPostgresReminderRepo(db *sql.DB) *PostgresReminderRepo {
	return &PostgresReminderRepo{db: db}
}

// Create はリマインダーを作成する。
func (r *PostgresReminderRepo) Create(ctx context.Context, reminder *model.Reminder) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reminders (id, user_id, text, remind_at, delivered, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reminder.ID, reminder.UserID, reminder.Text, reminder.RemindAt,
		reminder.Delivered, reminder.CreatedAt, reminder.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reminder: %w", err)
	}

	return nil
}

// ListUndeliveredByUser は指定ユーザーの未配送リマインダーを登録順で取得する。
func (r *PostgresReminderRepo) ListUndeliveredByUser(ctx context.Context, userID string) ([]*model.Reminder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, text, remind_at, delivered, created_at, updated_at
		 FROM reminders
		 WHERE user_id = $1 AND delivered = FALSE
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list undelivered reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*model.Reminder
	for rows.Next() {
		reminder := &model.Reminder{}
		if err := rows.Scan(
			&reminder.ID, &reminder.UserID, &reminder.Text, &reminder.RemindAt,
			&reminder.Delivered, &reminder.CreatedAt, &reminder.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminders: %w", err)
	}

	return reminders, nil
}

// DeleteByUserAndID は(ユーザーID, リマインダーID)でリマインダーを削除する。
// 削除された場合はtrueを返す。他ユーザー所有のIDでは削除されずfalseを返す。
func (r *PostgresReminderRepo) DeleteByUserAndID(ctx context.Context, userID, reminderID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE id = $1 AND user_id = $2`,
		reminderID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete reminder: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// MarkDelivered は配送済みフラグを立てる。冪等。レコードが存在した場合はtrueを返す。
// deliveredはtrueに遷移するのみで、falseへ戻す操作は存在しない。
func (r *PostgresReminderRepo) MarkDelivered(ctx context.Context, reminderID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET delivered = TRUE, updated_at = now() WHERE id = $1`,
		reminderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder delivered: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListDueUndelivered は配送対象（remind_at <= now() かつ未配送）のリマインダーを
// 所有ユーザーの配送先情報とともに全ユーザー横断で取得する。
// FOR UPDATE SKIP LOCKEDにより、複数ワーカーが同一リマインダーを同時に
// 取得することを防ぐ。
func (r *PostgresReminderRepo) ListDueUndelivered(ctx context.Context) ([]*model.DueReminder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT rm.id, rm.text, rm.remind_at, u.telegram_id, u.name, u.webhook_url
		 FROM reminders rm
		 INNER JOIN users u ON rm.user_id = u.id
		 WHERE rm.remind_at <= now()
		   AND rm.delivered = FALSE
		 ORDER BY rm.remind_at ASC
		 FOR UPDATE OF rm SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	defer rows.Close()

	var due []*model.DueReminder
	for rows.Next() {
		d := &model.DueReminder{}
		if err := rows.Scan(
			&d.ID, &d.Text, &d.RemindAt, &d.TelegramID, &d.UserName, &d.WebhookURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan due reminder: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due reminders: %w", err)
	}

	return due, nil
}

// DeleteDeliveredBefore は指定時刻より前に通知予定だった配送済みリマインダーを削除する。
func (r *PostgresReminderRepo) DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE delivered = TRUE AND remind_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete delivered reminders: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// compile-time interface check
var _ ReminderRepository = (*PostgresReminderRepo)(nil)
