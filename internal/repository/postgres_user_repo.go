package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/remindman/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByTelegramID は指定Telegram IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, name, use_24_hour_format, webhook_url, created_at, updated_at
		 FROM users WHERE telegram_id = $1`,
		telegramID,
	).Scan(&user.ID, &user.TelegramID, &user.Name, &user.Use24HourFormat,
		&user.WebhookURL, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by telegram ID: %w", err)
	}

	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, telegram_id, name, use_24_hour_format, webhook_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.TelegramID, user.Name, user.Use24HourFormat,
		user.WebhookURL, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// ToggleTimeFormat は時刻表示形式を反転し、更新後のユーザーを返す。見つからない場合はnilを返す。
func (r *PostgresUserRepo) ToggleTimeFormat(ctx context.Context, telegramID int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE users SET use_24_hour_format = NOT use_24_hour_format, updated_at = now()
		 WHERE telegram_id = $1
		 RETURNING id, telegram_id, name, use_24_hour_format, webhook_url, created_at, updated_at`,
		telegramID,
	).Scan(&user.ID, &user.TelegramID, &user.Name, &user.Use24HourFormat,
		&user.WebhookURL, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle time format: %w", err)
	}

	return user, nil
}

// UpdateWebhookURL は通知先Webhook URLを更新する。ユーザーが存在した場合はtrueを返す。
func (r *PostgresUserRepo) UpdateWebhookURL(ctx context.Context, telegramID int64, webhookURL string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET webhook_url = $2, updated_at = now() WHERE telegram_id = $1`,
		telegramID, webhookURL,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update webhook URL: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
