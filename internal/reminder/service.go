// Package reminder はリマインダー管理のドメインロジックを提供する。
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/remindman/internal/model"
	"github.com/hitoshi/remindman/internal/repository"
	"github.com/hitoshi/remindman/internal/security"
	"github.com/hitoshi/remindman/internal/timefmt"
)

// Service はリマインダー管理のサービス層。
// 作成・一覧・削除・配送済みマークのビジネスロジックを提供する。
type Service struct {
	reminderRepo repository.ReminderRepository
	userRepo     repository.UserRepository
	sanitizer    security.TextSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	reminderRepo repository.ReminderRepository,
	userRepo repository.UserRepository,
	sanitizer security.TextSanitizerService,
) *Service {
	return &Service{
		reminderRepo: reminderRepo,
		userRepo:     userRepo,
		sanitizer:    sanitizer,
	}
}

// Create はリマインダーを作成する。
// 本文はHTMLタグを除去したうえで空でないことを検証し、
// 通知日時は「2025-04-30 14:30」形式のみを受け付ける。
// 形式不正の入力は保存せずにバリデーションエラーを返す。
func (s *Service) Create(ctx context.Context, telegramID int64, text, remindAtRaw string) (*model.Reminder, error) {
	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(telegramID)
	}

	clean := s.sanitizer.Sanitize(text)
	if clean == "" {
		return nil, model.NewEmptyReminderTextError()
	}

	remindAt, err := timefmt.ParseDueInstant(remindAtRaw)
	if err != nil {
		return nil, model.NewInvalidRemindAtError(remindAtRaw)
	}

	now := time.Now()
	reminder := &model.Reminder{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Text:      clean,
		RemindAt:  remindAt,
		Delivered: false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.reminderRepo.Create(ctx, reminder); err != nil {
		return nil, fmt.Errorf("リマインダーの作成に失敗しました: %w", err)
	}

	slog.Info("リマインダーを作成しました",
		slog.String("reminder_id", reminder.ID),
		slog.Int64("telegram_id", telegramID),
		slog.Time("remind_at", remindAt),
	)

	return reminder, nil
}

// List は指定ユーザーの未配送リマインダーを登録順で返す。
// あわせて所有ユーザーの時刻表示形式設定（24時間表示かどうか）を返す。
func (s *Service) List(ctx context.Context, telegramID int64) ([]*model.Reminder, bool, error) {
	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, false, model.NewUserNotFoundError(telegramID)
	}

	reminders, err := s.reminderRepo.ListUndeliveredByUser(ctx, user.ID)
	if err != nil {
		return nil, false, fmt.Errorf("リマインダー一覧の取得に失敗しました: %w", err)
	}

	return reminders, user.Use24HourFormat, nil
}

// Delete は指定ユーザー所有のリマインダーを削除する。
// 削除は所有者スコープであり、他ユーザーのリマインダーIDを指定しても
// 削除されず未検出エラーになる。
func (s *Service) Delete(ctx context.Context, telegramID int64, reminderID string) error {
	user, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError(telegramID)
	}

	// UUID形式でないIDはDBに問い合わせるまでもなく未検出として扱う
	if _, err := uuid.Parse(reminderID); err != nil {
		return model.NewReminderNotFoundError(reminderID)
	}

	deleted, err := s.reminderRepo.DeleteByUserAndID(ctx, user.ID, reminderID)
	if err != nil {
		return fmt.Errorf("リマインダーの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewReminderNotFoundError(reminderID)
	}

	slog.Info("リマインダーを削除しました",
		slog.String("reminder_id", reminderID),
		slog.Int64("telegram_id", telegramID),
	)

	return nil
}

// MarkDelivered はリマインダーに配送済みフラグを立てる。
// 冪等であり、すでに配送済みのリマインダーへの再実行はエラーにならない。
func (s *Service) MarkDelivered(ctx context.Context, reminderID string) error {
	if _, err := uuid.Parse(reminderID); err != nil {
		return model.NewReminderNotFoundError(reminderID)
	}

	found, err := s.reminderRepo.MarkDelivered(ctx, reminderID)
	if err != nil {
		return fmt.Errorf("配送済みマークに失敗しました: %w", err)
	}
	if !found {
		return model.NewReminderNotFoundError(reminderID)
	}

	return nil
}

// ListDue は配送対象（通知日時到来かつ未配送）のリマインダーを全ユーザー横断で返す。
func (s *Service) ListDue(ctx context.Context) ([]*model.DueReminder, error) {
	due, err := s.reminderRepo.ListDueUndelivered(ctx)
	if err != nil {
		return nil, fmt.Errorf("配送対象リマインダーの取得に失敗しました: %w", err)
	}
	return due, nil
}
