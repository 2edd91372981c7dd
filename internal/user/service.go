// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/remindman/internal/model"
	"github.com/hitoshi/remindman/internal/repository"
	"github.com/hitoshi/remindman/internal/security"
)

// Service はユーザー管理のサービス層。
// 登録・表示形式切り替え・Webhook設定のビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	ssrfGuard security.SSRFGuardService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, ssrfGuard security.SSRFGuardService) *Service {
	return &Service{
		userRepo:  userRepo,
		ssrfGuard: ssrfGuard,
	}
}

// Register はユーザーを登録する。Telegram IDに対して冪等であり、
// すでに登録済みの場合は既存ユーザーをそのまま返す。
// 時刻表示形式のデフォルトは24時間表示。
func (s *Service) Register(ctx context.Context, telegramID int64, name string) (*model.User, error) {
	existing, err := s.userRepo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	user := &model.User{
		ID:              uuid.NewString(),
		TelegramID:      telegramID,
		Name:            name,
		Use24HourFormat: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時登録でUNIQUE制約に負けた場合は既存レコードを返す（冪等性の維持）
		if retry, findErr := s.userRepo.FindByTelegramID(ctx, telegramID); findErr == nil && retry != nil {
			return retry, nil
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました",
		slog.Int64("telegram_id", telegramID),
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// TogglePreference は時刻表示形式（24時間/12時間）を反転し、切り替え後の値を返す。
// 2回切り替えると元の値に戻る。
func (s *Service) TogglePreference(ctx context.Context, telegramID int64) (bool, error) {
	user, err := s.userRepo.ToggleTimeFormat(ctx, telegramID)
	if err != nil {
		return false, fmt.Errorf("時刻表示形式の切り替えに失敗しました: %w", err)
	}
	if user == nil {
		return false, model.NewUserNotFoundError(telegramID)
	}

	slog.Info("時刻表示形式を切り替えました",
		slog.Int64("telegram_id", telegramID),
		slog.Bool("use_24_hour_format", user.Use24HourFormat),
	)

	return user.Use24HourFormat, nil
}

// SetWebhookURL は通知先Webhook URLを設定する。空文字列で解除する。
// 設定時はSSRF防止の事前検証を行い、内部ネットワーク宛のURLを拒否する。
func (s *Service) SetWebhookURL(ctx context.Context, telegramID int64, rawURL string) error {
	if rawURL != "" {
		if err := s.ssrfGuard.ValidateURL(rawURL); err != nil {
			return model.NewSSRFBlockedError(err.Error())
		}
	}

	found, err := s.userRepo.UpdateWebhookURL(ctx, telegramID, rawURL)
	if err != nil {
		return fmt.Errorf("Webhook URLの更新に失敗しました: %w", err)
	}
	if !found {
		return model.NewUserNotFoundError(telegramID)
	}

	return nil
}
