// Package cleanup は配送済みリマインダーの自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過した配送済みリマインダーを日次バッチで削除する。
// 未配送のリマインダーは保持期間に関わらず削除しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DeliveredPurger は配送済みリマインダーの一括削除インターフェース。
type DeliveredPurger interface {
	// DeleteDeliveredBefore は指定時刻より前に通知予定だった
	// 配送済みリマインダーを削除し、削除件数を返す。
	DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した配送済みリマインダーの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	purger        DeliveredPurger
	logger        *slog.Logger
	RetentionDays int // 配送済みリマインダーの保持日数（デフォルト: 30）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は30日。
func NewCleanupJob(purger DeliveredPurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		purger:        purger,
		logger:        logger,
		RetentionDays: 30,
	}
}

// Run は保持期間を超過した配送済みリマインダーを削除する。
// remind_atがRetentionDays日前より古く、かつ配送済みのレコードが対象。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cutoff := time.Now().AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.purger.DeleteDeliveredBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("リマインダークリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("リマインダークリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("リマインダークリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
