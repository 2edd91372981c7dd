// Package deliver はリマインダーのバックグラウンド配送処理を提供する。
// ポーラー、配送プロトコル、送信エラー分類を含む。
package deliver

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/remindman/internal/metrics"
	"github.com/hitoshi/remindman/internal/model"
	"github.com/hitoshi/remindman/internal/notify"
)

// messagePrefix は通知メッセージの先頭に付く定型文。
const messagePrefix = "⏰ Reminder: "

// Outcome は1件のリマインダー配送の結果。
type Outcome int

const (
	// OutcomeError は送信に失敗した状態。deliveredはfalseのまま残り、
	// 次のポーリングサイクルで再試行される。
	OutcomeError Outcome = iota
	// OutcomeSent は送信には成功したが配送済みマークに失敗した状態。
	// deliveredはfalseのままのため、次サイクルで再送されうる
	// （重複配送を許容するウィンドウ。通知の取りこぼしよりも重複を選ぶ）。
	OutcomeSent
	// OutcomeAcknowledged は送信と配送済みマークの両方に成功した状態。
	OutcomeAcknowledged
)

// DeliveryMarker は配送済みマークのインターフェース。
// レコードが存在した場合はtrueを返す。
type DeliveryMarker interface {
	MarkDelivered(ctx context.Context, reminderID string) (bool, error)
}

// Deliverer は1件のリマインダーを送信し、配送済みマークまでを実行する。
// at-least-once配送: 送信失敗は次ティックで再試行され、
// マーク失敗時は再送を行わない（無限重複送信の防止を優先する）。
type Deliverer struct {
	marker  DeliveryMarker
	sink    notify.Sink
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewDeliverer はDelivererの新しいインスタンスを生成する。
func NewDeliverer(
	marker DeliveryMarker,
	sink notify.Sink,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Deliverer {
	return &Deliverer{
		marker:  marker,
		sink:    sink,
		metrics: collector,
		logger:  logger,
	}
}

// Deliver はリマインダー1件の配送プロトコルを実行する。
//  1. 通知シンクへ「⏰ Reminder: {本文}」を送信する。
//  2. 送信失敗がリトライ可能なら何もせず終了する（次ティックが再試行になる）。
//     恒久的失敗（ブロック等）は配送済みとして打ち切り、無限再送を防ぐ。
//  3. 送信成功後に配送済みマークを実行する。
//  4. マーク失敗時はログのみで再送しない。
func (d *Deliverer) Deliver(ctx context.Context, due *model.DueReminder) Outcome {
	start := time.Now()

	text := messagePrefix + due.Text
	if err := d.sink.Send(ctx, due, text); err != nil {
		if code := StatusCodeOf(err); code > 0 {
			d.metrics.RecordSendStatus(code)
		}

		if ClassifySendError(err) == SendResultStop {
			d.metrics.RecordDeliverFailure("permanent")
			d.logger.Warn("通知送信が恒久的に失敗したため配送を打ち切ります",
				slog.String("reminder_id", due.ID),
				slog.Int64("telegram_id", due.TelegramID),
				slog.String("error", err.Error()),
			)
			// 再送ループを防ぐため配送済みとして扱う
			if _, markErr := d.marker.MarkDelivered(ctx, due.ID); markErr != nil {
				d.logger.Error("打ち切りリマインダーの配送済みマークに失敗しました",
					slog.String("reminder_id", due.ID),
					slog.String("error", markErr.Error()),
				)
			}
			return OutcomeError
		}

		d.metrics.RecordDeliverFailure("transient")
		d.logger.Error("通知送信に失敗しました（次サイクルで再試行）",
			slog.String("reminder_id", due.ID),
			slog.Int64("telegram_id", due.TelegramID),
			slog.String("error", err.Error()),
		)
		return OutcomeError
	}

	d.metrics.RecordDeliverSuccess()
	d.metrics.RecordDeliverLatency(time.Since(start))

	found, err := d.marker.MarkDelivered(ctx, due.ID)
	if err != nil {
		// 送信済みだが未ACK: deliveredはfalseのままのため次サイクルで
		// 重複送信されうる。取りこぼしではなく重複側に倒す設計。
		d.metrics.RecordAckFailure()
		d.logger.Error("配送済みマークに失敗しました（重複配送の可能性あり）",
			slog.String("reminder_id", due.ID),
			slog.String("error", err.Error()),
		)
		return OutcomeSent
	}
	if !found {
		// 送信とマークの間にユーザーが削除したケース。再送は起こらない。
		d.logger.Warn("配送済みマーク時にリマインダーが存在しませんでした",
			slog.String("reminder_id", due.ID),
		)
	}

	return OutcomeAcknowledged
}
