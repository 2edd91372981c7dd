package deliver

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/remindman/internal/metrics"
	"github.com/hitoshi/remindman/internal/model"
)

// ReminderDeliverer はリマインダー配送の実行インターフェース。
type ReminderDeliverer interface {
	// Deliver は指定リマインダーを配送し、結果を返す。
	Deliver(ctx context.Context, due *model.DueReminder) Outcome
}

// DueLister は配送対象リマインダーの取得インターフェース。
type DueLister interface {
	ListDueUndelivered(ctx context.Context) ([]*model.DueReminder, error)
}

// Poller は配送対象リマインダーのポーリングと並列制御を行う。
// 固定間隔のティッカーで配送対象を取得し、
// semaphoreパターンで最大並列数を制御しながら配送を実行する。
// 前回サイクルが実行中のティックはスキップされ、同一リマインダーに対して
// 2つのサイクルが同時に走ることはない。
type Poller struct {
	lister         DueLister
	deliverer      ReminderDeliverer
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int

	runMu sync.Mutex
}

// NewPoller はPollerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewPoller(
	lister DueLister,
	deliverer ReminderDeliverer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrency int,
) *Poller {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Poller{
		lister:         lister,
		deliverer:      deliverer,
		metrics:        collector,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は固定間隔のティッカーでポーラーを起動する。
// firstDelay経過後に初回サイクルを実行し、以降はinterval間隔で実行する。
// コンテキストがキャンセルされるまで実行を継続する。
// 実行中のサイクルはキャンセル後も完了まで走りきるため、
// 送信済みの通知が配送済みマークされないまま中断されることはない。
func (p *Poller) Start(ctx context.Context, interval, firstDelay time.Duration) {
	p.logger.Info("配送ポーラーを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("first_delay", firstDelay),
		slog.Int("max_concurrency", p.maxConcurrency),
	)

	// 初回実行までの遅延（起動直後のDB/API確立待ち）
	select {
	case <-ctx.Done():
		p.logger.Info("配送ポーラーを停止しました")
		return
	case <-time.After(firstDelay):
	}

	if err := p.RunOnce(ctx); err != nil {
		p.logger.Error("配送サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("配送ポーラーを停止しました")
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Error("配送サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は配送対象リマインダーを1回取得し、並列で配送を実行する。
// semaphoreパターンで最大並列数を制御する。
// 前回のサイクルが実行中の場合は何もせずスキップする（キューイングしない）。
// リマインダーごとの失敗は互いに独立しており、1件の失敗が他の配送を妨げない。
func (p *Poller) RunOnce(ctx context.Context) error {
	if !p.runMu.TryLock() {
		p.logger.Warn("前回の配送サイクルが実行中のためスキップします")
		return nil
	}
	defer p.runMu.Unlock()

	start := time.Now()

	due, err := p.lister.ListDueUndelivered(ctx)
	if err != nil {
		return err
	}

	p.metrics.RecordPollCycle(len(due))

	if len(due) == 0 {
		p.logger.Debug("配送対象のリマインダーはありません")
		return nil
	}

	p.logger.Info("配送サイクルを開始します",
		slog.Int("due_count", len(due)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, p.maxConcurrency)
	var wg sync.WaitGroup

	var acknowledged, sentOnly, failed atomic.Int64

	// シャットダウンのキャンセルは次ティックの停止のみに作用させ、
	// 送信開始済みの通知と配送済みマークは中断しない。
	// 各送信の上限はHTTPクライアントのタイムアウト。
	deliverCtx := context.WithoutCancel(ctx)

	for _, d := range due {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(r *model.DueReminder) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			switch p.deliverer.Deliver(deliverCtx, r) {
			case OutcomeAcknowledged:
				acknowledged.Add(1)
			case OutcomeSent:
				sentOnly.Add(1)
			case OutcomeError:
				failed.Add(1)
			}
		}(d)
	}

	wg.Wait()

	duration := time.Since(start)
	p.logger.Info("配送サイクルが完了しました",
		slog.Int("due_count", len(due)),
		slog.Int64("acknowledged", acknowledged.Load()),
		slog.Int64("sent_without_ack", sentOnly.Load()),
		slog.Int64("failed", failed.Load()),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
