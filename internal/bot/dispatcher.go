package bot

import (
	"log/slog"
	"sync"
	"time"
)

// defaultQueueSize はユーザーごとの処理待ちキューの容量。
const defaultQueueSize = 16

// queueIdleTimeout は処理待ちが空のままワーカーを維持する時間。
const queueIdleTimeout = time.Minute

// Dispatcher は受信メッセージの処理をユーザー単位で直列化する。
// 同一ユーザーのメッセージは受信順に1件ずつ処理され、
// 異なるユーザーの処理は並行に実行される。
// アイドルになったユーザーのワーカーは自動的に回収される。
type Dispatcher struct {
	logger *slog.Logger

	mu     sync.Mutex
	queues map[int64]*userQueue
	done   chan struct{}
	wg     sync.WaitGroup
}

// userQueue は1ユーザー分の処理待ちキュー。
type userQueue struct {
	ch chan func()
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		queues: make(map[int64]*userQueue),
		done:   make(chan struct{}),
	}
}

// Dispatch は処理を指定ユーザーのキューへ追加する。
// キューが満杯の場合は処理を破棄して警告ログを記録する
// （同一ユーザーからの連打で全体が詰まるのを防ぐ）。
func (d *Dispatcher) Dispatch(telegramID int64, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.done:
		return
	default:
	}

	q, ok := d.queues[telegramID]
	if !ok {
		q = &userQueue{ch: make(chan func(), defaultQueueSize)}
		d.queues[telegramID] = q
		d.wg.Add(1)
		go d.run(telegramID, q)
	}

	select {
	case q.ch <- fn:
	default:
		d.logger.Warn("処理待ちキューが満杯のためメッセージを破棄します",
			slog.Int64("telegram_id", telegramID),
		)
	}
}

// run は1ユーザー分のワーカーループ。
// アイドルタイムアウトを超えて処理がなければキューを破棄して終了する。
func (d *Dispatcher) run(telegramID int64, q *userQueue) {
	defer d.wg.Done()

	idle := time.NewTimer(queueIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case fn := <-q.ch:
			fn()
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(queueIdleTimeout)

		case <-idle.C:
			d.mu.Lock()
			if len(q.ch) == 0 {
				delete(d.queues, telegramID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(queueIdleTimeout)

		case <-d.done:
			// 停止時は受付済みの処理を消化してから終了する
			for {
				select {
				case fn := <-q.ch:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Stop は新規受付を止め、受付済みの処理が完了するまで待機する。
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	select {
	case <-d.done:
		d.mu.Unlock()
		return
	default:
		close(d.done)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
