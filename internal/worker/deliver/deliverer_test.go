package deliver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/hitoshi/remindman/internal/metrics"
	"github.com/hitoshi/remindman/internal/model"
	"github.com/hitoshi/remindman/internal/telegram"
)

// --- モック定義 ---

// mockSink はnotify.Sinkのテスト用モック。
type mockSink struct {
	mu       sync.Mutex
	sendFunc func(ctx context.Context, due *model.DueReminder, text string) error
	sent     []string
}

func (m *mockSink) Send(ctx context.Context, due *model.DueReminder, text string) error {
	m.mu.Lock()
	m.sent = append(m.sent, text)
	m.mu.Unlock()
	if m.sendFunc != nil {
		return m.sendFunc(ctx, due, text)
	}
	return nil
}

// mockMarker はDeliveryMarkerのテスト用モック。
type mockMarker struct {
	mu       sync.Mutex
	markFunc func(ctx context.Context, reminderID string) (bool, error)
	marked   []string
}

func (m *mockMarker) MarkDelivered(ctx context.Context, reminderID string) (bool, error) {
	m.mu.Lock()
	m.marked = append(m.marked, reminderID)
	m.mu.Unlock()
	if m.markFunc != nil {
		return m.markFunc(ctx, reminderID)
	}
	return true, nil
}

func (m *mockMarker) markedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marked)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func testDue() *model.DueReminder {
	return &model.DueReminder{
		ID:         "r1",
		Text:       "buy milk",
		TelegramID: 100,
		UserName:   "Alice",
	}
}

// --- 配送プロトコル ---

func TestDeliver_SuccessMarksDelivered(t *testing.T) {
	var buf bytes.Buffer
	sink := &mockSink{}
	marker := &mockMarker{}
	d := NewDeliverer(marker, sink, metrics.Noop{}, newTestLogger(&buf))

	outcome := d.Deliver(context.Background(), testDue())

	if outcome != OutcomeAcknowledged {
		t.Errorf("Outcome = %v, want OutcomeAcknowledged", outcome)
	}
	if len(sink.sent) != 1 || sink.sent[0] != "⏰ Reminder: buy milk" {
		t.Errorf("送信メッセージ = %v", sink.sent)
	}
	if marker.markedCount() != 1 {
		t.Errorf("MarkDelivered は1回呼ばれるべき: got %d", marker.markedCount())
	}
}

func TestDeliver_TransientFailureLeavesUndelivered(t *testing.T) {
	var buf bytes.Buffer
	sink := &mockSink{
		sendFunc: func(ctx context.Context, due *model.DueReminder, text string) error {
			return errors.New("connection refused")
		},
	}
	marker := &mockMarker{}
	d := NewDeliverer(marker, sink, metrics.Noop{}, newTestLogger(&buf))

	outcome := d.Deliver(context.Background(), testDue())

	if outcome != OutcomeError {
		t.Errorf("Outcome = %v, want OutcomeError", outcome)
	}
	if marker.markedCount() != 0 {
		t.Errorf("送信失敗時は配送済みマークしないべき: %d回マークされた", marker.markedCount())
	}
}

func TestDeliver_RateLimitedLeavesUndelivered(t *testing.T) {
	var buf bytes.Buffer
	sink := &mockSink{
		sendFunc: func(ctx context.Context, due *model.DueReminder, text string) error {
			return &telegram.StatusError{StatusCode: 429, Description: "Too Many Requests"}
		},
	}
	marker := &mockMarker{}
	d := NewDeliverer(marker, sink, metrics.Noop{}, newTestLogger(&buf))

	if got := d.Deliver(context.Background(), testDue()); got != OutcomeError {
		t.Errorf("Outcome = %v, want OutcomeError", got)
	}
	if marker.markedCount() != 0 {
		t.Errorf("429は次サイクルで再試行すべき: %d回マークされた", marker.markedCount())
	}
}

func TestDeliver_PermanentFailureStopsRetryLoop(t *testing.T) {
	// ボットブロック（403）は再送しても成功しないため配送済みとして打ち切る
	var buf bytes.Buffer
	sink := &mockSink{
		sendFunc: func(ctx context.Context, due *model.DueReminder, text string) error {
			return &telegram.StatusError{StatusCode: 403, Description: "bot was blocked by the user"}
		},
	}
	marker := &mockMarker{}
	d := NewDeliverer(marker, sink, metrics.Noop{}, newTestLogger(&buf))

	outcome := d.Deliver(context.Background(), testDue())

	if outcome != OutcomeError {
		t.Errorf("Outcome = %v, want OutcomeError", outcome)
	}
	if marker.markedCount() != 1 {
		t.Errorf("恒久的失敗は配送済みマークして打ち切るべき: %d回マークされた", marker.markedCount())
	}
}

func TestDeliver_AckFailureReturnsSent(t *testing.T) {
	// 送信成功後のマーク失敗: 重複配送ウィンドウとして許容し、再送はしない
	var buf bytes.Buffer
	sink := &mockSink{}
	marker := &mockMarker{
		markFunc: func(ctx context.Context, reminderID string) (bool, error) {
			return false, errors.New("db down")
		},
	}
	d := NewDeliverer(marker, sink, metrics.Noop{}, newTestLogger(&buf))

	outcome := d.Deliver(context.Background(), testDue())

	if outcome != OutcomeSent {
		t.Errorf("Outcome = %v, want OutcomeSent", outcome)
	}
	if len(sink.sent) != 1 {
		t.Errorf("送信は1回だけ行われるべき: got %d", len(sink.sent))
	}
}

func TestDeliver_MarkNotFoundStillAcknowledged(t *testing.T) {
	// 送信とマークの間に削除されたケース。エラーにはしない。
	var buf bytes.Buffer
	sink := &mockSink{}
	marker := &mockMarker{
		markFunc: func(ctx context.Context, reminderID string) (bool, error) {
			return false, nil
		},
	}
	d := NewDeliverer(marker, sink, metrics.Noop{}, newTestLogger(&buf))

	if got := d.Deliver(context.Background(), testDue()); got != OutcomeAcknowledged {
		t.Errorf("Outcome = %v, want OutcomeAcknowledged", got)
	}
}
