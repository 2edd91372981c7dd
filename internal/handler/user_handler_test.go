package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/remindman/internal/middleware"
	"github.com/hitoshi/remindman/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// newTestRateLimiter はテストで制限に当たらない緩いリミッターを返す。
func newTestRateLimiter() *middleware.RateLimiter {
	cfg := middleware.DefaultRateLimiterConfig()
	cfg.CleanupInterval = time.Hour
	var buf bytes.Buffer
	return middleware.NewRateLimiter(cfg, newTestLogger(&buf))
}

// --- 登録 ---

func TestRegister_Success(t *testing.T) {
	var gotID int64
	var gotName string
	users := &mockUserService{
		registerFunc: func(ctx context.Context, telegramID int64, name string) (*model.User, error) {
			gotID = telegramID
			gotName = name
			return &model.User{ID: "u1", TelegramID: telegramID, Name: name, Use24HourFormat: true}, nil
		},
	}
	h := NewUserHandler(users)

	body := `{"telegram_id": 100, "name": "Alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if gotID != 100 || gotName != "Alice" {
		t.Errorf("Register(%d, %q) が呼ばれた", gotID, gotName)
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if !resp.Use24HourFormat {
		t.Error("デフォルトは24時間表示であるべき")
	}
}

func TestRegister_MissingTelegramID(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	body := `{"name": "Alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader("{invalid"))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- 時刻表示形式の切り替え ---

func TestRouter_ToggleTimeFormat(t *testing.T) {
	var gotID int64
	users := &mockUserService{
		togglePreferenceFunc: func(ctx context.Context, telegramID int64) (bool, error) {
			gotID = telegramID
			return false, nil
		},
	}
	router := newTestRouter(users, &mockReminderService{})

	req := httptest.NewRequest(http.MethodPost, "/api/users/100/toggle-time-format", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotID != 100 {
		t.Errorf("TogglePreference(%d) が呼ばれた", gotID)
	}

	var resp toggleFormatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.Use24HourFormat {
		t.Error("切り替え後の値を返すべき")
	}
}

func TestRouter_ToggleTimeFormat_UnknownUser(t *testing.T) {
	users := &mockUserService{
		togglePreferenceFunc: func(ctx context.Context, telegramID int64) (bool, error) {
			return false, model.NewUserNotFoundError(telegramID)
		},
	}
	router := newTestRouter(users, &mockReminderService{})

	req := httptest.NewRequest(http.MethodPost, "/api/users/999/toggle-time-format", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// --- Webhook設定 ---

func TestRouter_SetWebhook(t *testing.T) {
	var gotURL string
	users := &mockUserService{
		setWebhookURLFunc: func(ctx context.Context, telegramID int64, rawURL string) error {
			gotURL = rawURL
			return nil
		},
	}
	router := newTestRouter(users, &mockReminderService{})

	body := `{"webhook_url": "https://example.com/hook"}`
	req := httptest.NewRequest(http.MethodPut, "/api/users/100/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if gotURL != "https://example.com/hook" {
		t.Errorf("SetWebhookURL の URL = %q", gotURL)
	}
}

func TestRouter_SetWebhook_SSRFBlocked(t *testing.T) {
	users := &mockUserService{
		setWebhookURLFunc: func(ctx context.Context, telegramID int64, rawURL string) error {
			return model.NewSSRFBlockedError("ブロック対象のIPアドレスです")
		},
	}
	router := newTestRouter(users, &mockReminderService{})

	body := `{"webhook_url": "https://169.254.169.254/"}`
	req := httptest.NewRequest(http.MethodPut, "/api/users/100/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
