package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecoveryMiddleware_RecoversFromPanic(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	handler := NewRecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("something broke")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/reminders/due", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("500が返されるべきですが: %d", rec.Code)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗しました: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("エラーコードが異なります: %s", body.Code)
	}

	logged := logBuf.String()
	if !strings.Contains(logged, "panic recovered") {
		t.Error("panicがログに記録されるべき")
	}
	if !strings.Contains(logged, "something broke") {
		t.Error("panicの内容がログに記録されるべき")
	}
}

func TestRecoveryMiddleware_PassesThroughNormally(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	handler := NewRecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("ハンドラーのステータスがそのまま返されるべきですが: %d", rec.Code)
	}
	if logBuf.Len() != 0 {
		t.Errorf("正常時はログが出力されないべきですが: %s", logBuf.String())
	}
}
