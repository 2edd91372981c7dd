package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// logEntry はテストで検証するログフィールドの部分集合。
type logEntry struct {
	Level  string `json:"level"`
	Msg    string `json:"msg"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Status int    `json:"status"`
}

func captureRequestLog(t *testing.T, status int) logEntry {
	t.Helper()

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/reminders/100", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entry logEntry
	if err := json.Unmarshal(logBuf.Bytes(), &entry); err != nil {
		t.Fatalf("ログのパースに失敗しました: %v", err)
	}
	return entry
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	entry := captureRequestLog(t, http.StatusOK)

	if entry.Msg != "http_request" {
		t.Errorf("msgが異なります: %s", entry.Msg)
	}
	if entry.Method != http.MethodGet {
		t.Errorf("methodが異なります: %s", entry.Method)
	}
	if entry.Path != "/api/reminders/100" {
		t.Errorf("pathが異なります: %s", entry.Path)
	}
	if entry.Status != http.StatusOK {
		t.Errorf("statusが異なります: %d", entry.Status)
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "2xxはINFO", status: http.StatusOK, wantLevel: "INFO"},
		{name: "4xxはWARN", status: http.StatusNotFound, wantLevel: "WARN"},
		{name: "429はWARN", status: http.StatusTooManyRequests, wantLevel: "WARN"},
		{name: "5xxはERROR", status: http.StatusInternalServerError, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := captureRequestLog(t, tt.status)
			if entry.Level != tt.wantLevel {
				t.Errorf("レベルが異なります: %s, want %s", entry.Level, tt.wantLevel)
			}
		})
	}
}

func TestLoggingMiddleware_DefaultsTo200WithoutWriteHeader(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entry logEntry
	if err := json.Unmarshal(logBuf.Bytes(), &entry); err != nil {
		t.Fatalf("ログのパースに失敗しました: %v", err)
	}
	if entry.Status != http.StatusOK {
		t.Errorf("WriteHeader未呼び出し時は200が記録されるべきですが: %d", entry.Status)
	}
}
