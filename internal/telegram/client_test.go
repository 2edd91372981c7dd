package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

// newTestClient はテストサーバーに向けたクライアントを生成する。
func newTestClient(serverURL string) *Client {
	c := NewClient(&http.Client{Timeout: 5 * time.Second}, "test-token", 1000, newTestLogger())
	c.baseURL = serverURL
	return c
}

func TestSendMessage_Success(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("リクエストボディのパースに失敗しました: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true, "result": {}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	err := client.SendMessage(context.Background(), 100, "hello", nil)
	if err != nil {
		t.Fatalf("エラーが発生しないべきですが: %v", err)
	}
	if gotPath != "/bottest-token/sendMessage" {
		t.Errorf("リクエストパスが異なります: %s", gotPath)
	}
	if gotBody.ChatID != 100 {
		t.Errorf("chat_idが異なります: %d", gotBody.ChatID)
	}
	if gotBody.Text != "hello" {
		t.Errorf("textが異なります: %s", gotBody.Text)
	}
	if gotBody.ReplyMarkup != nil {
		t.Error("キーボードなしの場合reply_markupは省略されるべき")
	}
}

func TestSendMessage_WithKeyboard(t *testing.T) {
	var gotBody sendMessageRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("リクエストボディのパースに失敗しました: %v", err)
		}
		w.Write([]byte(`{"ok": true, "result": {}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	keyboard := &ReplyKeyboard{
		Rows: [][]string{
			{"➕ New Reminder", "📋 List of Reminders"},
			{"⚙ Settings"},
		},
	}

	if err := client.SendMessage(context.Background(), 100, "Main menu:", keyboard); err != nil {
		t.Fatalf("エラーが発生しないべきですが: %v", err)
	}

	if gotBody.ReplyMarkup == nil {
		t.Fatal("reply_markupが添付されるべき")
	}
	if !gotBody.ReplyMarkup.ResizeKeyboard {
		t.Error("resize_keyboardはtrueであるべき")
	}
	if len(gotBody.ReplyMarkup.Keyboard) != 2 {
		t.Fatalf("キーボードの行数が異なります: %d", len(gotBody.ReplyMarkup.Keyboard))
	}
	if len(gotBody.ReplyMarkup.Keyboard[0]) != 2 {
		t.Fatalf("1行目のボタン数が異なります: %d", len(gotBody.ReplyMarkup.Keyboard[0]))
	}
	if gotBody.ReplyMarkup.Keyboard[0][1].Text != "📋 List of Reminders" {
		t.Errorf("ボタンラベルが異なります: %s", gotBody.ReplyMarkup.Keyboard[0][1].Text)
	}
	if gotBody.ReplyMarkup.Keyboard[1][0].Text != "⚙ Settings" {
		t.Errorf("ボタンラベルが異なります: %s", gotBody.ReplyMarkup.Keyboard[1][0].Text)
	}
}

func TestSendMessage_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok": false, "description": "Forbidden: bot was blocked by the user"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	err := client.SendMessage(context.Background(), 100, "hello", nil)
	if err == nil {
		t.Fatal("エラーが返されるべき")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("StatusErrorが返されるべきですが: %v", err)
	}
	if statusErr.HTTPStatus() != http.StatusForbidden {
		t.Errorf("ステータスコードが異なります: %d", statusErr.HTTPStatus())
	}
	if statusErr.Description != "Forbidden: bot was blocked by the user" {
		t.Errorf("descriptionが異なります: %s", statusErr.Description)
	}
}

func TestSendMessage_OKFalseWithStatus200(t *testing.T) {
	// HTTP 200でもok: falseならエラーとして扱う
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "description": "Bad Request: chat not found"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	err := client.SendMessage(context.Background(), 100, "hello", nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("StatusErrorが返されるべきですが: %v", err)
	}
	if statusErr.StatusCode != http.StatusOK {
		t.Errorf("ステータスコードが異なります: %d", statusErr.StatusCode)
	}
}

func TestSendMessage_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true, "result": {}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.SendMessage(ctx, 100, "hello", nil); err == nil {
		t.Error("キャンセル済みコンテキストではエラーが返されるべき")
	}
}

func TestGetUpdates_Success(t *testing.T) {
	var gotOffset, gotTimeout string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOffset = r.URL.Query().Get("offset")
		gotTimeout = r.URL.Query().Get("timeout")
		w.Write([]byte(`{"ok": true, "result": [
			{"update_id": 10, "message": {"chat": {"id": 100}, "from": {"id": 100, "first_name": "alice"}, "text": "/start"}},
			{"update_id": 11, "message": {"chat": {"id": 200}, "from": {"id": 200, "first_name": "bob"}, "text": "hello"}}
		]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	updates, err := client.GetUpdates(context.Background(), 10, 30*time.Second)
	if err != nil {
		t.Fatalf("エラーが発生しないべきですが: %v", err)
	}

	if gotOffset != "10" {
		t.Errorf("offsetが異なります: %s", gotOffset)
	}
	if gotTimeout != "30" {
		t.Errorf("timeoutが異なります: %s", gotTimeout)
	}
	if len(updates) != 2 {
		t.Fatalf("更新件数が異なります: %d", len(updates))
	}
	if updates[0].UpdateID != 10 {
		t.Errorf("update_idが異なります: %d", updates[0].UpdateID)
	}
	if updates[0].Message.Text != "/start" {
		t.Errorf("textが異なります: %s", updates[0].Message.Text)
	}
	if updates[1].Message.Chat.ID != 200 {
		t.Errorf("chat.idが異なります: %d", updates[1].Message.Chat.ID)
	}
	if updates[1].Message.From.FirstName != "bob" {
		t.Errorf("first_nameが異なります: %s", updates[1].Message.From.FirstName)
	}
}

func TestGetUpdates_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": true, "result": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	updates, err := client.GetUpdates(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("エラーが発生しないべきですが: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("更新は空であるべきですが: %d件", len(updates))
	}
}

func TestGetUpdates_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok": false, "description": "Unauthorized"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetUpdates(context.Background(), 0, time.Second)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("StatusErrorが返されるべきですが: %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("ステータスコードが異なります: %d", statusErr.StatusCode)
	}
}
