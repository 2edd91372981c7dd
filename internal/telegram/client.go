// Package telegram はTelegram Bot APIのクライアントを提供する。
// メッセージ送信（sendMessage）とロングポーリングによる受信（getUpdates）を含む。
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// defaultBaseURL はTelegram Bot APIのエンドポイント。
const defaultBaseURL = "https://api.telegram.org"

// Update はgetUpdatesで受信する1件の更新を表す。
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message は受信メッセージを表す。
type Message struct {
	Chat Chat   `json:"chat"`
	From *From  `json:"from"`
	Text string `json:"text"`
}

// Chat はメッセージの属するチャットを表す。
type Chat struct {
	ID int64 `json:"id"`
}

// From はメッセージの送信者を表す。
type From struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

// ReplyKeyboard は返信用キーボードメニューを表す。
// 各行はボタンラベルの列。
type ReplyKeyboard struct {
	Rows [][]string
}

// StatusError はTelegram APIがエラーステータスを返したことを表す。
// 呼び出し元はステータスコードでリトライ可否を分類できる。
type StatusError struct {
	StatusCode  int
	Description string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("telegram API returned status %d: %s", e.StatusCode, e.Description)
}

// HTTPStatus はHTTPステータスコードを返す。配送側のリトライ分類用。
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// Client はTelegram Bot APIのクライアント。
// 送信はレートリミッターで平滑化される（Bot API全体で約30msg/秒の上限があるため）。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	token      string
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// sendRateは毎秒の送信メッセージ数の上限を指定する。0以下の場合は25を使用する。
func NewClient(httpClient *http.Client, token string, sendRate float64, logger *slog.Logger) *Client {
	if sendRate <= 0 {
		sendRate = 25
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(sendRate), 1),
		token:      token,
		baseURL:    defaultBaseURL,
	}
}

// apiResponse はTelegram APIの共通レスポンス形式。
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// keyboardButton はreply_markupのボタン1個。
type keyboardButton struct {
	Text string `json:"text"`
}

// replyKeyboardMarkup はreply_markupのJSON表現。
type replyKeyboardMarkup struct {
	Keyboard       [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
}

// sendMessageRequest はsendMessageのリクエストボディ。
type sendMessageRequest struct {
	ChatID      int64                `json:"chat_id"`
	Text        string               `json:"text"`
	ReplyMarkup *replyKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendMessage は指定チャットへテキストメッセージを送信する。
// keyboardがnilでない場合は返信用メニューを添付する。
// レートリミッターの待機はctxのキャンセルで中断される。
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard *ReplyKeyboard) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("送信レート待機が中断されました: %w", err)
	}

	body := sendMessageRequest{
		ChatID: chatID,
		Text:   text,
	}
	if keyboard != nil {
		markup := &replyKeyboardMarkup{ResizeKeyboard: true}
		for _, row := range keyboard.Rows {
			buttons := make([]keyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, keyboardButton{Text: label})
			}
			markup.Keyboard = append(markup.Keyboard, buttons)
		}
		body.ReplyMarkup = markup
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	reqURL := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessageの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		// ボディが壊れていてもHTTPステータスで判定できるようにする
		apiResp = apiResponse{}
	}

	if resp.StatusCode != http.StatusOK || !apiResp.OK {
		return &StatusError{
			StatusCode:  resp.StatusCode,
			Description: apiResp.Description,
		}
	}

	return nil
}

// GetUpdates はロングポーリングで更新を取得する。
// offsetには前回取得した最大update_id+1を渡す。
// timeoutはTelegram側で接続を保持する秒数で、その間更新がなければ空で返る。
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	reqURL := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=%d",
		c.baseURL, c.token, offset, int(timeout.Seconds()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdatesの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !apiResp.OK {
		c.logger.Error("getUpdatesがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("description", apiResp.Description),
		)
		return nil, &StatusError{
			StatusCode:  resp.StatusCode,
			Description: apiResp.Description,
		}
	}

	var updates []Update
	if err := json.Unmarshal(apiResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("updatesのパースに失敗しました: %w", err)
	}

	return updates, nil
}
