package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/remindman/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Register はユーザーを登録する。Telegram IDに対して冪等。
	Register(ctx context.Context, telegramID int64, name string) (*model.User, error)
	// TogglePreference は時刻表示形式を反転し、切り替え後の値を返す。
	TogglePreference(ctx context.Context, telegramID int64) (bool, error)
	// SetWebhookURL は通知先Webhook URLを設定する。空文字列で解除する。
	SetWebhookURL(ctx context.Context, telegramID int64, rawURL string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Name       string `json:"name"`
}

// setWebhookRequest はWebhook URL設定リクエストのボディ。
type setWebhookRequest struct {
	WebhookURL string `json:"webhook_url"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID              string `json:"id"`
	TelegramID      int64  `json:"telegram_id"`
	Name            string `json:"name"`
	Use24HourFormat bool   `json:"use_24_hour_format"`
	WebhookURL      string `json:"webhook_url,omitempty"`
}

// toggleFormatResponse は時刻表示形式切り替えのAPIレスポンス。
type toggleFormatResponse struct {
	Use24HourFormat bool `json:"use_24_hour_format"`
}

// Register はユーザー登録を処理する。すでに登録済みの場合も既存ユーザーを返す。
// POST /api/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError())
		return
	}

	if req.TelegramID == 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "telegram_idが指定されていません。",
			Category: "validation",
			Action:   "telegram_idを指定してください。",
		})
		return
	}

	user, err := h.service.Register(r.Context(), req.TelegramID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toUserResponse(user))
}

// ToggleTimeFormat は時刻表示形式の切り替えを処理する。
// POST /api/users/:telegramID/toggle-time-format
func (h *UserHandler) ToggleTimeFormat(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := telegramIDFromURL(w, r)
	if !ok {
		return
	}

	use24h, err := h.service.TogglePreference(r.Context(), telegramID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toggleFormatResponse{Use24HourFormat: use24h})
}

// SetWebhook は通知先Webhook URLの設定を処理する。
// PUT /api/users/:telegramID/webhook
func (h *UserHandler) SetWebhook(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := telegramIDFromURL(w, r)
	if !ok {
		return
	}

	var req setWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError())
		return
	}

	if err := h.service.SetWebhookURL(r.Context(), telegramID, req.WebhookURL); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toUserResponse はmodel.UserをAPIレスポンス形式に変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:              user.ID,
		TelegramID:      user.TelegramID,
		Name:            user.Name,
		Use24HourFormat: user.Use24HourFormat,
		WebhookURL:      user.WebhookURL,
	}
}

// telegramIDFromURL はURLパラメータからTelegram IDを取り出す。
// 数値として解析できない場合はエラーレスポンスを書き込みfalseを返す。
func telegramIDFromURL(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "telegramID")
	telegramID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "telegram_idが数値ではありません: " + raw,
			Category: "validation",
			Action:   "数値のTelegram IDを指定してください。",
		})
		return 0, false
	}
	return telegramID, true
}

// newInvalidRequestError はリクエストボディ解析失敗のエラーを生成する。
func newInvalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}
