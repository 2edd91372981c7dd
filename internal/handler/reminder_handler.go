package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/remindman/internal/model"
	"github.com/hitoshi/remindman/internal/timefmt"
)

// ReminderServiceInterface はリマインダーハンドラーが必要とするサービスインターフェース。
type ReminderServiceInterface interface {
	// Create はリマインダーを作成する。
	Create(ctx context.Context, telegramID int64, text, remindAtRaw string) (*model.Reminder, error)
	// List は未配送リマインダー一覧と時刻表示形式設定を返す。
	List(ctx context.Context, telegramID int64) ([]*model.Reminder, bool, error)
	// Delete は所有者スコープでリマインダーを削除する。
	Delete(ctx context.Context, telegramID int64, reminderID string) error
	// MarkDelivered はリマインダーに配送済みフラグを立てる。冪等。
	MarkDelivered(ctx context.Context, reminderID string) error
	// ListDue は配送対象のリマインダーを全ユーザー横断で返す。
	ListDue(ctx context.Context) ([]*model.DueReminder, error)
}

// ReminderHandler はリマインダー管理のHTTPハンドラー。
type ReminderHandler struct {
	service ReminderServiceInterface
}

// NewReminderHandler はReminderHandlerを生成する。
func NewReminderHandler(service ReminderServiceInterface) *ReminderHandler {
	return &ReminderHandler{service: service}
}

// createReminderRequest はリマインダー作成リクエストのボディ。
// remind_atは「2025-04-30 14:30」形式。
type createReminderRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Text       string `json:"text"`
	RemindAt   string `json:"remind_at"`
}

// reminderResponse はリマインダー情報のAPIレスポンス。
// remind_atは所有ユーザーの時刻表示形式設定に従ってフォーマットされる。
type reminderResponse struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	RemindAt string `json:"remind_at"`
}

// dueReminderResponse は配送対象リマインダーのAPIレスポンス。
type dueReminderResponse struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	RemindAt   string `json:"remind_at"`
	TelegramID int64  `json:"telegram_id"`
	UserName   string `json:"user_name"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Create はリマインダー作成を処理する。
// POST /api/reminders
func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError())
		return
	}

	reminder, err := h.service.Create(r.Context(), req.TelegramID, req.Text, req.RemindAt)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(reminderResponse{
		ID:       reminder.ID,
		Text:     reminder.Text,
		RemindAt: reminder.RemindAt.Format(timefmt.Layout24),
	})
}

// List は指定ユーザーの未配送リマインダー一覧を返す。
// remind_atはユーザーの時刻表示形式設定に従ってフォーマットする。
// GET /api/reminders/:telegramID
func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := telegramIDFromURL(w, r)
	if !ok {
		return
	}

	reminders, use24h, err := h.service.List(r.Context(), telegramID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]reminderResponse, 0, len(reminders))
	for _, rm := range reminders {
		at, err := timefmt.Format(rm.RemindAt, use24h)
		if err != nil {
			at = rm.RemindAt.Format(timefmt.Layout24)
		}
		resp = append(resp, reminderResponse{
			ID:       rm.ID,
			Text:     rm.Text,
			RemindAt: at,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Delete はリマインダー削除を処理する。削除は所有者スコープで行う。
// DELETE /api/reminders/:telegramID/:reminderID
func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	telegramID, ok := telegramIDFromURL(w, r)
	if !ok {
		return
	}
	reminderID := chi.URLParam(r, "reminderID")

	if err := h.service.Delete(r.Context(), telegramID, reminderID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkSent はリマインダーの配送済みマークを処理する。冪等。
// POST /api/reminders/mark-sent/:reminderID
func (h *ReminderHandler) MarkSent(w http.ResponseWriter, r *http.Request) {
	reminderID := chi.URLParam(r, "reminderID")

	if err := h.service.MarkDelivered(r.Context(), reminderID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListDue は配送対象（通知日時到来かつ未配送）のリマインダー一覧を返す。
// 全ユーザー横断で返す。外部の配送プロセスからのポーリング用。
// GET /api/reminders/due
func (h *ReminderHandler) ListDue(w http.ResponseWriter, r *http.Request) {
	due, err := h.service.ListDue(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]dueReminderResponse, 0, len(due))
	for _, d := range due {
		resp = append(resp, dueReminderResponse{
			ID:         d.ID,
			Text:       d.Text,
			RemindAt:   d.RemindAt.Format(timefmt.Layout24),
			TelegramID: d.TelegramID,
			UserName:   d.UserName,
			WebhookURL: d.WebhookURL,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUserNotFound, model.ErrCodeReminderNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmptyReminderText,
		model.ErrCodeInvalidRemindAt,
		model.ErrCodeInvalidDeleteTarget,
		model.ErrCodeInvalidWebhookURL:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
