package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/remindman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	UserService     UserServiceInterface
	ReminderService ReminderServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware
//
// ヘルスチェック（/health）はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	userHandler := NewUserHandler(deps.UserService)
	reminderHandler := NewReminderHandler(deps.ReminderService)

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		// ユーザー管理
		r.Post("/api/register", userHandler.Register)
		r.Route("/api/users/{telegramID}", func(r chi.Router) {
			r.Post("/toggle-time-format", userHandler.ToggleTimeFormat)
			r.Put("/webhook", userHandler.SetWebhook)
		})

		// リマインダー管理
		r.Route("/api/reminders", func(r chi.Router) {
			r.Post("/", reminderHandler.Create)

			// 固定パスはパラメータ付きパスより先に定義する
			r.Get("/due", reminderHandler.ListDue)

			// chiは同一階層に異なる名前のパラメータを置けないため、
			// mark-sentは固定プレフィックス配下に配置する
			r.Post("/mark-sent/{reminderID}", reminderHandler.MarkSent)

			r.Route("/{telegramID}", func(r chi.Router) {
				r.Get("/", reminderHandler.List)
				r.Delete("/{reminderID}", reminderHandler.Delete)
			})
		})
	})

	return r
}
