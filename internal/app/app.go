package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/remindman/internal/bot"
	"github.com/hitoshi/remindman/internal/config"
	"github.com/hitoshi/remindman/internal/conversation"
	"github.com/hitoshi/remindman/internal/database"
	"github.com/hitoshi/remindman/internal/handler"
	"github.com/hitoshi/remindman/internal/logger"
	"github.com/hitoshi/remindman/internal/metrics"
	"github.com/hitoshi/remindman/internal/middleware"
	"github.com/hitoshi/remindman/internal/notify"
	"github.com/hitoshi/remindman/internal/reminder"
	"github.com/hitoshi/remindman/internal/repository"
	"github.com/hitoshi/remindman/internal/security"
	"github.com/hitoshi/remindman/internal/telegram"
	"github.com/hitoshi/remindman/internal/user"
	"github.com/hitoshi/remindman/internal/worker/cleanup"
	"github.com/hitoshi/remindman/internal/worker/deliver"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandBot:
		return runBot(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	reminderRepo := repository.NewPostgresReminderRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. ドメインサービスの初期化
	userService := user.NewService(userRepo, ssrfGuard)
	reminderService := reminder.NewService(reminderRepo, userRepo, sanitizer)

	// 5. レート制限の構成（RATE_LIMIT_GENERALはreq/min単位なのでreq/secに変換する）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg, slog.Default())
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:          slog.Default(),
		RateLimiter:     rateLimiter,
		UserService:     userService,
		ReminderService: reminderService,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runBot はTelegramボットモードで起動する。
// ロングポーリングで更新を受信し、対話エンジンでメッセージを処理する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runBot(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	reminderRepo := repository.NewPostgresReminderRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 4. ドメインサービスの初期化
	userService := user.NewService(userRepo, ssrfGuard)
	reminderService := reminder.NewService(reminderRepo, userRepo, sanitizer)

	// 5. Telegramクライアントと対話エンジンの初期化
	// ロングポーリングはpoll_timeoutの間サーバー側で接続を保持するため、
	// HTTPクライアントのタイムアウトには余裕を持たせる
	tgClient := telegram.NewClient(
		&http.Client{Timeout: cfg.PollTimeout + cfg.SendTimeout},
		cfg.TelegramBotToken,
		cfg.SendRate,
		slog.Default(),
	)

	engine := conversation.NewEngine(
		userService, reminderService, bot.NewReplier(tgClient), slog.Default(),
	)

	dispatcher := bot.NewDispatcher(slog.Default())
	gateway := bot.NewGateway(tgClient, dispatcher, engine, cfg.PollTimeout, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down bot...")
		cancel()
	}()

	// アイドルセッションの回収をバックグラウンドで起動
	go engine.StartJanitor(ctx, cfg.SessionIdleTimeout)

	slog.Info("bot starting",
		slog.Duration("poll_timeout", cfg.PollTimeout),
		slog.Duration("session_idle_timeout", cfg.SessionIdleTimeout),
	)

	// 更新受信ループをメインgoroutineで実行（ブロッキング）
	gateway.Run(ctx)

	// 受付済みメッセージの処理完了を待ってから終了する
	dispatcher.Stop()

	slog.Info("bot stopped gracefully")
	return nil
}

// runWorker は配送ワーカーモードで起動する。
// DB接続を開き、配送ポーラーとクリーンアップジョブを起動する。
// メトリクスは/metricsエンドポイントで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
// 実行中の配送サイクルは完了まで走りきる。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	reminderRepo := repository.NewPostgresReminderRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 通知シンクの初期化
	// Webhook送信はSSRF防止付きクライアントを使用する
	ssrfGuard := security.NewSSRFGuard()
	tgClient := telegram.NewClient(
		&http.Client{Timeout: cfg.SendTimeout},
		cfg.TelegramBotToken,
		cfg.SendRate,
		slog.Default(),
	)
	sink := notify.NewRouterSink(
		notify.NewTelegramSink(tgClient),
		notify.NewWebhookSink(ssrfGuard.NewSafeClient(cfg.WebhookTimeout)),
	)

	// 5. 配送ポーラーの初期化
	deliverer := deliver.NewDeliverer(reminderRepo, sink, collector, slog.Default())
	poller := deliver.NewPoller(reminderRepo, deliverer, collector, slog.Default(), cfg.DeliverMaxConcurrent)

	// 6. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(reminderRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.CleanupRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// メトリクスサーバーをバックグラウンドで起動
	metricsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: metrics.SetupMetricsRoute(registry),
	}
	go func() {
		slog.Info("metrics server starting",
			slog.String("addr", metricsServer.Addr),
		)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	slog.Info("worker starting",
		slog.Duration("check_interval", cfg.CheckInterval),
		slog.Duration("check_first_delay", cfg.CheckFirstDelay),
		slog.Int("max_concurrent", cfg.DeliverMaxConcurrent),
	)

	// 配送ポーラーをメインgoroutineで実行（ブロッキング）
	poller.Start(ctx, cfg.CheckInterval, cfg.CheckFirstDelay)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
