package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"routine-scheduler/backend/config"
	"routine-scheduler/backend/internal/api/handler"
	"routine-scheduler/backend/internal/api/middleware"
	"routine-scheduler/backend/internal/api/router"
	"routine-scheduler/backend/internal/notifier"
	"routine-scheduler/backend/internal/repository"
	"routine-scheduler/backend/internal/service"
	"routine-scheduler/backend/pkg/database"
	"routine-scheduler/backend/pkg/jwt"
	applogger "routine-scheduler/backend/pkg/logger"
	"routine-scheduler/backend/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./config/config.yaml）")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("supports_transactions", cfg.Store.SupportsTransactions),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：失败时降级运行，通知与限流不可用）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，课表缓存失效通知与限流将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 教师课表缓存失效通知
	var notif notifier.Notifier
	var asyncNotif *notifier.AsyncNotifier
	if cfg.Notifier.Enabled && rdb != nil {
		pub := notifier.NewRedisPublisher(rdb, cfg.Notifier.Stream, cfg.Notifier.MaxLen)
		asyncNotif = notifier.NewAsyncNotifier(pub, &cfg.Notifier, logger)
		notif = asyncNotif
		logger.Info("课表缓存失效通知已启用", zap.String("stream", cfg.Notifier.Stream))
	} else {
		notif = notifier.NewNopNotifier(logger)
	}

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, notif, logger)
	h := handler.NewHandler(svc)

	// 7. 初始化路由
	var limiter middleware.RateLimiter
	if rdb != nil {
		limiter = rdb
	}
	engine := router.Setup(cfg, h, jwt.NewManager(&cfg.Auth), limiter, logger)

	// 8. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 9. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 先排空通知队列，再关闭 Redis
	if asyncNotif != nil {
		notifyCtx, notifyCancel := context.WithTimeout(context.Background(), cfg.Notifier.ShutdownTimeout)
		if err := asyncNotif.Close(notifyCtx); err != nil {
			logger.Warn("通知队列未能完全排空", zap.Error(err))
		}
		notifyCancel()
	}

	if err := sqlDB.Close(); err != nil {
		logger.Error("关闭数据库连接失败", zap.Error(err))
	}

	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
