// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/authgate/internal/config"
	"github.com/yourusername/authgate/internal/logging"
	"github.com/yourusername/authgate/internal/server"
	"github.com/yourusername/authgate/internal/session"
	"github.com/yourusername/authgate/internal/users"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.GinMode)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// ユーザーDB（起動時にマイグレーション適用）
	db, dialect, err := users.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	registry, closeRegistry, err := newRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRegistry()

	router := server.NewRouter(server.Deps{
		Config:   cfg,
		Logger:   logger,
		Users:    users.NewSQLStore(db, dialect),
		Registry: registry,
	})

	logger.Info("configuration loaded",
		zap.String("mode", cfg.GinMode),
		zap.String("database", string(dialect)),
		zap.String("session_store", cfg.SessionStore),
		zap.Bool("csrf", cfg.CSRFProtection),
	)
	return server.Run(ctx, ":"+cfg.Port, router, cfg.ShutdownTimeout, logger)
}

// newRegistry は SESSION_STORE に応じたセッションレジストリを返します。
func newRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Registry, func(), error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return session.NewMemoryRegistry(), func() {}, nil
	}

	rdb, err := session.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using redis session store")
	return session.NewRedisRegistry(rdb), func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}, nil
}
