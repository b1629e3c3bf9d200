// Package server はルーティングとHTTPサーバーの起動・停止を担います。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/authgate/internal/auth"
	"github.com/yourusername/authgate/internal/config"
	"github.com/yourusername/authgate/internal/logging"
	"github.com/yourusername/authgate/internal/session"
	"github.com/yourusername/authgate/internal/users"
)

// Version はヘルスチェックで返すバージョンです。
const Version = "0.1.0"

// WelcomeMessage は保護されたページの本文です。
const WelcomeMessage = "Welcome to the protected home page! You are authenticated."

// Deps はルーター構築に必要な依存です。
type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Users    users.Loader
	Registry session.Registry
	Policy   *auth.Policy // nil の場合は auth.DefaultPolicy
}

// NewRouter はミドルウェアとルートを登録した gin.Engine を返します。
func NewRouter(deps Deps) *gin.Engine {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.Policy
	if policy == nil {
		policy = auth.DefaultPolicy()
	}

	router := gin.New()
	router.Use(logging.Middleware(logger), logging.Recovery(logger))
	router.SetHTMLTemplate(auth.Templates())

	// プリフライトを Guard より先に返すため CORS を先に登録する
	router.Use(cors.New(corsConfig(cfg)))

	sessions := session.NewManager(deps.Registry, session.Options{
		Secret:      []byte(cfg.SessionSecret),
		MaxLifetime: cfg.SessionMaxAge,
		IdleTimeout: cfg.SessionIdleTimeout,
		Secure:      cfg.IsRelease(),
	})
	authManager := auth.NewManager(auth.NewAuthenticator(deps.Users), sessions, auth.Options{
		CSRFProtection: cfg.CSRFProtection,
		Logger:         logger.Named("auth"),
	})
	router.Use(sessions.Middleware(), authManager.Guard(policy))

	setupRoutes(router, authManager, cfg.CSRFProtection)
	return router
}

func setupRoutes(router *gin.Engine, authManager *auth.Manager, csrf bool) {
	router.GET(auth.HealthPath, handleHealth)

	router.GET(auth.LoginPath, authManager.LoginPage)
	router.POST(auth.LoginProcessingPath, authManager.Login)
	router.POST(auth.LogoutPath, authManager.VerifyCSRF(), authManager.Logout)
	// GET はトークンを検証できないため、CSRF 保護中はログアウトを POST に限る
	if !csrf {
		router.GET(auth.LogoutPath, authManager.Logout)
	}

	// ここから下は Guard によりログイン必須
	protected := router.Group("")
	protected.Use(authManager.VerifyCSRF())
	{
		protected.GET(auth.DefaultSuccessPath, handleHome)
	}
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.AllowedOrigins()
	corsCfg.AllowMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}
	corsCfg.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Requested-With",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	corsCfg.AllowCredentials = true
	corsCfg.ExposeHeaders = []string{"X-CSRF-Token"}
	return corsCfg
}

// handleHome は GET /home のハンドラーです。
func handleHome(c *gin.Context) {
	c.String(http.StatusOK, WelcomeMessage)
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "authgate",
		"version": Version,
	})
}

// Run は ctx がキャンセルされるまでサーバーを動かし、その後グレースフルに停止します。
func Run(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	return <-errCh
}
