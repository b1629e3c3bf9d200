// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// セッションストアの種類
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// devSessionSecret は debug/test モードでのみ使うフォールバック鍵です。
const devSessionSecret = "authgate-dev-session-secret-change-me!!"

const minSessionSecretLen = 32

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port            string        // APIサーバーのポート番号
	GinMode         string        // Ginの実行モード (debug, release, test)
	LogLevel        string        // zap のログレベル (debug, info, warn, error)
	ShutdownTimeout time.Duration // グレースフルシャットダウンの待ち時間

	// ユーザーストア設定
	DatabaseURL string // postgres:// または sqlite:// 形式の接続先

	// セッション設定
	SessionSecret      string        // セッションCookie署名用の秘密鍵
	SessionStore       string        // memory または redis
	RedisURL           string        // SessionStore=redis のときの接続URL
	SessionMaxAge      time.Duration // ログインからの最大有効期間
	SessionIdleTimeout time.Duration // 無操作で失効するまでの時間

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// CSRF設定
	CSRFProtection bool // 状態変更リクエストに X-CSRF-Token を要求するか
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	config := fromEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDatabase は管理CLI向けに設定を読み込みます。
// セッション・CORS の項目は読み込むだけで検証しません。
func LoadDatabase() (*Config, error) {
	config := fromEnv()
	if err := config.ValidateDatabase(); err != nil {
		return nil, err
	}
	return config, nil
}

func fromEnv() *Config {
	loadEnvFile()

	config := &Config{
		Port:            getEnv("PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: getEnv("DATABASE_URL", "sqlite://authgate.db"),

		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionStore:       strings.ToLower(getEnv("SESSION_STORE", SessionStoreMemory)),
		RedisURL:           getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		SessionMaxAge:      getEnvAsDuration("SESSION_MAX_AGE", 12*time.Hour),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		CSRFProtection: getEnvAsBool("CSRF_PROTECTION", false),
	}

	// 開発時は固定の鍵で起動できるようにする（release では Validate で弾く）
	if config.SessionSecret == "" && config.GinMode != "release" {
		config.SessionSecret = devSessionSecret
	}
	return config
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// ValidateDatabase はユーザーDBへの接続に必要な項目だけを検証します。
func (c *Config) ValidateDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if len(c.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen)
	}
	if c.GinMode == "release" && c.SessionSecret == devSessionSecret {
		return fmt.Errorf("SESSION_SECRET must be set explicitly in release mode")
	}

	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown SESSION_STORE %q (memory or redis)", c.SessionStore)
	}

	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if len(c.AllowedOrigins()) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must contain at least one origin")
	}

	return nil
}

// AllowedOrigins は CORS_ALLOWED_ORIGINS を配列に変換して返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// IsRelease は本番モードかどうかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します。
// "90" のような単位なしの値は秒として扱います。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
