// Package auth は認証・認可機能を提供します。
//
// Authenticator がユーザー名とパスワードを検証し、Manager がログイン・ログアウトの
// ハンドラーと、Policy に従ってリクエストを通すか判定する Guard を提供します。
package auth

import (
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/authgate/internal/session"
)

// ハンドラー間でログイン済みユーザーの情報を共有するためのキーです。
const (
	ContextUserKey        = "auth.user"
	ContextAuthoritiesKey = "auth.authorities"
	contextRecordKey      = "auth.session"
)

const (
	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "_csrf"

	loginTemplate = "login.html"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates はログイン画面のテンプレートを返します。gin.Engine.SetHTMLTemplate に渡します。
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// Options は Manager の動作設定です。
type Options struct {
	CSRFProtection bool
	Logger         *zap.Logger
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	authn    *Authenticator
	sessions *session.Manager
	csrf     bool
	logger   *zap.Logger
}

// NewManager は認証マネージャーを作成します。
func NewManager(authn *Authenticator, sessions *session.Manager, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		authn:    authn,
		sessions: sessions,
		csrf:     opts.CSRFProtection,
		logger:   logger,
	}
}

// CurrentUser はログイン済みユーザー名を返します。Guard を通過したリクエストでのみ有効です。
func CurrentUser(c *gin.Context) (string, bool) {
	user := c.GetString(ContextUserKey)
	return user, user != ""
}

// CurrentAuthorities はログイン済みユーザーの権限を返します。
func CurrentAuthorities(c *gin.Context) []string {
	return c.GetStringSlice(ContextAuthoritiesKey)
}

func currentRecord(c *gin.Context) *session.Record {
	v, ok := c.Get(contextRecordKey)
	if !ok {
		return nil
	}
	record, _ := v.(*session.Record)
	return record
}

// wantsHTML はブラウザからの画面遷移かどうかを判定します。
// fetch/XHR からのリクエストには JSON とステータスコードで応答します。
func wantsHTML(c *gin.Context) bool {
	if strings.EqualFold(c.GetHeader("X-Requested-With"), "XMLHttpRequest") {
		return false
	}
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func redirect(c *gin.Context, location string) {
	c.Redirect(http.StatusFound, location)
	c.Abort()
}
