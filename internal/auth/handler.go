package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// LoginPage は GET /login のハンドラーです。
func (m *Manager) LoginPage(c *gin.Context) {
	_, failed := c.GetQuery("error")
	_, loggedOut := c.GetQuery("logout")
	c.HTML(http.StatusOK, loginTemplate, gin.H{
		"Action":    LoginProcessingPath,
		"Error":     failed,
		"LoggedOut": loggedOut,
	})
}

// Login は POST /perform_login のハンドラーです。
// 成功時は DefaultSuccessPath へリダイレクトします。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	// 欠けた項目は空文字のまま認証に回し、失敗として扱う
	_ = c.ShouldBind(&req)

	principal, err := m.authn.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			m.logger.Debug("login rejected", zap.String("ip", c.ClientIP()))
			m.rejectLogin(c)
			return
		}
		m.logger.Error("login failed", zap.Error(err))
		abortJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "認証処理に失敗しました")
		return
	}

	record, err := m.sessions.Establish(c, principal.Username, principal.Authorities)
	if err != nil {
		m.logger.Error("failed to establish session", zap.Error(err))
		abortJSON(c, http.StatusInternalServerError, "SESSION_SAVE_FAILED", "セッションの保存に失敗しました")
		return
	}

	m.logger.Info("login succeeded",
		zap.String("user", principal.Username),
		zap.Strings("authorities", principal.Authorities),
	)

	if m.csrf {
		c.Header(csrfHeader, record.CSRFToken)
	}
	c.Redirect(http.StatusFound, DefaultSuccessPath)
}

// Logout は /logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	if err := m.sessions.Invalidate(c); err != nil {
		m.logger.Error("failed to invalidate session", zap.Error(err))
		abortJSON(c, http.StatusInternalServerError, "SESSION_SAVE_FAILED", "セッションの削除に失敗しました")
		return
	}

	if user, ok := CurrentUser(c); ok {
		m.logger.Info("logout", zap.String("user", user))
	}

	if wantsHTML(c) {
		c.Redirect(http.StatusFound, LoginPath+"?logout")
		return
	}
	c.Status(http.StatusNoContent)
}

// rejectLogin はユーザー不在とパスワード誤りを同じ形で返します。
func (m *Manager) rejectLogin(c *gin.Context) {
	if wantsHTML(c) {
		redirect(c, LoginPath+"?error")
		return
	}
	abortJSON(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "ユーザー名またはパスワードが正しくありません")
}
