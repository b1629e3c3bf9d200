package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/authgate/internal/session"
)

// Guard はセッションを解決し、Policy に従ってリクエストを通すか判定するミドルウェアです。
func (m *Manager) Guard(policy *Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		code, message := "UNAUTHORIZED", "ログインが必要です"

		record, err := m.sessions.Resolve(c)
		switch {
		case errors.Is(err, session.ErrExpired):
			code, message = "SESSION_EXPIRED", "セッションの有効期限が切れました"
		case errors.Is(err, session.ErrIdleTimeout):
			code, message = "SESSION_IDLE_TIMEOUT", "しばらく操作がなかったため再ログインしてください"
		case err != nil:
			m.logger.Error("session lookup failed", zap.Error(err))
			abortJSON(c, http.StatusInternalServerError, "SESSION_LOOKUP_FAILED", "セッションの確認に失敗しました")
			return
		}

		if record != nil {
			c.Set(ContextUserKey, record.Username)
			c.Set(ContextAuthoritiesKey, record.Authorities)
			c.Set(contextRecordKey, record)
			// ログイン直後の 302 はフロントから読めないため、以降の応答でもトークンを返す
			if m.csrf && record.CSRFToken != "" {
				c.Header(csrfHeader, record.CSRFToken)
			}
		}

		switch policy.Evaluate(c.Request.URL.Path) {
		case PermitAll:
			c.Next()
		case AnonymousOnly:
			if record != nil {
				redirect(c, DefaultSuccessPath)
				return
			}
			c.Next()
		default:
			if record == nil {
				if wantsHTML(c) {
					redirect(c, LoginPath)
					return
				}
				abortJSON(c, http.StatusUnauthorized, code, message)
				return
			}
			c.Next()
		}
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダー（または _csrf フォーム値）を検証するミドルウェアです。
// CSRF 保護が無効な場合と、ログインしていないリクエストは素通しします。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.csrf || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		record := currentRecord(c)
		if record == nil {
			c.Next()
			return
		}
		if record.CSRFToken == "" {
			abortJSON(c, http.StatusForbidden, "CSRF_MISSING", "CSRF トークンが設定されていません")
			return
		}

		received := c.GetHeader(csrfHeader)
		if received == "" {
			received = c.PostForm(csrfFormField)
		}
		if subtle.ConstantTimeCompare([]byte(record.CSRFToken), []byte(received)) != 1 {
			abortJSON(c, http.StatusForbidden, "CSRF_INVALID", "CSRF トークンが一致しません")
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
