package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CookieName はセッションIDを運ぶCookie名です。
	CookieName = "ag_session"

	cookieKeyID = "sid"
)

// Options はセッションの寿命とCookie属性です。
type Options struct {
	Secret      []byte           // Cookie署名鍵
	MaxLifetime time.Duration    // ログインからの最大有効期間
	IdleTimeout time.Duration    // 無操作で失効するまでの時間
	Secure      bool             // HTTPS のみで送信するか
	Now         func() time.Time // 現在時刻。nil なら time.Now
}

// Manager は Cookie と Registry を結び付けてセッションを管理します。
type Manager struct {
	registry    Registry
	store       cookie.Store
	cookieOpts  sessions.Options
	maxLifetime time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

// NewManager は Manager を作成します。
func NewManager(registry Registry, opts Options) *Manager {
	cookieOpts := sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.MaxLifetime.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	store := cookie.NewStore(opts.Secret)
	store.Options(cookieOpts)

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		registry:    registry,
		store:       store,
		cookieOpts:  cookieOpts,
		maxLifetime: opts.MaxLifetime,
		idleTimeout: opts.IdleTimeout,
		now:         now,
	}
}

// Middleware はリクエストごとにCookieセッションを読み込むミドルウェアです。
// Establish / Resolve / Invalidate より前に登録する必要があります。
func (m *Manager) Middleware() gin.HandlerFunc {
	return sessions.Sessions(CookieName, m.store)
}

// Establish は新しいセッションを発行し、Cookie にセッションIDを保存します。
// 既存のセッションがあれば破棄してから発行します（セッション固定化対策）。
func (m *Manager) Establish(c *gin.Context, username string, authorities []string) (*Record, error) {
	ctx := c.Request.Context()
	s := sessions.Default(c)
	if old, ok := s.Get(cookieKeyID).(string); ok && old != "" {
		if err := m.registry.Delete(ctx, old); err != nil {
			return nil, fmt.Errorf("failed to drop previous session: %w", err)
		}
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate csrf token: %w", err)
	}

	now := m.now()
	record := &Record{
		ID:           uuid.NewString(),
		Username:     username,
		Authorities:  append([]string(nil), authorities...),
		CSRFToken:    token,
		IssuedAt:     now,
		LastActivity: now,
	}
	if err := m.registry.Create(ctx, record, m.maxLifetime); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.Clear()
	s.Options(m.cookieOpts)
	s.Set(cookieKeyID, record.ID)
	if err := s.Save(); err != nil {
		_ = m.registry.Delete(ctx, record.ID)
		return nil, fmt.Errorf("failed to save session cookie: %w", err)
	}
	return record, nil
}

// Resolve はリクエストに紐づくセッションを返します。未ログインなら (nil, nil) です。
// 期限切れの場合はセッションを破棄し ErrExpired / ErrIdleTimeout を返します。
func (m *Manager) Resolve(c *gin.Context) (*Record, error) {
	ctx := c.Request.Context()
	s := sessions.Default(c)
	id, ok := s.Get(cookieKeyID).(string)
	if !ok || id == "" {
		return nil, nil
	}

	record, err := m.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// ログアウト済み・失効済みのIDを持つCookieは消しておく
		m.clearCookie(s)
		return nil, nil
	}

	now := m.now()
	if now.Sub(record.IssuedAt) > m.maxLifetime {
		m.expire(c, s, id)
		return nil, ErrExpired
	}
	if now.Sub(record.LastActivity) > m.idleTimeout {
		m.expire(c, s, id)
		return nil, ErrIdleTimeout
	}

	if err := m.registry.Touch(ctx, id, now); err != nil {
		return nil, err
	}
	record.LastActivity = now
	return record, nil
}

// Invalidate はセッションを破棄し、Cookie を失効させます。
func (m *Manager) Invalidate(c *gin.Context) error {
	s := sessions.Default(c)
	if id, ok := s.Get(cookieKeyID).(string); ok && id != "" {
		if err := m.registry.Delete(c.Request.Context(), id); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	return m.clearCookie(s)
}

func (m *Manager) expire(c *gin.Context, s sessions.Session, id string) {
	_ = m.registry.Delete(c.Request.Context(), id)
	_ = m.clearCookie(s)
}

func (m *Manager) clearCookie(s sessions.Session) error {
	opts := m.cookieOpts
	opts.MaxAge = -1
	s.Clear()
	s.Options(opts)
	return s.Save()
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
