package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/authgate/internal/config"
	"github.com/yourusername/authgate/internal/session"
	"github.com/yourusername/authgate/internal/users"
)

type testApp struct {
	router   *gin.Engine
	registry *session.MemoryRegistry
}

func testConfig() *config.Config {
	return &config.Config{
		GinMode:            gin.TestMode,
		SessionSecret:      "0123456789abcdef0123456789abcdef",
		SessionStore:       config.SessionStoreMemory,
		SessionMaxAge:      time.Hour,
		SessionIdleTimeout: 30 * time.Minute,
		CORSAllowedOrigins: "http://localhost:3000",
	}
}

// newTestApp は SQLite(:memory:) に alice / pw123 / USER を登録した状態のルーターを作ります。
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppWith(t, func(*config.Config) {})
}

func newTestAppWith(t *testing.T, mutate func(*config.Config)) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, dialect, err := users.Open(ctx, "sqlite://:memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := users.NewSQLStore(db, dialect)

	hash, err := bcrypt.GenerateFromPassword([]byte("pw123"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = store.Create(ctx, &users.User{Username: "alice", PasswordHash: string(hash), Role: "USER"})
	require.NoError(t, err)

	cfg := testConfig()
	mutate(cfg)
	registry := session.NewMemoryRegistry()
	router := NewRouter(Deps{
		Config:   cfg,
		Users:    store,
		Registry: registry,
	})
	return &testApp{router: router, registry: registry}
}

func (a *testApp) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func loginRequest(username, password string) *http.Request {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/perform_login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestLoginHomeLogoutFlow(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(loginRequest("alice", "pw123"))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))
	cookie := cookieFrom(t, rec)

	rec = app.do(httptest.NewRequest(http.MethodGet, "/home", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, WelcomeMessage, rec.Body.String())
	assert.Equal(t, "Welcome to the protected home page! You are authenticated.", rec.Body.String())

	rec = app.do(httptest.NewRequest(http.MethodPost, "/logout", nil), cookie)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(httptest.NewRequest(http.MethodGet, "/home", nil), cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), WelcomeMessage)
}

func TestEachLoginCreatesItsOwnSession(t *testing.T) {
	app := newTestApp(t)

	first := cookieFrom(t, app.do(loginRequest("alice", "pw123")))
	require.Equal(t, 1, app.registry.Len())

	second := cookieFrom(t, app.do(loginRequest("alice", "pw123")))
	assert.Equal(t, 2, app.registry.Len())
	assert.NotEqual(t, first.Value, second.Value)

	// 片方をログアウトしても他方は有効
	rec := app.do(httptest.NewRequest(http.MethodPost, "/logout", nil), first)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.do(httptest.NewRequest(http.MethodGet, "/home", nil), second)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHomeRequiresSession(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/home", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), WelcomeMessage)

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.Header.Set("Accept", "text/html")
	rec = app.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	forged := &http.Cookie{Name: session.CookieName, Value: "forged"}
	rec = app.do(httptest.NewRequest(http.MethodGet, "/home", nil), forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownUserAndWrongPasswordLookTheSame(t *testing.T) {
	app := newTestApp(t)

	unknown := app.do(loginRequest("bob", "pw123"))
	wrong := app.do(loginRequest("alice", "wrong"))
	caseFolded := app.do(loginRequest("Alice", "pw123"))

	for _, rec := range []*httptest.ResponseRecorder{unknown, wrong, caseFolded} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, wrong.Body.String(), rec.Body.String())
		assert.Empty(t, rec.Result().Cookies())
	}
	assert.Equal(t, 0, app.registry.Len())
}

func TestPublicEndpoints(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<form")

	rec = app.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "authgate", health["service"])
}

func TestCORSPreflight(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/home", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := app.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORSCredentialedRequest(t *testing.T) {
	app := newTestApp(t)
	cookie := cookieFrom(t, app.do(loginRequest("alice", "pw123")))

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := app.do(req, cookie)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/home", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = app.do(req, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRFTokenAvailableAfterRedirect(t *testing.T) {
	app := newTestAppWith(t, func(cfg *config.Config) { cfg.CSRFProtection = true })

	rec := app.do(loginRequest("alice", "pw123"))
	require.Equal(t, http.StatusFound, rec.Code)
	cookie := cookieFrom(t, rec)

	// fetch はリダイレクトを辿るため、302 のヘッダーではなく /home の応答からトークンを読む
	rec = app.do(httptest.NewRequest(http.MethodGet, "/home", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	token := rec.Header().Get("X-CSRF-Token")
	require.NotEmpty(t, token)

	rec = app.do(httptest.NewRequest(http.MethodPost, "/logout", nil), cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, app.registry.Len())

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("X-CSRF-Token", token)
	rec = app.do(req, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, app.registry.Len())

	rec = app.do(httptest.NewRequest(http.MethodGet, "/home", nil), cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get("X-CSRF-Token"))
}

func TestCSRFTokenNotSentWhenDisabled(t *testing.T) {
	app := newTestApp(t)
	cookie := cookieFrom(t, app.do(loginRequest("alice", "pw123")))

	rec := app.do(httptest.NewRequest(http.MethodGet, "/home", nil), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-CSRF-Token"))
}

func TestLogoutByGET(t *testing.T) {
	t.Run("allowed without csrf protection", func(t *testing.T) {
		app := newTestApp(t)
		cookie := cookieFrom(t, app.do(loginRequest("alice", "pw123")))

		rec := app.do(httptest.NewRequest(http.MethodGet, "/logout", nil), cookie)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 0, app.registry.Len())
	})

	t.Run("not routed under csrf protection", func(t *testing.T) {
		app := newTestAppWith(t, func(cfg *config.Config) { cfg.CSRFProtection = true })
		cookie := cookieFrom(t, app.do(loginRequest("alice", "pw123")))

		req := httptest.NewRequest(http.MethodGet, "/logout", nil)
		req.Header.Set("Accept", "text/html")
		rec := app.do(req, cookie)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, 1, app.registry.Len())

		rec = app.do(httptest.NewRequest(http.MethodGet, "/home", nil), cookie)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "127.0.0.1:0", http.NotFoundHandler(), time.Second, zap.NewNop())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
