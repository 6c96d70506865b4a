package rest_test

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/friendhub/server/account"
	"github.com/friendhub/server/api/rest"
	"github.com/friendhub/server/cache"
	"github.com/friendhub/server/config"
	"github.com/friendhub/server/metrics"
	mw "github.com/friendhub/server/middleware"
	"github.com/friendhub/server/plugin/hook"
	"github.com/friendhub/server/social"
	"github.com/friendhub/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	base       = "/api"
	testSecret = "rest-test-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 3000, BaseURL: base},
		Security: config.SecurityConfig{
			JWTSecret:      testSecret,
			JWTTTL:         time.Hour,
			PublicPaths:    []string{"/auth/login", "/auth/register", "/health"},
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Presence: config.PresenceConfig{TouchInterval: time.Minute, IdleTimeout: 30 * time.Minute},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

type env struct {
	r  *gin.Engine
	db *gorm.DB
}

// newEnvWithDB boots the full router on db.
func newEnvWithDB(t *testing.T, db *gorm.DB) *env {
	t.Helper()
	return newEnvWith(t, db, testutil.SetupTestCache(t))
}

// newEnvWith boots the full router on db and c.
func newEnvWith(t *testing.T, db *gorm.DB, c cache.Cache) *env {
	t.Helper()
	cfg := testConfig()
	hc := hook.NewHookCenter()
	log := zap.NewNop()
	r, _ := rest.NewRouter(rest.Deps{
		Config:   cfg,
		DB:       db,
		Cache:    c,
		Logger:   log,
		Accounts: account.NewService(db, c, cfg.Security, cfg.Presence, hc, log),
		Social:   social.NewService(db, hc, log),
		Metrics:  metrics.New(),
	})
	return &env{r: r, db: db}
}

func newEnv(t *testing.T) *env {
	return newEnvWithDB(t, testutil.SetupTestDB(t))
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	Code      int             `json:"code"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
}

func (e *env) do(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)

	var out envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func postJSON(t *testing.T, e *env, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	return e.do(t, http.MethodPost, path, body, token)
}

func get(t *testing.T, e *env, path, token string) (*httptest.ResponseRecorder, envelope) {
	return e.do(t, http.MethodGet, path, nil, token)
}

type sessionData struct {
	User struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Avatar   string `json:"avatar"`
		Status   string `json:"status"`
	} `json:"user"`
	Token string `json:"token"`
}

// register creates name with email name@x.io and returns id and token.
func (e *env) register(t *testing.T, name string) (int64, string) {
	t.Helper()
	w, resp := postJSON(t, e, base+"/auth/register", map[string]string{
		"username": name,
		"email":    name + "@x.io",
		"password": "secret1",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var s sessionData
	require.NoError(t, json.Unmarshal(resp.Data, &s))
	return s.User.ID, s.Token
}

func decode(t *testing.T, raw json.RawMessage, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, into), string(raw))
}

func path(format string, args ...interface{}) string {
	return base + fmt.Sprintf(format, args...)
}

func (e *env) doRaw(t *testing.T, method, path string, body io.Reader) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	var out envelope
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func signedToken(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := mw.GenerateToken(userID, "mock@x.io", testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func sqlmockResult() driver.Result {
	return sqlmock.NewResult(0, 1)
}
