package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/friendhub/server/account"
	apirest "github.com/friendhub/server/api/rest"
	"github.com/friendhub/server/audit"
	"github.com/friendhub/server/cache"
	"github.com/friendhub/server/client"
	"github.com/friendhub/server/config"
	"github.com/friendhub/server/metrics"
	"github.com/friendhub/server/plugin/hook"
	"github.com/friendhub/server/scheduler"
	"github.com/friendhub/server/social"
	"github.com/friendhub/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BaseURL is the API prefix the test server mounts its routes under.
const BaseURL = "/api"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	Config   *config.Config
	DB       *gorm.DB
	Cache    cache.Cache
	Hooks    *hook.HookCenter
	Audit    *audit.Service
	Metrics  *metrics.Metrics
	Accounts *account.Service
	Sched    *scheduler.Scheduler
	Server   *httptest.Server
	URL      string // http://127.0.0.1:<port>
}

// TestConfig returns the configuration NewTestServer boots with.
func TestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 3000, BaseURL: BaseURL, ShutdownTimeout: 5 * time.Second},
		Security: config.SecurityConfig{
			JWTSecret:      "integration-test-secret",
			JWTTTL:         72 * time.Hour,
			PublicPaths:    []string{"/auth/login", "/auth/register", "/health"},
			AllowedOrigins: []string{"*"},
		},
		Presence: config.PresenceConfig{
			TouchInterval: time.Minute,
			IdleTimeout:   30 * time.Minute,
		},
		Audit:   config.AuditConfig{Retention: 720 * time.Hour},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	return NewTestServerWithConfig(t, TestConfig())
}

// NewTestServerWithConfig is NewTestServer with a caller-supplied config.
func NewTestServerWithConfig(t *testing.T, cfg *config.Config) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	// ---- Events ----
	hooks := hook.NewHookCenter()
	auditSvc := audit.New(db, logger)
	auditSvc.Subscribe(hooks)
	m := metrics.New()
	m.Subscribe(hooks)

	// ---- Services ----
	accounts := account.NewService(db, c, cfg.Security, cfg.Presence, hooks, logger)
	socialSvc := social.NewService(db, hooks, logger)

	sched := scheduler.New(logger, m)
	scheduler.RegisterMaintenance(sched, cfg.Presence, cfg.Audit, accounts, auditSvc)

	r, _ := apirest.NewRouter(apirest.Deps{
		Config:   cfg,
		DB:       db,
		Cache:    c,
		Logger:   logger,
		Accounts: accounts,
		Social:   socialSvc,
		Metrics:  m,
	})

	// ---- Start server ----
	server := httptest.NewServer(r)
	return &TestServer{
		Config:   cfg,
		DB:       db,
		Cache:    c,
		Hooks:    hooks,
		Audit:    auditSvc,
		Metrics:  m,
		Accounts: accounts,
		Sched:    sched,
		Server:   server,
		URL:      server.URL,
	}
}

// Close shuts down the test server and its background workers.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Sched.Stop()
	ts.Audit.Stop(context.Background())
}

// Client returns an API client pointed at the test server.
func (ts *TestServer) Client() *client.Client {
	return client.New(client.Config{BaseURL: ts.URL + ts.Config.Server.BaseURL})
}

// --- HTTP helpers ---

// Envelope is the JSON wrapper every API response uses.
type Envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
	Code      int             `json:"code"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
}

// Do sends a request with an optional JSON body and Bearer token. path is
// relative to the API base URL.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+ts.Config.Server.BaseURL+path, bodyReader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, token)
}

// Delete sends a DELETE request with optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodDelete, path, nil, token)
}

// ReadEnvelope reads and decodes a response envelope, optionally decoding
// its data into target.
func ReadEnvelope(t *testing.T, resp *http.Response, target interface{}) Envelope {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env), "body: %s", string(data))
	if target != nil {
		require.NoError(t, json.Unmarshal(env.Data, target), "data: %s", string(env.Data))
	}
	return env
}

// --- Auth helpers ---

type session struct {
	User struct {
		ID int64 `json:"id"`
	} `json:"user"`
	Token string `json:"token"`
}

// Register creates an account named username and returns its token and id.
func (ts *TestServer) Register(t *testing.T, username, password string) (token string, userID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.test",
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s session
	ReadEnvelope(t, resp, &s)
	return s.Token, s.User.ID
}

// Login authenticates by email and returns the token and user id.
func (ts *TestServer) Login(t *testing.T, email, password string) (token string, userID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s session
	ReadEnvelope(t, resp, &s)
	return s.Token, s.User.ID
}

var testCounter uint64

// UniqueID returns a name unique within the test binary.
func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
