// Package client is a Go client for the social API plus a small state store
// that mirrors the caller's friend and friend-request lists.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/friendhub/server/model"
)

// APIError is a failure envelope returned by the server.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.StatusCode)
}

// Config holds client configuration.
type Config struct {
	// BaseURL is the server origin plus the API prefix, e.g. http://host:3000/api.
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client speaks the social HTTP API and keeps the session token.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a new Client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
	}
}

// Token returns the stored session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the stored session token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// =============================================================================
// Wire types
// =============================================================================

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Session is the result of a login or registration.
type Session struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

// RegisterRequest is the body of a registration.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

// Friendship is a friendship row with the other party attached.
type Friendship struct {
	model.Friendship
	User model.UserBrief `json:"user"`
}

// SearchPage is one page of user search results.
type SearchPage struct {
	Users   []model.UserBrief `json:"users"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	Limit   int               `json:"limit"`
	HasMore bool              `json:"hasMore"`
}

// =============================================================================
// Transport
// =============================================================================

// do sends one request and decodes the envelope's data into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message, Detail: env.Error}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// =============================================================================
// Auth
// =============================================================================

// Login authenticates and stores the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/auth/register", in, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

// Logout ends the session server-side. The local token is dropped even when
// the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.SetToken("")
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// =============================================================================
// Users
// =============================================================================

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// User returns the public profile of id.
func (c *Client) User(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/users/"+strconv.FormatInt(id, 10), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SearchUsers runs a paged keyword search. Zero page or limit leaves the
// server default.
func (c *Client) SearchUsers(ctx context.Context, keyword string, page, limit int) (*SearchPage, error) {
	q := url.Values{}
	q.Set("keyword", keyword)
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var p SearchPage
	if err := c.do(ctx, http.MethodGet, "/users/search?"+q.Encode(), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// Friendships
// =============================================================================

// Friends lists accepted friendships.
func (c *Client) Friends(ctx context.Context) ([]Friendship, error) {
	var out struct {
		Friends []Friendship `json:"friends"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/friends", nil, &out); err != nil {
		return nil, err
	}
	return out.Friends, nil
}

// FriendRequests lists pending requests addressed to the caller.
func (c *Client) FriendRequests(ctx context.Context) ([]Friendship, error) {
	var out struct {
		Requests []Friendship `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/friend-requests", nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// AddFriend sends a friend request to userID.
func (c *Client) AddFriend(ctx context.Context, userID int64, message string) error {
	body := map[string]interface{}{"userId": userID}
	if message != "" {
		body["message"] = message
	}
	return c.do(ctx, http.MethodPost, "/users/add-friend", body, nil)
}

// HandleFriendRequest answers a pending request with accept, reject or block.
func (c *Client) HandleFriendRequest(ctx context.Context, requestID int64, action string) error {
	body := map[string]interface{}{"requestId": requestID, "action": action}
	return c.do(ctx, http.MethodPost, "/users/handle-friend-request", body, nil)
}

// DeleteFriend removes an accepted friendship by its row id.
func (c *Client) DeleteFriend(ctx context.Context, friendshipID int64) error {
	return c.do(ctx, http.MethodDelete, "/users/friends/"+strconv.FormatInt(friendshipID, 10), nil, nil)
}
