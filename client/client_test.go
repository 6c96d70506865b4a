package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/friendhub/server/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeServer is a scripted stand-in for the API. It records every call and
// answers from a small in-memory model.
type fakeServer struct {
	mu       sync.Mutex
	calls    []string
	friends  []Friendship
	requests []Friendship
	failNext map[string]int // path -> status
}

func ok(c *gin.Context, data interface{}, msg string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "code": 200, "data": data})
}

func fail(c *gin.Context, status int, errText string) {
	c.JSON(status, gin.H{"success": false, "message": "request failed", "code": status, "error": errText})
}

func newFakeServer(t *testing.T) (*fakeServer, *Client) {
	t.Helper()
	f := &fakeServer{failNext: map[string]int{}}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		f.mu.Lock()
		f.calls = append(f.calls, c.Request.Method+" "+c.Request.URL.Path)
		status, failing := f.failNext[c.Request.URL.Path]
		delete(f.failNext, c.Request.URL.Path)
		f.mu.Unlock()
		if failing {
			fail(c, status, "scripted failure")
			c.Abort()
			return
		}
		if c.GetHeader("Authorization") != "Bearer tok-1" && c.Request.URL.Path != "/api/auth/login" {
			fail(c, http.StatusUnauthorized, "missing token")
			c.Abort()
			return
		}
		c.Next()
	})
	api := r.Group("/api")
	api.POST("/auth/login", func(c *gin.Context) {
		var body map[string]string
		_ = c.ShouldBindJSON(&body)
		if body["password"] != "secret1" {
			fail(c, http.StatusUnauthorized, "incorrect password")
			return
		}
		ok(c, gin.H{"user": gin.H{"id": 1, "username": "alice", "email": body["email"]}, "token": "tok-1"}, "login successful")
	})
	api.POST("/auth/logout", func(c *gin.Context) { ok(c, nil, "logged out") })
	api.GET("/users/friends", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		ok(c, gin.H{"friends": f.friends, "total": len(f.friends)}, "")
	})
	api.GET("/users/friend-requests", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		ok(c, gin.H{"requests": f.requests, "total": len(f.requests)}, "")
	})
	api.GET("/users/search", func(c *gin.Context) {
		ok(c, gin.H{
			"users":   []model.UserBrief{{ID: 2, Username: c.Query("keyword") + "-match"}},
			"total":   1,
			"page":    1,
			"limit":   10,
			"hasMore": false,
		}, "")
	})
	api.POST("/users/add-friend", func(c *gin.Context) { ok(c, nil, "friend request sent") })
	api.POST("/users/handle-friend-request", func(c *gin.Context) {
		var body struct {
			RequestID int64  `json:"requestId"`
			Action    string `json:"action"`
		}
		_ = c.ShouldBindJSON(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, r := range f.requests {
			if r.ID != body.RequestID {
				continue
			}
			f.requests = append(f.requests[:i], f.requests[i+1:]...)
			if body.Action == "accept" {
				r.Status = model.FriendshipAccepted
				f.friends = append(f.friends, r)
			}
			ok(c, nil, "friend request "+body.Action+"ed")
			return
		}
		fail(c, http.StatusNotFound, "friend request not found or already handled")
	})
	api.DELETE("/users/friends/:id", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, fr := range f.friends {
			if c.Param("id") == jsonInt(fr.ID) {
				f.friends = append(f.friends[:i], f.friends[i+1:]...)
				ok(c, nil, "friend removed")
				return
			}
		}
		fail(c, http.StatusNotFound, "friendship not found")
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, New(Config{BaseURL: srv.URL + "/api/"})
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (f *fakeServer) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeServer) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func pendingFrom(id, from int64, name string) Friendship {
	fr := Friendship{User: model.UserBrief{ID: from, Username: name}}
	fr.ID = id
	fr.InitiatorID = from
	fr.ReceiverID = 1
	fr.Status = model.FriendshipPending
	return fr
}

func login(t *testing.T, c *Client) {
	t.Helper()
	s, err := c.Login(context.Background(), "alice@x.io", "secret1")
	require.NoError(t, err)
	require.Equal(t, "tok-1", s.Token)
}

func TestClient_LoginStoresToken(t *testing.T) {
	_, c := newFakeServer(t)
	login(t, c)
	assert.Equal(t, "tok-1", c.Token())

	require.NoError(t, c.Logout(context.Background()))
	assert.Empty(t, c.Token())
}

func TestClient_APIError(t *testing.T) {
	_, c := newFakeServer(t)

	_, err := c.Login(context.Background(), "alice@x.io", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "incorrect password", apiErr.Error())
	assert.Empty(t, c.Token())

	_, err = c.Friends(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "missing token", apiErr.Detail)
}

func TestClient_NonEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Friends(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "bad gateway", apiErr.Error())
}

func TestStore_SearchBlankQuerySkipsServer(t *testing.T) {
	f, c := newFakeServer(t)
	login(t, c)
	s := NewStore(c, nil)
	ctx := context.Background()

	require.NoError(t, s.SearchUsers(ctx, "al"))
	require.Len(t, s.Snapshot().SearchResults, 1)
	assert.Equal(t, "al-match", s.Snapshot().SearchResults[0].Username)

	f.resetCalls()
	require.NoError(t, s.SearchUsers(ctx, "   "))
	assert.Empty(t, s.Snapshot().SearchResults)
	assert.Empty(t, f.callLog())
}

func TestStore_AcceptRefetchesBothLists(t *testing.T) {
	f, c := newFakeServer(t)
	login(t, c)
	f.requests = []Friendship{pendingFrom(10, 2, "bob"), pendingFrom(11, 3, "carl")}
	s := NewStore(c, nil)
	ctx := context.Background()

	require.NoError(t, s.FetchFriendRequests(ctx))
	require.Len(t, s.Snapshot().FriendRequests, 2)

	f.resetCalls()
	require.NoError(t, s.AcceptFriendRequest(ctx, 10))
	assert.Equal(t, []string{
		"POST /api/users/handle-friend-request",
		"GET /api/users/friends",
		"GET /api/users/friend-requests",
	}, f.callLog())

	st := s.Snapshot()
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.Error)
	require.Len(t, st.Friends, 1)
	assert.Equal(t, "bob", st.FriendUsers()[0].Username)
	require.Len(t, st.FriendRequests, 1)
	assert.Equal(t, int64(11), st.FriendRequests[0].ID)
}

func TestStore_RejectRefetchesRequestsOnly(t *testing.T) {
	f, c := newFakeServer(t)
	login(t, c)
	f.requests = []Friendship{pendingFrom(10, 2, "bob")}
	s := NewStore(c, nil)

	f.resetCalls()
	require.NoError(t, s.RejectFriendRequest(context.Background(), 10))
	assert.Equal(t, []string{
		"POST /api/users/handle-friend-request",
		"GET /api/users/friend-requests",
	}, f.callLog())
	assert.Empty(t, s.Snapshot().FriendRequests)
	assert.Empty(t, s.Snapshot().Friends)
}

func TestStore_DeleteRefetchesFriends(t *testing.T) {
	f, c := newFakeServer(t)
	login(t, c)
	fr := pendingFrom(20, 2, "bob")
	fr.Status = model.FriendshipAccepted
	f.friends = []Friendship{fr}
	s := NewStore(c, nil)
	ctx := context.Background()

	require.NoError(t, s.FetchFriends(ctx))
	require.Len(t, s.Snapshot().Friends, 1)

	f.resetCalls()
	require.NoError(t, s.DeleteFriend(ctx, 20))
	assert.Equal(t, []string{"DELETE /api/users/friends/20", "GET /api/users/friends"}, f.callLog())
	assert.Empty(t, s.Snapshot().Friends)
}

func TestStore_FailureKeepsListsAndRecordsError(t *testing.T) {
	f, c := newFakeServer(t)
	login(t, c)
	f.requests = []Friendship{pendingFrom(10, 2, "bob")}
	s := NewStore(c, nil)
	ctx := context.Background()
	require.NoError(t, s.FetchFriendRequests(ctx))

	err := s.AcceptFriendRequest(ctx, 99)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))

	st := s.Snapshot()
	assert.False(t, st.IsLoading)
	assert.Equal(t, "friend request not found or already handled", st.Error)
	assert.Len(t, st.FriendRequests, 1, "no rollback or optimistic change on failure")

	s.ResetError()
	assert.Empty(t, s.Snapshot().Error)

	// A later successful action clears the error itself.
	f.failNext["/api/users/add-friend"] = http.StatusBadRequest
	require.Error(t, s.SendFriendRequest(ctx, 2))
	assert.Equal(t, "scripted failure", s.Snapshot().Error)
	require.NoError(t, s.SendFriendRequest(ctx, 2))
	assert.Empty(t, s.Snapshot().Error)
}

func TestStore_RefetchFailureAfterMutation(t *testing.T) {
	f, c := newFakeServer(t)
	login(t, c)
	f.requests = []Friendship{pendingFrom(10, 2, "bob")}
	f.failNext["/api/users/friends"] = http.StatusInternalServerError
	s := NewStore(c, nil)

	err := s.AcceptFriendRequest(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, "scripted failure", s.Snapshot().Error)
	assert.False(t, s.Snapshot().IsLoading)
}

func TestStore_TransportFailureUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	s := NewStore(New(Config{BaseURL: srv.URL + "/api"}), nil)
	ctx := context.Background()

	require.Error(t, s.FetchFriends(ctx))
	assert.Equal(t, msgFetchFriends, s.Snapshot().Error)
	assert.False(t, s.Snapshot().IsLoading)

	require.Error(t, s.SearchUsers(ctx, "al"))
	assert.Equal(t, msgSearch, s.Snapshot().Error)

	require.Error(t, s.DeleteFriend(ctx, 3))
	assert.Equal(t, msgDeleteFriend, s.Snapshot().Error)
}
