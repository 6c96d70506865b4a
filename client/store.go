package client

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/friendhub/server/model"
	"go.uber.org/zap"
)

// Fallback texts for failures that never produced a server answer.
const (
	msgFetchFriends  = "failed to load friends"
	msgFetchRequests = "failed to load friend requests"
	msgSearch        = "failed to search users"
	msgSendRequest   = "failed to send friend request"
	msgAcceptRequest = "failed to accept friend request"
	msgRejectRequest = "failed to reject friend request"
	msgDeleteFriend  = "failed to remove friend"
)

const defaultSearchPage = 1

// State is a snapshot of the store.
type State struct {
	Friends        []Friendship
	FriendRequests []Friendship
	SearchResults  []model.UserBrief
	IsLoading      bool
	Error          string
}

// FriendUsers returns the other party of each friendship.
func (s State) FriendUsers() []model.UserBrief {
	out := make([]model.UserBrief, len(s.Friends))
	for i := range s.Friends {
		out[i] = s.Friends[i].User
	}
	return out
}

// Store mirrors the caller's friend lists. Each action runs to completion
// before the next starts; there is no optimistic update or rollback, so a
// failed action leaves the lists as they were and records Error.
type Store struct {
	api    *Client
	logger *zap.Logger

	op    sync.Mutex // serializes actions
	mu    sync.RWMutex
	state State
}

// NewStore creates a Store on top of api.
func NewStore(api *Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{api: api, logger: logger}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Friends = append([]Friendship(nil), st.Friends...)
	st.FriendRequests = append([]Friendship(nil), st.FriendRequests...)
	st.SearchResults = append([]model.UserBrief(nil), st.SearchResults...)
	return st
}

func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}

func (s *Store) begin() {
	s.update(func(st *State) {
		st.IsLoading = true
		st.Error = ""
	})
}

func (s *Store) done() {
	s.update(func(st *State) { st.IsLoading = false })
}

func (s *Store) fail(action, fallback string, err error) error {
	msg := fallback
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Error()
	}
	s.logger.Warn("store action failed", zap.String("action", action), zap.Error(err))
	s.update(func(st *State) {
		st.IsLoading = false
		st.Error = msg
	})
	return err
}

// ResetError clears the recorded error.
func (s *Store) ResetError() {
	s.update(func(st *State) { st.Error = "" })
}

// FetchFriends reloads the friend list.
func (s *Store) FetchFriends(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.fetchFriends(ctx)
}

func (s *Store) fetchFriends(ctx context.Context) error {
	s.begin()
	friends, err := s.api.Friends(ctx)
	if err != nil {
		return s.fail("fetch_friends", msgFetchFriends, err)
	}
	s.update(func(st *State) {
		st.Friends = friends
		st.IsLoading = false
	})
	return nil
}

// FetchFriendRequests reloads the pending requests addressed to the caller.
func (s *Store) FetchFriendRequests(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.fetchRequests(ctx)
}

func (s *Store) fetchRequests(ctx context.Context) error {
	s.begin()
	reqs, err := s.api.FriendRequests(ctx)
	if err != nil {
		return s.fail("fetch_friend_requests", msgFetchRequests, err)
	}
	s.update(func(st *State) {
		st.FriendRequests = reqs
		st.IsLoading = false
	})
	return nil
}

// SearchUsers replaces the search results with the first page for query.
// A blank query clears the results without calling the server.
func (s *Store) SearchUsers(ctx context.Context, query string) error {
	s.op.Lock()
	defer s.op.Unlock()
	if strings.TrimSpace(query) == "" {
		s.update(func(st *State) { st.SearchResults = nil })
		return nil
	}
	s.begin()
	page, err := s.api.SearchUsers(ctx, query, defaultSearchPage, 0)
	if err != nil {
		return s.fail("search_users", msgSearch, err)
	}
	s.update(func(st *State) {
		st.SearchResults = page.Users
		st.IsLoading = false
	})
	return nil
}

// SendFriendRequest asks userID to become a friend.
func (s *Store) SendFriendRequest(ctx context.Context, userID int64) error {
	s.op.Lock()
	defer s.op.Unlock()
	s.begin()
	if err := s.api.AddFriend(ctx, userID, ""); err != nil {
		return s.fail("send_friend_request", msgSendRequest, err)
	}
	s.done()
	return nil
}

// AcceptFriendRequest accepts requestID, then reloads friends and requests.
func (s *Store) AcceptFriendRequest(ctx context.Context, requestID int64) error {
	s.op.Lock()
	defer s.op.Unlock()
	s.begin()
	if err := s.api.HandleFriendRequest(ctx, requestID, "accept"); err != nil {
		return s.fail("accept_friend_request", msgAcceptRequest, err)
	}
	if err := s.fetchFriends(ctx); err != nil {
		return err
	}
	if err := s.fetchRequests(ctx); err != nil {
		return err
	}
	s.done()
	return nil
}

// RejectFriendRequest rejects requestID, then reloads requests.
func (s *Store) RejectFriendRequest(ctx context.Context, requestID int64) error {
	s.op.Lock()
	defer s.op.Unlock()
	s.begin()
	if err := s.api.HandleFriendRequest(ctx, requestID, "reject"); err != nil {
		return s.fail("reject_friend_request", msgRejectRequest, err)
	}
	if err := s.fetchRequests(ctx); err != nil {
		return err
	}
	s.done()
	return nil
}

// DeleteFriend removes friendshipID, then reloads friends.
func (s *Store) DeleteFriend(ctx context.Context, friendshipID int64) error {
	s.op.Lock()
	defer s.op.Unlock()
	s.begin()
	if err := s.api.DeleteFriend(ctx, friendshipID); err != nil {
		return s.fail("delete_friend", msgDeleteFriend, err)
	}
	if err := s.fetchFriends(ctx); err != nil {
		return err
	}
	s.done()
	return nil
}
