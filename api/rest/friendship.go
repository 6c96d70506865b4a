package rest

import (
	"errors"
	"net/http"

	"github.com/friendhub/server/api/response"
	"github.com/friendhub/server/model"
	"github.com/friendhub/server/social"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FriendshipHandler serves friend list, request and removal endpoints.
type FriendshipHandler struct {
	social *social.Service
	log    *zap.Logger
}

// NewFriendshipHandler creates a new FriendshipHandler.
func NewFriendshipHandler(svc *social.Service, log *zap.Logger) *FriendshipHandler {
	return &FriendshipHandler{social: svc, log: log}
}

type addFriendRequest struct {
	UserID  int64  `json:"userId" binding:"required,gt=0"`
	Message string `json:"message" binding:"max=255"`
}

type handleRequestBody struct {
	RequestID int64  `json:"requestId" binding:"required,gt=0"`
	Action    string `json:"action" binding:"required,oneof=accept reject block"`
}

var handledMessages = map[model.FriendshipStatus]string{
	model.FriendshipAccepted: "friend request accepted",
	model.FriendshipRejected: "friend request rejected",
	model.FriendshipBlocked:  "user blocked",
}

// conflict answers a business-rule failure from the social service.
func (h *FriendshipHandler) conflict(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, social.ErrUserNotFound),
		errors.Is(err, social.ErrRequestNotFound),
		errors.Is(err, social.ErrFriendshipNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, social.ErrSelfFriend),
		errors.Is(err, social.ErrAlreadyFriends),
		errors.Is(err, social.ErrRequestPending),
		errors.Is(err, social.ErrBlocked),
		errors.Is(err, social.ErrUnknownAction):
		response.Error(c, http.StatusBadRequest, err.Error(), "")
	default:
		return false
	}
	return true
}

// Friends handles GET /users/friends.
func (h *FriendshipHandler) Friends(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	friends, err := h.social.Friends(c.Request.Context(), uid)
	if err != nil {
		failInternal(c, h.log, err, "failed to load friends")
		return
	}
	response.OK(c, gin.H{"friends": friends, "total": len(friends)}, "")
}

// Requests handles GET /users/friend-requests.
func (h *FriendshipHandler) Requests(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	reqs, err := h.social.Requests(c.Request.Context(), uid)
	if err != nil {
		failInternal(c, h.log, err, "failed to load friend requests")
		return
	}
	response.OK(c, gin.H{"requests": reqs, "total": len(reqs)}, "")
}

// Add handles POST /users/add-friend.
func (h *FriendshipHandler) Add(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	var req addFriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.ValidationMessage(err))
		return
	}
	if _, err := h.social.AddFriend(c.Request.Context(), uid, req.UserID, req.Message); err != nil {
		if !h.conflict(c, err) {
			failInternal(c, h.log, err, "failed to add friend")
		}
		return
	}
	response.OK(c, nil, "friend request sent")
}

// Handle handles POST /users/handle-friend-request.
func (h *FriendshipHandler) Handle(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	var req handleRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.ValidationMessage(err))
		return
	}
	status, err := h.social.HandleRequest(c.Request.Context(), uid, req.RequestID, social.Action(req.Action))
	if err != nil {
		if !h.conflict(c, err) {
			failInternal(c, h.log, err, "failed to handle friend request")
		}
		return
	}
	response.OK(c, nil, handledMessages[status])
}

// Delete handles DELETE /users/friends/:id.
func (h *FriendshipHandler) Delete(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "invalid friendship id")
	if !ok {
		return
	}
	if err := h.social.DeleteFriend(c.Request.Context(), uid, id); err != nil {
		if !h.conflict(c, err) {
			failInternal(c, h.log, err, "failed to remove friend")
		}
		return
	}
	response.OK(c, nil, "friend removed")
}
