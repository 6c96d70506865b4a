package rest

import (
	"errors"
	"net/http"

	"github.com/friendhub/server/account"
	"github.com/friendhub/server/api/response"
	mw "github.com/friendhub/server/middleware"
	"github.com/friendhub/server/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler handles authentication REST endpoints.
type AuthHandler struct {
	accounts *account.Service
	guard    *mw.Guard
	log      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts *account.Service, guard *mw.Guard, log *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, guard: guard, log: log}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Email    string `json:"email" binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	Phone    string `json:"phone" binding:"omitempty,max=32"`
	Avatar   string `json:"avatar" binding:"omitempty,url,max=255"`
}

type sessionUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
	Status   string `json:"status"`
}

type sessionResponse struct {
	User  sessionUser `json:"user"`
	Token string      `json:"token"`
}

func newSessionResponse(u *model.User, token string) sessionResponse {
	return sessionResponse{
		User: sessionUser{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
			Avatar:   u.Avatar,
			Status:   u.Status,
		},
		Token: token,
	}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.ValidationMessage(err))
		return
	}

	sess, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, account.ErrNoSuchUser), errors.Is(err, account.ErrBadPassword):
		response.Error(c, http.StatusUnauthorized, err.Error(), "")
		return
	case err != nil:
		failInternal(c, h.log, err, "login failed, please try again later")
		return
	}
	response.OK(c, newSessionResponse(sess.User, sess.Token), "login successful")
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.ValidationMessage(err))
		return
	}

	sess, err := h.accounts.Register(c.Request.Context(), account.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Avatar:   req.Avatar,
	})
	switch {
	case errors.Is(err, account.ErrEmailTaken),
		errors.Is(err, account.ErrUsernameTaken),
		errors.Is(err, account.ErrPhoneTaken):
		response.Error(c, http.StatusBadRequest, err.Error(), "")
		return
	case err != nil:
		failInternal(c, h.log, err, "registration failed, please try again later")
		return
	}
	response.OK(c, newSessionResponse(sess.User, sess.Token), "registration successful")
}

// Logout handles POST /auth/logout. The presented token is revoked for the
// rest of its lifetime.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, token, ok := mw.GetIdentity(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	// Revoke first: a failed revocation leaves the session fully intact.
	if err := h.guard.Revoke(c.Request.Context(), token, claims); err != nil {
		failInternal(c, h.log, err, "logout failed")
		return
	}
	if err := h.accounts.Logout(c.Request.Context(), claims.UserID); err != nil {
		failInternal(c, h.log, err, "logout failed")
		return
	}
	response.OK(c, nil, "logged out")
}
