package rest

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/friendhub/server/api/response"
	dbadapter "github.com/friendhub/server/db"
	mw "github.com/friendhub/server/middleware"
	"github.com/friendhub/server/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// UserHandler serves user directory and profile endpoints.
type UserHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB, log *zap.Logger) *UserHandler {
	return &UserHandler{db: db, log: log}
}

type userListItem struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type userProfile struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Avatar       string     `json:"avatar"`
	Bio          string     `json:"bio"`
	Status       string     `json:"status"`
	LastActiveAt *time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type ownProfile struct {
	userProfile
	Phone     *string   `json:"phone"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newProfile(u *model.User) userProfile {
	return userProfile{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Avatar:       u.Avatar,
		Bio:          u.Bio,
		Status:       u.Status,
		LastActiveAt: u.LastActiveAt,
		CreatedAt:    u.CreatedAt,
	}
}

// GetAll handles GET /users/all.
func (h *UserHandler) GetAll(c *gin.Context) {
	var users []model.User
	err := h.db.WithContext(c.Request.Context()).
		Select("id", "username", "email", "avatar", "status", "created_at").
		Order("id").
		Find(&users).Error
	if err != nil {
		failInternal(c, h.log, err, "failed to list users")
		return
	}
	items := make([]userListItem, len(users))
	for i, u := range users {
		items[i] = userListItem{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			Avatar:    u.Avatar,
			Status:    u.Status,
			CreatedAt: u.CreatedAt,
		}
	}
	response.OK(c, gin.H{"users": items, "total": len(items)}, "")
}

// GetByID handles GET /users/:id.
func (h *UserHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, "id", "invalid user id")
	if !ok {
		return
	}
	user, ok := h.load(c, id)
	if !ok {
		return
	}
	response.OK(c, newProfile(user), "")
}

// Me handles GET /users/me.
func (h *UserHandler) Me(c *gin.Context) {
	uid, ok := requireUser(c)
	if !ok {
		return
	}
	user, ok := h.load(c, uid)
	if !ok {
		return
	}
	response.OK(c, ownProfile{
		userProfile: newProfile(user),
		Phone:       user.Phone,
		UpdatedAt:   user.UpdatedAt,
	}, "")
}

func (h *UserHandler) load(c *gin.Context, id int64) (*model.User, bool) {
	var user model.User
	err := h.db.WithContext(c.Request.Context()).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.NotFound(c, "user not found")
		return nil, false
	}
	if err != nil {
		failInternal(c, h.log, err, "failed to load user")
		return nil, false
	}
	return &user, true
}

// positiveQuery reads an optional positive integer query parameter.
func positiveQuery(c *gin.Context, name string, def int) (int, bool) {
	raw, present := c.GetQuery(name)
	if !present || raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		response.BadRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

// Search handles GET /users/search?keyword=&page=&limit=. The match is a
// case-sensitive substring of username or email; the caller, when known, is
// left out of the results.
func (h *UserHandler) Search(c *gin.Context) {
	page, ok := positiveQuery(c, "page", defaultPage)
	if !ok {
		return
	}
	limit, ok := positiveQuery(c, "limit", defaultLimit)
	if !ok {
		return
	}
	if page-1 > math.MaxInt/limit {
		response.BadRequest(c, "page is out of range")
		return
	}
	keyword := c.Query("keyword")
	skip := (page - 1) * limit

	db := h.db.WithContext(c.Request.Context())
	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&model.User{})
		if keyword != "" {
			tx = tx.Where(
				"("+dbadapter.ContainsExpr(tx, "username")+" OR "+dbadapter.ContainsExpr(tx, "email")+")",
				keyword, keyword,
			)
		}
		if uid := mw.GetUserID(c); uid != 0 {
			tx = tx.Where("id <> ?", uid)
		}
		return tx
	}

	var total int64
	if err := db.Scopes(scope).Count(&total).Error; err != nil {
		failInternal(c, h.log, err, "failed to search users")
		return
	}
	var users []model.User
	err := db.Scopes(scope).
		Select("id", "username", "avatar", "status").
		Order("id").
		Offset(skip).Limit(limit).
		Find(&users).Error
	if err != nil {
		failInternal(c, h.log, err, "failed to search users")
		return
	}

	briefs := make([]model.UserBrief, len(users))
	for i := range users {
		briefs[i] = users[i].Brief()
	}
	response.OK(c, gin.H{
		"users":   briefs,
		"total":   total,
		"page":    page,
		"limit":   limit,
		"hasMore": int64(skip+len(users)) < total,
	}, "")
}
