// Package account owns registration, login, logout and presence bookkeeping.
package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/friendhub/server/cache"
	"github.com/friendhub/server/config"
	dbadapter "github.com/friendhub/server/db"
	mw "github.com/friendhub/server/middleware"
	"github.com/friendhub/server/model"
	"github.com/friendhub/server/plugin/hook"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 10

const defaultAvatarURL = "https://api.dicebear.com/6.x/avataaars/svg?seed="

// Errors returned to handlers. Their text is what clients see.
var (
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")
	ErrPhoneTaken    = errors.New("phone already registered")
	ErrNoSuchUser    = errors.New("no such user")
	ErrBadPassword   = errors.New("password does not match")
	ErrUserNotFound  = errors.New("user not found")
)

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Phone    string // optional
	Avatar   string // optional; a generated avatar is used when empty
}

// Session is a user together with a freshly issued token.
type Session struct {
	User  *model.User
	Token string
}

// Service implements account operations on top of gorm.
type Service struct {
	db       *gorm.DB
	cache    cache.Cache
	sec      config.SecurityConfig
	presence config.PresenceConfig
	hooks    *hook.HookCenter
	logger   *zap.Logger
}

// NewService creates an account Service. hooks may be nil.
func NewService(db *gorm.DB, c cache.Cache, sec config.SecurityConfig, presence config.PresenceConfig,
	hooks *hook.HookCenter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, cache: c, sec: sec, presence: presence, hooks: hooks, logger: logger}
}

// DefaultAvatar returns the generated avatar URL for username.
func DefaultAvatar(username string) string {
	return defaultAvatarURL + username
}

// Register creates an online user and signs a token for it. Email, username
// and phone are checked for duplicates in that order.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	db := s.db.WithContext(ctx)
	if err := s.checkDuplicates(db, in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Avatar:       in.Avatar,
		Status:       model.UserStatusOnline,
		LastActiveAt: &now,
	}
	if user.Avatar == "" {
		user.Avatar = DefaultAvatar(in.Username)
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		user.Phone = &phone
	}

	if err := db.Create(user).Error; err != nil {
		if dbadapter.IsUniqueViolation(err) {
			// Lost a race against a concurrent registration; report which field.
			if dupErr := s.checkDuplicates(db, in); dupErr != nil {
				return nil, dupErr
			}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	token, err := mw.GenerateToken(user.ID, user.Email, s.sec.JWTSecret, s.sec.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	s.emit(ctx, &hook.Event{Name: hook.UserRegister, UserID: user.ID, TargetID: user.ID,
		Detail: map[string]interface{}{"username": user.Username}})
	return &Session{User: user, Token: token}, nil
}

func (s *Service) checkDuplicates(db *gorm.DB, in RegisterInput) error {
	checks := []struct {
		column string
		value  string
		err    error
	}{
		{"email", in.Email, ErrEmailTaken},
		{"username", in.Username, ErrUsernameTaken},
		{"phone", strings.TrimSpace(in.Phone), ErrPhoneTaken},
	}
	for _, chk := range checks {
		if chk.value == "" {
			continue
		}
		var n int64
		if err := db.Model(&model.User{}).Where(chk.column+" = ?", chk.value).Count(&n).Error; err != nil {
			return fmt.Errorf("check %s: %w", chk.column, err)
		}
		if n > 0 {
			return chk.err
		}
	}
	return nil
}

// Login verifies credentials, marks the user online and signs a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	db := s.db.WithContext(ctx)
	var user model.User
	err := db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSuchUser
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadPassword
	}

	token, err := mw.GenerateToken(user.ID, user.Email, s.sec.JWTSecret, s.sec.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	now := time.Now()
	if err := s.setPresence(db, user.ID, model.UserStatusOnline, now); err != nil {
		return nil, err
	}
	user.Status = model.UserStatusOnline
	user.LastActiveAt = &now

	s.emit(ctx, &hook.Event{Name: hook.UserLogin, UserID: user.ID, TargetID: user.ID})
	return &Session{User: &user, Token: token}, nil
}

// Logout marks the user offline. Token revocation is the caller's concern.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	if err := s.setPresence(s.db.WithContext(ctx), userID, model.UserStatusOffline, time.Now()); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, activityKey(userID))
	}
	s.emit(ctx, &hook.Event{Name: hook.UserLogout, UserID: userID, TargetID: userID})
	return nil
}

func (s *Service) setPresence(db *gorm.DB, userID int64, status string, at time.Time) error {
	err := db.Model(&model.User{}).Where("id = ?", userID).UpdateColumns(map[string]interface{}{
		"status":         status,
		"last_active_at": at,
		"updated_at":     at,
	}).Error
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

func activityKey(userID int64) string {
	return "active:" + strconv.FormatInt(userID, 10)
}

// RecordActivity refreshes lastActiveAt and marks the user online, at most
// once per touch interval per user.
func (s *Service) RecordActivity(ctx context.Context, userID int64) error {
	if s.cache != nil && s.presence.TouchInterval > 0 {
		first, err := s.cache.SetNX(ctx, activityKey(userID), "1", s.presence.TouchInterval)
		if err != nil {
			return fmt.Errorf("throttle activity: %w", err)
		}
		if !first {
			return nil
		}
	}
	return s.setPresence(s.db.WithContext(ctx), userID, model.UserStatusOnline, time.Now())
}

// SweepIdle marks online users offline when they have been inactive for
// longer than the idle timeout. It returns the number of users changed.
func (s *Service) SweepIdle(ctx context.Context, now time.Time) (int64, error) {
	if s.presence.IdleTimeout <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.presence.IdleTimeout)
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("status = ? AND (last_active_at IS NULL OR last_active_at < ?)", model.UserStatusOnline, cutoff).
		UpdateColumns(map[string]interface{}{
			"status":     model.UserStatusOffline,
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep idle: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Get loads one user by id.
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return &user, nil
}

func (s *Service) emit(ctx context.Context, ev *hook.Event) {
	if err := s.hooks.Emit(ctx, ev); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", ev.Name), zap.Error(err))
	}
}
