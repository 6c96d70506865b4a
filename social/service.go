// Package social implements the friendship lifecycle: request, answer,
// list and remove.
package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbadapter "github.com/friendhub/server/db"
	"github.com/friendhub/server/model"
	"github.com/friendhub/server/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Errors returned to handlers. Their text is what clients see.
var (
	ErrSelfFriend         = errors.New("cannot add yourself as a friend")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyFriends     = errors.New("already friends")
	ErrRequestPending     = errors.New("friend request already sent, waiting for acceptance")
	ErrBlocked            = errors.New("cannot add this user as a friend")
	ErrRequestNotFound    = errors.New("friend request not found or already handled")
	ErrFriendshipNotFound = errors.New("friendship not found")
	ErrUnknownAction      = errors.New("action must be one of: accept, reject, block")
)

// Action is the receiver's answer to a pending request.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionBlock  Action = "block"
)

// Status maps the action to the row status it produces.
func (a Action) Status() (model.FriendshipStatus, error) {
	switch a {
	case ActionAccept:
		return model.FriendshipAccepted, nil
	case ActionReject:
		return model.FriendshipRejected, nil
	case ActionBlock:
		return model.FriendshipBlocked, nil
	}
	return "", ErrUnknownAction
}

// Entry is a friendship row together with the counterpart user.
type Entry struct {
	model.Friendship
	Initiator *model.UserBrief `json:"initiator,omitempty"`
	Receiver  *model.UserBrief `json:"receiver,omitempty"`
	User      model.UserBrief  `json:"user"`
}

// Service implements friendship operations on top of gorm.
type Service struct {
	db     *gorm.DB
	hooks  *hook.HookCenter
	logger *zap.Logger
}

// NewService creates a social Service. hooks may be nil.
func NewService(db *gorm.DB, hooks *hook.HookCenter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, hooks: hooks, logger: logger}
}

// conflictFor maps the status of an existing pair row to the error a new
// request for that pair produces.
func conflictFor(status model.FriendshipStatus) error {
	switch status {
	case model.FriendshipAccepted:
		return ErrAlreadyFriends
	case model.FriendshipBlocked:
		return ErrBlocked
	default:
		return ErrRequestPending
	}
}

func (s *Service) findPair(db *gorm.DB, a, b int64) (*model.Friendship, error) {
	low, high := model.PairKey(a, b)
	var row model.Friendship
	err := db.Where("pair_low = ? AND pair_high = ?", low, high).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find friendship: %w", err)
	}
	return &row, nil
}

// AddFriend sends a friend request from userID to targetID. A previously
// rejected pair is re-opened as a new pending request from userID.
func (s *Service) AddFriend(ctx context.Context, userID, targetID int64, message string) (*model.Friendship, error) {
	if userID == targetID {
		return nil, ErrSelfFriend
	}
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&model.User{}).Where("id = ?", targetID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("find target: %w", err)
	}
	if n == 0 {
		return nil, ErrUserNotFound
	}

	existing, err := s.findPair(db, userID, targetID)
	if err != nil {
		return nil, err
	}

	var row *model.Friendship
	if existing != nil {
		if existing.Status != model.FriendshipRejected {
			return nil, conflictFor(existing.Status)
		}
		row, err = s.reopen(db, existing, userID, targetID, message)
	} else {
		row, err = s.create(db, userID, targetID, message)
	}
	if err != nil {
		return nil, err
	}

	s.emit(ctx, &hook.Event{Name: hook.FriendRequest, UserID: userID, TargetID: targetID,
		Detail: map[string]interface{}{"friendshipId": row.ID}})
	return row, nil
}

func (s *Service) create(db *gorm.DB, userID, targetID int64, message string) (*model.Friendship, error) {
	row := &model.Friendship{
		InitiatorID: userID,
		ReceiverID:  targetID,
		Status:      model.FriendshipPending,
		Message:     message,
	}
	err := db.Create(row).Error
	if err == nil {
		return row, nil
	}
	if !dbadapter.IsUniqueViolation(err) {
		return nil, fmt.Errorf("create friendship: %w", err)
	}
	// A concurrent request for the same pair won the insert.
	winner, findErr := s.findPair(db, userID, targetID)
	if findErr != nil {
		return nil, findErr
	}
	if winner == nil {
		return nil, fmt.Errorf("create friendship: %w", err)
	}
	return nil, conflictFor(winner.Status)
}

func (s *Service) reopen(db *gorm.DB, existing *model.Friendship, userID, targetID int64, message string) (*model.Friendship, error) {
	now := time.Now()
	res := db.Model(&model.Friendship{}).
		Where("id = ? AND status = ?", existing.ID, model.FriendshipRejected).
		UpdateColumns(map[string]interface{}{
			"initiator_id": userID,
			"receiver_id":  targetID,
			"status":       model.FriendshipPending,
			"message":      message,
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("reopen friendship: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Someone else re-opened or removed it first.
		current, err := s.findPair(db, userID, targetID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return s.create(db, userID, targetID, message)
		}
		return nil, conflictFor(current.Status)
	}
	existing.InitiatorID = userID
	existing.ReceiverID = targetID
	existing.Status = model.FriendshipPending
	existing.Message = message
	existing.UpdatedAt = now
	return existing, nil
}

// HandleRequest answers a pending request addressed to userID. The update is
// a single conditional statement, so a request is answered at most once.
func (s *Service) HandleRequest(ctx context.Context, userID, requestID int64, action Action) (model.FriendshipStatus, error) {
	status, err := action.Status()
	if err != nil {
		return "", err
	}
	res := s.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("id = ? AND receiver_id = ? AND status = ?", requestID, userID, model.FriendshipPending).
		UpdateColumns(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return "", fmt.Errorf("handle friend request %d: %w", requestID, res.Error)
	}
	if res.RowsAffected == 0 {
		return "", ErrRequestNotFound
	}
	s.emit(ctx, &hook.Event{Name: hook.FriendHandle, UserID: userID, TargetID: requestID,
		Detail: map[string]interface{}{"action": string(action)}})
	return status, nil
}

// Friends lists accepted friendships of userID, oldest first.
func (s *Service) Friends(ctx context.Context, userID int64) ([]Entry, error) {
	var rows []model.Friendship
	err := s.db.WithContext(ctx).
		Preload("Initiator").Preload("Receiver").
		Where("(initiator_id = ? OR receiver_id = ?) AND status = ?", userID, userID, model.FriendshipAccepted).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for i := range rows {
		e := Entry{Friendship: rows[i]}
		if rows[i].Initiator != nil {
			b := rows[i].Initiator.Brief()
			e.Initiator = &b
		}
		if rows[i].Receiver != nil {
			b := rows[i].Receiver.Brief()
			e.Receiver = &b
		}
		if rows[i].InitiatorID == userID && e.Receiver != nil {
			e.User = *e.Receiver
		} else if e.Initiator != nil {
			e.User = *e.Initiator
		}
		out = append(out, e)
	}
	return out, nil
}

// Requests lists pending requests addressed to userID, oldest first.
func (s *Service) Requests(ctx context.Context, userID int64) ([]Entry, error) {
	var rows []model.Friendship
	err := s.db.WithContext(ctx).
		Preload("Initiator").
		Where("receiver_id = ? AND status = ?", userID, model.FriendshipPending).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for i := range rows {
		e := Entry{Friendship: rows[i]}
		if rows[i].Initiator != nil {
			b := rows[i].Initiator.Brief()
			e.Initiator = &b
			e.User = b
		}
		out = append(out, e)
	}
	return out, nil
}

// DeleteFriend removes an accepted friendship that userID is part of.
func (s *Service) DeleteFriend(ctx context.Context, userID, friendshipID int64) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND status = ? AND (initiator_id = ? OR receiver_id = ?)",
			friendshipID, model.FriendshipAccepted, userID, userID).
		Delete(&model.Friendship{})
	if res.Error != nil {
		return fmt.Errorf("delete friendship %d: %w", friendshipID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrFriendshipNotFound
	}
	s.emit(ctx, &hook.Event{Name: hook.FriendDelete, UserID: userID, TargetID: friendshipID})
	return nil
}

func (s *Service) emit(ctx context.Context, ev *hook.Event) {
	if err := s.hooks.Emit(ctx, ev); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", ev.Name), zap.Error(err))
	}
}
