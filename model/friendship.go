package model

import (
	"time"

	"gorm.io/gorm"
)

// FriendshipStatus is the state of a friendship row.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRejected FriendshipStatus = "rejected"
	FriendshipBlocked  FriendshipStatus = "blocked"
)

// CanTransition reports whether a row in status s may move to next.
// Only pending rows change state; the other three are terminal.
func (s FriendshipStatus) CanTransition(next FriendshipStatus) bool {
	if s != FriendshipPending {
		return false
	}
	switch next {
	case FriendshipAccepted, FriendshipRejected, FriendshipBlocked:
		return true
	}
	return false
}

// Friendship links two users. InitiatorID sent the request, ReceiverID
// answers it. PairLow/PairHigh hold the same two ids in canonical order so
// the unique index admits one row per unordered pair.
type Friendship struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	InitiatorID int64            `gorm:"index;not null" json:"initiatorId"`
	ReceiverID  int64            `gorm:"index;not null" json:"receiverId"`
	PairLow     int64            `gorm:"uniqueIndex:uniq_friendship_pair;not null" json:"-"`
	PairHigh    int64            `gorm:"uniqueIndex:uniq_friendship_pair;not null" json:"-"`
	Status      FriendshipStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	Message     string           `gorm:"size:255" json:"message,omitempty"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`

	Initiator *User `gorm:"foreignKey:InitiatorID" json:"-"`
	Receiver  *User `gorm:"foreignKey:ReceiverID" json:"-"`
}

// PairKey returns a and b in canonical (low, high) order.
func PairKey(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// BeforeCreate fills the canonical pair columns from the parties. Later
// updates never change who the two parties are, only their roles.
func (f *Friendship) BeforeCreate(_ *gorm.DB) error {
	f.PairLow, f.PairHigh = PairKey(f.InitiatorID, f.ReceiverID)
	return nil
}

// Other returns the party of f that is not userID.
func (f *Friendship) Other(userID int64) int64 {
	if f.InitiatorID == userID {
		return f.ReceiverID
	}
	return f.InitiatorID
}
