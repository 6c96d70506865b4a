package model

import "time"

// User presence values stored in users.status.
const (
	UserStatusOnline  = "online"
	UserStatusOffline = "offline"
)

// User is a registered member of the network.
type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	Email        string     `gorm:"uniqueIndex;size:128;not null" json:"email"`
	PasswordHash string     `gorm:"size:72;not null" json:"-"`
	Phone        *string    `gorm:"uniqueIndex;size:32" json:"phone"`
	Avatar       string     `gorm:"size:255" json:"avatar"`
	Bio          string     `gorm:"size:500" json:"bio"`
	Status       string     `gorm:"size:16;default:offline;index" json:"status"`
	LastActiveAt *time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// UserBrief is the public projection attached to friendship rows and search results.
type UserBrief struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Status   string `json:"status"`
}

// Brief projects u to its public summary.
func (u *User) Brief() UserBrief {
	return UserBrief{ID: u.ID, Username: u.Username, Avatar: u.Avatar, Status: u.Status}
}
