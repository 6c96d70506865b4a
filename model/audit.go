package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records authentication and friendship actions.
type AuditLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string         `gorm:"index:idx_audit_trace;size:64;not null" json:"traceId"`
	UserID    *int64         `gorm:"index:idx_audit_user" json:"userId"`
	Action    string         `gorm:"size:64;not null" json:"action"`
	TargetID  *int64         `json:"targetId"`
	Detail    datatypes.JSON `json:"detail"`
	IP        string         `gorm:"size:45" json:"ip"`
	CreatedAt time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"createdAt"`
}
