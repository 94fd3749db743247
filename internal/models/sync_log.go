package models

import (
	"time"
)

// Sync log statuses
const (
	SyncRunning   = "running"
	SyncCompleted = "completed"
	SyncFailed    = "failed"
)

// SyncLog records one synchronization attempt against a mailbox account
type SyncLog struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	AccountID    uint       `gorm:"not null;index" json:"account_id"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	EmailsSynced int        `gorm:"default:0" json:"emails_synced"`
	Status       string     `gorm:"not null;size:16" json:"status"`
	Error        string     `gorm:"type:text" json:"error,omitempty"`
}

// TableName returns the table name for SyncLog
func (SyncLog) TableName() string {
	return "email_sync_logs"
}
