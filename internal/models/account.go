package models

import (
	"time"
)

// ProviderKind identifies how a mailbox account is reached.
type ProviderKind string

const (
	ProviderGmail   ProviderKind = "gmail"
	ProviderOutlook ProviderKind = "outlook"
	ProviderGeneric ProviderKind = "generic"
)

// Valid reports whether p is one of the known provider kinds.
func (p ProviderKind) Valid() bool {
	switch p {
	case ProviderGmail, ProviderOutlook, ProviderGeneric:
		return true
	}
	return false
}

// MailboxAccount represents one connected mailbox owned by a CRM user
type MailboxAccount struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	CompanyID   uint         `gorm:"not null;uniqueIndex:idx_company_address,priority:1" json:"company_id"`
	UserID      uint         `gorm:"not null;index" json:"user_id"`
	Address     string       `gorm:"not null;size:255;uniqueIndex:idx_company_address,priority:2" json:"address"`
	Provider    ProviderKind `gorm:"not null;size:32" json:"provider"`
	SMTPHost    string       `gorm:"size:255" json:"smtp_host,omitempty"`
	SMTPPort    int          `json:"smtp_port,omitempty"`
	IMAPHost    string       `gorm:"size:255" json:"imap_host,omitempty"`
	IMAPPort    int          `json:"imap_port,omitempty"`
	Username    string       `gorm:"size:255" json:"username,omitempty"`
	Secret      string       `gorm:"type:text" json:"-"`
	IsActive    bool         `gorm:"default:true" json:"is_active"`
	IsDefault   bool         `gorm:"default:false" json:"is_default"`
	SyncEnabled bool         `gorm:"default:true" json:"sync_enabled"`
	LastSyncAt  *time.Time   `json:"last_sync_at,omitempty"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for MailboxAccount
func (MailboxAccount) TableName() string {
	return "mailbox_accounts"
}

// SupportsPull reports whether the account can be synchronized over IMAP.
func (a *MailboxAccount) SupportsPull() bool {
	switch a.Provider {
	case ProviderGmail:
		return true
	case ProviderGeneric:
		return a.IMAPHost != ""
	}
	return false
}

// LoginName returns the name used to authenticate, falling back to the address.
func (a *MailboxAccount) LoginName() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Address
}

// AccountWithUnreadCount is used for API responses that include unread count
type AccountWithUnreadCount struct {
	MailboxAccount
	UnreadCount int64 `json:"unread_count"`
}
