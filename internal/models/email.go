package models

import (
	"time"
)

// Email directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Email delivery statuses
const (
	StatusDraft     = "draft"
	StatusQueued    = "queued"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusBounced   = "bounced"
)

// Email represents one message of a thread, inbound or outbound
type Email struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ThreadID       uint       `gorm:"not null;index" json:"thread_id"`
	AccountID      uint       `gorm:"not null;index" json:"account_id"`
	MessageID      string     `gorm:"column:message_id;not null;size:998;uniqueIndex" json:"message_id"`
	FromAddress    string     `gorm:"not null;size:255" json:"from_address"`
	FromName       string     `gorm:"size:255" json:"from_name,omitempty"`
	To             []string   `gorm:"type:text;serializer:json" json:"to"`
	Cc             []string   `gorm:"type:text;serializer:json" json:"cc,omitempty"`
	Bcc            []string   `gorm:"type:text;serializer:json" json:"bcc,omitempty"`
	Subject        string     `gorm:"size:998" json:"subject"`
	BodyText       string     `gorm:"type:text" json:"body_text,omitempty"`
	BodyHTML       string     `gorm:"type:text" json:"body_html,omitempty"`
	Direction      string     `gorm:"not null;size:16;index" json:"direction"`
	Status         string     `gorm:"not null;size:16;index" json:"status"`
	IsRead         bool       `gorm:"default:false" json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
	ClickedAt      *time.Time `json:"clicked_at,omitempty"`
	TrackingOn     bool       `gorm:"column:tracking_enabled;default:false" json:"tracking_enabled"`
	OpenCount      int        `gorm:"default:0" json:"open_count"`
	ClickCount     int        `gorm:"default:0" json:"click_count"`
	ReplyToID      *uint      `gorm:"index" json:"reply_to_id,omitempty"`
	HasAttachments bool       `gorm:"default:false" json:"has_attachments"`
	CreatedBy      *uint      `json:"created_by,omitempty"`
	TemplateID     *uint      `json:"template_id,omitempty"`
	Attempts       int        `gorm:"default:0" json:"attempts"`
	LastError      string     `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Thread      Thread       `gorm:"foreignKey:ThreadID" json:"-"`
	ReplyTo     *Email       `gorm:"foreignKey:ReplyToID" json:"-"`
	Attachments []Attachment `gorm:"foreignKey:EmailID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
}

// TableName returns the table name for Email
func (Email) TableName() string {
	return "emails"
}

// Recipients returns every envelope recipient: to, cc and bcc.
func (e *Email) Recipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	return append(out, e.Bcc...)
}
