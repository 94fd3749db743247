package models

import (
	"time"
)

// Thread categories
const (
	CategoryPrimary    = "primary"
	CategorySocial     = "social"
	CategoryPromotions = "promotions"
	CategoryUpdates    = "updates"
	CategoryLead       = "lead"
	CategoryDeal       = "deal"
	CategoryCustomer   = "customer"
	CategoryComplaint  = "complaint"
	CategoryOther      = "other"
)

// Categories lists every category a thread may carry.
var Categories = []string{
	CategoryPrimary, CategorySocial, CategoryPromotions, CategoryUpdates,
	CategoryLead, CategoryDeal, CategoryCustomer, CategoryComplaint, CategoryOther,
}

// Thread groups the emails of one conversation
type Thread struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CompanyID     uint      `gorm:"not null;index" json:"company_id"`
	AccountID     uint      `gorm:"not null;index" json:"account_id"`
	Subject       string    `gorm:"size:998" json:"subject"`
	Participants  []string  `gorm:"type:text;serializer:json" json:"participants"`
	LeadID        *uint     `gorm:"index" json:"lead_id,omitempty"`
	DealID        *uint     `gorm:"index" json:"deal_id,omitempty"`
	CustomerID    *uint     `gorm:"index" json:"customer_id,omitempty"`
	LastMessageAt time.Time `gorm:"index" json:"last_message_at"`
	MessageCount  int       `gorm:"default:0" json:"message_count"`
	IsRead        bool      `gorm:"default:false" json:"is_read"`
	IsStarred     bool      `gorm:"default:false" json:"is_starred"`
	Category      string    `gorm:"size:32;default:primary;index" json:"category"`
	Sentiment     *string   `gorm:"size:32" json:"sentiment,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Account MailboxAccount `gorm:"foreignKey:AccountID" json:"-"`
	Emails  []Email        `gorm:"foreignKey:ThreadID" json:"emails,omitempty"`
}

// TableName returns the table name for Thread
func (Thread) TableName() string {
	return "email_threads"
}

// TaggedCategory returns the category forced by a CRM tag, or "" when untagged.
func (t *Thread) TaggedCategory() string {
	switch {
	case t.LeadID != nil:
		return CategoryLead
	case t.DealID != nil:
		return CategoryDeal
	case t.CustomerID != nil:
		return CategoryCustomer
	}
	return ""
}

// CategoryCount is one row of the per-category thread tally
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}
