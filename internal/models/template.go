package models

import (
	"time"
)

// Template categories
const (
	TemplateGeneral  = "general"
	TemplateLead     = "lead"
	TemplateDeal     = "deal"
	TemplateCustomer = "customer"
	TemplateFollowUp = "follow_up"
)

// Template is a reusable company email with {variable} placeholders
type Template struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CompanyID  uint      `gorm:"not null;uniqueIndex:idx_company_template,priority:1" json:"company_id"`
	Name       string    `gorm:"not null;size:255;uniqueIndex:idx_company_template,priority:2" json:"name"`
	Subject    string    `gorm:"size:998" json:"subject"`
	BodyHTML   string    `gorm:"type:text" json:"body_html"`
	BodyText   string    `gorm:"type:text" json:"body_text,omitempty"`
	Category   string    `gorm:"size:32;default:general;index" json:"category"`
	UsageCount int       `gorm:"default:0" json:"usage_count"`
	CreatedBy  *uint     `json:"created_by,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Template
func (Template) TableName() string {
	return "email_templates"
}
