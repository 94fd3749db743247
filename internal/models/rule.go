package models

import (
	"time"
)

// Rule triggers and actions
const (
	TriggerInbound     = "inbound"
	ActionSendTemplate = "send_template"
)

// RuleConditions is the condition set of a rule; any keyword matching subject or body fires it
type RuleConditions struct {
	Keywords []string `json:"keywords"`
}

// RuleActions describes what a matching rule does
type RuleActions struct {
	Action     string `json:"action"`
	TemplateID uint   `json:"template_id,omitempty"`
}

// Rule is a company automation evaluated against inbound emails
type Rule struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CompanyID  uint           `gorm:"not null;index" json:"company_id"`
	Name       string         `gorm:"not null;size:255" json:"name"`
	Trigger    string         `gorm:"column:trigger_kind;not null;size:32;default:inbound" json:"trigger"`
	Conditions RuleConditions `gorm:"type:text;serializer:json" json:"conditions"`
	Actions    RuleActions    `gorm:"type:text;serializer:json" json:"actions"`
	IsActive   bool           `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Rule
func (Rule) TableName() string {
	return "email_rules"
}
