package models

// Attachment is a file carried by an email; the bytes live in file storage
type Attachment struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	EmailID     uint   `gorm:"not null;index" json:"email_id"`
	Filename    string `gorm:"size:255" json:"filename"`
	ContentType string `gorm:"size:100" json:"content_type"`
	FilePath    string `gorm:"size:500" json:"-"`
	SizeBytes   int64  `json:"size_bytes"`

	// Relationships
	Email Email `gorm:"foreignKey:EmailID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Attachment
func (Attachment) TableName() string {
	return "email_attachments"
}
