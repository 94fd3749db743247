package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/storage"
	"gorm.io/gorm"
)

// AttachmentRepository defines the interface for attachment data access
type AttachmentRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Attachment, error)
	GetForUser(ctx context.Context, id, userID uint) (*models.Attachment, error)
	ListByEmail(ctx context.Context, emailID uint) ([]models.Attachment, error)
	Delete(ctx context.Context, id uint) error
}

// attachmentRepository implements AttachmentRepository using GORM
type attachmentRepository struct {
	db          *gorm.DB
	fileStorage storage.FileStorage
}

// NewAttachmentRepository creates a new AttachmentRepository instance
func NewAttachmentRepository(db *gorm.DB, fileStorage storage.FileStorage) AttachmentRepository {
	return &attachmentRepository{
		db:          db,
		fileStorage: fileStorage,
	}
}

// GetByID retrieves an attachment by its ID
func (r *attachmentRepository) GetByID(ctx context.Context, id uint) (*models.Attachment, error) {
	var attachment models.Attachment
	result := r.db.WithContext(ctx).First(&attachment, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attachment by ID: %w", result.Error)
	}
	return &attachment, nil
}

// GetForUser retrieves an attachment whose email belongs to one of the user's accounts
func (r *attachmentRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Attachment, error) {
	var attachment models.Attachment
	result := r.db.WithContext(ctx).
		Joins("JOIN emails ON emails.id = email_attachments.email_id").
		Joins("JOIN mailbox_accounts ON mailbox_accounts.id = emails.account_id").
		Where("email_attachments.id = ? AND mailbox_accounts.user_id = ?", id, userID).
		First(&attachment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", result.Error)
	}
	return &attachment, nil
}

// ListByEmail retrieves all attachments of an email
func (r *attachmentRepository) ListByEmail(ctx context.Context, emailID uint) ([]models.Attachment, error) {
	var attachments []models.Attachment
	result := r.db.WithContext(ctx).Where("email_id = ?", emailID).Order("id ASC").Find(&attachments)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", result.Error)
	}
	return attachments, nil
}

// Delete deletes an attachment by its ID and removes the associated file
func (r *attachmentRepository) Delete(ctx context.Context, id uint) error {
	attachment, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Delete(&models.Attachment{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete attachment: %w", result.Error)
	}

	// file may already be gone
	if attachment.FilePath != "" && r.fileStorage != nil {
		_ = r.fileStorage.Delete(attachment.FilePath)
	}

	return nil
}
