package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmailRecord is everything written when an email joins a thread.
// A Thread with zero ID is created; otherwise the existing thread is bumped.
type EmailRecord struct {
	Thread      *models.Thread
	Email       *models.Email
	Attachments []models.Attachment
	// At is the message time used to advance the thread's last_message_at
	At time.Time
	// TemplateID, when set, has its usage counter incremented in the same transaction
	TemplateID *uint
}

// EmailRepository defines the interface for email data access
type EmailRepository interface {
	Insert(ctx context.Context, rec *EmailRecord) error
	GetByID(ctx context.Context, id uint) (*models.Email, error)
	GetForUser(ctx context.Context, id, userID uint) (*models.Email, error)
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)
	MarkSent(ctx context.Context, id uint, at time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string) error
	Requeue(ctx context.Context, id uint, messageID string) error
	RecordOpen(ctx context.Context, id uint, at time.Time) error
	RecordClick(ctx context.Context, id uint, at time.Time) error
}

// emailRepository implements EmailRepository using GORM
type emailRepository struct {
	db *gorm.DB
}

// NewEmailRepository creates a new EmailRepository instance
func NewEmailRepository(db *gorm.DB) EmailRepository {
	return &emailRepository{db: db}
}

// Insert writes the thread (if new), the email and its attachments in one transaction.
// A message id collision returns ErrDuplicateEntry and leaves nothing behind.
func (r *emailRepository) Insert(ctx context.Context, rec *EmailRecord) error {
	if rec == nil || rec.Thread == nil || rec.Email == nil {
		return ErrInvalidInput
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	newThread := rec.Thread.ID == 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newThread {
			rec.Thread.MessageCount = 0
			rec.Thread.LastMessageAt = at
			if err := tx.Omit(clause.Associations).Create(rec.Thread).Error; err != nil {
				return fmt.Errorf("failed to create thread: %w", err)
			}
		}

		rec.Email.ThreadID = rec.Thread.ID
		rec.Email.HasAttachments = rec.Email.HasAttachments || len(rec.Attachments) > 0
		if err := tx.Omit(clause.Associations).Create(rec.Email).Error; err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("email '%s' already stored: %w", rec.Email.MessageID, ErrDuplicateEntry)
			}
			return fmt.Errorf("failed to create email: %w", err)
		}

		for i := range rec.Attachments {
			rec.Attachments[i].EmailID = rec.Email.ID
			if err := tx.Omit(clause.Associations).Create(&rec.Attachments[i]).Error; err != nil {
				return fmt.Errorf("failed to create attachment: %w", err)
			}
		}

		if err := tx.Model(&models.Thread{}).Where("id = ?", rec.Thread.ID).
			Update("message_count", gorm.Expr("message_count + 1")).Error; err != nil {
			return fmt.Errorf("failed to bump thread: %w", err)
		}
		// last_message_at never moves backwards
		if err := tx.Model(&models.Thread{}).Where("id = ? AND last_message_at < ?", rec.Thread.ID, at).
			Update("last_message_at", at).Error; err != nil {
			return fmt.Errorf("failed to bump thread: %w", err)
		}

		if rec.TemplateID != nil {
			result := tx.Model(&models.Template{}).Where("id = ?", *rec.TemplateID).
				Update("usage_count", gorm.Expr("usage_count + 1"))
			if result.Error != nil {
				return fmt.Errorf("failed to increment template usage: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("template %d: %w", *rec.TemplateID, ErrNotFound)
			}
		}

		return tx.First(rec.Thread, rec.Thread.ID).Error
	})
	if err != nil {
		// ids assigned inside a rolled back transaction do not exist
		if newThread {
			rec.Thread.ID = 0
		}
		rec.Email.ID = 0
		return err
	}
	return nil
}

// GetByID retrieves an email by its ID with preloaded attachments
func (r *emailRepository) GetByID(ctx context.Context, id uint) (*models.Email, error) {
	var email models.Email
	result := r.db.WithContext(ctx).Preload("Attachments").First(&email, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email by ID: %w", result.Error)
	}
	return &email, nil
}

// GetForUser retrieves an email only if it belongs to one of the user's accounts
func (r *emailRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Email, error) {
	var email models.Email
	accounts := r.db.WithContext(ctx).Model(&models.MailboxAccount{}).Select("id").Where("user_id = ?", userID)
	result := r.db.WithContext(ctx).Preload("Attachments").
		Where("id = ? AND account_id IN (?)", id, accounts).
		First(&email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email: %w", result.Error)
	}
	return &email, nil
}

// ExistsByMessageID reports whether an email with the protocol message id is stored
func (r *emailRepository) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Email{}).Where("message_id = ?", messageID).Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to look up message id: %w", result.Error)
	}
	return count > 0, nil
}

// MarkSent moves a queued email to sent
func (r *emailRepository) MarkSent(ctx context.Context, id uint, at time.Time) error {
	return r.transition(ctx, id, models.StatusQueued, map[string]interface{}{
		"status":     models.StatusSent,
		"sent_at":    at,
		"last_error": "",
		"attempts":   gorm.Expr("attempts + 1"),
	})
}

// MarkFailed moves a queued email to failed, keeping the reason
func (r *emailRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	return r.transition(ctx, id, models.StatusQueued, map[string]interface{}{
		"status":     models.StatusFailed,
		"last_error": reason,
		"attempts":   gorm.Expr("attempts + 1"),
	})
}

// Requeue re-issues a failed email as a fresh queued attempt under a new message id
func (r *emailRepository) Requeue(ctx context.Context, id uint, messageID string) error {
	return r.transition(ctx, id, models.StatusFailed, map[string]interface{}{
		"status":     models.StatusQueued,
		"message_id": messageID,
	})
}

func (r *emailRepository) transition(ctx context.Context, id uint, from string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Email{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update email status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("email %d is not %s: %w", id, from, ErrInvalidInput)
	}
	return nil
}

// RecordOpen counts an open; the first open timestamp is never overwritten
func (r *emailRepository) RecordOpen(ctx context.Context, id uint, at time.Time) error {
	return r.recordEvent(ctx, id, "open_count", "opened_at", at)
}

// RecordClick counts a click; the first click timestamp is never overwritten
func (r *emailRepository) RecordClick(ctx context.Context, id uint, at time.Time) error {
	return r.recordEvent(ctx, id, "click_count", "clicked_at", at)
}

func (r *emailRepository) recordEvent(ctx context.Context, id uint, counter, stamp string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Email{}).Where("id = ?", id).Updates(map[string]interface{}{
		counter: gorm.Expr(counter + " + 1"),
		stamp:   gorm.Expr("COALESCE("+stamp+", ?)", at),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to record %s: %w", counter, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
