package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"gorm.io/gorm"
)

// ThreadFilter narrows a thread listing to one user's mailboxes
type ThreadFilter struct {
	UserID    uint
	IsRead    *bool
	IsStarred *bool
	Category  string
	Limit     int
	Offset    int
}

// ThreadRepository defines the interface for thread data access
type ThreadRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Thread, error)
	GetForUser(ctx context.Context, id, userID uint) (*models.Thread, error)
	List(ctx context.Context, filter ThreadFilter) ([]models.Thread, int64, error)
	Search(ctx context.Context, userID uint, q string, limit int) ([]models.Thread, error)
	CategoryCounts(ctx context.Context, userID uint) ([]models.CategoryCount, error)
	MarkRead(ctx context.Context, id uint, at time.Time) error
	ToggleStar(ctx context.Context, id uint) (bool, error)
	UpdateClassification(ctx context.Context, id uint, category string, sentiment *string) error
}

// threadRepository implements ThreadRepository using GORM
type threadRepository struct {
	db *gorm.DB
}

// NewThreadRepository creates a new ThreadRepository instance
func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

// userAccounts is the subquery of account ids owned by a user
func (r *threadRepository) userAccounts(ctx context.Context, userID uint) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.MailboxAccount{}).Select("id").Where("user_id = ?", userID)
}

// GetByID retrieves a thread by its ID
func (r *threadRepository) GetByID(ctx context.Context, id uint) (*models.Thread, error) {
	var thread models.Thread
	result := r.db.WithContext(ctx).First(&thread, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get thread by ID: %w", result.Error)
	}
	return &thread, nil
}

// GetForUser retrieves a thread of the user's mailboxes with its emails, oldest first
func (r *threadRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Thread, error) {
	var thread models.Thread
	result := r.db.WithContext(ctx).
		Preload("Emails", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Emails.Attachments").
		Where("id = ? AND account_id IN (?)", id, r.userAccounts(ctx, userID)).
		First(&thread)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get thread: %w", result.Error)
	}
	return &thread, nil
}

// List retrieves the user's threads, most recent first
func (r *threadRepository) List(ctx context.Context, filter ThreadFilter) ([]models.Thread, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Thread{}).
		Where("account_id IN (?)", r.userAccounts(ctx, filter.UserID))
	if filter.IsRead != nil {
		query = query.Where("is_read = ?", *filter.IsRead)
	}
	if filter.IsStarred != nil {
		query = query.Where("is_starred = ?", *filter.IsStarred)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count threads: %w", err)
	}

	var threads []models.Thread
	if err := query.Order("last_message_at DESC, id DESC").Limit(pageLimit(filter.Limit)).Offset(filter.Offset).Find(&threads).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, total, nil
}

// Search matches q case-insensitively against thread subjects and the subject or bodies of contained emails
func (r *threadRepository) Search(ctx context.Context, userID uint, q string, limit int) ([]models.Thread, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []models.Thread{}, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(q)) + "%"

	matching := r.db.WithContext(ctx).Model(&models.Email{}).Select("thread_id").
		Where("LOWER(subject) LIKE ? ESCAPE '\\' OR LOWER(body_text) LIKE ? ESCAPE '\\' OR LOWER(body_html) LIKE ? ESCAPE '\\'", pattern, pattern, pattern)

	var threads []models.Thread
	result := r.db.WithContext(ctx).
		Where("account_id IN (?)", r.userAccounts(ctx, userID)).
		Where(r.db.Where("LOWER(subject) LIKE ? ESCAPE '\\'", pattern).Or("id IN (?)", matching)).
		Order("last_message_at DESC, id DESC").
		Limit(pageLimit(limit)).
		Find(&threads)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to search threads: %w", result.Error)
	}
	return threads, nil
}

// CategoryCounts tallies the user's threads per category, largest first
func (r *threadRepository) CategoryCounts(ctx context.Context, userID uint) ([]models.CategoryCount, error) {
	var counts []models.CategoryCount
	result := r.db.WithContext(ctx).Model(&models.Thread{}).
		Select("category, COUNT(*) as count").
		Where("account_id IN (?)", r.userAccounts(ctx, userID)).
		Group("category").
		Order("count DESC, category ASC").
		Scan(&counts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to count categories: %w", result.Error)
	}
	return counts, nil
}

// MarkRead marks a thread and every email in it as read
func (r *threadRepository) MarkRead(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Thread{}).Where("id = ?", id).Update("is_read", true)
		if result.Error != nil {
			return fmt.Errorf("failed to mark thread read: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Model(&models.Email{}).
			Where("thread_id = ? AND is_read = ?", id, false).
			Updates(map[string]interface{}{"is_read": true, "read_at": at}).Error; err != nil {
			return fmt.Errorf("failed to mark emails read: %w", err)
		}
		return nil
	})
}

// ToggleStar flips the starred flag and returns the new value
func (r *threadRepository) ToggleStar(ctx context.Context, id uint) (bool, error) {
	var starred bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread models.Thread
		if err := tx.Select("id", "is_starred").First(&thread, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get thread: %w", err)
		}
		starred = !thread.IsStarred
		if err := tx.Model(&models.Thread{}).Where("id = ?", id).Update("is_starred", starred).Error; err != nil {
			return fmt.Errorf("failed to toggle star: %w", err)
		}
		return nil
	})
	return starred, err
}

// UpdateClassification sets the category, and the sentiment only when one was determined
func (r *threadRepository) UpdateClassification(ctx context.Context, id uint, category string, sentiment *string) error {
	updates := map[string]interface{}{"category": category}
	if sentiment != nil {
		updates["sentiment"] = *sentiment
	}
	result := r.db.WithContext(ctx).Model(&models.Thread{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update classification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// pageLimit maps a non-positive limit to gorm's "no limit"
func pageLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
