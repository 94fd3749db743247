package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"gorm.io/gorm"
)

// SyncLogRepository defines the interface for sync bookkeeping
type SyncLogRepository interface {
	Start(ctx context.Context, accountID uint, at time.Time) (*models.SyncLog, error)
	Complete(ctx context.Context, id uint, synced int, at time.Time) error
	Fail(ctx context.Context, id uint, synced int, reason string, at time.Time) error
	ListByAccount(ctx context.Context, accountID uint, limit int) ([]models.SyncLog, error)
}

// syncLogRepository implements SyncLogRepository using GORM
type syncLogRepository struct {
	db *gorm.DB
}

// NewSyncLogRepository creates a new SyncLogRepository instance
func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

// Start opens a running sync log
func (r *syncLogRepository) Start(ctx context.Context, accountID uint, at time.Time) (*models.SyncLog, error) {
	log := &models.SyncLog{AccountID: accountID, StartedAt: at, Status: models.SyncRunning}
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return nil, fmt.Errorf("failed to start sync log: %w", err)
	}
	return log, nil
}

// Complete closes a sync log as completed
func (r *syncLogRepository) Complete(ctx context.Context, id uint, synced int, at time.Time) error {
	return r.close(ctx, id, map[string]interface{}{
		"status":        models.SyncCompleted,
		"emails_synced": synced,
		"completed_at":  at,
	})
}

// Fail closes a sync log as failed with the error text
func (r *syncLogRepository) Fail(ctx context.Context, id uint, synced int, reason string, at time.Time) error {
	return r.close(ctx, id, map[string]interface{}{
		"status":        models.SyncFailed,
		"emails_synced": synced,
		"error":         reason,
		"completed_at":  at,
	})
}

func (r *syncLogRepository) close(ctx context.Context, id uint, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.SyncLog{}).
		Where("id = ? AND status = ?", id, models.SyncRunning).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to close sync log: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByAccount returns the most recent sync logs of an account
func (r *syncLogRepository) ListByAccount(ctx context.Context, accountID uint, limit int) ([]models.SyncLog, error) {
	var logs []models.SyncLog
	result := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("started_at DESC, id DESC").
		Limit(pageLimit(limit)).
		Find(&logs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", result.Error)
	}
	return logs, nil
}
