package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for mailbox account data access
type AccountRepository interface {
	Create(ctx context.Context, account *models.MailboxAccount) error
	GetByID(ctx context.Context, id uint) (*models.MailboxAccount, error)
	GetForUser(ctx context.Context, id, userID uint) (*models.MailboxAccount, error)
	ListByUser(ctx context.Context, userID uint) ([]models.AccountWithUnreadCount, error)
	ListSyncable(ctx context.Context) ([]models.MailboxAccount, error)
	ListActiveByAddress(ctx context.Context, address string) ([]models.MailboxAccount, error)
	FindDefault(ctx context.Context, userID uint) (*models.MailboxAccount, error)
	FindFirstActive(ctx context.Context, userID uint) (*models.MailboxAccount, error)
	SetDefault(ctx context.Context, userID, id uint) error
	UpdateSecret(ctx context.Context, id uint, secret string) error
	Deactivate(ctx context.Context, id uint) error
	TouchLastSync(ctx context.Context, id uint, at time.Time) error
}

// accountRepository implements AccountRepository using GORM
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create stores a new account; the address must be unique within the company.
// IsActive and SyncEnabled are stored as given.
func (r *accountRepository) Create(ctx context.Context, account *models.MailboxAccount) error {
	active, syncEnabled := account.IsActive, account.SyncEnabled
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return err
		}
		// gorm writes the column default in place of a false flag
		off := map[string]interface{}{}
		if !active {
			off["is_active"] = false
		}
		if !syncEnabled {
			off["sync_enabled"] = false
		}
		if len(off) == 0 {
			return nil
		}
		return tx.Model(account).UpdateColumns(off).Error
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("account '%s' already connected: %w", account.Address, ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	account.IsActive, account.SyncEnabled = active, syncEnabled
	return nil
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.MailboxAccount, error) {
	var account models.MailboxAccount
	result := r.db.WithContext(ctx).First(&account, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", result.Error)
	}
	return &account, nil
}

// GetForUser retrieves an account only if it belongs to the given user
func (r *accountRepository) GetForUser(ctx context.Context, id, userID uint) (*models.MailboxAccount, error) {
	var account models.MailboxAccount
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", result.Error)
	}
	return &account, nil
}

// ListByUser lists a user's accounts with the number of unread threads of each
func (r *accountRepository) ListByUser(ctx context.Context, userID uint) ([]models.AccountWithUnreadCount, error) {
	var results []models.AccountWithUnreadCount

	query := `
		SELECT
			a.*,
			COALESCE((SELECT COUNT(*) FROM email_threads t WHERE t.account_id = a.id AND t.is_read = false), 0) as unread_count
		FROM mailbox_accounts a
		WHERE a.user_id = ?
		ORDER BY a.is_default DESC, a.created_at ASC
	`

	if err := r.db.WithContext(ctx).Raw(query, userID).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return results, nil
}

// ListSyncable returns every active account with sync enabled
func (r *accountRepository) ListSyncable(ctx context.Context) ([]models.MailboxAccount, error) {
	var accounts []models.MailboxAccount
	result := r.db.WithContext(ctx).
		Where("is_active = ? AND sync_enabled = ?", true, true).
		Order("id ASC").
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list syncable accounts: %w", result.Error)
	}
	return accounts, nil
}

// ListActiveByAddress returns the active accounts connected for an address,
// one per company that connected it
func (r *accountRepository) ListActiveByAddress(ctx context.Context, address string) ([]models.MailboxAccount, error) {
	var accounts []models.MailboxAccount
	result := r.db.WithContext(ctx).
		Where("LOWER(address) = LOWER(?) AND is_active = ?", address, true).
		Order("id ASC").
		Find(&accounts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list accounts by address: %w", result.Error)
	}
	return accounts, nil
}

// FindDefault returns the user's active default account
func (r *accountRepository) FindDefault(ctx context.Context, userID uint) (*models.MailboxAccount, error) {
	var account models.MailboxAccount
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ? AND is_active = ?", userID, true, true).
		Order("updated_at DESC").
		First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find default account: %w", result.Error)
	}
	return &account, nil
}

// FindFirstActive returns the user's oldest active account
func (r *accountRepository) FindFirstActive(ctx context.Context, userID uint) (*models.MailboxAccount, error) {
	var account models.MailboxAccount
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id ASC").
		First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active account: %w", result.Error)
	}
	return &account, nil
}

// SetDefault clears the user's previous default and marks the given account default.
// A concurrent SetDefault may leave two defaults briefly; FindDefault picks the most
// recently updated and the next explicit call clears the stale one.
func (r *accountRepository) SetDefault(ctx context.Context, userID, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.MailboxAccount{}).
			Where("user_id = ? AND is_default = ? AND id <> ?", userID, true, id).
			Update("is_default", false).Error; err != nil {
			return fmt.Errorf("failed to clear default account: %w", err)
		}

		result := tx.Model(&models.MailboxAccount{}).
			Where("id = ? AND user_id = ? AND is_active = ?", id, userID, true).
			Update("is_default", true)
		if result.Error != nil {
			return fmt.Errorf("failed to set default account: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UpdateSecret replaces the stored (already encrypted) secret. A reconnected
// account is active and synced again.
func (r *accountRepository) UpdateSecret(ctx context.Context, id uint, secret string) error {
	result := r.db.WithContext(ctx).Model(&models.MailboxAccount{}).Where("id = ?", id).
		Updates(map[string]interface{}{"secret": secret, "is_active": true, "sync_enabled": true})
	if result.Error != nil {
		return fmt.Errorf("failed to update secret: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-disconnects an account; its threads and emails stay referenced
func (r *accountRepository) Deactivate(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.MailboxAccount{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "is_default": false, "sync_enabled": false})
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastSync stamps the account's last sync time
func (r *accountRepository) TouchLastSync(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.MailboxAccount{}).Where("id = ?", id).Update("last_sync_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update last sync: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
