package repository

import (
	"context"
	"fmt"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"gorm.io/gorm"
)

// RuleRepository defines the interface for rule data access
type RuleRepository interface {
	Create(ctx context.Context, rule *models.Rule) error
	List(ctx context.Context, companyID uint) ([]models.Rule, error)
	ListActive(ctx context.Context, companyID uint, trigger string) ([]models.Rule, error)
	SetActive(ctx context.Context, id, companyID uint, active bool) error
	Delete(ctx context.Context, id, companyID uint) error
}

// ruleRepository implements RuleRepository using GORM
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new RuleRepository instance
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

// Create stores a new rule
func (r *ruleRepository) Create(ctx context.Context, rule *models.Rule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// List returns every rule of the company
func (r *ruleRepository) List(ctx context.Context, companyID uint) ([]models.Rule, error) {
	var rules []models.Rule
	if err := r.db.WithContext(ctx).Where("company_id = ?", companyID).Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// ListActive returns the company's active rules for a trigger, in creation order
func (r *ruleRepository) ListActive(ctx context.Context, companyID uint, trigger string) ([]models.Rule, error) {
	var rules []models.Rule
	result := r.db.WithContext(ctx).
		Where("company_id = ? AND is_active = ? AND trigger_kind = ?", companyID, true, trigger).
		Order("id ASC").
		Find(&rules)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", result.Error)
	}
	return rules, nil
}

// SetActive enables or disables a rule
func (r *ruleRepository) SetActive(ctx context.Context, id, companyID uint, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.Rule{}).
		Where("id = ? AND company_id = ?", id, companyID).
		Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a rule
func (r *ruleRepository) Delete(ctx context.Context, id, companyID uint) error {
	result := r.db.WithContext(ctx).Where("company_id = ?", companyID).Delete(&models.Rule{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
