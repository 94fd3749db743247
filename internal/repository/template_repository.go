package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"gorm.io/gorm"
)

// TemplateRepository defines the interface for template data access
type TemplateRepository interface {
	Create(ctx context.Context, tpl *models.Template) error
	GetByID(ctx context.Context, id uint) (*models.Template, error)
	GetForCompany(ctx context.Context, id, companyID uint) (*models.Template, error)
	List(ctx context.Context, companyID uint, category, search string) ([]models.Template, error)
	Update(ctx context.Context, tpl *models.Template) error
	Delete(ctx context.Context, id, companyID uint) error
	ExistsByName(ctx context.Context, companyID uint, name string) (bool, error)
}

// templateRepository implements TemplateRepository using GORM
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new TemplateRepository instance
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// Create stores a template; names are unique per company
func (r *templateRepository) Create(ctx context.Context, tpl *models.Template) error {
	result := r.db.WithContext(ctx).Create(tpl)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("template '%s' already exists: %w", tpl.Name, ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create template: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a template by its ID
func (r *templateRepository) GetByID(ctx context.Context, id uint) (*models.Template, error) {
	var tpl models.Template
	result := r.db.WithContext(ctx).First(&tpl, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template by ID: %w", result.Error)
	}
	return &tpl, nil
}

// GetForCompany retrieves a template owned by the company
func (r *templateRepository) GetForCompany(ctx context.Context, id, companyID uint) (*models.Template, error) {
	var tpl models.Template
	result := r.db.WithContext(ctx).Where("id = ? AND company_id = ?", id, companyID).First(&tpl)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", result.Error)
	}
	return &tpl, nil
}

// List returns the company's templates, optionally filtered by category and name substring
func (r *templateRepository) List(ctx context.Context, companyID uint, category, search string) ([]models.Template, error) {
	query := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if search = strings.TrimSpace(search); search != "" {
		query = query.Where("LOWER(name) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(search))+"%")
	}

	var templates []models.Template
	if err := query.Order("updated_at DESC, id DESC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// Update saves the editable fields of a template; the usage counter is left alone
func (r *templateRepository) Update(ctx context.Context, tpl *models.Template) error {
	result := r.db.WithContext(ctx).Model(&models.Template{}).
		Where("id = ? AND company_id = ?", tpl.ID, tpl.CompanyID).
		Updates(map[string]interface{}{
			"name":      tpl.Name,
			"subject":   tpl.Subject,
			"body_html": tpl.BodyHTML,
			"body_text": tpl.BodyText,
			"category":  tpl.Category,
		})
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("template '%s' already exists: %w", tpl.Name, ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to update template: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a company template
func (r *templateRepository) Delete(ctx context.Context, id, companyID uint) error {
	result := r.db.WithContext(ctx).Where("company_id = ?", companyID).Delete(&models.Template{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete template: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistsByName reports whether the company already has a template with this name
func (r *templateRepository) ExistsByName(ctx context.Context, companyID uint, name string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Template{}).Where("company_id = ? AND name = ?", companyID, name).Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check template name: %w", result.Error)
	}
	return count > 0, nil
}
