package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/testutil"
)

func TestTemplateRepository_CreateListFilter(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTemplateRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Template{CompanyID: 1, Name: "Welcome Email", Category: models.TemplateCustomer}))
	require.NoError(t, repo.Create(ctx, &models.Template{CompanyID: 1, Name: "Follow Up", Category: models.TemplateGeneral}))
	require.NoError(t, repo.Create(ctx, &models.Template{CompanyID: 2, Name: "Welcome Email"}))

	all, err := repo.List(ctx, 1, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	customers, err := repo.List(ctx, 1, models.TemplateCustomer, "")
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "Welcome Email", customers[0].Name)

	found, err := repo.List(ctx, 1, "", "follow")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Follow Up", found[0].Name)
}

func TestTemplateRepository_DuplicateName(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTemplateRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Template{CompanyID: 1, Name: "Thank You"}))
	err := repo.Create(ctx, &models.Template{CompanyID: 1, Name: "Thank You"})
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	exists, err := repo.ExistsByName(ctx, 1, "Thank You")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTemplateRepository_UpdateKeepsUsage(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTemplateRepository(db)
	ctx := context.Background()

	tpl := &models.Template{CompanyID: 1, Name: "Promo", Subject: "Old"}
	require.NoError(t, repo.Create(ctx, tpl))
	require.NoError(t, db.Model(tpl).Update("usage_count", 4).Error)

	tpl.Subject = "New"
	require.NoError(t, repo.Update(ctx, tpl))

	got, err := repo.GetForCompany(ctx, tpl.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Subject)
	assert.Equal(t, 4, got.UsageCount)

	_, err = repo.GetForCompany(ctx, tpl.ID, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTemplateRepository_Delete(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTemplateRepository(db)
	ctx := context.Background()

	tpl := &models.Template{CompanyID: 1, Name: "Gone"}
	require.NoError(t, repo.Create(ctx, tpl))

	assert.ErrorIs(t, repo.Delete(ctx, tpl.ID, 2), ErrNotFound)
	require.NoError(t, repo.Delete(ctx, tpl.ID, 1))
	_, err := repo.GetByID(ctx, tpl.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
