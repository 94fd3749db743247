// Package testutil holds fixtures shared by package tests: an in-memory
// database and in-process IMAP and SMTP servers.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/welldanyogia/webrana-crm-mail/internal/database"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory sqlite database closed with the test
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Connect("sqlite://:memory:", database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// SeedAccount stores a generic SMTP/IMAP account for the given company and user
func SeedAccount(t testing.TB, db *gorm.DB, companyID, userID uint, address string) *models.MailboxAccount {
	t.Helper()

	account := &models.MailboxAccount{
		CompanyID:   companyID,
		UserID:      userID,
		Address:     address,
		Provider:    models.ProviderGeneric,
		SMTPHost:    "127.0.0.1",
		SMTPPort:    2525,
		Username:    address,
		Secret:      "secret",
		IsActive:    true,
		SyncEnabled: true,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}
