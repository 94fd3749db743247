//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/welldanyogia/webrana-crm-mail/internal/database"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
)

// PostgresIntegrationTestSuite runs the repositories against a real PostgreSQL
type PostgresIntegrationTestSuite struct {
	suite.Suite
	container testcontainers.Container
	db        *gorm.DB
	accounts  AccountRepository
	emails    EmailRepository
	threads   ThreadRepository
	templates TemplateRepository
}

// SetupSuite starts PostgreSQL and migrates the schema
func (s *PostgresIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "crm_mail_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=crm_mail_test sslmode=disable", host, port.Port())
	s.db, err = database.Connect(dsn, database.Options{LogLevel: logger.Silent})
	s.Require().NoError(err)
	s.Require().NoError(database.Migrate(s.db))

	s.accounts = NewAccountRepository(s.db)
	s.emails = NewEmailRepository(s.db)
	s.threads = NewThreadRepository(s.db)
	s.templates = NewTemplateRepository(s.db)
}

// TearDownSuite stops the container
func (s *PostgresIntegrationTestSuite) TearDownSuite() {
	if s.db != nil {
		_ = database.Close(s.db)
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

// SetupTest empties every table
func (s *PostgresIntegrationTestSuite) SetupTest() {
	s.db.Exec("TRUNCATE TABLE email_attachments, emails, email_threads, email_rules, email_templates, email_sync_logs, mailbox_accounts RESTART IDENTITY CASCADE")
}

func TestPostgresIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresIntegrationTestSuite))
}

func (s *PostgresIntegrationTestSuite) account(companyID, userID uint, address string) *models.MailboxAccount {
	a := &models.MailboxAccount{
		CompanyID:   companyID,
		UserID:      userID,
		Address:     address,
		Provider:    models.ProviderGeneric,
		SMTPHost:    "smtp.acme.test",
		SMTPPort:    587,
		Secret:      "sealed",
		IsActive:    true,
		SyncEnabled: true,
	}
	s.Require().NoError(s.accounts.Create(context.Background(), a))
	return a
}

func (s *PostgresIntegrationTestSuite) TestAccount_DuplicateAddressPerCompany() {
	ctx := context.Background()
	s.account(1, 10, "sales@acme.test")

	err := s.accounts.Create(ctx, &models.MailboxAccount{
		CompanyID: 1, UserID: 11, Address: "sales@acme.test",
		Provider: models.ProviderGeneric, SMTPHost: "smtp.acme.test", Secret: "x",
	})
	s.ErrorIs(err, ErrDuplicateEntry)

	// the same address may be connected by another company
	s.account(2, 20, "sales@acme.test")
}

func (s *PostgresIntegrationTestSuite) TestEmail_DuplicateMessageID() {
	ctx := context.Background()
	a := s.account(1, 10, "me@acme.test")

	insert := func() error {
		return s.emails.Insert(ctx, &EmailRecord{
			Thread: &models.Thread{CompanyID: 1, AccountID: a.ID, Subject: "Hello"},
			Email: &models.Email{
				AccountID:   a.ID,
				MessageID:   "<same@example.com>",
				FromAddress: "x@example.com",
				Direction:   models.DirectionInbound,
				Status:      models.StatusDelivered,
			},
			Attachments: []models.Attachment{{Filename: "a.pdf", FilePath: "1/a.pdf", SizeBytes: 3}},
		})
	}
	s.Require().NoError(insert())
	s.ErrorIs(insert(), ErrDuplicateEntry)

	// the failed insert rolled back its thread
	var threads int64
	s.db.Model(&models.Thread{}).Count(&threads)
	s.Equal(int64(1), threads)
}

func (s *PostgresIntegrationTestSuite) TestThreads_SearchAndCounts() {
	ctx := context.Background()
	a := s.account(1, 10, "me@acme.test")
	for i, subject := range []string{"Invoice 100% paid", "Lunch", "Re: invoice"} {
		category := models.CategoryPrimary
		if i == 0 {
			category = models.CategoryLead
		}
		s.Require().NoError(s.emails.Insert(ctx, &EmailRecord{
			Thread: &models.Thread{CompanyID: 1, AccountID: a.ID, Subject: subject, Category: category},
			Email: &models.Email{
				AccountID:   a.ID,
				MessageID:   fmt.Sprintf("<m%d@example.com>", i),
				FromAddress: "x@example.com",
				Subject:     subject,
				BodyText:    "body",
				Direction:   models.DirectionInbound,
				Status:      models.StatusDelivered,
			},
		}))
	}

	found, err := s.threads.Search(ctx, 10, "INVOICE", 20)
	s.Require().NoError(err)
	s.Len(found, 2)

	// the percent sign is matched literally
	found, err = s.threads.Search(ctx, 10, "100%", 20)
	s.Require().NoError(err)
	s.Len(found, 1)

	found, err = s.threads.Search(ctx, 11, "invoice", 20)
	s.Require().NoError(err)
	s.Empty(found)

	counts, err := s.threads.CategoryCounts(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(counts, 2)
	s.Equal(models.CategoryPrimary, counts[0].Category)
	s.Equal(int64(2), counts[0].Count)
}

func (s *PostgresIntegrationTestSuite) TestTemplate_NameUniquePerCompany() {
	ctx := context.Background()
	s.Require().NoError(s.templates.Create(ctx, &models.Template{CompanyID: 1, Name: "Welcome", Subject: "Hi"}))

	err := s.templates.Create(ctx, &models.Template{CompanyID: 1, Name: "Welcome", Subject: "Hi again"})
	s.ErrorIs(err, ErrDuplicateEntry)

	s.NoError(s.templates.Create(ctx, &models.Template{CompanyID: 2, Name: "Welcome", Subject: "Hi"}))
}
