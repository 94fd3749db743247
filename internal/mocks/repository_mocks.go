// Package mocks provides testify mocks of the repositories and service
// collaborators for handler tests.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
)

// MockAccountRepository implements repository.AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) account(args mock.Arguments) (*models.MailboxAccount, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MailboxAccount), args.Error(1)
}

// Create stores a new account
func (m *MockAccountRepository) Create(ctx context.Context, account *models.MailboxAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// GetByID retrieves an account by its ID
func (m *MockAccountRepository) GetByID(ctx context.Context, id uint) (*models.MailboxAccount, error) {
	return m.account(m.Called(ctx, id))
}

// GetForUser retrieves an account owned by userID
func (m *MockAccountRepository) GetForUser(ctx context.Context, id, userID uint) (*models.MailboxAccount, error) {
	return m.account(m.Called(ctx, id, userID))
}

// ListByUser lists a user's accounts with unread counts
func (m *MockAccountRepository) ListByUser(ctx context.Context, userID uint) ([]models.AccountWithUnreadCount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AccountWithUnreadCount), args.Error(1)
}

// ListSyncable lists active, sync-enabled accounts
func (m *MockAccountRepository) ListSyncable(ctx context.Context) ([]models.MailboxAccount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MailboxAccount), args.Error(1)
}

// ListActiveByAddress lists active accounts with the address
func (m *MockAccountRepository) ListActiveByAddress(ctx context.Context, address string) ([]models.MailboxAccount, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MailboxAccount), args.Error(1)
}

// FindDefault returns the user's default active account
func (m *MockAccountRepository) FindDefault(ctx context.Context, userID uint) (*models.MailboxAccount, error) {
	return m.account(m.Called(ctx, userID))
}

// FindFirstActive returns the user's first active account
func (m *MockAccountRepository) FindFirstActive(ctx context.Context, userID uint) (*models.MailboxAccount, error) {
	return m.account(m.Called(ctx, userID))
}

// SetDefault makes id the user's default account
func (m *MockAccountRepository) SetDefault(ctx context.Context, userID, id uint) error {
	return m.Called(ctx, userID, id).Error(0)
}

// UpdateSecret replaces the stored secret
func (m *MockAccountRepository) UpdateSecret(ctx context.Context, id uint, secret string) error {
	return m.Called(ctx, id, secret).Error(0)
}

// Deactivate switches an account off
func (m *MockAccountRepository) Deactivate(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

// TouchLastSync records the last sync time
func (m *MockAccountRepository) TouchLastSync(ctx context.Context, id uint, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// MockEmailRepository implements repository.EmailRepository
type MockEmailRepository struct {
	mock.Mock
}

func (m *MockEmailRepository) email(args mock.Arguments) (*models.Email, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Email), args.Error(1)
}

// Insert stores an email with its thread and attachments
func (m *MockEmailRepository) Insert(ctx context.Context, rec *repository.EmailRecord) error {
	return m.Called(ctx, rec).Error(0)
}

// GetByID retrieves an email by its ID
func (m *MockEmailRepository) GetByID(ctx context.Context, id uint) (*models.Email, error) {
	return m.email(m.Called(ctx, id))
}

// GetForUser retrieves an email visible to userID
func (m *MockEmailRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Email, error) {
	return m.email(m.Called(ctx, id, userID))
}

// ExistsByMessageID reports whether the message id is stored
func (m *MockEmailRepository) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

// MarkSent moves a queued email to sent
func (m *MockEmailRepository) MarkSent(ctx context.Context, id uint, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// MarkFailed moves a queued email to failed
func (m *MockEmailRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

// Requeue re-issues a failed email
func (m *MockEmailRepository) Requeue(ctx context.Context, id uint, messageID string) error {
	return m.Called(ctx, id, messageID).Error(0)
}

// RecordOpen counts an open
func (m *MockEmailRepository) RecordOpen(ctx context.Context, id uint, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// RecordClick counts a click
func (m *MockEmailRepository) RecordClick(ctx context.Context, id uint, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// MockThreadRepository implements repository.ThreadRepository
type MockThreadRepository struct {
	mock.Mock
}

func (m *MockThreadRepository) thread(args mock.Arguments) (*models.Thread, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Thread), args.Error(1)
}

// GetByID retrieves a thread by its ID
func (m *MockThreadRepository) GetByID(ctx context.Context, id uint) (*models.Thread, error) {
	return m.thread(m.Called(ctx, id))
}

// GetForUser retrieves a thread with its emails for userID
func (m *MockThreadRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Thread, error) {
	return m.thread(m.Called(ctx, id, userID))
}

// List pages through a user's threads
func (m *MockThreadRepository) List(ctx context.Context, filter repository.ThreadFilter) ([]models.Thread, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Thread), args.Get(1).(int64), args.Error(2)
}

// Search matches threads by text
func (m *MockThreadRepository) Search(ctx context.Context, userID uint, q string, limit int) ([]models.Thread, error) {
	args := m.Called(ctx, userID, q, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Thread), args.Error(1)
}

// CategoryCounts tallies threads per category
func (m *MockThreadRepository) CategoryCounts(ctx context.Context, userID uint) ([]models.CategoryCount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CategoryCount), args.Error(1)
}

// MarkRead marks a thread and its emails read
func (m *MockThreadRepository) MarkRead(ctx context.Context, id uint, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// ToggleStar flips the starred flag
func (m *MockThreadRepository) ToggleStar(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// UpdateClassification stores category and sentiment
func (m *MockThreadRepository) UpdateClassification(ctx context.Context, id uint, category string, sentiment *string) error {
	return m.Called(ctx, id, category, sentiment).Error(0)
}

// MockAttachmentRepository implements repository.AttachmentRepository
type MockAttachmentRepository struct {
	mock.Mock
}

// GetByID retrieves an attachment by its ID
func (m *MockAttachmentRepository) GetByID(ctx context.Context, id uint) (*models.Attachment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attachment), args.Error(1)
}

// GetForUser retrieves an attachment visible to userID
func (m *MockAttachmentRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Attachment, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attachment), args.Error(1)
}

// ListByEmail lists the attachments of an email
func (m *MockAttachmentRepository) ListByEmail(ctx context.Context, emailID uint) ([]models.Attachment, error) {
	args := m.Called(ctx, emailID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Attachment), args.Error(1)
}

// Delete removes an attachment
func (m *MockAttachmentRepository) Delete(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

// MockTemplateRepository implements repository.TemplateRepository
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) template(args mock.Arguments) (*models.Template, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Template), args.Error(1)
}

// Create stores a template
func (m *MockTemplateRepository) Create(ctx context.Context, tpl *models.Template) error {
	return m.Called(ctx, tpl).Error(0)
}

// GetByID retrieves a template by its ID
func (m *MockTemplateRepository) GetByID(ctx context.Context, id uint) (*models.Template, error) {
	return m.template(m.Called(ctx, id))
}

// GetForCompany retrieves a company template
func (m *MockTemplateRepository) GetForCompany(ctx context.Context, id, companyID uint) (*models.Template, error) {
	return m.template(m.Called(ctx, id, companyID))
}

// List lists company templates
func (m *MockTemplateRepository) List(ctx context.Context, companyID uint, category, search string) ([]models.Template, error) {
	args := m.Called(ctx, companyID, category, search)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Template), args.Error(1)
}

// Update saves a template
func (m *MockTemplateRepository) Update(ctx context.Context, tpl *models.Template) error {
	return m.Called(ctx, tpl).Error(0)
}

// Delete removes a company template
func (m *MockTemplateRepository) Delete(ctx context.Context, id, companyID uint) error {
	return m.Called(ctx, id, companyID).Error(0)
}

// ExistsByName reports whether the name is taken
func (m *MockTemplateRepository) ExistsByName(ctx context.Context, companyID uint, name string) (bool, error) {
	args := m.Called(ctx, companyID, name)
	return args.Bool(0), args.Error(1)
}

// MockRuleRepository implements repository.RuleRepository
type MockRuleRepository struct {
	mock.Mock
}

// Create stores a rule
func (m *MockRuleRepository) Create(ctx context.Context, rule *models.Rule) error {
	return m.Called(ctx, rule).Error(0)
}

// List lists company rules
func (m *MockRuleRepository) List(ctx context.Context, companyID uint) ([]models.Rule, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Rule), args.Error(1)
}

// ListActive lists active company rules of a trigger
func (m *MockRuleRepository) ListActive(ctx context.Context, companyID uint, trigger string) ([]models.Rule, error) {
	args := m.Called(ctx, companyID, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Rule), args.Error(1)
}

// SetActive toggles a rule
func (m *MockRuleRepository) SetActive(ctx context.Context, id, companyID uint, active bool) error {
	return m.Called(ctx, id, companyID, active).Error(0)
}

// Delete removes a rule
func (m *MockRuleRepository) Delete(ctx context.Context, id, companyID uint) error {
	return m.Called(ctx, id, companyID).Error(0)
}

// MockSyncLogRepository implements repository.SyncLogRepository
type MockSyncLogRepository struct {
	mock.Mock
}

// Start opens a running sync log
func (m *MockSyncLogRepository) Start(ctx context.Context, accountID uint, at time.Time) (*models.SyncLog, error) {
	args := m.Called(ctx, accountID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncLog), args.Error(1)
}

// Complete closes a sync log as completed
func (m *MockSyncLogRepository) Complete(ctx context.Context, id uint, synced int, at time.Time) error {
	return m.Called(ctx, id, synced, at).Error(0)
}

// Fail closes a sync log as failed
func (m *MockSyncLogRepository) Fail(ctx context.Context, id uint, synced int, reason string, at time.Time) error {
	return m.Called(ctx, id, synced, reason, at).Error(0)
}

// ListByAccount lists recent sync logs of an account
func (m *MockSyncLogRepository) ListByAccount(ctx context.Context, accountID uint, limit int) ([]models.SyncLog, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SyncLog), args.Error(1)
}
