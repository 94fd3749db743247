package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/outbound"
)

// MockVault seals secrets
type MockVault struct {
	mock.Mock
}

// Encrypt seals plaintext
func (m *MockVault) Encrypt(plaintext string) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

// MockQueue records enqueued work
type MockQueue struct {
	mock.Mock
}

// EnqueueSend queues a send
func (m *MockQueue) EnqueueSend(emailID uint) error {
	return m.Called(emailID).Error(0)
}

// EnqueueSync queues an account sync
func (m *MockQueue) EnqueueSync(accountID uint) error {
	return m.Called(accountID).Error(0)
}

// Pending reports the queue depth
func (m *MockQueue) Pending() int {
	return m.Called().Int(0)
}

// MockGmailConnector runs a fake OAuth exchange
type MockGmailConnector struct {
	mock.Mock
}

// AuthURL returns the consent URL for state
func (m *MockGmailConnector) AuthURL(state string) string {
	return m.Called(state).String(0)
}

// Exchange trades a code for a token
func (m *MockGmailConnector) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

// Address reads the mailbox address of a token
func (m *MockGmailConnector) Address(ctx context.Context, tok *oauth2.Token) (string, error) {
	args := m.Called(ctx, tok)
	return args.String(0), args.Error(1)
}

// MockSendPreparer records outbound sends
type MockSendPreparer struct {
	mock.Mock
}

// Prepare records a send as queued
func (m *MockSendPreparer) Prepare(ctx context.Context, req *outbound.Request) (*models.Email, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Email), args.Error(1)
}

// MockReplySuggester drafts replies
type MockReplySuggester struct {
	mock.Mock
}

// SuggestReply returns a drafted reply
func (m *MockReplySuggester) SuggestReply(ctx context.Context, subject, body string, hints map[string]string) (string, error) {
	args := m.Called(ctx, subject, body, hints)
	return args.String(0), args.Error(1)
}
