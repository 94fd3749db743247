package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
	"github.com/welldanyogia/webrana-crm-mail/internal/mocks"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/outbound"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/tasks"
)

// EmailHandlerTestSuite is the test suite for EmailHandler
type EmailHandlerTestSuite struct {
	suite.Suite
	echo        *echo.Echo
	handler     *EmailHandler
	emails      *mocks.MockEmailRepository
	attachments *mocks.MockAttachmentRepository
	sender      *mocks.MockSendPreparer
	queue       *mocks.MockQueue
	suggester   *mocks.MockReplySuggester
}

func (s *EmailHandlerTestSuite) SetupTest() {
	s.echo = echo.New()
	s.emails = new(mocks.MockEmailRepository)
	s.attachments = new(mocks.MockAttachmentRepository)
	s.sender = new(mocks.MockSendPreparer)
	s.queue = new(mocks.MockQueue)
	s.suggester = new(mocks.MockReplySuggester)
	s.handler = NewEmailHandler(s.emails, s.attachments, s.sender, s.queue, s.suggester, nil)
}

func (s *EmailHandlerTestSuite) TearDownTest() {
	s.emails.AssertExpectations(s.T())
	s.attachments.AssertExpectations(s.T())
	s.sender.AssertExpectations(s.T())
	s.queue.AssertExpectations(s.T())
	s.suggester.AssertExpectations(s.T())
}

func TestEmailHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(EmailHandlerTestSuite))
}

func (s *EmailHandlerTestSuite) inbound(id uint) *models.Email {
	return &models.Email{
		ID:          id,
		ThreadID:    3,
		AccountID:   2,
		FromAddress: "ana@customer.test",
		To:          []string{"sales@acme.test"},
		Subject:     "Pricing",
		BodyText:    "What does the premium plan cost?",
		Direction:   models.DirectionInbound,
		Status:      models.StatusDelivered,
	}
}

// ==================== Send Tests ====================

func (s *EmailHandlerTestSuite) TestSend_QueuesAndReturnsAccepted() {
	body := `{"to":["r@example.com"],"subject":"Hello","body_html":"<p>Hi</p>","tracking_enabled":true}`
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/send", body)

	s.sender.On("Prepare", mock.Anything, mock.MatchedBy(func(r *outbound.Request) bool {
		return r.CompanyID == testCompanyID && r.UserID == testUserID &&
			len(r.To) == 1 && r.To[0] == "r@example.com" && r.Subject == "Hello" &&
			r.TrackingEnabled && r.CompanyName == "Acme" && r.UserName == "Dana"
	})).Return(&models.Email{ID: 10, Status: models.StatusQueued}, nil)
	s.queue.On("EnqueueSend", uint(10)).Return(nil)

	s.NoError(s.handler.Send(c))
	s.Equal(http.StatusAccepted, rec.Code)

	var email models.Email
	s.NoError(json.Unmarshal(decode(rec).Data, &email))
	s.Equal(models.StatusQueued, email.Status)
}

func (s *EmailHandlerTestSuite) TestSend_Validation() {
	cases := map[string]string{
		"no recipients":   `{"to":[],"subject":"x","body_text":"y"}`,
		"bad address":     `{"to":["nope"],"subject":"x","body_text":"y"}`,
		"bad cc":          `{"to":["a@b.test"],"cc":["@@"],"subject":"x","body_text":"y"}`,
		"missing subject": `{"to":["a@b.test"],"body_text":"y"}`,
		"missing body":    `{"to":["a@b.test"],"subject":"x"}`,
	}
	for name, body := range cases {
		c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/send", body)
		s.NoError(s.handler.Send(c))
		s.Equal(http.StatusBadRequest, rec.Code, name)
	}
}

func (s *EmailHandlerTestSuite) TestSend_TemplateNeedsNoSubjectOrBody() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/send", `{"to":["a@b.test"],"template_id":4,"variables":{"customer_name":"Ana"}}`)

	s.sender.On("Prepare", mock.Anything, mock.MatchedBy(func(r *outbound.Request) bool {
		return r.TemplateID != nil && *r.TemplateID == 4 && r.Variables["customer_name"] == "Ana"
	})).Return(&models.Email{ID: 11}, nil)
	s.queue.On("EnqueueSend", uint(11)).Return(nil)

	s.NoError(s.handler.Send(c))
	s.Equal(http.StatusAccepted, rec.Code)
}

func (s *EmailHandlerTestSuite) TestSend_NoSendingAccount() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/send", `{"to":["a@b.test"],"subject":"x","body_text":"y"}`)
	s.sender.On("Prepare", mock.Anything, mock.Anything).Return(nil, apperrors.ErrNoSendingAccount)

	s.NoError(s.handler.Send(c))
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Equal(apperrors.CodeNoSendingAccount, decode(rec).Code)
}

func (s *EmailHandlerTestSuite) TestSend_QueueFull() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/send", `{"to":["a@b.test"],"subject":"x","body_text":"y"}`)
	s.sender.On("Prepare", mock.Anything, mock.Anything).Return(&models.Email{ID: 12}, nil)
	s.queue.On("EnqueueSend", uint(12)).Return(tasks.ErrQueueFull)

	s.NoError(s.handler.Send(c))
	s.Equal(http.StatusInternalServerError, rec.Code)
}

// ==================== Reply Tests ====================

func (s *EmailHandlerTestSuite) TestReply_AnswersInboundSender() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/5/reply", `{"body_text":"It is 20 USD."}`, "id", "5")

	s.emails.On("GetForUser", mock.Anything, uint(5), testUserID).Return(s.inbound(5), nil)
	s.sender.On("Prepare", mock.Anything, mock.MatchedBy(func(r *outbound.Request) bool {
		return len(r.To) == 1 && r.To[0] == "ana@customer.test" &&
			r.Subject == "Re: Pricing" &&
			r.ReplyToEmailID != nil && *r.ReplyToEmailID == 5 &&
			r.AccountID != nil && *r.AccountID == 2
	})).Return(&models.Email{ID: 13, ThreadID: 3}, nil)
	s.queue.On("EnqueueSend", uint(13)).Return(nil)

	s.NoError(s.handler.Reply(c))
	s.Equal(http.StatusAccepted, rec.Code)
}

func (s *EmailHandlerTestSuite) TestReply_UnknownEmail() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/5/reply", `{"body_text":"x"}`, "id", "5")
	s.emails.On("GetForUser", mock.Anything, uint(5), testUserID).Return(nil, repository.ErrNotFound)

	s.NoError(s.handler.Reply(c))
	s.Equal(http.StatusNotFound, rec.Code)
}

// ==================== Retry Tests ====================

func (s *EmailHandlerTestSuite) TestRetry_FailedEmail() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/6/retry", "", "id", "6")
	s.emails.On("GetForUser", mock.Anything, uint(6), testUserID).Return(&models.Email{
		ID: 6, Direction: models.DirectionOutbound, Status: models.StatusFailed,
	}, nil)
	s.queue.On("EnqueueSend", uint(6)).Return(nil)

	s.NoError(s.handler.Retry(c))
	s.Equal(http.StatusAccepted, rec.Code)
}

func (s *EmailHandlerTestSuite) TestRetry_SentEmailRejected() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/6/retry", "", "id", "6")
	s.emails.On("GetForUser", mock.Anything, uint(6), testUserID).Return(&models.Email{
		ID: 6, Direction: models.DirectionOutbound, Status: models.StatusSent,
	}, nil)

	s.NoError(s.handler.Retry(c))
	s.Equal(http.StatusBadRequest, rec.Code)
}

// ==================== Suggest Tests ====================

func (s *EmailHandlerTestSuite) TestSuggestReply() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/5/suggest-reply", `{"tone":"friendly"}`, "id", "5")
	s.emails.On("GetForUser", mock.Anything, uint(5), testUserID).Return(s.inbound(5), nil)
	s.suggester.On("SuggestReply", mock.Anything, "Pricing", "What does the premium plan cost?", map[string]string{"tone": "friendly"}).
		Return("Hi Ana, the premium plan is 20 USD.", nil)

	s.NoError(s.handler.SuggestReply(c))
	s.Equal(http.StatusOK, rec.Code)

	var out map[string]string
	s.NoError(json.Unmarshal(decode(rec).Data, &out))
	s.Equal("Hi Ana, the premium plan is 20 USD.", out["suggestion"])
}

func (s *EmailHandlerTestSuite) TestSuggestReply_FailureIsEmpty() {
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/5/suggest-reply", "", "id", "5")
	s.emails.On("GetForUser", mock.Anything, uint(5), testUserID).Return(s.inbound(5), nil)
	s.suggester.On("SuggestReply", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("timeout"))

	s.NoError(s.handler.SuggestReply(c))
	s.Equal(http.StatusOK, rec.Code)

	var out map[string]string
	s.NoError(json.Unmarshal(decode(rec).Data, &out))
	s.Equal("", out["suggestion"])
}

func (s *EmailHandlerTestSuite) TestSuggestReply_NotConfigured() {
	h := NewEmailHandler(s.emails, s.attachments, s.sender, s.queue, nil, nil)
	c, rec := newTestContext(s.echo, http.MethodPost, "/api/emails/5/suggest-reply", "", "id", "5")
	s.emails.On("GetForUser", mock.Anything, uint(5), testUserID).Return(s.inbound(5), nil)

	s.NoError(h.SuggestReply(c))
	s.Equal(http.StatusOK, rec.Code)
}

// ==================== Attachment Tests ====================

func (s *EmailHandlerTestSuite) TestAttachments() {
	c, rec := newTestContext(s.echo, http.MethodGet, "/api/emails/5/attachments", "", "id", "5")
	s.emails.On("GetForUser", mock.Anything, uint(5), testUserID).Return(s.inbound(5), nil)
	s.attachments.On("ListByEmail", mock.Anything, uint(5)).Return([]models.Attachment{{ID: 1, EmailID: 5, Filename: "quote.pdf"}}, nil)

	s.NoError(s.handler.Attachments(c))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "quote.pdf")
}
