package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/outbound"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/testutil"
	"github.com/welldanyogia/webrana-crm-mail/internal/vault"
)

type EngineTestSuite struct {
	suite.Suite
	db       *gorm.DB
	account  *models.MailboxAccount
	emails   repository.EmailRepository
	rules    repository.RuleRepository
	template *models.Template
	engine   *Engine
}

func (s *EngineTestSuite) SetupTest() {
	s.db = testutil.NewDB(s.T())
	s.account = testutil.SeedAccount(s.T(), s.db, 1, 10, "support@acme.test")
	s.emails = repository.NewEmailRepository(s.db)
	s.rules = repository.NewRuleRepository(s.db)
	threads := repository.NewThreadRepository(s.db)
	accounts := repository.NewAccountRepository(s.db)
	templates := repository.NewTemplateRepository(s.db)

	s.template = &models.Template{
		CompanyID: 1,
		Name:      "Refund policy",
		Subject:   "About your refund, {customer_name}",
		BodyText:  "Hi {customer_name}, refunds take five days.",
	}
	require.NoError(s.T(), templates.Create(context.Background(), s.template))

	v, err := vault.New("")
	require.NoError(s.T(), err)
	sender := outbound.NewSender(&outbound.Config{
		Accounts:    accounts,
		Emails:      s.emails,
		Templates:   templates,
		Vault:       v,
		CompanyName: "Acme",
	})
	s.engine = NewEngine(s.rules, s.emails, threads, accounts, sender, nil)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) inbound(from, subject, body string) *models.Email {
	email := &models.Email{
		AccountID:   s.account.ID,
		MessageID:   "<" + subject + "@customer.test>",
		FromAddress: from,
		FromName:    "Ana",
		To:          []string{s.account.Address},
		Subject:     subject,
		BodyText:    body,
		Direction:   models.DirectionInbound,
		Status:      models.StatusDelivered,
	}
	thread := &models.Thread{
		CompanyID:    1,
		AccountID:    s.account.ID,
		Subject:      subject,
		Participants: []string{from, s.account.Address},
		Category:     models.CategoryPrimary,
	}
	require.NoError(s.T(), s.emails.Insert(context.Background(), &repository.EmailRecord{
		Thread: thread,
		Email:  email,
		At:     time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}))
	return email
}

func (s *EngineTestSuite) rule(name string, keywords []string, templateID uint) *models.Rule {
	r := &models.Rule{
		CompanyID:  1,
		Name:       name,
		Trigger:    models.TriggerInbound,
		Conditions: models.RuleConditions{Keywords: keywords},
		Actions:    models.RuleActions{Action: models.ActionSendTemplate, TemplateID: templateID},
		IsActive:   true,
	}
	require.NoError(s.T(), s.rules.Create(context.Background(), r))
	return r
}

func (s *EngineTestSuite) TestEvaluate_MatchQueuesTemplateReply() {
	r := s.rule("refunds", []string{"Refund"}, s.template.ID)
	in := s.inbound("ana@customer.test", "Where is my money", "I asked for a refund last week")

	outcomes, err := s.engine.Evaluate(context.Background(), in.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), outcomes, 1)
	assert.Equal(s.T(), r.ID, outcomes[0].RuleID)
	assert.True(s.T(), outcomes[0].Matched)
	require.NoError(s.T(), outcomes[0].Err)
	require.NotZero(s.T(), outcomes[0].QueuedEmailID)

	reply, err := s.emails.GetByID(context.Background(), outcomes[0].QueuedEmailID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.StatusQueued, reply.Status)
	assert.Equal(s.T(), models.DirectionOutbound, reply.Direction)
	assert.Equal(s.T(), []string{"ana@customer.test"}, reply.To)
	assert.Equal(s.T(), in.ThreadID, reply.ThreadID)
	assert.Equal(s.T(), "About your refund, Ana", reply.Subject)
	assert.Contains(s.T(), reply.BodyText, "Hi Ana")
	require.NotNil(s.T(), reply.ReplyToID)
	assert.Equal(s.T(), in.ID, *reply.ReplyToID)
}

func (s *EngineTestSuite) TestEvaluate_NoMatch() {
	s.rule("refunds", []string{"refund"}, s.template.ID)
	in := s.inbound("ana@customer.test", "Hello", "Just saying hi")

	outcomes, err := s.engine.Evaluate(context.Background(), in.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), outcomes, 1)
	assert.False(s.T(), outcomes[0].Matched)
	assert.Zero(s.T(), outcomes[0].QueuedEmailID)
}

func (s *EngineTestSuite) TestEvaluate_FailingRuleDoesNotStopOthers() {
	broken := s.rule("broken", []string{"refund"}, 9999)
	working := s.rule("working", []string{"refund"}, s.template.ID)
	in := s.inbound("ana@customer.test", "Refund please", "")

	outcomes, err := s.engine.Evaluate(context.Background(), in.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), outcomes, 2)

	assert.Equal(s.T(), broken.ID, outcomes[0].RuleID)
	assert.Error(s.T(), outcomes[0].Err)
	assert.Equal(s.T(), working.ID, outcomes[1].RuleID)
	assert.NoError(s.T(), outcomes[1].Err)
	assert.NotZero(s.T(), outcomes[1].QueuedEmailID)
}

func (s *EngineTestSuite) TestEvaluate_InactiveRulesIgnored() {
	r := s.rule("refunds", []string{"refund"}, s.template.ID)
	require.NoError(s.T(), s.rules.SetActive(context.Background(), r.ID, 1, false))
	in := s.inbound("ana@customer.test", "Refund", "")

	outcomes, err := s.engine.Evaluate(context.Background(), in.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), outcomes)
}

func (s *EngineTestSuite) TestEvaluate_SkipsMailFromOwnAddress() {
	s.rule("refunds", []string{"refund"}, s.template.ID)
	in := s.inbound("Support@Acme.test", "Refund", "")

	outcomes, err := s.engine.Evaluate(context.Background(), in.ID)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), outcomes)
}

func (s *EngineTestSuite) TestEvaluate_UnknownEmail() {
	_, err := s.engine.Evaluate(context.Background(), 4242)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)
}

func TestMatches(t *testing.T) {
	cond := models.RuleConditions{Keywords: []string{" Invoice ", "refund"}}

	assert.True(t, Matches(cond, "Your INVOICE", ""))
	assert.True(t, Matches(cond, "", "asking for a Refund"))
	assert.False(t, Matches(cond, "Hello", "nothing here"))
	assert.False(t, Matches(models.RuleConditions{}, "refund", "refund"))
	assert.False(t, Matches(models.RuleConditions{Keywords: []string{"  "}}, "refund", ""))
}
