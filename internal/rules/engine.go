// Package rules evaluates company automations against inbound email.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/outbound"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
)

// Preparer records a send as a queued email
type Preparer interface {
	Prepare(ctx context.Context, req *outbound.Request) (*models.Email, error)
}

// Outcome is the result of one rule against one email
type Outcome struct {
	RuleID  uint
	Matched bool
	// QueuedEmailID is the reply recorded by a matching send_template rule
	QueuedEmailID uint
	Err           error
}

// Engine evaluates the active inbound rules of a company
type Engine struct {
	rules    repository.RuleRepository
	emails   repository.EmailRepository
	threads  repository.ThreadRepository
	accounts repository.AccountRepository
	sender   Preparer
	logger   *slog.Logger
}

// NewEngine creates an Engine
func NewEngine(
	rules repository.RuleRepository,
	emails repository.EmailRepository,
	threads repository.ThreadRepository,
	accounts repository.AccountRepository,
	sender Preparer,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rules:    rules,
		emails:   emails,
		threads:  threads,
		accounts: accounts,
		sender:   sender,
		logger:   logger,
	}
}

// Evaluate runs every active inbound rule against the email. Rules are
// independent: a failing rule is reported in its Outcome and the remaining
// rules still run. The error covers loading the email and the rule set only.
func (e *Engine) Evaluate(ctx context.Context, emailID uint) ([]Outcome, error) {
	email, err := e.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, fmt.Errorf("email %d: %w", emailID, err)
	}
	if email.Direction != models.DirectionInbound {
		return nil, nil
	}
	thread, err := e.threads.GetByID(ctx, email.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("thread %d: %w", email.ThreadID, err)
	}
	account, err := e.accounts.GetByID(ctx, email.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", email.AccountID, err)
	}
	// mail from the mailbox itself never triggers an automatic answer
	if strings.EqualFold(email.FromAddress, account.Address) || email.FromAddress == "" {
		return nil, nil
	}

	active, err := e.rules.ListActive(ctx, thread.CompanyID, models.TriggerInbound)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(active))
	for i := range active {
		outcomes = append(outcomes, e.apply(ctx, &active[i], email, thread, account))
	}
	return outcomes, nil
}

func (e *Engine) apply(ctx context.Context, rule *models.Rule, email *models.Email, thread *models.Thread, account *models.MailboxAccount) (out Outcome) {
	out.RuleID = rule.ID
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("rule %d panicked: %v", rule.ID, r)
		}
		if out.Err != nil {
			e.logger.Warn("Rule failed",
				slog.Uint64("rule_id", uint64(rule.ID)),
				slog.Uint64("email_id", uint64(email.ID)),
				slog.Any("error", out.Err),
			)
		}
	}()

	if !Matches(rule.Conditions, email.Subject, email.BodyText) {
		return out
	}
	out.Matched = true

	switch rule.Actions.Action {
	case models.ActionSendTemplate:
		if rule.Actions.TemplateID == 0 {
			out.Err = errors.New("send_template rule without template_id")
			return out
		}
		templateID := rule.Actions.TemplateID
		accountID := account.ID
		replyTo := email.ID
		queued, err := e.sender.Prepare(ctx, &outbound.Request{
			CompanyID:      thread.CompanyID,
			UserID:         account.UserID,
			AccountID:      &accountID,
			To:             []string{email.FromAddress},
			TemplateID:     &templateID,
			ReplyToEmailID: &replyTo,
			Variables:      map[string]string{"customer_name": email.FromName},
			LeadID:         thread.LeadID,
			DealID:         thread.DealID,
			CustomerID:     thread.CustomerID,
		})
		if err != nil {
			out.Err = err
			return out
		}
		out.QueuedEmailID = queued.ID
		e.logger.Info("Rule matched, reply queued",
			slog.Uint64("rule_id", uint64(rule.ID)),
			slog.Uint64("email_id", uint64(email.ID)),
			slog.Uint64("reply_id", uint64(queued.ID)),
		)
	default:
		out.Err = fmt.Errorf("unknown rule action %q", rule.Actions.Action)
	}
	return out
}

// Matches reports whether any keyword occurs in the subject or body,
// ignoring case. A rule without keywords never matches.
func Matches(cond models.RuleConditions, subject, body string) bool {
	text := strings.ToLower(subject + "\n" + body)
	for _, kw := range cond.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
