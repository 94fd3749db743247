// Package outbound sends email from connected mailbox accounts. A send is
// recorded as a queued email before any network call, then transmitted over
// the account's transport.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/welldanyogia/webrana-crm-mail/internal/categorizer"
	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
	"github.com/welldanyogia/webrana-crm-mail/internal/logger"
	"github.com/welldanyogia/webrana-crm-mail/internal/mailparse"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/templates"
	"github.com/welldanyogia/webrana-crm-mail/internal/tracking"
)

// Decrypter opens stored account secrets
type Decrypter interface {
	Decrypt(stored string) (string, error)
}

// Request describes one send
type Request struct {
	CompanyID uint
	UserID    uint
	// AccountID selects the sending account; nil picks the user's default
	AccountID *uint
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	BodyHTML  string
	BodyText  string
	// ReplyToEmailID puts the send in the thread of an earlier email
	ReplyToEmailID *uint
	TemplateID     *uint
	// Variables add to the template context; only allow-listed names are used
	Variables       map[string]string
	TrackingEnabled bool
	CompanyName     string
	UserName        string
	LeadID          *uint
	DealID          *uint
	CustomerID      *uint
}

// Config holds the Sender collaborators
type Config struct {
	Accounts    repository.AccountRepository
	Emails      repository.EmailRepository
	Templates   repository.TemplateRepository
	Vault       Decrypter
	Transports  Transports
	Tokens      *tracking.Tokens
	CompanyName string
	Logger      *slog.Logger
	Security    *logger.SecurityLogger
	// Threads and Categorizer classify the thread of each completed send;
	// either may be nil to skip it
	Threads     repository.ThreadRepository
	Categorizer *categorizer.Categorizer
}

// Sender creates and transmits outbound emails
type Sender struct {
	accounts    repository.AccountRepository
	emails      repository.EmailRepository
	templates   repository.TemplateRepository
	vault       Decrypter
	transports  Transports
	tokens      *tracking.Tokens
	companyName string
	logger      *slog.Logger
	security    *logger.SecurityLogger
	threads     repository.ThreadRepository
	categorizer *categorizer.Categorizer
	now         func() time.Time
}

// NewSender creates a Sender
func NewSender(cfg *Config) *Sender {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Sender{
		accounts:    cfg.Accounts,
		emails:      cfg.Emails,
		templates:   cfg.Templates,
		vault:       cfg.Vault,
		transports:  cfg.Transports,
		tokens:      cfg.Tokens,
		companyName: cfg.CompanyName,
		logger:      log,
		security:    cfg.Security,
		threads:     cfg.Threads,
		categorizer: cfg.Categorizer,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ResolveAccount returns the account to send from: the requested one, else
// the user's default active account, else the user's first active account
func (s *Sender) ResolveAccount(ctx context.Context, userID uint, accountID *uint) (*models.MailboxAccount, error) {
	if accountID != nil {
		account, err := s.accounts.GetForUser(ctx, *accountID, userID)
		if err != nil {
			return nil, err
		}
		if !account.IsActive {
			return nil, apperrors.ErrAccountInactive
		}
		return account, nil
	}

	account, err := s.accounts.FindDefault(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	account, err = s.accounts.FindFirstActive(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrNoSendingAccount
	}
	return account, err
}

// Prepare records the send as a queued email without touching the network.
// A template send has its usage counted here, once per logical send.
func (s *Sender) Prepare(ctx context.Context, req *Request) (*models.Email, error) {
	if len(req.To) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", apperrors.ErrInvalidInput)
	}

	account, err := s.ResolveAccount(ctx, req.UserID, req.AccountID)
	if err != nil {
		return nil, err
	}

	subject, html, text := req.Subject, req.BodyHTML, req.BodyText
	if req.TemplateID != nil {
		tpl, err := s.templates.GetForCompany(ctx, *req.TemplateID, req.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", *req.TemplateID, err)
		}
		vars := templates.WithSample(templates.DefaultContext(s.company(req), s.userName(req, account)), req.Variables)
		out := templates.Render(tpl, vars)
		subject = firstNonEmpty(subject, out.Subject)
		html = firstNonEmpty(html, out.BodyHTML)
		text = firstNonEmpty(text, out.BodyText)
	}
	if text == "" && html != "" {
		text = mailparse.HTMLToText(html)
	}

	thread := &models.Thread{
		CompanyID:    req.CompanyID,
		AccountID:    account.ID,
		Participants: participants(account.Address, req),
		LeadID:       req.LeadID,
		DealID:       req.DealID,
		CustomerID:   req.CustomerID,
	}
	thread.Category = firstNonEmpty(thread.TaggedCategory(), models.CategoryPrimary)
	if req.ReplyToEmailID != nil {
		parent, err := s.emails.GetForUser(ctx, *req.ReplyToEmailID, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("reply target %d: %w", *req.ReplyToEmailID, err)
		}
		thread = &models.Thread{ID: parent.ThreadID}
		if subject == "" {
			subject = ReplySubject(parent.Subject)
		}
	}
	thread.Subject = subject

	userID := req.UserID
	email := &models.Email{
		AccountID:   account.ID,
		MessageID:   NewMessageID(account.Address),
		FromAddress: account.Address,
		FromName:    req.UserName,
		To:          req.To,
		Cc:          req.Cc,
		Bcc:         req.Bcc,
		Subject:     subject,
		BodyText:    text,
		BodyHTML:    html,
		Direction:   models.DirectionOutbound,
		Status:      models.StatusQueued,
		TrackingOn:  req.TrackingEnabled,
		ReplyToID:   req.ReplyToEmailID,
		CreatedBy:   &userID,
		TemplateID:  req.TemplateID,
	}

	rec := &repository.EmailRecord{Thread: thread, Email: email, At: s.now(), TemplateID: req.TemplateID}
	if err := s.emails.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record email: %w", err)
	}

	s.logger.Info("Email queued",
		slog.Uint64("email_id", uint64(email.ID)),
		slog.Uint64("thread_id", uint64(email.ThreadID)),
		slog.Uint64("account_id", uint64(account.ID)),
	)
	return email, nil
}

// Transmit sends a queued email. On failure the email is marked failed and
// the error returned; configuration errors satisfy apperrors.IsConfiguration.
func (s *Sender) Transmit(ctx context.Context, emailID uint) (*models.Email, error) {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, err
	}
	switch email.Status {
	case models.StatusSent, models.StatusDelivered:
		return email, nil
	case models.StatusQueued:
	default:
		return nil, fmt.Errorf("%w: email %d is %s", apperrors.ErrInvalidInput, email.ID, email.Status)
	}

	if err := s.transmit(ctx, email); err != nil {
		if markErr := s.emails.MarkFailed(ctx, email.ID, err.Error()); markErr != nil {
			s.logger.Error("Failed to mark email failed",
				slog.Uint64("email_id", uint64(email.ID)),
				slog.Any("error", markErr),
			)
		}
		s.logger.Warn("Email transmission failed",
			slog.Uint64("email_id", uint64(email.ID)),
			slog.Any("error", err),
		)
		return nil, err
	}

	if err := s.emails.MarkSent(ctx, email.ID, s.now()); err != nil {
		return nil, err
	}
	s.logger.Info("Email sent", slog.Uint64("email_id", uint64(email.ID)))

	sent, err := s.emails.GetByID(ctx, email.ID)
	if err != nil {
		return nil, err
	}
	s.categorize(ctx, sent)
	return sent, nil
}

// categorize classifies the thread of a completed send. Failures are logged
// and never fail the send.
func (s *Sender) categorize(ctx context.Context, email *models.Email) {
	if s.threads == nil || s.categorizer == nil {
		return
	}
	thread, err := s.threads.GetByID(ctx, email.ThreadID)
	if err == nil {
		_, err = s.categorizer.Categorize(ctx, email, thread)
	}
	if err != nil {
		s.logger.Warn("Failed to categorize sent email",
			slog.Uint64("email_id", uint64(email.ID)),
			slog.Any("error", err),
		)
	}
}

func (s *Sender) transmit(ctx context.Context, email *models.Email) error {
	account, err := s.accounts.GetByID(ctx, email.AccountID)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return apperrors.ErrAccountInactive
	}
	transport, err := s.transports.For(account.Provider)
	if err != nil {
		return err
	}

	secret, err := s.vault.Decrypt(account.Secret)
	if err != nil {
		if s.security != nil {
			s.security.CredentialUnusable(account.ID, "send")
		}
		return fmt.Errorf("account %d: %w", account.ID, apperrors.ErrCredentialUnusable)
	}

	msg := &Outgoing{
		MessageID: email.MessageID,
		From:      mail.Address{Name: email.FromName, Address: email.FromAddress},
		To:        email.To,
		Cc:        email.Cc,
		Bcc:       email.Bcc,
		Subject:   email.Subject,
		Text:      email.BodyText,
		HTML:      email.BodyHTML,
		Date:      s.now(),
	}
	if email.TrackingOn && msg.HTML != "" && s.tokens != nil {
		msg.HTML = s.tokens.Instrument(msg.HTML, email.ID)
	}
	if email.ReplyToID != nil {
		if parent, err := s.emails.GetByID(ctx, *email.ReplyToID); err == nil {
			msg.InReplyTo = parent.MessageID
		}
	}

	return transport.Transmit(ctx, account, secret, msg)
}

// Retry re-issues a failed email under a fresh message id and transmits it.
// The template usage is not counted again.
func (s *Sender) Retry(ctx context.Context, emailID uint) (*models.Email, error) {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if email.Status == models.StatusFailed {
		if err := s.emails.Requeue(ctx, email.ID, NewMessageID(email.FromAddress)); err != nil {
			return nil, err
		}
	}
	return s.Transmit(ctx, email.ID)
}

// Send prepares and transmits in one call. The queued email is returned with
// the transmission error when sending fails.
func (s *Sender) Send(ctx context.Context, req *Request) (*models.Email, error) {
	email, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	sent, err := s.Transmit(ctx, email.ID)
	if err != nil {
		return email, err
	}
	return sent, nil
}

func (s *Sender) company(req *Request) string {
	return firstNonEmpty(req.CompanyName, s.companyName)
}

func (s *Sender) userName(req *Request, account *models.MailboxAccount) string {
	if req.UserName != "" {
		return req.UserName
	}
	addr := account.Address
	if at := strings.IndexByte(addr, '@'); at > 0 {
		return addr[:at]
	}
	return addr
}

// ReplySubject prefixes "Re: " unless the subject already carries it
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

func participants(from string, req *Request) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range [][]string{{from}, req.To, req.Cc, req.Bcc} {
		for _, a := range list {
			key := strings.ToLower(strings.TrimSpace(a))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, a)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
