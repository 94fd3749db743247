package smtp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/welldanyogia/webrana-crm-mail/internal/inbound"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/validator"
)

var (
	errInvalidRecipient = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 1},
		Message:      "Invalid recipient address",
	}
	errUnknownMailbox = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 1},
		Message:      "Mailbox not found",
	}
	errTemporary = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "Temporary error",
	}
	errNoRecipients = &smtp.SMTPError{
		Code:         503,
		EnhancedCode: smtp.EnhancedCode{5, 5, 1},
		Message:      "No recipients specified",
	}
)

// Session implements the go-smtp Session interface
type Session struct {
	backend  *Backend
	remote   string
	authed   bool
	from     string
	accounts []models.MailboxAccount
	seen     map[uint]bool
}

// NewSession creates a new SMTP session
func NewSession(backend *Backend, remote string) *Session {
	return &Session{backend: backend, remote: remote, seen: map[uint]bool{}}
}

// AuthMechanisms advertises PLAIN when the relay is protected by a secret
func (s *Session) AuthMechanisms() []string {
	if s.backend.secret == "" {
		return nil
	}
	return []string{sasl.Plain}
}

// Auth checks the relay secret
func (s *Session) Auth(mech string) (sasl.Server, error) {
	if s.backend.secret == "" || mech != sasl.Plain {
		return nil, smtp.ErrAuthUnsupported
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(RelayUser)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.backend.secret)) == 1
		if !userOK || !passOK {
			if s.backend.security != nil {
				s.backend.security.AuthFailure(s.remote, "smtp-relay", "invalid relay credentials")
			}
			return errors.New("invalid credentials")
		}
		s.authed = true
		return nil
	}), nil
}

// Mail handles the MAIL FROM command
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	if s.backend.secret != "" && !s.authed {
		return smtp.ErrAuthRequired
	}
	s.from = from
	s.backend.logger.Debug("MAIL FROM", slog.String("from", from))
	return nil
}

// Rcpt accepts recipients that are connected, active accounts
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	address, err := normalizeAddress(to)
	if err != nil {
		return errInvalidRecipient
	}

	accounts, err := s.backend.accounts.ListActiveByAddress(context.Background(), address)
	if err != nil {
		s.backend.logger.Error("failed to look up recipient", slog.String("to", address), slog.Any("error", err))
		return errTemporary
	}
	if len(accounts) == 0 {
		return errUnknownMailbox
	}

	for _, a := range accounts {
		if !s.seen[a.ID] {
			s.seen[a.ID] = true
			s.accounts = append(s.accounts, a)
		}
	}
	s.backend.logger.Debug("RCPT TO", slog.String("to", address), slog.Int("accounts", len(accounts)))
	return nil
}

// Data ingests the message once per recipient account. The message is
// refused with a temporary error only when no account could store it.
func (s *Session) Data(r io.Reader) error {
	if len(s.accounts) == 0 {
		return errNoRecipients
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	ctx := context.Background()
	stored, failed := 0, 0
	for i := range s.accounts {
		account := &s.accounts[i]
		_, err := s.backend.ingester.Ingest(ctx, account, raw, "")
		switch {
		case err == nil:
			stored++
		case errors.Is(err, inbound.ErrAlreadyIngested):
		default:
			failed++
			s.backend.logger.Error("failed to ingest relayed email",
				slog.Uint64("account_id", uint64(account.ID)),
				slog.Any("error", err))
		}
	}

	s.backend.logger.Info("email relayed",
		slog.String("from", s.from),
		slog.Int("accounts", len(s.accounts)),
		slog.Int("stored", stored))

	if failed == len(s.accounts) {
		return errTemporary
	}
	return nil
}

// Reset resets the session state
func (s *Session) Reset() {
	s.from = ""
	s.accounts = nil
	s.seen = map[uint]bool{}
}

// Logout handles the end of the session
func (s *Session) Logout() error {
	return nil
}

// normalizeAddress strips angle brackets and lowercases an envelope address
func normalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	address = strings.TrimSuffix(strings.TrimPrefix(address, "<"), ">")
	normalized, err := validator.NormalizeAddress(address)
	if err != nil {
		return "", fmt.Errorf("invalid email address %q: %w", address, err)
	}
	return normalized, nil
}
