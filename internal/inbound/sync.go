package inbound

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"

	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
	"github.com/welldanyogia/webrana-crm-mail/internal/google"
	"github.com/welldanyogia/webrana-crm-mail/internal/logger"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
)

const (
	// DefaultLimit is the number of most recent messages examined per sync
	DefaultLimit = 20

	gmailIMAPHost   = "imap.gmail.com"
	implicitTLSPort = 993
)

// Decrypter opens stored account secrets
type Decrypter interface {
	Decrypt(stored string) (string, error)
}

// SynchronizerConfig holds the Synchronizer collaborators
type SynchronizerConfig struct {
	Accounts repository.AccountRepository
	Ingester *Ingester
	Vault    Decrypter
	// OAuth is required for gmail accounts only
	OAuth    *google.OAuth
	Logger   *slog.Logger
	Security *logger.SecurityLogger
}

// Synchronizer pulls recent messages of a mailbox over IMAP
type Synchronizer struct {
	accounts repository.AccountRepository
	ingester *Ingester
	vault    Decrypter
	oauth    *google.OAuth
	logger   *slog.Logger
	security *logger.SecurityLogger

	Timeout   time.Duration
	TLSConfig *tls.Config
	now       func() time.Time

	// Insecure permits LOGIN on a plaintext connection when the server
	// offers no STARTTLS
	Insecure bool
}

// NewSynchronizer creates a Synchronizer
func NewSynchronizer(cfg *SynchronizerConfig) *Synchronizer {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{
		accounts: cfg.Accounts,
		ingester: cfg.Ingester,
		vault:    cfg.Vault,
		oauth:    cfg.OAuth,
		logger:   log,
		security: cfg.Security,
		Timeout:  30 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type fetched struct {
	uid uint32
	raw []byte
}

// Sync ingests up to limit of the most recent undeleted INBOX messages and
// returns how many new emails were stored. Messages already stored are
// skipped. On a transport or authentication failure the count reached so far
// is returned with the error. The account's last sync time is updated
// whatever the outcome.
func (s *Synchronizer) Sync(ctx context.Context, account *models.MailboxAccount, limit int) (int, error) {
	if !account.SupportsPull() {
		return 0, fmt.Errorf("%w: %s accounts cannot be pulled", apperrors.ErrProviderUnsupported, account.Provider)
	}
	if !account.IsActive {
		return 0, apperrors.ErrAccountInactive
	}
	if !account.SyncEnabled {
		return 0, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	defer func() {
		if err := s.accounts.TouchLastSync(context.WithoutCancel(ctx), account.ID, s.now()); err != nil {
			s.logger.Error("Failed to record sync time",
				slog.Uint64("account_id", uint64(account.ID)),
				slog.Any("error", err),
			)
		}
	}()

	messages, uidValidity, host, err := s.fetch(ctx, account, limit)
	created := 0
	for _, m := range messages {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		fallback := fmt.Sprintf("<imap-%d-%d-%d@%s>", account.ID, uidValidity, m.uid, host)
		_, ingestErr := s.ingester.Ingest(ctx, account, m.raw, fallback)
		switch {
		case ingestErr == nil:
			created++
		case errors.Is(ingestErr, ErrAlreadyIngested):
		default:
			return created, ingestErr
		}
	}
	if err != nil {
		return created, err
	}

	s.logger.Info("Mailbox synchronized",
		slog.Uint64("account_id", uint64(account.ID)),
		slog.Int("fetched", len(messages)),
		slog.Int("new", created),
	)
	return created, nil
}

// fetch reads the raw messages in one IMAP session. Messages read before a
// failure are returned with the error so they can still be stored.
func (s *Synchronizer) fetch(ctx context.Context, account *models.MailboxAccount, limit int) ([]fetched, uint32, string, error) {
	host, port := s.endpoint(account)
	c, err := s.dial(host, port)
	if err != nil {
		return nil, 0, host, fmt.Errorf("failed to connect to %s: %w", host, err)
	}
	defer func() { _ = c.Logout() }()

	if err := s.authenticate(ctx, c, account); err != nil {
		return nil, 0, host, err
	}

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return nil, 0, host, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.DeletedFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, mbox.UidValidity, host, fmt.Errorf("failed to search INBOX: %w", err)
	}
	if len(uids) == 0 {
		return nil, mbox.UidValidity, host, nil
	}
	sort.Slice(uids, func(a, b int) bool { return uids[a] < uids[b] })
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	seq := new(imap.SeqSet)
	seq.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() { done <- c.UidFetch(seq, items, ch) }()

	var out []fetched
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			s.logger.Warn("Failed to read message body",
				slog.Uint64("account_id", uint64(account.ID)),
				slog.Uint64("uid", uint64(msg.Uid)),
				slog.Any("error", err),
			)
			continue
		}
		out = append(out, fetched{uid: msg.Uid, raw: raw})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].uid < out[b].uid })

	if err := <-done; err != nil {
		return out, mbox.UidValidity, host, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return out, mbox.UidValidity, host, nil
}

func (s *Synchronizer) endpoint(account *models.MailboxAccount) (string, int) {
	host, port := account.IMAPHost, account.IMAPPort
	if host == "" && account.Provider == models.ProviderGmail {
		host = gmailIMAPHost
	}
	if port == 0 {
		port = implicitTLSPort
	}
	return host, port
}

func (s *Synchronizer) dial(host string, port int) (*client.Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: s.Timeout}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.TLSConfig != nil {
		cfg = s.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}

	if port == implicitTLSPort {
		c, err := client.DialWithDialerTLS(dialer, addr, cfg)
		if err != nil {
			return nil, err
		}
		c.Timeout = s.Timeout
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, addr)
	if err != nil {
		return nil, err
	}
	c.Timeout = s.Timeout
	ok, err := c.SupportStartTLS()
	if err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("capability check failed: %w", err)
	}
	if !ok {
		if s.Insecure {
			return c, nil
		}
		_ = c.Logout()
		return nil, fmt.Errorf("%s does not offer STARTTLS", addr)
	}
	if err := c.StartTLS(cfg); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("STARTTLS failed: %w", err)
	}
	return c, nil
}

func (s *Synchronizer) authenticate(ctx context.Context, c *client.Client, account *models.MailboxAccount) error {
	secret, err := s.vault.Decrypt(account.Secret)
	if err != nil {
		s.credentialUnusable(account)
		return fmt.Errorf("account %d: %w", account.ID, apperrors.ErrCredentialUnusable)
	}

	if account.Provider == models.ProviderGmail {
		if s.oauth == nil {
			return fmt.Errorf("gmail sync: %w", apperrors.ErrNotConfigured)
		}
		tok, err := google.DecodeToken(secret)
		if err != nil {
			s.credentialUnusable(account)
			return err
		}
		access, err := s.oauth.AccessToken(ctx, tok)
		if err != nil {
			return fmt.Errorf("failed to refresh gmail token: %w", err)
		}
		err = c.Authenticate(sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: account.Address,
			Token:    access,
		}))
		if err != nil {
			return fmt.Errorf("IMAP authentication failed: %w", err)
		}
		return nil
	}

	if err := c.Login(account.LoginName(), secret); err != nil {
		return fmt.Errorf("IMAP login failed: %w", err)
	}
	return nil
}

func (s *Synchronizer) credentialUnusable(account *models.MailboxAccount) {
	if s.security != nil {
		s.security.CredentialUnusable(account.ID, "sync")
	}
}
