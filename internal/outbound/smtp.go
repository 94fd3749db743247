package outbound

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
)

const (
	implicitTLSPort = 465
	outlookHost     = "smtp.office365.com"
)

// SMTPTransport submits messages over SMTP with PLAIN authentication
type SMTPTransport struct {
	DefaultHost string
	DefaultPort int
	Timeout     time.Duration
	// TLSConfig overrides the client TLS settings; ServerName is filled in
	TLSConfig *tls.Config
	// Insecure submits over plaintext. Without it a server that offers
	// neither implicit TLS nor STARTTLS is refused before AUTH.
	Insecure bool
}

// NewSMTPTransport creates an SMTPTransport using host:port for accounts
// without their own server settings
func NewSMTPTransport(defaultHost string, defaultPort int) *SMTPTransport {
	return &SMTPTransport{
		DefaultHost: defaultHost,
		DefaultPort: defaultPort,
		Timeout:     30 * time.Second,
	}
}

func (t *SMTPTransport) endpoint(account *models.MailboxAccount) (string, int) {
	host, port := account.SMTPHost, account.SMTPPort
	if host == "" {
		host = t.DefaultHost
		if account.Provider == models.ProviderOutlook {
			host = outlookHost
		}
	}
	if port == 0 {
		port = t.DefaultPort
		if port == 0 {
			port = 587
		}
	}
	return host, port
}

func (t *SMTPTransport) tlsConfig(host string) *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if t.TLSConfig != nil {
		cfg = t.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

// Transmit implements Transport
func (t *SMTPTransport) Transmit(ctx context.Context, account *models.MailboxAccount, secret string, msg *Outgoing) error {
	host, port := t.endpoint(account)
	if host == "" {
		return fmt.Errorf("no SMTP host for account %d", account.ID)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	var c *smtp.Client
	switch {
	case port == implicitTLSPort:
		c = smtp.NewClient(tls.Client(conn, t.tlsConfig(host)))
	case t.Insecure:
		c = smtp.NewClient(conn)
	default:
		// NewClientStartTLS closes the connection on failure
		c, err = smtp.NewClientStartTLS(conn, t.tlsConfig(host))
		if err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	defer c.Close()
	if t.Timeout > 0 {
		c.CommandTimeout = t.Timeout
		c.SubmissionTimeout = t.Timeout
	}

	if secret != "" {
		if err := c.Auth(sasl.NewPlainClient("", account.LoginName(), secret)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	raw, err := Compose(msg, false)
	if err != nil {
		return err
	}
	if err := c.SendMail(msg.From.Address, msg.Recipients(), bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return c.Quit()
}
