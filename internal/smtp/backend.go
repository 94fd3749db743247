// Package smtp is an inbound SMTP relay. Mail providers that cannot be pulled
// over IMAP forward copies of received mail here; every recipient that is a
// connected account gets the message ingested as inbound email.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/welldanyogia/webrana-crm-mail/internal/config"
	"github.com/welldanyogia/webrana-crm-mail/internal/logger"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
)

// Security limits
const (
	DefaultMaxMessageSize = 25 * 1024 * 1024 // 25 MB
	DefaultMaxRecipients  = 100
	DefaultReadTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 60 * time.Second
	DefaultMaxLineLength  = 2000

	// RelayUser is the login name paired with the relay secret
	RelayUser = "relay"
)

// Ingester stores one raw message for an account
type Ingester interface {
	Ingest(ctx context.Context, account *models.MailboxAccount, raw []byte, fallbackID string) (*models.Email, error)
}

// Backend implements the go-smtp Backend interface
type Backend struct {
	accounts repository.AccountRepository
	ingester Ingester
	secret   string
	logger   *slog.Logger
	security *logger.SecurityLogger
}

// BackendConfig holds configuration for the SMTP backend
type BackendConfig struct {
	Accounts repository.AccountRepository
	Ingester Ingester
	// Secret, when set, must be presented with PLAIN auth as RelayUser
	Secret   string
	Logger   *slog.Logger
	Security *logger.SecurityLogger
}

// NewBackend creates a new SMTP backend
func NewBackend(cfg *BackendConfig) *Backend {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		accounts: cfg.Accounts,
		ingester: cfg.Ingester,
		secret:   cfg.Secret,
		logger:   log,
		security: cfg.Security,
	}
}

// NewSession creates a new SMTP session
func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := ""
	if c != nil && c.Conn() != nil {
		remote = c.Conn().RemoteAddr().String()
	}
	b.logger.Debug("new SMTP connection", slog.String("remote_addr", remote))
	return NewSession(b, remote), nil
}

// ServerConfig holds security configuration for the SMTP server
type ServerConfig struct {
	Addr           string
	Domain         string
	MaxMessageSize int64
	MaxRecipients  int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowInsecure  bool
	TLSConfig      *tls.Config
}

// NewSecureServer creates a new SMTP server with security settings
func NewSecureServer(backend *Backend, cfg *ServerConfig) *smtp.Server {
	s := smtp.NewServer(backend)
	s.Addr = cfg.Addr
	s.Domain = cfg.Domain

	s.MaxMessageBytes = orDefault(cfg.MaxMessageSize, DefaultMaxMessageSize)
	s.MaxRecipients = int(orDefault(int64(cfg.MaxRecipients), DefaultMaxRecipients))
	s.ReadTimeout = time.Duration(orDefault(int64(cfg.ReadTimeout), int64(DefaultReadTimeout)))
	s.WriteTimeout = time.Duration(orDefault(int64(cfg.WriteTimeout), int64(DefaultWriteTimeout)))
	s.AllowInsecureAuth = cfg.AllowInsecure
	if cfg.TLSConfig != nil {
		s.TLSConfig = cfg.TLSConfig
	}
	s.MaxLineLength = DefaultMaxLineLength
	return s
}

func orDefault(v, def int64) int64 {
	if v > 0 {
		return v
	}
	return def
}

// ServerConfigFrom builds the relay server settings from the application
// configuration. Without TLS material, PLAIN auth is allowed in the clear
// only outside production.
func ServerConfigFrom(cfg *config.Config) (*ServerConfig, error) {
	sc := &ServerConfig{
		Addr:           cfg.RelayAddr,
		Domain:         cfg.RelayDomain,
		MaxMessageSize: cfg.RelayMaxMessageSize,
		AllowInsecure:  !cfg.IsProduction(),
	}
	if cfg.RelayTLSCert != "" && cfg.RelayTLSKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.RelayTLSCert, cfg.RelayTLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load relay TLS key pair: %w", err)
		}
		sc.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}
	return sc, nil
}
