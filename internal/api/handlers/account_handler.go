package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/welldanyogia/webrana-crm-mail/internal/api/response"
	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
	"github.com/welldanyogia/webrana-crm-mail/internal/google"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/validator"
)

const maskedSecret = "********"

// Outlook accounts send through Office 365; their inbound mail is pushed to the relay
const (
	outlookSMTPHost = "smtp.office365.com"
	outlookSMTPPort = 587
	gmailIMAPHost   = "imap.gmail.com"
	gmailIMAPPort   = 993
)

// Encrypter seals account secrets before they are stored
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// SyncQueue queues account syncs
type SyncQueue interface {
	EnqueueSync(accountID uint) error
}

// GmailConnector runs the Gmail OAuth exchange
type GmailConnector interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Address(ctx context.Context, tok *oauth2.Token) (string, error)
}

// AccountHandlerConfig holds the AccountHandler collaborators
type AccountHandlerConfig struct {
	Accounts        repository.AccountRepository
	SyncLogs        repository.SyncLogRepository
	Vault           Encrypter
	Queue           SyncQueue
	Gmail           GmailConnector
	DefaultSMTPHost string
	DefaultSMTPPort int
	Logger          *slog.Logger
}

// AccountHandler handles mailbox account HTTP requests
type AccountHandler struct {
	accounts        repository.AccountRepository
	syncLogs        repository.SyncLogRepository
	vault           Encrypter
	queue           SyncQueue
	gmail           GmailConnector
	defaultSMTPHost string
	defaultSMTPPort int
	logger          *slog.Logger
}

// NewAccountHandler creates a new AccountHandler. A nil Gmail connector
// disables the Gmail routes.
func NewAccountHandler(cfg *AccountHandlerConfig) *AccountHandler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &AccountHandler{
		accounts:        cfg.Accounts,
		syncLogs:        cfg.SyncLogs,
		vault:           cfg.Vault,
		queue:           cfg.Queue,
		gmail:           cfg.Gmail,
		defaultSMTPHost: cfg.DefaultSMTPHost,
		defaultSMTPPort: cfg.DefaultSMTPPort,
		logger:          log,
	}
}

// AccountView is an account as returned by the API; the secret is masked
type AccountView struct {
	models.AccountWithUnreadCount
	Secret string `json:"secret"`
}

func view(a models.AccountWithUnreadCount) AccountView {
	return AccountView{AccountWithUnreadCount: a, Secret: maskedSecret}
}

// CreateAccountRequest represents the request body for connecting a
// password-based mailbox
type CreateAccountRequest struct {
	Address     string `json:"address"`
	Provider    string `json:"provider"`
	SMTPHost    string `json:"smtp_host"`
	SMTPPort    int    `json:"smtp_port"`
	IMAPHost    string `json:"imap_host"`
	IMAPPort    int    `json:"imap_port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	IsDefault   bool   `json:"is_default"`
	SyncEnabled *bool  `json:"sync_enabled"`
}

// Create handles POST /api/accounts
func (h *AccountHandler) Create(c echo.Context) error {
	var req CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	address, err := validator.NormalizeAddress(req.Address)
	if err != nil {
		return response.BadRequest(c, "a valid address is required")
	}
	provider := models.ProviderKind(strings.ToLower(req.Provider))
	if provider == "" {
		provider = models.ProviderGeneric
	}
	if !provider.Valid() {
		return response.BadRequest(c, "provider must be one of gmail, outlook, generic")
	}
	if provider == models.ProviderGmail {
		return response.BadRequest(c, "gmail accounts are connected through /api/accounts/gmail/connect")
	}
	if req.Password == "" {
		return response.BadRequest(c, "password is required")
	}

	id := identity(c)
	account := &models.MailboxAccount{
		CompanyID:   id.CompanyID,
		UserID:      id.UserID,
		Address:     address,
		Provider:    provider,
		SMTPHost:    req.SMTPHost,
		SMTPPort:    req.SMTPPort,
		IMAPHost:    req.IMAPHost,
		IMAPPort:    req.IMAPPort,
		Username:    req.Username,
		IsActive:    true,
		SyncEnabled: req.SyncEnabled == nil || *req.SyncEnabled,
	}
	h.applyDefaults(account)
	if err := validator.ValidateHost(account.SMTPHost); err != nil {
		return response.BadRequest(c, "smtp_host: "+err.Error())
	}
	if account.IMAPHost != "" {
		if err := validator.ValidateHost(account.IMAPHost); err != nil {
			return response.BadRequest(c, "imap_host: "+err.Error())
		}
	}
	if validator.ValidatePort(account.SMTPPort) != nil || validator.ValidatePort(account.IMAPPort) != nil {
		return response.BadRequest(c, validator.ErrInvalidPort.Error())
	}

	if account.Secret, err = h.vault.Encrypt(req.Password); err != nil {
		h.logger.Error("Failed to encrypt account secret", slog.Any("error", err))
		return response.InternalError(c, "failed to store credentials")
	}

	if err := h.accounts.Create(c.Request().Context(), account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return response.Conflict(c, "account already connected")
		}
		return response.Error(c, err)
	}
	if req.IsDefault {
		if err := h.accounts.SetDefault(c.Request().Context(), id.UserID, account.ID); err != nil {
			return response.Error(c, err)
		}
		account.IsDefault = true
	}

	h.initialSync(account)
	return response.Created(c, view(models.AccountWithUnreadCount{MailboxAccount: *account}))
}

func (h *AccountHandler) applyDefaults(a *models.MailboxAccount) {
	switch a.Provider {
	case models.ProviderOutlook:
		if a.SMTPHost == "" {
			a.SMTPHost, a.SMTPPort = outlookSMTPHost, outlookSMTPPort
		}
	case models.ProviderGeneric:
		if a.SMTPHost == "" {
			a.SMTPHost = h.defaultSMTPHost
		}
	}
	if a.SMTPPort == 0 {
		a.SMTPPort = h.defaultSMTPPort
	}
}

// initialSync queues the first sync of a pull-capable account
func (h *AccountHandler) initialSync(account *models.MailboxAccount) {
	if !account.SupportsPull() || !account.SyncEnabled || h.queue == nil {
		return
	}
	if err := h.queue.EnqueueSync(account.ID); err != nil {
		h.logger.Warn("Failed to queue initial sync",
			slog.Uint64("account_id", uint64(account.ID)),
			slog.Any("error", err))
	}
}

// List handles GET /api/accounts
func (h *AccountHandler) List(c echo.Context) error {
	accounts, err := h.accounts.ListByUser(c.Request().Context(), identity(c).UserID)
	if err != nil {
		return response.InternalError(c, "failed to list accounts")
	}

	views := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, view(a))
	}
	return response.Success(c, views)
}

// Get handles GET /api/accounts/:id
func (h *AccountHandler) Get(c echo.Context) error {
	account, err := h.load(c)
	if err != nil {
		return fail(c, err, "account")
	}
	return response.Success(c, view(models.AccountWithUnreadCount{MailboxAccount: *account}))
}

// Delete handles DELETE /api/accounts/:id. The account is deactivated so
// that its threads stay readable.
func (h *AccountHandler) Delete(c echo.Context) error {
	account, err := h.load(c)
	if err != nil {
		return fail(c, err, "account")
	}
	if err := h.accounts.Deactivate(c.Request().Context(), account.ID); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}

// SetDefault handles POST /api/accounts/:id/default
func (h *AccountHandler) SetDefault(c echo.Context) error {
	account, err := h.load(c)
	if err != nil {
		return fail(c, err, "account")
	}
	if !account.IsActive {
		return response.Error(c, apperrors.ErrAccountInactive)
	}
	if err := h.accounts.SetDefault(c.Request().Context(), account.UserID, account.ID); err != nil {
		return response.Error(c, err)
	}
	account.IsDefault = true
	return response.Success(c, view(models.AccountWithUnreadCount{MailboxAccount: *account}))
}

// Sync handles POST /api/accounts/:id/sync
func (h *AccountHandler) Sync(c echo.Context) error {
	account, err := h.load(c)
	if err != nil {
		return fail(c, err, "account")
	}
	if !account.IsActive {
		return response.Error(c, apperrors.ErrAccountInactive)
	}
	if !account.SupportsPull() {
		return response.Error(c, apperrors.ErrProviderUnsupported)
	}
	if err := h.queue.EnqueueSync(account.ID); err != nil {
		h.logger.Warn("Failed to queue sync", slog.Uint64("account_id", uint64(account.ID)), slog.Any("error", err))
		return response.InternalError(c, "failed to queue sync")
	}
	return response.Accepted(c, map[string]interface{}{"account_id": account.ID, "status": "queued"})
}

// SyncLogs handles GET /api/accounts/:id/sync-logs
func (h *AccountHandler) SyncLogs(c echo.Context) error {
	account, err := h.load(c)
	if err != nil {
		return fail(c, err, "account")
	}
	logs, err := h.syncLogs.ListByAccount(c.Request().Context(), account.ID, queryInt(c, "limit", 20, 100))
	if err != nil {
		return response.InternalError(c, "failed to list sync logs")
	}
	return response.Success(c, logs)
}

// GmailConnect handles GET /api/accounts/gmail/connect
func (h *AccountHandler) GmailConnect(c echo.Context) error {
	if h.gmail == nil {
		return response.Error(c, apperrors.ErrNotConfigured)
	}
	state := uuid.NewString()
	return response.Success(c, map[string]string{
		"auth_url": h.gmail.AuthURL(state),
		"state":    state,
	})
}

// GmailCallbackRequest carries the authorization code relayed by the frontend
type GmailCallbackRequest struct {
	Code      string `json:"code"`
	IsDefault bool   `json:"is_default"`
}

// GmailCallback handles POST /api/accounts/gmail/callback. A reconnect of an
// existing address replaces its token.
func (h *AccountHandler) GmailCallback(c echo.Context) error {
	if h.gmail == nil {
		return response.Error(c, apperrors.ErrNotConfigured)
	}
	var req GmailCallbackRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return response.BadRequest(c, "code is required")
	}

	ctx := c.Request().Context()
	tok, err := h.gmail.Exchange(ctx, req.Code)
	if err != nil {
		h.logger.Warn("Gmail code exchange failed", slog.Any("error", err))
		return response.BadRequest(c, "authorization code rejected")
	}
	address, err := h.gmail.Address(ctx, tok)
	if err != nil {
		h.logger.Warn("Gmail profile lookup failed", slog.Any("error", err))
		return response.BadRequest(c, "could not read the gmail address")
	}
	encoded, err := google.EncodeToken(tok)
	if err != nil {
		return response.InternalError(c, "failed to store credentials")
	}
	secret, err := h.vault.Encrypt(encoded)
	if err != nil {
		h.logger.Error("Failed to encrypt account secret", slog.Any("error", err))
		return response.InternalError(c, "failed to store credentials")
	}

	id := identity(c)
	account, err := h.reconnect(ctx, id.UserID, address, secret)
	if err != nil {
		return response.Error(c, err)
	}
	if account == nil {
		account = &models.MailboxAccount{
			CompanyID:   id.CompanyID,
			UserID:      id.UserID,
			Address:     strings.ToLower(address),
			Provider:    models.ProviderGmail,
			IMAPHost:    gmailIMAPHost,
			IMAPPort:    gmailIMAPPort,
			Username:    address,
			Secret:      secret,
			IsActive:    true,
			SyncEnabled: true,
		}
		if err := h.accounts.Create(ctx, account); err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				return response.Conflict(c, "address already connected by another user")
			}
			return response.Error(c, err)
		}
	}
	if req.IsDefault {
		if err := h.accounts.SetDefault(ctx, id.UserID, account.ID); err != nil {
			return response.Error(c, err)
		}
		account.IsDefault = true
	}

	h.initialSync(account)
	return response.Created(c, view(models.AccountWithUnreadCount{MailboxAccount: *account}))
}

func (h *AccountHandler) reconnect(ctx context.Context, userID uint, address, secret string) (*models.MailboxAccount, error) {
	existing, err := h.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		if strings.EqualFold(a.Address, address) && a.Provider == models.ProviderGmail {
			if err := h.accounts.UpdateSecret(ctx, a.ID, secret); err != nil {
				return nil, err
			}
			account := a.MailboxAccount
			account.IsActive, account.SyncEnabled = true, true
			return &account, nil
		}
	}
	return nil, nil
}

// load fetches the :id account of the caller
func (h *AccountHandler) load(c echo.Context) (*models.MailboxAccount, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.accounts.GetForUser(c.Request().Context(), id, identity(c).UserID)
}
