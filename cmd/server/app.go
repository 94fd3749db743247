package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/welldanyogia/webrana-crm-mail/internal/ai"
	"github.com/welldanyogia/webrana-crm-mail/internal/api/handlers"
	"github.com/welldanyogia/webrana-crm-mail/internal/categorizer"
	"github.com/welldanyogia/webrana-crm-mail/internal/config"
	"github.com/welldanyogia/webrana-crm-mail/internal/database"
	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
	"github.com/welldanyogia/webrana-crm-mail/internal/google"
	"github.com/welldanyogia/webrana-crm-mail/internal/inbound"
	"github.com/welldanyogia/webrana-crm-mail/internal/logger"
	"github.com/welldanyogia/webrana-crm-mail/internal/metrics"
	"github.com/welldanyogia/webrana-crm-mail/internal/outbound"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/rules"
	"github.com/welldanyogia/webrana-crm-mail/internal/storage"
	"github.com/welldanyogia/webrana-crm-mail/internal/tasks"
	"github.com/welldanyogia/webrana-crm-mail/internal/tracking"
	"github.com/welldanyogia/webrana-crm-mail/internal/vault"
	"github.com/welldanyogia/webrana-crm-mail/internal/websocket"
)

// app is the wired object graph shared by the commands
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	security *logger.SecurityLogger
	metrics  *metrics.Metrics
	db       *gorm.DB
	storage  storage.FileStorage
	vault    *vault.Vault

	accounts  repository.AccountRepository
	emails    repository.EmailRepository
	threads   repository.ThreadRepository
	templates repository.TemplateRepository

	oauth    *google.OAuth
	ai       *ai.Client
	tokens   *tracking.Tokens
	tracker  *tracking.Tracker
	hub      *websocket.Hub
	ingester *inbound.Ingester
	sender   *outbound.Sender
	queue    *tasks.Queue
}

// newApp loads configuration, connects and migrates the database and wires
// every service. Close releases the database.
func newApp() (*app, error) {
	cfg, err := config.LoadWithValidation()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	a := &app{
		cfg:      cfg,
		logger:   log,
		security: logger.NewSecurityLoggerWithHandler(log.Handler()),
		metrics:  metrics.New(),
	}

	dbLevel := gormlogger.Warn
	if logger.ParseLevel(cfg.LogLevel) == slog.LevelDebug {
		dbLevel = gormlogger.Info
	}
	a.db, err = database.Connect(cfg.DatabaseURL, database.Options{Production: cfg.IsProduction(), LogLevel: dbLevel})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(a.db); err != nil {
		a.Close()
		return nil, err
	}

	if a.storage, err = storage.NewLocalStorage(cfg.AttachmentStoragePath); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize attachment storage: %w", err)
	}
	if a.vault, err = vault.New(cfg.EncryptionKey); err != nil {
		a.Close()
		return nil, err
	}

	a.oauth, err = google.NewOAuth(cfg.GmailClientID, cfg.GmailClientSecret, cfg.GmailRedirectURL)
	if err != nil && !errors.Is(err, apperrors.ErrNotConfigured) {
		a.Close()
		return nil, err
	}
	if cfg.AIEmailSortingEnabled || cfg.OpenAIAPIKey != "" {
		a.ai, err = ai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			log.Warn("AI classifier disabled", slog.Any("error", err))
		}
	}

	a.wire()
	return a, nil
}

func (a *app) wire() {
	cfg, log := a.cfg, a.logger

	a.accounts = repository.NewAccountRepository(a.db)
	a.emails = repository.NewEmailRepository(a.db)
	a.threads = repository.NewThreadRepository(a.db)
	a.templates = repository.NewTemplateRepository(a.db)
	ruleRepo := repository.NewRuleRepository(a.db)
	syncLogRepo := repository.NewSyncLogRepository(a.db)

	a.tokens = tracking.NewTokens(cfg.TrackingSecret, cfg.PublicBaseURL)
	a.tracker = tracking.NewTracker(a.tokens, a.emails, cfg.SafeRedirectURL, log, a.security, a.metrics)

	a.hub = websocket.NewHub(func(ctx context.Context, userID, accountID uint) bool {
		_, err := a.accounts.GetForUser(ctx, accountID, userID)
		return err == nil
	}, log)

	var classifier categorizer.Classifier
	if a.ai != nil && cfg.AIEmailSortingEnabled {
		classifier = a.ai
	}
	categorize := categorizer.New(a.threads, classifier, log)
	a.ingester = inbound.NewIngester(&inbound.IngesterConfig{
		Emails:      a.emails,
		Storage:     a.storage,
		Categorizer: categorize,
		Notifier:    a.hub,
		Metrics:     a.metrics,
		Logger:      log,
	})
	syncer := inbound.NewSynchronizer(&inbound.SynchronizerConfig{
		Accounts: a.accounts,
		Ingester: a.ingester,
		Vault:    a.vault,
		OAuth:    a.oauth,
		Logger:   log,
		Security: a.security,
	})

	transports := outbound.Transports{SMTP: outbound.NewSMTPTransport(cfg.DefaultSMTPHost, cfg.DefaultSMTPPort)}
	if a.oauth != nil {
		transports.Gmail = outbound.NewGmailTransport(a.oauth)
	}
	a.sender = outbound.NewSender(&outbound.Config{
		Accounts:    a.accounts,
		Emails:      a.emails,
		Templates:   a.templates,
		Vault:       a.vault,
		Transports:  transports,
		Tokens:      a.tokens,
		CompanyName: cfg.DefaultCompanyName,
		Logger:      log,
		Security:    a.security,
		Threads:     a.threads,
		Categorizer: categorize,
	})

	engine := rules.NewEngine(ruleRepo, a.emails, a.threads, a.accounts, a.sender, log)
	a.queue = tasks.New(&tasks.Config{
		Sender:     a.sender,
		Syncer:     syncer,
		Rules:      engine,
		Accounts:   a.accounts,
		SyncLogs:   syncLogRepo,
		Metrics:    a.metrics,
		Logger:     log,
		Workers:    cfg.WorkerCount,
		Size:       cfg.QueueSize,
		SyncLimit:  cfg.SyncLimit,
		MaxRetries: cfg.SendMaxRetries,
		RetryDelay: cfg.SendRetryDelay,
	})
	a.ingester.SetRuleTrigger(a.queue)
}

// gmail returns the connector for the account handler, nil when unconfigured
func (a *app) gmail() handlers.GmailConnector {
	if a.oauth == nil {
		return nil
	}
	return a.oauth
}

// suggester returns the reply suggester, nil when no model is configured
func (a *app) suggester() handlers.ReplySuggester {
	if a.ai == nil {
		return nil
	}
	return a.ai
}

// Close releases the database connection
func (a *app) Close() {
	if a.db == nil {
		return
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Error("Failed to close database", slog.Any("error", err))
	}
}
