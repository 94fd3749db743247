package api

import (
	"log/slog"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-crm-mail/internal/api/handlers"
	"github.com/welldanyogia/webrana-crm-mail/internal/api/middleware"
	"github.com/welldanyogia/webrana-crm-mail/internal/logger"
	"github.com/welldanyogia/webrana-crm-mail/internal/metrics"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/storage"
	"github.com/welldanyogia/webrana-crm-mail/internal/tracking"
	"github.com/welldanyogia/webrana-crm-mail/internal/websocket"
)

// TaskQueue is the part of the task queue the API dispatches to
type TaskQueue interface {
	handlers.SendQueue
	handlers.SyncQueue
	Pending() int
}

// Vault seals account secrets and reports its mode
type Vault interface {
	handlers.Encrypter
	Mode() string
}

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB          *gorm.DB
	FileStorage storage.FileStorage
	Logger      *slog.Logger
	Security    *logger.SecurityLogger
	Metrics     *metrics.Metrics

	Vault     Vault
	Sender    handlers.SendPreparer
	Queue     TaskQueue
	Tracker   *tracking.Tracker
	Hub       *websocket.Hub
	Upgrader  gorillaws.Upgrader
	Gmail     handlers.GmailConnector // nil when Gmail is not configured
	Suggester handlers.ReplySuggester // nil when no model is configured

	// Security configuration
	APIKey         string   // API key for authentication (empty = disabled)
	AllowedOrigins []string // Allowed CORS origins
	Production     bool
	// APILimiter and TrackingLimiter throttle per client IP; nil builds one from RateLimit/RateBurst
	APILimiter      *middleware.IPRateLimiter
	TrackingLimiter *middleware.IPRateLimiter
	RateLimit       float64
	RateBurst       int

	DefaultSMTPHost string
	DefaultSMTPPort int
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	security := cfg.Security
	if security == nil {
		security = logger.NewSecurityLoggerWithHandler(log.Handler())
	}

	// Order matters: recovery outermost, logging sees the final status
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.SecureHeaders())
	e.Use(middleware.SecureCORS(cfg.AllowedOrigins, cfg.Production))
	e.Use(middleware.RequestLogger(log))

	apiLimiter := cfg.APILimiter
	if apiLimiter == nil {
		apiLimiter = middleware.NewIPRateLimiter(limitOrDefault(cfg.RateLimit, 10), burstOrDefault(cfg.RateBurst, 20))
	}
	trackingLimiter := cfg.TrackingLimiter
	if trackingLimiter == nil {
		trackingLimiter = middleware.NewIPRateLimiter(limitOrDefault(cfg.RateLimit, 10)*5, burstOrDefault(cfg.RateBurst, 20)*5)
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(cfg.DB)
	threadRepo := repository.NewThreadRepository(cfg.DB)
	emailRepo := repository.NewEmailRepository(cfg.DB)
	attachmentRepo := repository.NewAttachmentRepository(cfg.DB, cfg.FileStorage)
	templateRepo := repository.NewTemplateRepository(cfg.DB)
	ruleRepo := repository.NewRuleRepository(cfg.DB)
	syncLogRepo := repository.NewSyncLogRepository(cfg.DB)

	// Initialize handlers
	vaultMode := ""
	if cfg.Vault != nil {
		vaultMode = cfg.Vault.Mode()
	}
	var pending func() int
	if cfg.Queue != nil {
		pending = cfg.Queue.Pending
	}
	healthHandler := handlers.NewHealthHandler(cfg.DB, vaultMode, pending)
	accountHandler := handlers.NewAccountHandler(&handlers.AccountHandlerConfig{
		Accounts:        accountRepo,
		SyncLogs:        syncLogRepo,
		Vault:           cfg.Vault,
		Queue:           cfg.Queue,
		Gmail:           cfg.Gmail,
		DefaultSMTPHost: cfg.DefaultSMTPHost,
		DefaultSMTPPort: cfg.DefaultSMTPPort,
		Logger:          log,
	})
	emailHandler := handlers.NewEmailHandler(emailRepo, attachmentRepo, cfg.Sender, cfg.Queue, cfg.Suggester, log)
	attachmentHandler := handlers.NewAttachmentHandler(attachmentRepo, cfg.FileStorage, log)
	threadHandler := handlers.NewThreadHandler(threadRepo)
	templateHandler := handlers.NewTemplateHandler(templateRepo)
	ruleHandler := handlers.NewRuleHandler(ruleRepo, templateRepo)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics.Handler()))
	}

	// Tracking routes are public and answer every token the same way
	if cfg.Tracker != nil {
		trackingHandler := handlers.NewTrackingHandler(cfg.Tracker)
		t := e.Group("/t", middleware.RateLimiter(trackingLimiter, security, log))
		t.GET("/o/:token", trackingHandler.Open)
		t.GET("/c/:token", trackingHandler.Click)
	}

	auth := middleware.APIKeyAuth(cfg.APIKey, security, log)
	if cfg.Hub != nil {
		wsHandler := handlers.NewWebSocketHandler(cfg.Hub, cfg.Upgrader, log)
		e.GET("/ws", wsHandler.Serve, middleware.RateLimiter(apiLimiter, security, log), auth, middleware.RequireIdentity())
	}

	// API routes
	api := e.Group("/api", middleware.RateLimiter(apiLimiter, security, log), auth, middleware.RequireIdentity())

	// Account routes
	accounts := api.Group("/accounts")
	accounts.POST("", accountHandler.Create)
	accounts.GET("", accountHandler.List)
	accounts.GET("/gmail/connect", accountHandler.GmailConnect)
	accounts.POST("/gmail/callback", accountHandler.GmailCallback)
	accounts.GET("/:id", accountHandler.Get)
	accounts.DELETE("/:id", accountHandler.Delete)
	accounts.POST("/:id/default", accountHandler.SetDefault)
	accounts.POST("/:id/sync", accountHandler.Sync)
	accounts.GET("/:id/sync-logs", accountHandler.SyncLogs)

	// Email routes
	emails := api.Group("/emails")
	emails.POST("/send", emailHandler.Send)
	emails.GET("/:id", emailHandler.Get)
	emails.POST("/:id/reply", emailHandler.Reply)
	emails.POST("/:id/retry", emailHandler.Retry)
	emails.POST("/:id/suggest-reply", emailHandler.SuggestReply)
	emails.GET("/:id/attachments", emailHandler.Attachments)

	// Attachment routes
	attachments := api.Group("/attachments")
	attachments.GET("/:id", attachmentHandler.Get)
	attachments.GET("/:id/download", attachmentHandler.Download)

	// Thread routes
	threads := api.Group("/threads")
	threads.GET("", threadHandler.List)
	threads.GET("/search", threadHandler.Search)
	threads.GET("/categories", threadHandler.Categories)
	threads.GET("/:id", threadHandler.Get)
	threads.POST("/:id/read", threadHandler.MarkRead)
	threads.POST("/:id/star", threadHandler.Star)

	// Template routes
	templates := api.Group("/templates")
	templates.POST("", templateHandler.Create)
	templates.GET("", templateHandler.List)
	templates.POST("/preview", templateHandler.Preview)
	templates.GET("/:id", templateHandler.Get)
	templates.PUT("/:id", templateHandler.Update)
	templates.DELETE("/:id", templateHandler.Delete)
	templates.POST("/:id/duplicate", templateHandler.Duplicate)

	// Rule routes
	rules := api.Group("/rules")
	rules.POST("", ruleHandler.Create)
	rules.GET("", ruleHandler.List)
	rules.PATCH("/:id/active", ruleHandler.SetActive)
	rules.DELETE("/:id", ruleHandler.Delete)

	return e
}

func limitOrDefault(v, def float64) rate.Limit {
	if v <= 0 {
		return rate.Limit(def)
	}
	return rate.Limit(v)
}

func burstOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
