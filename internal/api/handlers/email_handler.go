package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-crm-mail/internal/api/response"
	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/outbound"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/validator"
)

// SendPreparer records outbound emails as queued
type SendPreparer interface {
	Prepare(ctx context.Context, req *outbound.Request) (*models.Email, error)
}

// SendQueue dispatches queued emails to the workers
type SendQueue interface {
	EnqueueSend(emailID uint) error
}

// ReplySuggester drafts replies to inbound emails
type ReplySuggester interface {
	SuggestReply(ctx context.Context, subject, body string, hints map[string]string) (string, error)
}

// EmailHandler handles email-related HTTP requests
type EmailHandler struct {
	emails      repository.EmailRepository
	attachments repository.AttachmentRepository
	sender      SendPreparer
	queue       SendQueue
	suggester   ReplySuggester
	logger      *slog.Logger
}

// NewEmailHandler creates a new EmailHandler. suggester may be nil.
func NewEmailHandler(
	emails repository.EmailRepository,
	attachments repository.AttachmentRepository,
	sender SendPreparer,
	queue SendQueue,
	suggester ReplySuggester,
	logger *slog.Logger,
) *EmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailHandler{
		emails:      emails,
		attachments: attachments,
		sender:      sender,
		queue:       queue,
		suggester:   suggester,
		logger:      logger,
	}
}

// SendEmailRequest represents the request body for sending an email
type SendEmailRequest struct {
	AccountID       *uint             `json:"account_id"`
	To              []string          `json:"to"`
	Cc              []string          `json:"cc"`
	Bcc             []string          `json:"bcc"`
	Subject         string            `json:"subject"`
	BodyHTML        string            `json:"body_html"`
	BodyText        string            `json:"body_text"`
	ReplyToEmailID  *uint             `json:"reply_to_email_id"`
	TemplateID      *uint             `json:"template_id"`
	Variables       map[string]string `json:"variables"`
	TrackingEnabled bool              `json:"tracking_enabled"`
	LeadID          *uint             `json:"lead_id"`
	DealID          *uint             `json:"deal_id"`
	CustomerID      *uint             `json:"customer_id"`
}

// Send handles POST /api/emails/send. The email is recorded as queued and
// handed to the workers; the response does not wait for the transport.
func (h *EmailHandler) Send(c echo.Context) error {
	var req SendEmailRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if msg := req.validate(); msg != "" {
		return response.BadRequest(c, msg)
	}
	return h.dispatch(c, h.request(c, &req))
}

func (r *SendEmailRequest) validate() string {
	r.To, r.Cc, r.Bcc = cleanList(r.To), cleanList(r.Cc), cleanList(r.Bcc)
	if len(r.To) == 0 {
		return "at least one recipient is required"
	}
	for _, list := range [][]string{r.To, r.Cc, r.Bcc} {
		if addr, ok := validator.FirstInvalidAddress(list); !ok {
			return "invalid address: " + addr
		}
	}
	if r.TemplateID == nil && strings.TrimSpace(r.Subject) == "" && r.ReplyToEmailID == nil {
		return "subject is required"
	}
	if r.TemplateID == nil && r.BodyHTML == "" && r.BodyText == "" {
		return "body_html or body_text is required"
	}
	return ""
}

func (h *EmailHandler) request(c echo.Context, r *SendEmailRequest) *outbound.Request {
	id := identity(c)
	return &outbound.Request{
		CompanyID:       id.CompanyID,
		UserID:          id.UserID,
		AccountID:       r.AccountID,
		To:              r.To,
		Cc:              r.Cc,
		Bcc:             r.Bcc,
		Subject:         validator.SanitizeHeader(r.Subject, validator.MaxSubjectLength),
		BodyHTML:        r.BodyHTML,
		BodyText:        r.BodyText,
		ReplyToEmailID:  r.ReplyToEmailID,
		TemplateID:      r.TemplateID,
		Variables:       r.Variables,
		TrackingEnabled: r.TrackingEnabled,
		CompanyName:     id.CompanyName,
		UserName:        id.UserName,
		LeadID:          r.LeadID,
		DealID:          r.DealID,
		CustomerID:      r.CustomerID,
	}
}

func (h *EmailHandler) dispatch(c echo.Context, req *outbound.Request) error {
	email, err := h.sender.Prepare(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "referenced email or template not found")
		}
		return response.Error(c, err)
	}
	return h.enqueue(c, email)
}

func (h *EmailHandler) enqueue(c echo.Context, email *models.Email) error {
	if err := h.queue.EnqueueSend(email.ID); err != nil {
		h.logger.Warn("Failed to queue email",
			slog.Uint64("email_id", uint64(email.ID)),
			slog.Any("error", err))
		return response.InternalError(c, "email recorded but not queued; retry it")
	}
	return response.Accepted(c, email)
}

// Get handles GET /api/emails/:id
func (h *EmailHandler) Get(c echo.Context) error {
	email, err := h.load(c)
	if err != nil {
		return fail(c, err, "email")
	}
	return response.Success(c, email)
}

// ReplyRequest represents the request body for replying to an email
type ReplyRequest struct {
	AccountID       *uint             `json:"account_id"`
	Subject         string            `json:"subject"`
	BodyHTML        string            `json:"body_html"`
	BodyText        string            `json:"body_text"`
	Cc              []string          `json:"cc"`
	TemplateID      *uint             `json:"template_id"`
	Variables       map[string]string `json:"variables"`
	TrackingEnabled bool              `json:"tracking_enabled"`
}

// Reply handles POST /api/emails/:id/reply. The reply goes to the sender of
// an inbound email or to the recipients of an outbound one, in the same thread.
func (h *EmailHandler) Reply(c echo.Context) error {
	parent, err := h.load(c)
	if err != nil {
		return fail(c, err, "email")
	}

	var body ReplyRequest
	if err := c.Bind(&body); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if body.TemplateID == nil && body.BodyHTML == "" && body.BodyText == "" {
		return response.BadRequest(c, "body_html or body_text is required")
	}

	to := parent.To
	if parent.Direction == models.DirectionInbound {
		to = []string{parent.FromAddress}
	}
	accountID := body.AccountID
	if accountID == nil {
		accountID = &parent.AccountID
	}

	req := h.request(c, &SendEmailRequest{
		AccountID:       accountID,
		To:              to,
		Cc:              cleanList(body.Cc),
		Subject:         body.Subject,
		BodyHTML:        body.BodyHTML,
		BodyText:        body.BodyText,
		ReplyToEmailID:  &parent.ID,
		TemplateID:      body.TemplateID,
		Variables:       body.Variables,
		TrackingEnabled: body.TrackingEnabled,
	})
	if req.Subject == "" && req.TemplateID == nil {
		req.Subject = outbound.ReplySubject(parent.Subject)
	}
	return h.dispatch(c, req)
}

// Retry handles POST /api/emails/:id/retry for an email left failed or queued
func (h *EmailHandler) Retry(c echo.Context) error {
	email, err := h.load(c)
	if err != nil {
		return fail(c, err, "email")
	}
	if email.Direction != models.DirectionOutbound {
		return response.BadRequest(c, "only outbound emails can be retried")
	}
	if email.Status != models.StatusFailed && email.Status != models.StatusQueued {
		return response.BadRequest(c, "email is "+email.Status)
	}
	return h.enqueue(c, email)
}

// SuggestReply handles POST /api/emails/:id/suggest-reply. The suggestion is
// empty when no model is configured or the model fails.
func (h *EmailHandler) SuggestReply(c echo.Context) error {
	email, err := h.load(c)
	if err != nil {
		return fail(c, err, "email")
	}

	// path params would land in a map bound with c.Bind
	var hints map[string]string
	_ = (&echo.DefaultBinder{}).BindBody(c, &hints)

	suggestion := ""
	if h.suggester != nil {
		suggestion, err = h.suggester.SuggestReply(c.Request().Context(), email.Subject, email.BodyText, hints)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotConfigured) {
				h.logger.Warn("Reply suggestion failed",
					slog.Uint64("email_id", uint64(email.ID)),
					slog.Any("error", err))
			}
			suggestion = ""
		}
	}
	return response.Success(c, map[string]string{"suggestion": suggestion})
}

// Attachments handles GET /api/emails/:id/attachments
func (h *EmailHandler) Attachments(c echo.Context) error {
	email, err := h.load(c)
	if err != nil {
		return fail(c, err, "email")
	}
	attachments, err := h.attachments.ListByEmail(c.Request().Context(), email.ID)
	if err != nil {
		return response.InternalError(c, "failed to list attachments")
	}
	return response.Success(c, attachments)
}

func (h *EmailHandler) load(c echo.Context) (*models.Email, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.emails.GetForUser(c.Request().Context(), id, identity(c).UserID)
}
