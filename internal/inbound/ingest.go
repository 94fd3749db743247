// Package inbound turns raw received messages into threads, emails and
// attachments. Messages arrive either by pulling a mailbox over IMAP
// (Synchronizer) or by an SMTP relay pushing forwarded copies.
package inbound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/webrana-crm-mail/internal/categorizer"
	"github.com/welldanyogia/webrana-crm-mail/internal/mailparse"
	"github.com/welldanyogia/webrana-crm-mail/internal/metrics"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/storage"
	"github.com/welldanyogia/webrana-crm-mail/internal/validator"
)

// ErrAlreadyIngested means the message id is already stored
var ErrAlreadyIngested = errors.New("message already ingested")

// Notifier is told about every newly stored inbound email
type Notifier interface {
	NotifyNewEmail(accountID uint, email *models.Email)
}

// RuleTrigger schedules rule evaluation for a stored inbound email
type RuleTrigger interface {
	EnqueueRules(emailID uint) error
}

// IngesterConfig holds the Ingester collaborators
type IngesterConfig struct {
	Emails      repository.EmailRepository
	Storage     storage.FileStorage
	Categorizer *categorizer.Categorizer
	Notifier    Notifier
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Ingester stores parsed inbound messages
type Ingester struct {
	emails      repository.EmailRepository
	storage     storage.FileStorage
	categorizer *categorizer.Categorizer
	notifier    Notifier
	rules       RuleTrigger
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewIngester creates an Ingester
func NewIngester(cfg *IngesterConfig) *Ingester {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{
		emails:      cfg.Emails,
		storage:     cfg.Storage,
		categorizer: cfg.Categorizer,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		logger:      log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetRuleTrigger wires rule evaluation after categorization. The task queue
// is built after the Ingester, hence the setter.
func (i *Ingester) SetRuleTrigger(t RuleTrigger) {
	i.rules = t
}

// Ingest stores raw as a new inbound email of account in a thread of its own.
// fallbackID is used when the message carries no Message-ID. A message id
// already stored returns ErrAlreadyIngested.
func (i *Ingester) Ingest(ctx context.Context, account *models.MailboxAccount, raw []byte, fallbackID string) (*models.Email, error) {
	msg := mailparse.Parse(raw)
	for _, p := range msg.Problems {
		i.logger.Debug("Message parsed with problems",
			slog.Uint64("account_id", uint64(account.ID)),
			slog.String("problem", p),
		)
	}

	messageID := msg.MessageID
	if messageID == "" {
		messageID = fallbackID
	}
	if messageID == "" {
		messageID = "<" + uuid.NewString() + "@" + domainOf(account.Address) + ">"
	}

	seen, err := i.emails.ExistsByMessageID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, ErrAlreadyIngested
	}

	attachments := i.saveAttachments(account.ID, msg.Attachments)

	at := msg.Date
	if at.IsZero() {
		at = i.now()
	}
	delivered := at

	thread := &models.Thread{
		CompanyID:    account.CompanyID,
		AccountID:    account.ID,
		Subject:      msg.Subject,
		Participants: participants(msg.From.Address, msg.To),
		Category:     models.CategoryPrimary,
	}
	email := &models.Email{
		AccountID:   account.ID,
		MessageID:   messageID,
		FromAddress: msg.From.Address,
		FromName:    msg.From.Name,
		To:          msg.To,
		Cc:          msg.Cc,
		Subject:     msg.Subject,
		BodyText:    msg.Text,
		BodyHTML:    msg.HTML,
		Direction:   models.DirectionInbound,
		Status:      models.StatusDelivered,
		DeliveredAt: &delivered,
	}

	err = i.emails.Insert(ctx, &repository.EmailRecord{Thread: thread, Email: email, Attachments: attachments, At: at})
	if err != nil {
		i.discard(attachments)
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrAlreadyIngested
		}
		return nil, fmt.Errorf("failed to store inbound email: %w", err)
	}

	if i.categorizer != nil {
		res, err := i.categorizer.Categorize(ctx, email, thread)
		if err != nil {
			i.logger.Error("Failed to categorize email",
				slog.Uint64("email_id", uint64(email.ID)),
				slog.Any("error", err),
			)
		} else {
			i.logger.Debug("Email categorized",
				slog.Uint64("email_id", uint64(email.ID)),
				slog.String("category", res.Category),
				slog.Bool("overridden", res.Overridden),
			)
		}
	}

	i.metrics.EmailsSynced(1)
	if i.notifier != nil {
		i.notifier.NotifyNewEmail(account.ID, email)
	}
	if i.rules != nil {
		if err := i.rules.EnqueueRules(email.ID); err != nil {
			i.logger.Warn("Failed to enqueue rule evaluation",
				slog.Uint64("email_id", uint64(email.ID)),
				slog.Any("error", err),
			)
		}
	}

	i.logger.Info("Inbound email stored",
		slog.Uint64("email_id", uint64(email.ID)),
		slog.Uint64("thread_id", uint64(email.ThreadID)),
		slog.Uint64("account_id", uint64(account.ID)),
		slog.Int("attachments", len(attachments)),
	)
	return email, nil
}

// saveAttachments writes attachment bytes to storage. Files storage refuses
// are skipped and logged, they do not fail the email.
func (i *Ingester) saveAttachments(accountID uint, parts []mailparse.Attachment) []models.Attachment {
	if i.storage == nil || len(parts) == 0 {
		return nil
	}
	out := make([]models.Attachment, 0, len(parts))
	for _, part := range parts {
		part.Filename = validator.SanitizeFilename(part.Filename)
		if err := storage.ValidateFile(part.Filename, int64(len(part.Data))); err != nil {
			i.logger.Warn("Attachment skipped",
				slog.String("filename", part.Filename),
				slog.Any("error", err),
			)
			continue
		}
		path, size, err := i.storage.Save(accountID, part.Filename, bytes.NewReader(part.Data))
		if err != nil {
			i.logger.Error("Failed to save attachment",
				slog.String("filename", part.Filename),
				slog.Any("error", err),
			)
			continue
		}
		out = append(out, models.Attachment{
			Filename:    part.Filename,
			ContentType: part.ContentType,
			FilePath:    path,
			SizeBytes:   size,
		})
	}
	return out
}

func (i *Ingester) discard(attachments []models.Attachment) {
	for _, a := range attachments {
		if err := i.storage.Delete(a.FilePath); err != nil {
			i.logger.Warn("Failed to remove orphaned attachment", slog.String("path", a.FilePath), slog.Any("error", err))
		}
	}
}

func participants(from string, to []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range append([]string{from}, to...) {
		key := strings.ToLower(strings.TrimSpace(a))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

func domainOf(address string) string {
	if at := strings.LastIndexByte(address, '@'); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}
