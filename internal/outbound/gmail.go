package outbound

import (
	"context"
	"encoding/base64"
	"fmt"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/welldanyogia/webrana-crm-mail/internal/google"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
)

// GmailTransport submits messages through the Gmail API
type GmailTransport struct {
	oauth *google.OAuth
}

// NewGmailTransport creates a GmailTransport
func NewGmailTransport(oauth *google.OAuth) *GmailTransport {
	return &GmailTransport{oauth: oauth}
}

// Transmit implements Transport. secret is the stored OAuth token.
func (t *GmailTransport) Transmit(ctx context.Context, account *models.MailboxAccount, secret string, msg *Outgoing) error {
	tok, err := google.DecodeToken(secret)
	if err != nil {
		return err
	}
	svc, err := t.oauth.Gmail(ctx, tok)
	if err != nil {
		return err
	}

	raw, err := Compose(msg, true)
	if err != nil {
		return err
	}
	_, err = svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send for account %d: %w", account.ID, err)
	}
	return nil
}
