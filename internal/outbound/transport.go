package outbound

import (
	"context"
	"fmt"

	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
)

// Transport puts a message on the wire for an account. secret is the
// decrypted account credential.
type Transport interface {
	Transmit(ctx context.Context, account *models.MailboxAccount, secret string, msg *Outgoing) error
}

// Transports holds one implementation per delivery path
type Transports struct {
	// SMTP serves generic and outlook accounts
	SMTP Transport
	// Gmail serves gmail accounts through the provider API
	Gmail Transport
}

// For selects the transport of a provider kind
func (t Transports) For(kind models.ProviderKind) (Transport, error) {
	var tr Transport
	switch kind {
	case models.ProviderGmail:
		tr = t.Gmail
	case models.ProviderOutlook, models.ProviderGeneric:
		tr = t.SMTP
	}
	if tr == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProviderUnsupported, kind)
	}
	return tr, nil
}
