package outbound

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Outgoing is a message ready to be put on the wire
type Outgoing struct {
	// MessageID includes the angle brackets, as stored on the email
	MessageID string
	InReplyTo string
	From      mail.Address
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	Text      string
	HTML      string
	Date      time.Time
}

// Recipients returns every envelope recipient
func (o *Outgoing) Recipients() []string {
	out := make([]string, 0, len(o.To)+len(o.Cc)+len(o.Bcc))
	out = append(out, o.To...)
	out = append(out, o.Cc...)
	return append(out, o.Bcc...)
}

// Compose renders o as a multipart/alternative message with a text and, when
// present, an HTML part. Bcc is written as a header only when withBcc is set,
// for transports that read recipients from the message itself.
func Compose(o *Outgoing, withBcc bool) ([]byte, error) {
	var h mail.Header
	date := o.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{&o.From})
	h.SetAddressList("To", addresses(o.To))
	if len(o.Cc) > 0 {
		h.SetAddressList("Cc", addresses(o.Cc))
	}
	if withBcc && len(o.Bcc) > 0 {
		h.SetAddressList("Bcc", addresses(o.Bcc))
	}
	h.SetSubject(o.Subject)
	h.SetMessageID(strings.Trim(o.MessageID, "<>"))
	if o.InReplyTo != "" {
		h.Set("In-Reply-To", o.InReplyTo)
		h.Set("References", o.InReplyTo)
	}

	var buf bytes.Buffer
	w, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if err := writePart(w, "text/plain", o.Text); err != nil {
		return nil, err
	}
	if o.HTML != "" {
		if err := writePart(w, "text/html", o.HTML); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(w *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")

	pw, err := w.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return pw.Close()
}

func addresses(list []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(list))
	for _, a := range list {
		out = append(out, &mail.Address{Address: a})
	}
	return out
}

// NewMessageID returns a fresh message identifier in the domain of address
func NewMessageID(address string) string {
	domain := "localhost"
	if at := strings.LastIndexByte(address, '@'); at >= 0 && at < len(address)-1 {
		domain = address[at+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
