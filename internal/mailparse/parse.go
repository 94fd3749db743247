// Package mailparse decodes raw internet messages into headers, bodies and
// attachments. Parsing never fails: malformed input yields whatever could be
// read, with the unreadable fields left empty and the reasons in Problems.
package mailparse

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

// Address is one mailbox of an address header
type Address struct {
	Name    string
	Address string
}

// String renders the address the way it would appear in a header
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return (&mail.Address{Name: a.Name, Address: a.Address}).String()
}

// Attachment is a decoded attachment part
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is the decoded form of a raw message
type Message struct {
	Headers     map[string]string
	MessageID   string
	InReplyTo   string
	Subject     string
	From        Address
	To          []string
	Cc          []string
	Date        time.Time
	Text        string
	HTML        string
	Attachments []Attachment
	Problems    []string
}

// Parse decodes raw. The HTML body is sanitized; when only HTML is present the
// text body is derived from it.
func Parse(raw []byte) *Message {
	msg := &Message{Headers: map[string]string{}}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		msg.problem("mime: %v", err)
		parseFallback(raw, msg)
	} else {
		for _, e := range env.Errors {
			msg.problem("mime: %s", e.Error())
		}
		readHeaders(env, msg)
		if env.Root != nil {
			walk(env.Root, msg)
		}
	}

	if msg.HTML != "" {
		msg.HTML = Sanitize(msg.HTML)
	}
	if strings.TrimSpace(msg.Text) == "" && msg.HTML != "" {
		msg.Text = HTMLToText(msg.HTML)
	}
	return msg
}

func (m *Message) problem(format string, args ...interface{}) {
	m.Problems = append(m.Problems, fmt.Sprintf(format, args...))
}

func readHeaders(env *enmime.Envelope, msg *Message) {
	for _, key := range env.GetHeaderKeys() {
		msg.Headers[key] = env.GetHeader(key)
	}

	msg.MessageID = strings.TrimSpace(env.GetHeader("Message-Id"))
	msg.InReplyTo = strings.TrimSpace(env.GetHeader("In-Reply-To"))
	msg.Subject = strings.TrimSpace(env.GetHeader("Subject"))

	if from, err := env.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = Address{Name: from[0].Name, Address: from[0].Address}
	} else {
		name, addr := parseFromHeader(env.GetHeader("From"))
		msg.From = Address{Name: name, Address: addr}
	}
	msg.To = addressList(env, "To", msg)
	msg.Cc = addressList(env, "Cc", msg)

	if raw := env.GetHeader("Date"); raw != "" {
		if d, err := mail.ParseDate(raw); err == nil {
			msg.Date = d.UTC()
		} else {
			msg.problem("date: %v", err)
		}
	}
}

func addressList(env *enmime.Envelope, key string, msg *Message) []string {
	if env.GetHeader(key) == "" {
		return nil
	}
	list, err := env.AddressList(key)
	if err != nil {
		msg.problem("%s: %v", strings.ToLower(key), err)
		return splitAddresses(env.GetHeader(key))
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

// walk visits the MIME tree depth first. The first inline text/plain and
// text/html parts become the bodies; every attachment part is collected
// whatever its type.
func walk(p *enmime.Part, msg *Message) {
	for _, e := range p.Errors {
		msg.problem("part %s: %s", p.PartID, e.Error())
	}

	if p.FirstChild == nil {
		leaf(p, msg)
	}
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		walk(c, msg)
	}
}

func leaf(p *enmime.Part, msg *Message) {
	ctype := strings.ToLower(p.ContentType)
	isBody := ctype == "" || ctype == "text/plain" || ctype == "text/html"

	if isAttachment(p, isBody) {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    attachmentName(p),
			ContentType: p.ContentType,
			Data:        p.Content,
		})
		return
	}

	switch ctype {
	case "text/plain", "":
		if msg.Text == "" {
			msg.Text = string(p.Content)
		}
	case "text/html":
		if msg.HTML == "" {
			msg.HTML = string(p.Content)
		}
	}
}

// isAttachment treats an explicit attachment disposition, or any non-text
// leaf, as an attachment
func isAttachment(p *enmime.Part, isBody bool) bool {
	if strings.EqualFold(p.Disposition, "attachment") {
		return true
	}
	return !isBody
}

func attachmentName(p *enmime.Part) string {
	if p.FileName != "" {
		return p.FileName
	}
	if exts, _ := mime.ExtensionsByType(p.ContentType); len(exts) > 0 {
		return "attachment" + exts[0]
	}
	return "attachment.bin"
}

// parseFallback recovers headers and a text body with net/mail when the MIME
// reader gives up entirely
func parseFallback(raw []byte, msg *Message) {
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		msg.problem("header: %v", err)
		msg.Text = string(raw)
		return
	}

	dec := new(mime.WordDecoder)
	for key := range m.Header {
		msg.Headers[key] = decodeWord(dec, m.Header.Get(key))
	}
	msg.MessageID = strings.TrimSpace(m.Header.Get("Message-Id"))
	msg.InReplyTo = strings.TrimSpace(m.Header.Get("In-Reply-To"))
	msg.Subject = decodeWord(dec, m.Header.Get("Subject"))
	name, addr := parseFromHeader(decodeWord(dec, m.Header.Get("From")))
	msg.From = Address{Name: name, Address: addr}
	msg.To = splitAddresses(m.Header.Get("To"))
	msg.Cc = splitAddresses(m.Header.Get("Cc"))
	if d, err := m.Header.Date(); err == nil {
		msg.Date = d.UTC()
	}

	body, err := io.ReadAll(m.Body)
	if err != nil {
		msg.problem("body: %v", err)
	}
	msg.Text = string(body)
}

// decodeWord decodes RFC 2047 words, keeping the raw text on unknown charsets
func decodeWord(dec *mime.WordDecoder, s string) string {
	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

func splitAddresses(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	if list, err := mail.ParseAddressList(header); err == nil {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.Address)
		}
		return out
	}
	var out []string
	for _, part := range strings.Split(header, ",") {
		if _, addr := parseFromHeader(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// parseFromHeader extracts name and email from a loosely formatted address.
// A name is split off only in front of an angle bracketed address; anything
// without an @ yields no address.
func parseFromHeader(from string) (name, email string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}
	if a, err := mail.ParseAddress(from); err == nil {
		return a.Name, a.Address
	}

	if open := strings.LastIndex(from, "<"); open >= 0 {
		name = strings.Trim(strings.TrimSpace(from[:open]), `"`)
		email = from[open+1:]
		if end := strings.Index(email, ">"); end >= 0 {
			email = email[:end]
		}
	} else {
		email = from
	}
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return "", ""
	}
	return name, email
}

// Snippet returns a single-line preview of a body, at most 255 bytes
func Snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > 255 {
		cut := 252
		for cut > 0 && !utf8RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
