// Package validator checks and cleans user-supplied mailbox settings and
// message fields before they reach storage or the wire.
package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"
)

// Validation errors
var (
	ErrInvalidEmail = errors.New("invalid email format")
	ErrInvalidHost  = errors.New("invalid host name")
	ErrInvalidPort  = errors.New("port must be between 1 and 65535")
	ErrInputTooLong = errors.New("input exceeds maximum length")
	ErrEmptyInput   = errors.New("input cannot be empty")
)

// MaxSubjectLength caps subjects at the RFC 5322 line limit
const MaxSubjectLength = 998

// hostRegex: lowercase labels of alphanumerics and hyphens, 63 chars max each
var hostRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// NormalizeAddress validates a single mailbox address and returns its bare,
// lowercased form. Display names are accepted and dropped.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrEmptyInput
	}
	// RFC 5321 path limit
	if utf8.RuneCountInString(address) > 254 {
		return "", ErrInputTooLong
	}

	addr, err := mail.ParseAddress(address)
	if err != nil {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// FirstInvalidAddress returns the first entry of list that is not a valid
// address, and false when one is found
func FirstInvalidAddress(list []string) (string, bool) {
	for _, addr := range list {
		if _, err := NormalizeAddress(addr); err != nil {
			return addr, false
		}
	}
	return "", true
}

// ValidateHost checks an SMTP or IMAP server name
func ValidateHost(host string) error {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ErrEmptyInput
	}
	if len(host) > 253 {
		return ErrInputTooLong
	}
	if !hostRegex.MatchString(host) {
		return ErrInvalidHost
	}
	return nil
}

// ValidatePort accepts zero as "unset"
func ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// SanitizeFilename makes an attachment name safe to store and serve.
// Path separators and dot runs become underscores, control characters go.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "..", "_")
	filename = stripControl(filename)
	filename = strings.TrimSpace(filename)

	if utf8.RuneCountInString(filename) > 255 {
		filename = string([]rune(filename)[:255])
	}
	if filename == "" {
		return "unnamed"
	}
	return filename
}

// SanitizeHeader removes control characters, CR and LF included, from a
// header value and truncates it to maxLength runes (0 means no limit)
func SanitizeHeader(value string, maxLength int) string {
	value = strings.TrimSpace(stripControl(value))
	if maxLength > 0 && utf8.RuneCountInString(value) > maxLength {
		value = string([]rune(value)[:maxLength])
	}
	return value
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
