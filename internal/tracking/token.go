// Package tracking issues and resolves the opaque tokens embedded in outbound
// HTML for open and click telemetry.
//
// Tokens are NOT authenticated: a token is a reversible encoding of the event
// kind, the email id, the click target and an eight character tag derived from
// the process secret. The tag only rejects tokens minted under another secret
// or by accident; anyone holding a valid token can read and re-encode it. They
// exist to make pixel URLs unique and must never guard access to anything.
package tracking

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
)

// Kind is the tracked event
type Kind string

const (
	KindOpen  Kind = "open"
	KindClick Kind = "click"
)

// Outcome is the decoded content of a token. Valid is false for malformed or
// foreign tokens, in which case the other fields are zero.
type Outcome struct {
	Kind    Kind
	EmailID uint
	URL     string
	Valid   bool
}

// Tokens mints and decodes tracking tokens and the public URLs carrying them
type Tokens struct {
	tag     string
	baseURL string
}

// NewTokens creates a Tokens for secret, producing URLs under baseURL
func NewTokens(secret, baseURL string) *Tokens {
	sum := sha256.Sum256([]byte("crm-mail-tracking:" + secret))
	return &Tokens{
		tag:     hex.EncodeToString(sum[:])[:8],
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// IssueOpen returns the token of the open pixel of an email
func (t *Tokens) IssueOpen(emailID uint) string {
	return encode(string(KindOpen) + ":" + strconv.FormatUint(uint64(emailID), 10) + ":" + t.tag)
}

// IssueClick returns the token of a tracked link to target
func (t *Tokens) IssueClick(emailID uint, target string) string {
	return encode(string(KindClick) + ":" + strconv.FormatUint(uint64(emailID), 10) + ":" + target + ":" + t.tag)
}

// OpenURL is the public URL of the open pixel
func (t *Tokens) OpenURL(emailID uint) string {
	return t.baseURL + "/t/o/" + t.IssueOpen(emailID)
}

// ClickURL is the public URL redirecting to target
func (t *Tokens) ClickURL(emailID uint, target string) string {
	return t.baseURL + "/t/c/" + t.IssueClick(emailID, target)
}

// Resolve decodes token. It never fails; unusable input yields an invalid Outcome.
func (t *Tokens) Resolve(token string) Outcome {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return Outcome{}
	}

	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return Outcome{}
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || id == 0 || id > uint64(^uint(0)) {
		return Outcome{}
	}

	rest := parts[2]
	cut := strings.LastIndexByte(rest, ':')
	tag := rest[cut+1:]
	if subtle.ConstantTimeCompare([]byte(tag), []byte(t.tag)) != 1 {
		return Outcome{}
	}

	switch Kind(parts[0]) {
	case KindOpen:
		if cut != -1 {
			return Outcome{}
		}
		return Outcome{Kind: KindOpen, EmailID: uint(id), Valid: true}
	case KindClick:
		if cut <= 0 {
			return Outcome{}
		}
		return Outcome{Kind: KindClick, EmailID: uint(id), URL: rest[:cut], Valid: true}
	}
	return Outcome{}
}

func encode(payload string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}
