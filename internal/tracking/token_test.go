package tracking

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens_OpenRoundTrip(t *testing.T) {
	tokens := NewTokens("s3cret", "https://crm.acme.test/")

	out := tokens.Resolve(tokens.IssueOpen(42))

	assert.Equal(t, Outcome{Kind: KindOpen, EmailID: 42, Valid: true}, out)
	assert.Equal(t, "https://crm.acme.test/t/o/"+tokens.IssueOpen(42), tokens.OpenURL(42))
}

func TestTokens_ClickKeepsURLWithColons(t *testing.T) {
	tokens := NewTokens("s3cret", "https://crm.acme.test")
	target := "https://shop.acme.test:8443/p?q=a:b#frag"

	out := tokens.Resolve(tokens.IssueClick(7, target))

	assert.True(t, out.Valid)
	assert.Equal(t, KindClick, out.Kind)
	assert.Equal(t, uint(7), out.EmailID)
	assert.Equal(t, target, out.URL)
}

func TestTokens_TokensAreURLSafe(t *testing.T) {
	tok := NewTokens("s3cret", "").IssueClick(1, "https://a.test/?x=1&y=~")

	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
	assert.NotContains(t, tok, "=")
}

func TestTokens_RejectsForeignSecret(t *testing.T) {
	mine := NewTokens("s3cret", "")
	theirs := NewTokens("other", "")

	assert.False(t, mine.Resolve(theirs.IssueOpen(1)).Valid)
	assert.False(t, mine.Resolve(theirs.IssueClick(1, "https://a.test")).Valid)
}

func TestTokens_RejectsGarbage(t *testing.T) {
	tokens := NewTokens("s3cret", "")
	tag := tokens.tag
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	inputs := []string{
		"",
		"!!!not base64!!!",
		"hello",
		enc("open:abc:" + tag),
		enc("open:0:" + tag),
		enc("open:-1:" + tag),
		enc("open:1:https://x.test:" + tag),
		enc("click:1:" + tag),
		enc("wink:1:" + tag),
		enc("open:1"),
		enc("open:99999999999999999999999:" + tag),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			assert.Equal(t, Outcome{}, tokens.Resolve(in), in)
		})
	}
}

func TestIsWebURL(t *testing.T) {
	assert.True(t, IsWebURL("https://acme.test/x"))
	assert.True(t, IsWebURL("http://acme.test"))
	assert.False(t, IsWebURL("javascript:alert(1)"))
	assert.False(t, IsWebURL("mailto:a@acme.test"))
	assert.False(t, IsWebURL("/relative"))
	assert.False(t, IsWebURL("//acme.test/evil"))
}
