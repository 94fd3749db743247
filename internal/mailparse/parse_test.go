package mailparse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParse_MultipartAlternative prefers the plain part for the text body
func TestParse_MultipartAlternative(t *testing.T) {
	// Arrange
	raw := `From: "Jane Lead" <jane@example.com>
To: sales@acme.test, ops@acme.test
Cc: boss@acme.test
Subject: Pricing question
Message-ID: <abc123@example.com>
Date: Tue, 02 Jan 2024 10:00:00 +0700
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

Plain text version.

--b1
Content-Type: text/html; charset=utf-8

<html><body><p>HTML version.</p></body></html>

--b1--`

	// Act
	msg := Parse([]byte(raw))

	// Assert
	assert.Equal(t, "<abc123@example.com>", msg.MessageID)
	assert.Equal(t, "Pricing question", msg.Subject)
	assert.Equal(t, "Jane Lead", msg.From.Name)
	assert.Equal(t, "jane@example.com", msg.From.Address)
	assert.Equal(t, []string{"sales@acme.test", "ops@acme.test"}, msg.To)
	assert.Equal(t, []string{"boss@acme.test"}, msg.Cc)
	assert.True(t, msg.Date.Equal(time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)))
	assert.Contains(t, msg.Text, "Plain text version")
	assert.NotContains(t, msg.Text, "<p>")
	assert.Contains(t, msg.HTML, "HTML version")
	assert.Empty(t, msg.Attachments)
	assert.Equal(t, "Pricing question", msg.Headers["Subject"])
}

// TestParse_HTMLOnly derives the text body from HTML
func TestParse_HTMLOnly(t *testing.T) {
	// Arrange
	raw := `From: sender@example.com
To: receiver@acme.test
Subject: HTML only
MIME-Version: 1.0
Content-Type: text/html; charset=utf-8

<html><head><style>p{color:red}</style></head><body><p>Hello <b>there</b></p><script>alert(1)</script></body></html>`

	// Act
	msg := Parse([]byte(raw))

	// Assert
	assert.Contains(t, msg.Text, "Hello")
	assert.Contains(t, msg.Text, "there")
	assert.NotContains(t, msg.Text, "alert")
	assert.NotContains(t, msg.HTML, "<script")
	assert.NotContains(t, msg.HTML, "<style")
	assert.Contains(t, msg.HTML, "<b>there</b>")
}

// TestParse_EncodedSubject decodes RFC 2047 words
func TestParse_EncodedSubject(t *testing.T) {
	// Arrange
	raw := "From: =?UTF-8?Q?Jos=C3=A9?= <jose@example.com>\n" +
		"To: a@acme.test\n" +
		"Subject: =?UTF-8?B?SGFsbyBkdW5pYQ==?=\n" +
		"\n" +
		"body\n"

	// Act
	msg := Parse([]byte(raw))

	// Assert
	assert.Equal(t, "Halo dunia", msg.Subject)
	assert.Equal(t, "José", msg.From.Name)
	assert.Equal(t, "jose@example.com", msg.From.Address)
}

// TestParse_Attachments collects attachment parts of any type
func TestParse_Attachments(t *testing.T) {
	// Arrange
	raw := `From: sender@example.com
To: receiver@acme.test
Subject: Files
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="b2"

--b2
Content-Type: text/plain; charset=utf-8

See attached.

--b2
Content-Type: application/pdf; name="quote.pdf"
Content-Disposition: attachment; filename="quote.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQKJeLjz9MK

--b2
Content-Type: text/plain; name="notes.txt"
Content-Disposition: attachment; filename="notes.txt"

attached notes

--b2--`

	// Act
	msg := Parse([]byte(raw))

	// Assert
	assert.Contains(t, msg.Text, "See attached")
	assert.NotContains(t, msg.Text, "attached notes")
	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "quote.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Equal(t, []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), msg.Attachments[0].Data)
	assert.Equal(t, "notes.txt", msg.Attachments[1].Filename)
	assert.Contains(t, string(msg.Attachments[1].Data), "attached notes")
}

// TestParse_MissingHeaders leaves absent fields empty
func TestParse_MissingHeaders(t *testing.T) {
	// Act
	msg := Parse([]byte("Subject: bare\n\nhello\n"))

	// Assert
	assert.Empty(t, msg.MessageID)
	assert.Empty(t, msg.From.Address)
	assert.Nil(t, msg.To)
	assert.True(t, msg.Date.IsZero())
	assert.Contains(t, msg.Text, "hello")
}

// TestParse_NeverPanics feeds malformed input
func TestParse_NeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("\x00\x01\x02garbage"),
		[]byte("Content-Type: multipart/mixed; boundary=\"x\"\n\n--x\nContent-Type: text/plain\n\nunterminated"),
		[]byte("Date: not a date\nFrom: <<broken\n\nbody"),
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			msg := Parse(in)
			require.NotNil(t, msg)
			require.NotNil(t, msg.Headers)
		})
	}
}

func TestParse_BadDateRecordsProblem(t *testing.T) {
	msg := Parse([]byte("From: a@example.com\nDate: yesterday-ish\n\nbody\n"))

	assert.True(t, msg.Date.IsZero())
	assert.NotEmpty(t, msg.Problems)
}

func TestParseFromHeader(t *testing.T) {
	tests := []struct {
		in, name, email string
	}{
		{"sender@example.com", "", "sender@example.com"},
		{"John Doe <john@example.com>", "John Doe", "john@example.com"},
		{`"Jane Doe" <jane@example.com>`, "Jane Doe", "jane@example.com"},
		{"  spaced@example.com  ", "", "spaced@example.com"},
		{"Smith, John <john@example.com>", "Smith, John", "john@example.com"},
		{"John Doe <john@example.com", "John Doe", "john@example.com"},
		{"not an address", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, email := parseFromHeader(tt.in)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.email, email)
		})
	}
}

func TestSplitAddresses_MalformedList(t *testing.T) {
	got := splitAddresses("ana@example.com, Smith, John <john@example.com>")

	assert.Equal(t, []string{"ana@example.com", "john@example.com"}, got)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "one two three", Snippet("  one\n two\t three "))

	long := Snippet(strings.Repeat("word ", 100))
	assert.LessOrEqual(t, len(long), 255)
	assert.True(t, strings.HasSuffix(long, "..."))
}
