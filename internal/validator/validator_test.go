package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
		wantErr error
	}{
		{"valid simple", "test@example.com", "test@example.com", nil},
		{"valid with subdomain", "user@mail.example.com", "user@mail.example.com", nil},
		{"valid with plus", "user+tag@example.com", "user+tag@example.com", nil},
		{"uppercase normalized", "TEST@EXAMPLE.COM", "test@example.com", nil},
		{"whitespace trimmed", "  test@example.com  ", "test@example.com", nil},
		{"display name dropped", "Ana Lima <Ana@Example.com>", "ana@example.com", nil},

		{"empty string", "", "", ErrEmptyInput},
		{"whitespace only", "   ", "", ErrEmptyInput},
		{"missing @", "testexample.com", "", ErrInvalidEmail},
		{"missing domain", "test@", "", ErrInvalidEmail},
		{"missing local part", "@example.com", "", ErrInvalidEmail},
		{"double @", "test@@example.com", "", ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.address)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeAddress_TooLong(t *testing.T) {
	_, err := NormalizeAddress(strings.Repeat("a", 250) + "@example.com")
	assert.ErrorIs(t, err, ErrInputTooLong)
}

func TestFirstInvalidAddress(t *testing.T) {
	bad, ok := FirstInvalidAddress([]string{"a@example.com", "B <b@example.com>"})
	assert.True(t, ok)
	assert.Empty(t, bad)

	bad, ok = FirstInvalidAddress([]string{"a@example.com", "not-an-address", "also bad"})
	assert.False(t, ok)
	assert.Equal(t, "not-an-address", bad)
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		wantErr error
	}{
		{"simple", "smtp.example.com", nil},
		{"uppercase", "SMTP.Example.COM", nil},
		{"single label", "mailhog", nil},
		{"hyphenated", "mail-relay.example.com", nil},
		{"empty", "", ErrEmptyInput},
		{"leading hyphen", "-smtp.example.com", ErrInvalidHost},
		{"underscore", "smtp_relay.example.com", ErrInvalidHost},
		{"with port", "smtp.example.com:587", ErrInvalidHost},
		{"with scheme", "smtp://example.com", ErrInvalidHost},
		{"double dot", "smtp..example.com", ErrInvalidHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHost(tt.host)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateHost_TooLong(t *testing.T) {
	assert.ErrorIs(t, ValidateHost(strings.Repeat("a.", 130)+"com"), ErrInputTooLong)
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, ValidatePort(0))
	assert.NoError(t, ValidatePort(587))
	assert.NoError(t, ValidatePort(65535))
	assert.ErrorIs(t, ValidatePort(-1), ErrInvalidPort)
	assert.ErrorIs(t, ValidatePort(70000), ErrInvalidPort)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal filename", "document.pdf", "document.pdf"},
		{"with spaces", "my document.pdf", "my document.pdf"},
		{"path traversal dots", "../../../etc/passwd", "______etc_passwd"},
		{"forward slash", "path/to/file.txt", "path_to_file.txt"},
		{"backslash", "path\\to\\file.txt", "path_to_file.txt"},
		{"control chars", "file\x00name.txt", "filename.txt"},
		{"newline", "file\nname.txt", "filename.txt"},
		{"empty string", "", "unnamed"},
		{"whitespace only", "   ", "unnamed"},
		{"double dots", "file..name", "file_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilename_LongFilename(t *testing.T) {
	result := SanitizeFilename(strings.Repeat("a", 300) + ".txt")
	assert.LessOrEqual(t, len(result), 255)
}

func TestSanitizeHeader(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLength int
		expected  string
	}{
		{"normal subject", "Quarterly pricing", 0, "Quarterly pricing"},
		{"header injection", "Hello\r\nBcc: victim@example.com", 0, "HelloBcc: victim@example.com"},
		{"tab removed", "a\tb", 0, "ab"},
		{"trim whitespace", "  hello  ", 0, "hello"},
		{"enforce max length", "hello world", 5, "hello"},
		{"multibyte truncation", "héllo", 2, "hé"},
		{"empty", "", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeHeader(tt.input, tt.maxLength))
		})
	}
}
