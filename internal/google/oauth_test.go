package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	apperrors "github.com/welldanyogia/webrana-crm-mail/internal/errors"
)

func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"emailAddress":"sales@acme.test","messagesTotal":3}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOAuth_RequiresClient(t *testing.T) {
	_, err := NewOAuth("", "", "")
	assert.True(t, errors.Is(err, apperrors.ErrNotConfigured))
}

func TestAuthURL_RequestsOfflineAccess(t *testing.T) {
	o, err := NewOAuth("client", "secret", "https://crm.acme.test/callback")
	require.NoError(t, err)

	u, err := url.Parse(o.AuthURL("state-1"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "https://mail.google.com/", q.Get("scope"))
}

func TestExchangeAndAddress(t *testing.T) {
	srv := fakeGoogle(t)
	base, err := NewOAuth("client", "secret", "https://crm.acme.test/callback")
	require.NoError(t, err)
	o := base.WithEndpoints(srv.URL+"/auth", srv.URL+"/token", srv.URL)

	tok, err := o.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", tok.RefreshToken)

	addr, err := o.Address(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "sales@acme.test", addr)
}

func TestTokenEncoding(t *testing.T) {
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}

	s, err := EncodeToken(tok)
	require.NoError(t, err)
	back, err := DecodeToken(s)
	require.NoError(t, err)
	assert.Equal(t, "r", back.RefreshToken)
	assert.True(t, back.Expiry.Equal(tok.Expiry))

	_, err = EncodeToken(&oauth2.Token{})
	assert.Error(t, err)

	for _, bad := range []string{"", "not json", "{}"} {
		_, err := DecodeToken(bad)
		assert.True(t, errors.Is(err, apperrors.ErrCredentialUnusable), bad)
	}
}
