package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityServer() *echo.Echo {
	e := echo.New()
	e.Use(RequireIdentity())
	e.GET("/api/me", func(c echo.Context) error {
		id, ok := GetIdentity(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, id)
	})
	return e
}

func TestRequireIdentity_ReadsHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(HeaderCompanyID, "3")
	req.Header.Set(HeaderUserID, "42")
	req.Header.Set(HeaderUserName, "Ana")
	req.Header.Set(HeaderCompanyName, "Acme")
	rec := httptest.NewRecorder()

	identityServer().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"CompanyID":3,"UserID":42,"UserName":"Ana","CompanyName":"Acme"}`, rec.Body.String())
}

func TestRequireIdentity_RejectsMissingOrInvalidIDs(t *testing.T) {
	tests := []struct {
		name    string
		company string
		user    string
	}{
		{"missing company", "", "42"},
		{"missing user", "3", ""},
		{"non numeric", "abc", "42"},
		{"zero user", "3", "0"},
		{"negative", "-1", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			req.Header.Set(HeaderCompanyID, tt.company)
			req.Header.Set(HeaderUserID, tt.user)
			rec := httptest.NewRecorder()

			identityServer().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireIdentity_QueryParamsForWebsocket(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/me?company_id=3&user_id=42", nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()

	identityServer().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/me?company_id=3&user_id=42", nil)
	rec = httptest.NewRecorder()
	identityServer().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
