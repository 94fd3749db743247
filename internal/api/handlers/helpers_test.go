package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-crm-mail/internal/api/middleware"
)

const (
	testCompanyID uint = 7
	testUserID    uint = 42
)

// newTestContext builds a request context carrying the test identity.
// params alternate name, value.
func newTestContext(e *echo.Echo, method, path, body string, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)

	middleware.SetIdentity(c, middleware.Identity{
		CompanyID:   testCompanyID,
		UserID:      testUserID,
		UserName:    "Dana",
		CompanyName: "Acme",
	})
	return c, rec
}

// envelope is the decoded shape of every JSON response
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func decode(rec *httptest.ResponseRecorder) envelope {
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return env
}
