package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Identity headers set by the CRM in front of this service
const (
	HeaderCompanyID   = "X-Company-ID"
	HeaderUserID      = "X-User-ID"
	HeaderUserName    = "X-User-Name"
	HeaderCompanyName = "X-Company-Name"
)

const identityKey = "identity"

// Identity is the caller as asserted by the CRM. The ids are opaque
// references owned by the CRM and never mutated here.
type Identity struct {
	CompanyID   uint
	UserID      uint
	UserName    string
	CompanyName string
}

// RequireIdentity reads the identity headers and rejects requests without a
// valid company and user id. For websocket upgrades the ids may come from
// the company_id and user_id query parameters.
func RequireIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			companyRaw, userRaw := h.Get(HeaderCompanyID), h.Get(HeaderUserID)
			if isUpgrade(c) {
				if companyRaw == "" {
					companyRaw = c.QueryParam("company_id")
				}
				if userRaw == "" {
					userRaw = c.QueryParam("user_id")
				}
			}

			companyID, err := parseID(companyRaw)
			if err != nil {
				return echo.NewHTTPError(401, map[string]string{
					"error": "missing or invalid " + HeaderCompanyID,
					"code":  "UNAUTHORIZED",
				})
			}
			userID, err := parseID(userRaw)
			if err != nil {
				return echo.NewHTTPError(401, map[string]string{
					"error": "missing or invalid " + HeaderUserID,
					"code":  "UNAUTHORIZED",
				})
			}

			c.Set(identityKey, Identity{
				CompanyID:   companyID,
				UserID:      userID,
				UserName:    h.Get(HeaderUserName),
				CompanyName: h.Get(HeaderCompanyName),
			})
			return next(c)
		}
	}
}

// GetIdentity returns the identity stored by RequireIdentity
func GetIdentity(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}

// SetIdentity stores an identity on the context
func SetIdentity(c echo.Context, id Identity) {
	c.Set(identityKey, id)
}

func parseID(raw string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, strconv.ErrSyntax
	}
	return uint(v), nil
}
