// Package middleware provides HTTP middleware for the CRM mail API.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-crm-mail/internal/logger"
)

// APIKeyAuth validates the API key from the Authorization header.
// Uses constant-time comparison to prevent timing attacks. Websocket
// upgrades may carry the key in the api_key query parameter instead, since
// browsers cannot set headers on them. An empty key disables the check.
func APIKeyAuth(apiKey string, security *logger.SecurityLogger, log *slog.Logger) echo.MiddlewareFunc {
	if apiKey == "" && log != nil {
		log.Warn("API_KEY not set - API is UNSECURED")
	}

	reject := func(c echo.Context, reason string) error {
		if security != nil {
			security.AuthFailure(c.RealIP(), c.Path(), reason)
		}
		return echo.NewHTTPError(401, map[string]string{
			"error": reason,
			"code":  "UNAUTHORIZED",
		})
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			token := ""
			if authHeader := c.Request().Header.Get(echo.HeaderAuthorization); authHeader != "" {
				token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			} else if isUpgrade(c) {
				token = c.QueryParam("api_key")
			}
			if token == "" {
				return reject(c, "missing authorization header")
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				return reject(c, "invalid API key")
			}

			return next(c)
		}
	}
}

func isUpgrade(c echo.Context) bool {
	return strings.EqualFold(c.Request().Header.Get("Upgrade"), "websocket")
}
