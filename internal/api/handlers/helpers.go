package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/welldanyogia/webrana-crm-mail/internal/api/middleware"
	"github.com/welldanyogia/webrana-crm-mail/internal/api/response"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
)

var errInvalidID = errors.New("invalid id")

// parseID reads a positive numeric path parameter
func parseID(c echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, errInvalidID
	}
	return uint(v), nil
}

func identity(c echo.Context) middleware.Identity {
	id, _ := middleware.GetIdentity(c)
	return id
}

// queryInt reads an integer query parameter clamped to [0, max]
func queryInt(c echo.Context, name string, def, max int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// queryBool reads an optional boolean query parameter
func queryBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func cleanList(list []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// fail writes the response for an error from loading a resource by its
// path id. Other users' resources look the same as missing ones.
func fail(c echo.Context, err error, resource string) error {
	switch {
	case errors.Is(err, errInvalidID):
		return response.BadRequest(c, "invalid "+resource+" ID")
	case errors.Is(err, repository.ErrNotFound):
		return response.NotFound(c, resource+" not found")
	default:
		return response.Error(c, err)
	}
}
