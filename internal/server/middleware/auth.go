package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AuthMiddleware checks the configured API key. When no key is configured
// the API is open; deployments behind their own gateway run it that way.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cc, ok := c.(*AppContext)
		if !ok {
			return echo.NewHTTPError(http.StatusInternalServerError, "missing app context")
		}
		if cc.App.APIKey == "" {
			return next(c)
		}

		provided := c.Request().Header.Get("X-Api-Key")
		if provided == "" {
			auth := c.Request().Header.Get("Authorization")
			provided = strings.TrimPrefix(auth, "Bearer ")
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(cc.App.APIKey)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
		}
		return next(c)
	}
}
