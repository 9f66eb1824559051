package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequireCronSecret accepts ?secret=<secret> or Authorization: Bearer
// <secret>. An empty secret leaves the route open.
func RequireCronSecret(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" || matches(c.QueryParam("secret"), secret) {
				return next(c)
			}
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if strings.HasPrefix(header, "Bearer ") && matches(strings.TrimPrefix(header, "Bearer "), secret) {
				return next(c)
			}

			logrus.WithFields(logrus.Fields{
				"path":   c.Path(),
				"remote": c.RealIP(),
			}).Warn("Rejected sync trigger without a valid secret")
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "Unauthorized"})
		}
	}
}

func matches(given, secret string) bool {
	return given != "" && subtle.ConstantTimeCompare([]byte(given), []byte(secret)) == 1
}
