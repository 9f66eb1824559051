package middlewares

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	allowMethods  = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	allowHeaders  = strings.Join([]string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Refresh-Token"}, ", ")
	exposeHeaders = strings.Join([]string{"X-New-Access-Token", "X-New-Refresh-Token"}, ", ")
)

// CORS opens every route to any origin. Preflight requests get an empty 200.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			h.Set(echo.HeaderAccessControlAllowMethods, allowMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
			h.Set(echo.HeaderAccessControlExposeHeaders, exposeHeaders)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
