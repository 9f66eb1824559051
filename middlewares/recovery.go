package middlewares

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Recovery turns a panic into a 500 envelope.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := make([]byte, 4<<10)
					stack = stack[:runtime.Stack(stack, false)]
					logrus.WithFields(logrus.Fields{
						"path":  c.Path(),
						"panic": fmt.Sprint(r),
						"stack": string(stack),
					}).Error("Panic recovered")
					err = c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "Internal server error"})
				}
			}()
			return next(c)
		}
	}
}
