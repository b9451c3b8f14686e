package middleware

import (
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
)

// CORS lets browser front-ends whose origin matches pattern call the BFF.
func CORS(pattern *regexp.Regexp) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			respHeader := c.Response().Header()
			respHeader.Add(echo.HeaderVary, echo.HeaderOrigin)
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" || pattern == nil || !pattern.MatchString(origin) {
				return next(c)
			}
			respHeader.Set(echo.HeaderAccessControlAllowOrigin, origin)
			respHeader.Set(echo.HeaderAccessControlExposeHeaders, XRequestID)
			if c.Request().Method == http.MethodOptions {
				respHeader.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, "+XRequestID)
				respHeader.Set(echo.HeaderAccessControlAllowMethods, "OPTIONS, GET, POST, PUT, DELETE")
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
