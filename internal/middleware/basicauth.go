package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// PaymeBasicAuth enforces HTTP Basic auth against Payme's configured
// merchant login/key (spec §4.6 "Payme" — "Authentication: HTTP Basic
// with a shared merchant secret"). Uses constant-time comparison to avoid
// leaking the secret through response-timing.
func PaymeBasicAuth(login, key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, pass, ok := c.Request().BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(login)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(key)) != 1 {
				return c.JSON(http.StatusOK, echo.Map{"error": echo.Map{"code": -32504, "message": "insufficient privilege to perform operation"}})
			}
			return next(c)
		}
	}
}
