package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ctxEmail extracts the email claim injected by the Auth middleware. The
// middleware runs first on every authenticated route, so an absent claim
// means a malformed token slipped through; fail closed with 401 before any
// service call.
func ctxEmail(c echo.Context) (string, error) {
	email, _ := c.Get("email").(string)
	if email == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return email, nil
}
