package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/storefront/identity-api/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := resolveError(err, log, c)
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	// Known domain errors map to deterministic HTTP codes. Messages stay
	// category-level so no flow can be used to probe account existence.
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		return http.StatusBadRequest, domain.ErrMissingFields.Error()
	case errors.Is(err, domain.ErrPasswordMismatch):
		return http.StatusBadRequest, domain.ErrPasswordMismatch.Error()
	case errors.Is(err, domain.ErrPasswordPolicy):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnknownRole):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrInvalidResetRequest):
		return http.StatusBadRequest, domain.ErrInvalidResetRequest.Error()
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, domain.ErrInvalidCredentials.Error()
	case errors.Is(err, domain.ErrMissingClaims):
		return http.StatusUnauthorized, domain.ErrMissingClaims.Error()
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, domain.ErrUserNotFound.Error()
	case errors.Is(err, domain.ErrDuplicateUsername):
		return http.StatusConflict, domain.ErrDuplicateUsername.Error()
	case errors.Is(err, domain.ErrDuplicateEmail):
		return http.StatusConflict, domain.ErrDuplicateEmail.Error()
	case errors.Is(err, domain.ErrEmailAlreadyConfirmed):
		return http.StatusConflict, domain.ErrEmailAlreadyConfirmed.Error()
	case errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusUnprocessableEntity, domain.ErrTokenInvalid.Error()
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, "internal server error"
}
