package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/storefront/identity-api/internal/api/metrics"
	"github.com/storefront/identity-api/internal/core/domain"
	"github.com/storefront/identity-api/internal/core/ports"
)

// AccountHandler exposes the identity service over HTTP. Error translation
// for the less common flows is centralised in the API error handler; the
// hot paths (register, login) map inline so they can label their metrics.
type AccountHandler struct {
	identity ports.IdentityService
	issuer   ports.TokenIssuer
}

func NewAccountHandler(identity ports.IdentityService, issuer ports.TokenIssuer) *AccountHandler {
	return &AccountHandler{identity: identity, issuer: issuer}
}

// Register creates a new account and returns it with a bearer token.
//
// @Summary      Register a new user
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {object}  userResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /account/register [post]
func (h *AccountHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	identity, err := h.identity.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateUsername), errors.Is(err, domain.ErrDuplicateEmail):
			metrics.RegistrationsTotal.WithLabelValues("conflict").Inc()
		default:
			metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		}
		return err
	}
	metrics.RegistrationsTotal.WithLabelValues("ok").Inc()

	resp, err := h.mint(identity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login authenticates a user and returns a bearer token.
//
// @Summary      Login
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /account/login [post]
func (h *AccountHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	identity, err := h.identity.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			metrics.LoginsTotal.WithLabelValues("denied").Inc()
		}
		return err
	}
	metrics.LoginsTotal.WithLabelValues("ok").Inc()

	resp, err := h.mint(identity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// CurrentUser returns the acting identity with a re-minted token.
//
// @Summary      Get the current authenticated user
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /account/current-user [get]
func (h *AccountHandler) CurrentUser(c echo.Context) error {
	email, err := ctxEmail(c)
	if err != nil {
		return err
	}

	identity, err := h.identity.CurrentUser(c.Request().Context(), email)
	if err != nil {
		return err
	}

	resp, err := h.mint(identity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// CheckEmail reports whether an account exists for the given email.
//
// @Summary      Check if an email is registered
// @Tags         account
// @Produce      json
// @Param        email  query     string  true  "Email to check"
// @Success      200    {object}  checkEmailResponse
// @Failure      400    {object}  errorResponse
// @Router       /account/check-email [get]
func (h *AccountHandler) CheckEmail(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}

	exists, err := h.identity.CheckEmailExists(c.Request().Context(), email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, checkEmailResponse{Exists: exists})
}

// ForgotPassword requests a password-reset email. The response is the same
// whether or not the account exists.
//
// @Summary      Request a password reset email
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account email"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Router       /account/forgot-password [post]
func (h *AccountHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.identity.ForgotPassword(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msg})
}

// ResetPassword consumes a reset token and sets a new password.
//
// @Summary      Reset password using a reset token
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      resetPasswordRequest  true  "Reset details"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /account/reset-password [post]
func (h *AccountHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.identity.ResetPassword(c.Request().Context(), req.Email, req.Token, req.NewPassword); err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.PasswordResetsTotal.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, messageResponse{Message: "Password has been reset successfully"})
}

// ChangePassword changes the password of the authenticated user. The email
// comes from the verified session claims, never from the request body.
//
// @Summary      Change password
// @Tags         account
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "Password change details"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /account/change-password [post]
func (h *AccountHandler) ChangePassword(c echo.Context) error {
	email, err := ctxEmail(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.identity.ChangePassword(c.Request().Context(), email, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Password has been changed successfully"})
}

// ConfirmEmail consumes a confirmation token and marks the email confirmed.
//
// @Summary      Confirm email
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        body  body      confirmEmailRequest  true  "Confirmation details"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /account/confirm-email [post]
func (h *AccountHandler) ConfirmEmail(c echo.Context) error {
	var req confirmEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.identity.ConfirmEmail(c.Request().Context(), req.Email, req.Token); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Email has been confirmed successfully"})
}

// ResendConfirmationEmail issues a fresh confirmation token for the
// authenticated user.
//
// @Summary      Resend the confirmation email
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /account/resend-confirmation-email [get]
func (h *AccountHandler) ResendConfirmationEmail(c echo.Context) error {
	email, err := ctxEmail(c)
	if err != nil {
		return err
	}

	if err := h.identity.ResendConfirmationEmail(c.Request().Context(), email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Confirmation email has been sent"})
}

// AssignRole grants a role to an account. Admin only.
//
// @Summary      Assign a role to a user
// @Tags         account
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      assignRoleRequest  true  "Assignment details"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /account/assign-role [post]
func (h *AccountHandler) AssignRole(c echo.Context) error {
	var req assignRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.identity.AssignRole(c.Request().Context(), req.Email, req.Role); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Role has been assigned"})
}

// mint signs a bearer token embedding the identity's current roles.
func (h *AccountHandler) mint(identity *domain.Identity) (*userResponse, error) {
	token, err := h.issuer.Issue(identity)
	if err != nil {
		return nil, err
	}
	metrics.TokensIssuedTotal.Inc()

	return &userResponse{
		Email:          identity.Email,
		DisplayName:    identity.Display(),
		EmailConfirmed: identity.EmailConfirmed,
		Token:          token,
		Roles:          identity.Roles,
	}, nil
}
