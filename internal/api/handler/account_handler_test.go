package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/storefront/identity-api/internal/core/domain"
)

type stubIdentityService struct {
	registerFn   func(ctx context.Context, username, email, password string) (*domain.Identity, error)
	loginFn      func(ctx context.Context, email, password string) (*domain.Identity, error)
	checkEmailFn func(ctx context.Context, email string) (bool, error)
	forgotFn     func(ctx context.Context, email string) (string, error)
	resetFn      func(ctx context.Context, email, token, newPassword string) error
	changeFn     func(ctx context.Context, email, current, newPassword, confirm string) error
	confirmFn    func(ctx context.Context, email, token string) error
	resendFn     func(ctx context.Context, email string) error
	currentFn    func(ctx context.Context, email string) (*domain.Identity, error)
	assignFn     func(ctx context.Context, email, role string) error
}

func (s *stubIdentityService) Register(ctx context.Context, username, email, password string) (*domain.Identity, error) {
	return s.registerFn(ctx, username, email, password)
}

func (s *stubIdentityService) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubIdentityService) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	return s.checkEmailFn(ctx, email)
}

func (s *stubIdentityService) ForgotPassword(ctx context.Context, email string) (string, error) {
	return s.forgotFn(ctx, email)
}

func (s *stubIdentityService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	return s.resetFn(ctx, email, token, newPassword)
}

func (s *stubIdentityService) ChangePassword(ctx context.Context, email, current, newPassword, confirm string) error {
	return s.changeFn(ctx, email, current, newPassword, confirm)
}

func (s *stubIdentityService) ConfirmEmail(ctx context.Context, email, token string) error {
	return s.confirmFn(ctx, email, token)
}

func (s *stubIdentityService) ResendConfirmationEmail(ctx context.Context, email string) error {
	return s.resendFn(ctx, email)
}

func (s *stubIdentityService) CurrentUser(ctx context.Context, email string) (*domain.Identity, error) {
	return s.currentFn(ctx, email)
}

func (s *stubIdentityService) AssignRole(ctx context.Context, email, role string) error {
	return s.assignFn(ctx, email, role)
}

type stubIssuer struct {
	token string
	err   error
}

func (s *stubIssuer) Issue(_ *domain.Identity) (string, error) {
	return s.token, s.err
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func newJSONContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAccountHandler_Register_Success(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		registerFn: func(ctx context.Context, username, email, password string) (*domain.Identity, error) {
			if username != "alice" || email != "alice@example.com" {
				t.Fatalf("unexpected args: %s %s", username, email)
			}
			return &domain.Identity{Username: username, Email: email, Roles: []string{domain.RoleUser}}, nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, rec := newJSONContext(e, http.MethodPost, "/account/register",
		`{"username":"alice","email":"alice@example.com","password":"Secret1"}`)

	if err := handler.Register(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["token"] != "token123" {
		t.Fatalf("expected token in response, got %v", resp["token"])
	}
	if resp["email"] != "alice@example.com" {
		t.Fatalf("unexpected email: %v", resp["email"])
	}
	if resp["email_confirmed"] != false {
		t.Fatalf("new account must start unconfirmed")
	}
}

func TestAccountHandler_Register_DuplicateEmail(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		registerFn: func(ctx context.Context, username, email, password string) (*domain.Identity, error) {
			return nil, domain.ErrDuplicateEmail
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, _ := newJSONContext(e, http.MethodPost, "/account/register",
		`{"username":"alice","email":"alice@example.com","password":"Secret1"}`)

	err := handler.Register(c)
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAccountHandler_Register_InvalidPayload(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		registerFn: func(ctx context.Context, username, email, password string) (*domain.Identity, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, _ := newJSONContext(e, http.MethodPost, "/account/register", "not-json")

	err := handler.Register(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestAccountHandler_Register_ShortPassword(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		registerFn: func(ctx context.Context, username, email, password string) (*domain.Identity, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, _ := newJSONContext(e, http.MethodPost, "/account/register",
		`{"username":"alice","email":"alice@example.com","password":"abc"}`)

	err := handler.Register(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestAccountHandler_Login_Success(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		loginFn: func(ctx context.Context, email, password string) (*domain.Identity, error) {
			if email != "alice@example.com" || password != "Secret1" {
				t.Fatalf("unexpected args: %s %s", email, password)
			}
			return &domain.Identity{Username: "alice", Email: email, Roles: []string{domain.RoleUser}}, nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, rec := newJSONContext(e, http.MethodPost, "/account/login",
		`{"email":"alice@example.com","password":"Secret1"}`)

	if err := handler.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["token"] != "token123" {
		t.Fatalf("expected token, got %v", resp["token"])
	}
}

func TestAccountHandler_Login_InvalidCredentials(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		loginFn: func(ctx context.Context, email, password string) (*domain.Identity, error) {
			return nil, domain.ErrInvalidCredentials
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, _ := newJSONContext(e, http.MethodPost, "/account/login",
		`{"email":"alice@example.com","password":"wrong"}`)

	err := handler.Login(c)
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAccountHandler_CheckEmail(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		checkEmailFn: func(ctx context.Context, email string) (bool, error) {
			return email == "taken@example.com", nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	req := httptest.NewRequest(http.MethodGet, "/account/check-email?email=taken@example.com", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.CheckEmail(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp checkEmailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !resp.Exists {
		t.Fatalf("expected exists=true")
	}
}

func TestAccountHandler_CheckEmail_MissingParam(t *testing.T) {
	e := newTestEcho()
	handler := NewAccountHandler(&stubIdentityService{}, &stubIssuer{token: "token123"})

	req := httptest.NewRequest(http.MethodGet, "/account/check-email", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.CheckEmail(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestAccountHandler_ForgotPassword_SameBodyEitherWay(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		forgotFn: func(ctx context.Context, email string) (string, error) {
			return "If the email is registered, a reset link has been sent", nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	bodies := make([]string, 0, 2)
	for _, email := range []string{"known@example.com", "ghost@example.com"} {
		c, rec := newJSONContext(e, http.MethodPost, "/account/forgot-password",
			`{"email":"`+email+`"}`)
		if err := handler.ForgotPassword(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("responses must be indistinguishable: %q vs %q", bodies[0], bodies[1])
	}
}

func TestAccountHandler_ResetPassword_InvalidToken(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		resetFn: func(ctx context.Context, email, token, newPassword string) error {
			return domain.ErrTokenInvalid
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, _ := newJSONContext(e, http.MethodPost, "/account/reset-password",
		`{"email":"alice@example.com","token":"stale","new_password":"Secret2"}`)

	err := handler.ResetPassword(c)
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestAccountHandler_ChangePassword_UsesClaimEmail(t *testing.T) {
	e := newTestEcho()
	var gotEmail string
	stub := &stubIdentityService{
		changeFn: func(ctx context.Context, email, current, newPassword, confirm string) error {
			gotEmail = email
			return nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, rec := newJSONContext(e, http.MethodPost, "/account/change-password",
		`{"current_password":"Secret1","new_password":"Secret2","confirm_password":"Secret2"}`)
	c.Set("email", "claims@example.com")

	if err := handler.ChangePassword(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotEmail != "claims@example.com" {
		t.Fatalf("email must come from claims, got %q", gotEmail)
	}
}

func TestAccountHandler_ChangePassword_MissingClaims(t *testing.T) {
	e := newTestEcho()
	handler := NewAccountHandler(&stubIdentityService{}, &stubIssuer{token: "token123"})

	c, _ := newJSONContext(e, http.MethodPost, "/account/change-password",
		`{"current_password":"Secret1","new_password":"Secret2","confirm_password":"Secret2"}`)

	err := handler.ChangePassword(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 HTTPError, got %v", err)
	}
}

func TestAccountHandler_ChangePassword_ConfirmMismatch(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		changeFn: func(ctx context.Context, email, current, newPassword, confirm string) error {
			t.Fatalf("should not be called")
			return nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, _ := newJSONContext(e, http.MethodPost, "/account/change-password",
		`{"current_password":"Secret1","new_password":"Secret2","confirm_password":"Other9"}`)
	c.Set("email", "claims@example.com")

	err := handler.ChangePassword(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestAccountHandler_ConfirmEmail_Success(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		confirmFn: func(ctx context.Context, email, token string) error {
			if token != "tok-1" {
				t.Fatalf("unexpected token: %s", token)
			}
			return nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, rec := newJSONContext(e, http.MethodPost, "/account/confirm-email",
		`{"email":"alice@example.com","token":"tok-1"}`)

	if err := handler.ConfirmEmail(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAccountHandler_ResendConfirmation_AlreadyConfirmed(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		resendFn: func(ctx context.Context, email string) error {
			return domain.ErrEmailAlreadyConfirmed
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	req := httptest.NewRequest(http.MethodGet, "/account/resend-confirmation-email", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("email", "alice@example.com")

	err := handler.ResendConfirmationEmail(c)
	if !errors.Is(err, domain.ErrEmailAlreadyConfirmed) {
		t.Fatalf("expected ErrEmailAlreadyConfirmed, got %v", err)
	}
}

func TestAccountHandler_CurrentUser(t *testing.T) {
	e := newTestEcho()
	stub := &stubIdentityService{
		currentFn: func(ctx context.Context, email string) (*domain.Identity, error) {
			return &domain.Identity{Username: "alice", Email: email, EmailConfirmed: true, Roles: []string{domain.RoleUser}}, nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	req := httptest.NewRequest(http.MethodGet, "/account/current-user", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("email", "alice@example.com")

	if err := handler.CurrentUser(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["email"] != "alice@example.com" || resp["email_confirmed"] != true {
		t.Fatalf("unexpected payload: %v", resp)
	}
	if resp["token"] != "token123" {
		t.Fatalf("current-user must re-mint a token")
	}
}

func TestAccountHandler_AssignRole(t *testing.T) {
	e := newTestEcho()
	var gotEmail, gotRole string
	stub := &stubIdentityService{
		assignFn: func(ctx context.Context, email, role string) error {
			gotEmail, gotRole = email, role
			return nil
		},
	}
	handler := NewAccountHandler(stub, &stubIssuer{token: "token123"})

	c, rec := newJSONContext(e, http.MethodPost, "/account/assign-role",
		`{"email":"bob@example.com","role":"Admin"}`)

	if err := handler.AssignRole(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotEmail != "bob@example.com" || gotRole != "Admin" {
		t.Fatalf("unexpected args: %s %s", gotEmail, gotRole)
	}
}
