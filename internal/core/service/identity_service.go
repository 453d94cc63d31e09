package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/storefront/identity-api/internal/core/domain"
	"github.com/storefront/identity-api/internal/core/ports"
)

// PasswordResetRequestedMessage is returned by ForgotPassword on every path,
// found or not, so the response never reveals whether an account exists.
const PasswordResetRequestedMessage = "If an account with that email exists, a password reset link has been sent."

const resetTokenLifetimeHours = 24

type identityService struct {
	store    ports.CredentialStore
	notifier ports.Notifier
	from     string
	log      zerolog.Logger
}

// NewIdentityService returns an IdentityService backed by the given
// credential store and notifier. from is the sender address stamped on
// outbound email.
func NewIdentityService(store ports.CredentialStore, notifier ports.Notifier, from string, log zerolog.Logger) ports.IdentityService {
	return &identityService{
		store:    store,
		notifier: notifier,
		from:     from,
		log:      log,
	}
}

// Register creates an unconfirmed identity with the default User role and
// dispatches a confirmation email. Duplicate checks run before the create so
// a later failure never leaves a partial account behind.
func (s *identityService) Register(ctx context.Context, username, email, password string) (*domain.Identity, error) {
	if username == "" || email == "" || password == "" {
		return nil, domain.ErrMissingFields
	}

	// 1. Uniqueness pre-checks, username first.
	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return nil, domain.ErrDuplicateUsername
	} else if err != domain.ErrUserNotFound {
		return nil, fmt.Errorf("register: lookup username: %w", err)
	}
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrDuplicateEmail
	} else if err != domain.ErrUserNotFound {
		return nil, fmt.Errorf("register: lookup email: %w", err)
	}

	// 2. Create. The store enforces the password policy and the unique
	// constraints; a late duplicate-key error surfaces as the same conflict
	// errors as the pre-checks.
	created, err := s.store.CreateIdentity(ctx, &domain.Identity{
		Username: username,
		Email:    email,
	}, password)
	if err != nil {
		return nil, fmt.Errorf("register: create identity: %w", err)
	}

	// 3. Default role.
	if err := s.store.AddToRole(ctx, created, domain.RoleUser); err != nil {
		return nil, fmt.Errorf("register: assign default role: %w", err)
	}
	if created.Roles, err = s.store.GetRoles(ctx, created); err != nil {
		return nil, fmt.Errorf("register: load roles: %w", err)
	}

	// 4. Confirmation token + email. Dispatch failure must not undo the
	// persisted account, so it is logged and swallowed here.
	token, err := s.store.GenerateToken(ctx, created, domain.PurposeEmailConfirm)
	if err != nil {
		s.log.Error().Err(err).Str("email", created.Email).Msg("confirmation token generation failed")
	} else {
		s.sendConfirmationEmail(ctx, created, token)
	}

	s.log.Info().Str("username", created.Username).Str("id", created.ID).Msg("identity registered")
	return created, nil
}

// Login verifies email+password. A missing account and a wrong password
// produce the same error so callers cannot probe for registered emails.
// Email confirmation is informational and does not gate login.
func (s *identityService) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	ok, err := s.store.VerifyPassword(ctx, identity, password)
	if err != nil {
		return nil, fmt.Errorf("login: verify password: %w", err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	// Refresh roles so the caller embeds the current set at token issuance.
	if identity.Roles, err = s.store.GetRoles(ctx, identity); err != nil {
		return nil, fmt.Errorf("login: load roles: %w", err)
	}

	s.log.Info().Str("username", identity.Username).Msg("login succeeded")
	return identity, nil
}

func (s *identityService) CheckEmailExists(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, domain.ErrMissingFields
	}
	_, err := s.store.FindByEmail(ctx, email)
	if err == domain.ErrUserNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return true, nil
}

// ForgotPassword issues a reset token and emails it when the account exists.
// The returned message is identical on both paths.
func (s *identityService) ForgotPassword(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", domain.ErrMissingFields
	}

	identity, err := s.store.FindByEmail(ctx, email)
	if err == domain.ErrUserNotFound {
		return PasswordResetRequestedMessage, nil
	}
	if err != nil {
		return "", fmt.Errorf("forgot password: %w", err)
	}

	token, err := s.store.GenerateToken(ctx, identity, domain.PurposePasswordReset)
	if err != nil {
		return "", fmt.Errorf("forgot password: generate token: %w", err)
	}

	body := fmt.Sprintf(
		"Hello %s,\r\n\r\n"+
			"You requested to reset your password. Use the following token to reset it:\r\n\r\n"+
			"Token: %s\r\n\r\n"+
			"This token will expire in %d hours.\r\n"+
			"If you did not request this reset, please ignore this email.\r\n",
		identity.Display(), token, resetTokenLifetimeHours,
	)
	s.send(ctx, ports.EmailMessage{
		To:      identity.Email,
		From:    s.from,
		Subject: "Password reset request",
		Body:    body,
		Kind:    "password-reset",
	})

	s.log.Info().Str("username", identity.Username).Msg("password reset requested")
	return PasswordResetRequestedMessage, nil
}

// ResetPassword spends a reset token and replaces the password. A consumed,
// expired, or unknown token fails the same way.
func (s *identityService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	if email == "" || token == "" || newPassword == "" {
		return domain.ErrMissingFields
	}

	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return domain.ErrInvalidResetRequest
		}
		return fmt.Errorf("reset password: %w", err)
	}

	if err := s.store.ConsumeResetToken(ctx, identity, token, newPassword); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	s.log.Info().Str("username", identity.Username).Msg("password reset")
	return nil
}

// ChangePassword is only reachable for authenticated callers; email comes
// from the verified session, never from the request body. The confirmation
// mismatch is rejected before the store is touched.
func (s *identityService) ChangePassword(ctx context.Context, email, currentPassword, newPassword, confirmPassword string) error {
	if email == "" || currentPassword == "" || newPassword == "" {
		return domain.ErrMissingFields
	}
	if newPassword != confirmPassword {
		return domain.ErrPasswordMismatch
	}

	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("change password: %w", err)
	}

	if err := s.store.ChangePassword(ctx, identity, currentPassword, newPassword); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	s.log.Info().Str("username", identity.Username).Msg("password changed")
	return nil
}

// ConfirmEmail spends a confirmation token and flips the confirmed flag.
// The Unconfirmed -> Confirmed transition is one-way.
func (s *identityService) ConfirmEmail(ctx context.Context, email, token string) error {
	if email == "" || token == "" {
		return domain.ErrMissingFields
	}

	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("confirm email: %w", err)
	}

	if err := s.store.ConsumeConfirmationToken(ctx, identity, token); err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}

	s.log.Info().Str("username", identity.Username).Msg("email confirmed")
	return nil
}

// ResendConfirmationEmail issues a fresh confirmation token. Outstanding
// unexpired tokens stay valid; they are independent single-use secrets.
func (s *identityService) ResendConfirmationEmail(ctx context.Context, email string) error {
	if email == "" {
		return domain.ErrMissingFields
	}

	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("resend confirmation: %w", err)
	}

	if identity.EmailConfirmed {
		return domain.ErrEmailAlreadyConfirmed
	}

	token, err := s.store.GenerateToken(ctx, identity, domain.PurposeEmailConfirm)
	if err != nil {
		return fmt.Errorf("resend confirmation: generate token: %w", err)
	}
	s.sendConfirmationEmail(ctx, identity, token)

	s.log.Info().Str("username", identity.Username).Msg("confirmation email resent")
	return nil
}

// CurrentUser resolves the acting identity for a verified email claim. A
// pure read-through: the account may have gone away between token issuance
// and use.
func (s *identityService) CurrentUser(ctx context.Context, email string) (*domain.Identity, error) {
	if email == "" {
		return nil, domain.ErrMissingClaims
	}

	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("current user: %w", err)
	}

	if identity.Roles, err = s.store.GetRoles(ctx, identity); err != nil {
		return nil, fmt.Errorf("current user: load roles: %w", err)
	}
	return identity, nil
}

func (s *identityService) AssignRole(ctx context.Context, email, role string) error {
	if email == "" || role == "" {
		return domain.ErrMissingFields
	}

	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("assign role: %w", err)
	}

	if err := s.store.AddToRole(ctx, identity, role); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	s.log.Info().Str("username", identity.Username).Str("role", role).Msg("role assigned")
	return nil
}

func (s *identityService) sendConfirmationEmail(ctx context.Context, identity *domain.Identity, token string) {
	body := fmt.Sprintf(
		"Hello %s,\r\n\r\n"+
			"Please confirm your email address using the following token:\r\n\r\n"+
			"Token: %s\r\n",
		identity.Display(), token,
	)
	s.send(ctx, ports.EmailMessage{
		To:      identity.Email,
		From:    s.from,
		Subject: "Confirm your email",
		Body:    body,
		Kind:    "confirmation",
	})
}

// send dispatches an email and swallows failures: account state must never
// depend on the notifier.
func (s *identityService) send(ctx context.Context, msg ports.EmailMessage) {
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("to", msg.To).Str("kind", msg.Kind).Msg("email dispatch failed")
	}
}
