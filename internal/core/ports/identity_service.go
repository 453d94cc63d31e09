package ports

import (
	"context"

	"github.com/storefront/identity-api/internal/core/domain"
)

// IdentityService owns the account lifecycle: registration, credential
// verification, password reset/change, and the email-confirmation state
// machine. All operations are request/response; durable state lives in the
// CredentialStore.
type IdentityService interface {
	Register(ctx context.Context, username, email, password string) (*domain.Identity, error)
	Login(ctx context.Context, email, password string) (*domain.Identity, error)
	CheckEmailExists(ctx context.Context, email string) (bool, error)

	// ForgotPassword returns the same user-facing message whether or not the
	// email resolves to an account.
	ForgotPassword(ctx context.Context, email string) (string, error)

	ResetPassword(ctx context.Context, email, token, newPassword string) error
	ChangePassword(ctx context.Context, email, currentPassword, newPassword, confirmPassword string) error
	ConfirmEmail(ctx context.Context, email, token string) error
	ResendConfirmationEmail(ctx context.Context, email string) error

	// CurrentUser resolves the acting identity from a verified email claim.
	CurrentUser(ctx context.Context, email string) (*domain.Identity, error)

	// AssignRole grants an additional role to the identity behind email.
	AssignRole(ctx context.Context, email, role string) error
}
