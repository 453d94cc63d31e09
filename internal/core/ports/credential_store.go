package ports

import (
	"context"

	"github.com/storefront/identity-api/internal/core/domain"
)

// CredentialStore is the persistence contract consumed by the identity
// service. It owns user records, role membership, password hashing and
// verification, and the single-use confirmation/reset tokens. Uniqueness and
// single-use-token atomicity under concurrent callers are the store's
// responsibility; callers must treat a late constraint violation the same as
// a failed pre-check.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*domain.Identity, error)
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)

	// CreateIdentity persists a new identity with the given plaintext
	// password. Fails with domain.ErrPasswordPolicy when the password is
	// rejected, or a duplicate error when a unique constraint trips.
	CreateIdentity(ctx context.Context, identity *domain.Identity, password string) (*domain.Identity, error)

	// GenerateToken issues a fresh single-use token bound to the identity
	// and purpose. Previously issued tokens remain valid until consumed or
	// expired.
	GenerateToken(ctx context.Context, identity *domain.Identity, purpose domain.TokenPurpose) (string, error)

	// ConsumeResetToken spends a password-reset token and replaces the
	// password hash. domain.ErrTokenInvalid covers expired, consumed, and
	// unknown tokens alike.
	ConsumeResetToken(ctx context.Context, identity *domain.Identity, token, newPassword string) error

	// ConsumeConfirmationToken spends an email-confirmation token and marks
	// the identity's email as confirmed.
	ConsumeConfirmationToken(ctx context.Context, identity *domain.Identity, token string) error

	VerifyPassword(ctx context.Context, identity *domain.Identity, password string) (bool, error)

	// ChangePassword verifies the current password and replaces it with the
	// new one. Fails with domain.ErrInvalidCredentials on a bad current
	// password or domain.ErrPasswordPolicy on a weak new one.
	ChangePassword(ctx context.Context, identity *domain.Identity, currentPassword, newPassword string) error

	GetRoles(ctx context.Context, identity *domain.Identity) ([]string, error)
	AddToRole(ctx context.Context, identity *domain.Identity, role string) error
}
