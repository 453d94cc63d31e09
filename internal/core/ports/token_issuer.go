package ports

import "github.com/storefront/identity-api/internal/core/domain"

// TokenIssuer converts an authenticated identity and its current role set
// into a signed, time-bound bearer token. Pure function of identity, issuer
// configuration, and current time.
type TokenIssuer interface {
	Issue(identity *domain.Identity) (string, error)
}
