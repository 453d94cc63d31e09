package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/storefront/identity-api/internal/core/domain"
	"github.com/storefront/identity-api/internal/core/ports"
)

const defaultTokenExpiryDays = 7

// TokenConfig is the signing configuration for issued bearer tokens. It is
// validated once at construction and never re-read per call.
type TokenConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	ExpiryDays int
}

// Claims is the claim set embedded in issued tokens: subject id, username,
// email, and the role names held at issuance time.
type Claims struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	cfg TokenConfig
}

// NewTokenIssuer validates the signing configuration and returns a
// TokenIssuer. A missing secret is a startup fault, not a per-request error.
func NewTokenIssuer(cfg TokenConfig) (ports.TokenIssuer, error) {
	if cfg.Secret == "" {
		return nil, domain.ErrSigningKeyMissing
	}
	if cfg.ExpiryDays <= 0 {
		cfg.ExpiryDays = defaultTokenExpiryDays
	}
	return &tokenIssuer{cfg: cfg}, nil
}

// Issue signs an HS256 token for the identity. Roles are embedded as claims
// at issuance time, not re-derived when the token is later presented.
func (t *tokenIssuer) Issue(identity *domain.Identity) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		Name:  identity.Username,
		Email: identity.Email,
		Roles: identity.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    t.cfg.Issuer,
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.AddDate(0, 0, t.cfg.ExpiryDays)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
