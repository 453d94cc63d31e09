package redis

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storefront/identity-api/internal/core/domain"
)

const (
	resetTokenTTL   = 24 * time.Hour
	confirmTokenTTL = 72 * time.Hour
	tokenBytes      = 32
)

// TokenStore keeps single-use confirmation/reset tokens in Redis.
// Key format: authtoken:<purpose>:<identity_id>:<token>
//
// Expiry is the key TTL; single use is the atomic GETDEL on consumption.
// Each issued token is its own key, so multiple outstanding tokens for one
// identity coexist until individually consumed or expired.
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore creates a TokenStore wrapping the given Redis client.
func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// Issue generates an opaque token bound to (identity, purpose) and stores it
// with the purpose's TTL.
func (s *TokenStore) Issue(ctx context.Context, purpose domain.TokenPurpose, identityID string) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	if err := s.client.Set(ctx, s.key(purpose, identityID, token), "1", s.ttl(purpose)).Err(); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// Consume spends a token. Unknown, expired, and already-consumed tokens are
// indistinguishable: all return domain.ErrTokenInvalid.
func (s *TokenStore) Consume(ctx context.Context, purpose domain.TokenPurpose, identityID, token string) error {
	err := s.client.GetDel(ctx, s.key(purpose, identityID, token)).Err()
	if err == redis.Nil {
		return domain.ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	return nil
}

func (s *TokenStore) ttl(purpose domain.TokenPurpose) time.Duration {
	if purpose == domain.PurposePasswordReset {
		return resetTokenTTL
	}
	return confirmTokenTTL
}

func (s *TokenStore) key(purpose domain.TokenPurpose, identityID, token string) string {
	return fmt.Sprintf("authtoken:%s:%s:%s", purpose, identityID, token)
}
