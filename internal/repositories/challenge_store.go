package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrChallengeStoreUnavailable = errors.New("two-factor challenge store unavailable")

// TwoFactorChallengeStore makes 2FA-pending tokens single use. The first code attempt against a
// token claims its jti; every later attempt with the same token is refused.
type TwoFactorChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTwoFactorChallengeStore(client redis.UniversalClient, prefix string) *TwoFactorChallengeStore {
	if prefix == "" {
		prefix = "2fa:pending"
	}
	return &TwoFactorChallengeStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *TwoFactorChallengeStore) key(jti string) string {
	return s.prefix + ":" + jti
}

// Claim records the attempt for jti and reports whether it was the first. ttl should cover the
// token's remaining lifetime; after that the token is rejected on expiry anyway.
func (s *TwoFactorChallengeStore) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if jti == "" {
		return false, nil
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	first, err := s.redis.SetNX(ctx, s.key(jti), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeStoreUnavailable, err)
	}
	return first, nil
}

// Ping checks connectivity for health reporting.
func (s *TwoFactorChallengeStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeStoreUnavailable, err)
	}
	return nil
}
