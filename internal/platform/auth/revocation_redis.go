package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationStore shares revocations between server instances. Keys
// carry a TTL so Redis drops them once the tokens would have expired anyway.
type RedisRevocationStore struct {
	client   redis.UniversalClient
	prefix   string
	tokenTTL time.Duration
}

func NewRedisRevocationStore(client redis.UniversalClient, prefix string, tokenTTL time.Duration) *RedisRevocationStore {
	if prefix == "" {
		prefix = "clinic"
	}
	return &RedisRevocationStore{client: client, prefix: prefix, tokenTTL: tokenTTL}
}

func (s *RedisRevocationStore) jtiKey(jti string) string {
	return fmt.Sprintf("%s:revoked:jti:%s", s.prefix, jti)
}

func (s *RedisRevocationStore) userKey(userID string) string {
	return fmt.Sprintf("%s:revoked:user:%s", s.prefix, userID)
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.jtiKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) RevokeUser(ctx context.Context, userID string, cutoff time.Time) error {
	err := s.client.Set(ctx, s.userKey(userID), cutoff.Unix(), s.tokenTTL).Err()
	if err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	if jti != "" {
		n, err := s.client.Exists(ctx, s.jtiKey(jti)).Result()
		if err != nil {
			return false, fmt.Errorf("check token revocation: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}
	if userID == "" {
		return false, nil
	}
	raw, err := s.client.Get(ctx, s.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user revocation: %w", err)
	}
	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse user cutoff %q: %w", raw, err)
	}
	return issuedAt.Unix() <= cutoff, nil
}
