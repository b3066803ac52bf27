package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRevocationPrefix namespaces revocation keys in Redis.
const DefaultRevocationPrefix = "token:blacklist:"

// RedisRevocationStore keeps revocations in Redis with a native TTL.
type RedisRevocationStore struct {
	client  redis.Cmdable
	prefix  string
	timeout time.Duration
}

var _ RevocationStore = (*RedisRevocationStore)(nil)

// RedisStoreOption configures a RedisRevocationStore
type RedisStoreOption func(*RedisRevocationStore)

// WithRedisPrefix overrides the key prefix
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisRevocationStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisTimeout bounds every Redis call
func WithRedisTimeout(d time.Duration) RedisStoreOption {
	return func(s *RedisRevocationStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewRedisRevocationStore wraps client.
func NewRedisRevocationStore(client redis.Cmdable, opts ...RedisStoreOption) *RedisRevocationStore {
	s := &RedisRevocationStore{
		client:  client,
		prefix:  DefaultRevocationPrefix,
		timeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, withSource(ErrStoreUnavailable, err, map[string]any{"operation": "parse redis url"})
	}
	return redis.NewClient(opts), nil
}

func (s *RedisRevocationStore) key(token string) string {
	return s.prefix + revocationKey(token)
}

// Revoke implements RevocationStore.
func (s *RedisRevocationStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" || ttl <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(token), "1", ttl).Err(); err != nil {
		return withSource(ErrStoreUnavailable, err, map[string]any{"operation": "revoke"})
	}
	return nil
}

// IsRevoked implements RevocationStore.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.client.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, withSource(ErrStoreUnavailable, err, map[string]any{"operation": "is_revoked"})
	}
	return n > 0, nil
}

// Claim implements RevocationStore with SET NX, so only the first caller
// creates the key.
func (s *RedisRevocationStore) Claim(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if token == "" || ttl <= 0 {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	claimed, err := s.client.SetNX(ctx, s.key(token), "1", ttl).Result()
	if err != nil {
		return false, withSource(ErrStoreUnavailable, err, map[string]any{"operation": "claim"})
	}
	return claimed, nil
}

// Ping checks connectivity
func (s *RedisRevocationStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return withSource(ErrStoreUnavailable, err, map[string]any{"operation": "ping"})
	}
	return nil
}
