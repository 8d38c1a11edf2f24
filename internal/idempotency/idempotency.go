// Package idempotency stores responses of side-effecting requests so a client
// retrying with the same Idempotency-Key receives the original response.
package idempotency

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Header is the request header carrying the client-chosen key.
const Header = "Idempotency-Key"

const (
	keyPrefix    = "checkout:idem:"
	maxKeyLength = 255
)

// ErrInvalidKey is returned for keys that are too long to store.
var ErrInvalidKey = errors.New("idempotency key too long")

// Key returns the trimmed Idempotency-Key header, or "" when absent.
func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Store keeps response bodies by key.
type Store interface {
	// Get returns the stored body and whether one exists.
	Get(ctx context.Context, scope, key string) ([]byte, bool, error)
	// Put stores body unless a body is already stored for the key. It
	// reports whether body was stored.
	Put(ctx context.Context, scope, key string, body []byte) (bool, error)
}

var _ Store = (*RedisStore)(nil)

// RedisStore implements Store on Redis with a fixed TTL per entry.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore returns a RedisStore keeping entries for ttl.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, scope, key string) ([]byte, bool, error) {
	k, err := storageKey(scope, key)
	if err != nil {
		return nil, false, err
	}
	body, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "get")
	}
	return body, true, nil
}

// Put implements Store. The first writer for a key wins.
func (s *RedisStore) Put(ctx context.Context, scope, key string, body []byte) (bool, error) {
	k, err := storageKey(scope, key)
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, k, body, s.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "setnx")
	}
	return ok, nil
}

func storageKey(scope, key string) (string, error) {
	if len(key) > maxKeyLength {
		return "", ErrInvalidKey
	}
	return keyPrefix + scope + ":" + key, nil
}

// ClientConfig configures the Redis connection.
type ClientConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient parses cfg.URL, applies timeouts and pings the server.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}
