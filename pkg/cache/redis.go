package cache

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores entries in Redis so several scanners can share
// `cargo metadata` output.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache connects to the Redis server at url (redis://host:port/db)
// and verifies the connection with PING.
func NewRedisCache(ctx context.Context, url string) (Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves a value. Transient network failures are retried.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	var hit bool
	err := RetryWithBackoff(ctx, func() error {
		v, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			hit = false
			return nil
		}
		if err != nil {
			return classify(err)
		}
		data, hit = v, true
		return nil
	})
	return data, hit, err
}

// Set stores a value. A zero ttl stores it without expiry.
func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return RetryWithBackoff(ctx, func() error {
		return classify(c.client.Set(ctx, key, data, ttl).Err())
	})
}

// Delete removes a value.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return classify(c.client.Del(ctx, key).Err())
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)

// ErrNetwork marks a dropped connection or timeout talking to Redis.
var ErrNetwork = errors.New("network error")

// classify marks network errors as retryable. Server replies such as
// WRONGTYPE are returned unchanged.
func classify(err error) error {
	var netErr net.Error
	if err == nil || !errors.As(err, &netErr) {
		return err
	}
	return Retryable(errors.Join(ErrNetwork, err))
}

type retryableError struct{ error }

func (e retryableError) Unwrap() error { return e.error }

// Retryable marks err as worth another attempt by [RetryWithBackoff].
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err}
}

// IsRetryable reports whether err was marked with [Retryable].
func IsRetryable(err error) bool {
	return errors.As(err, new(retryableError))
}

const retryAttempts = 3

// retryDelay is the wait before the second attempt; it doubles after that.
var retryDelay = 100 * time.Millisecond

// RetryWithBackoff calls fn until it succeeds, returns an error not marked
// [Retryable], or has been tried three times.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	err := fn()
	for attempt, delay := 1, retryDelay; attempt < retryAttempts && IsRetryable(err); attempt, delay = attempt+1, delay*2 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		err = fn()
	}
	return err
}
