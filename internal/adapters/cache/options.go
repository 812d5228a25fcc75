package cache

import "time"

const (
	defaultTTL       = 5 * time.Second
	defaultKeyPrefix = "codequest:leaderboard:"
)

// Option applies a configuration option to the Redis cache.
type Option func(*Redis)

// WithTTL bounds how stale a snapshot may get.
func WithTTL(ttl time.Duration) Option {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces keys, e.g. per environment.
func WithKeyPrefix(prefix string) Option {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}
