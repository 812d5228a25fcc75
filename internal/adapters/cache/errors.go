package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrUnavailable = errors.New("leaderboard cache unavailable")
	ErrCorrupt     = errors.New("leaderboard cache entry corrupt")
)
