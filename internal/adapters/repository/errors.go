package repository

import "errors"

// Sentinel kinds for store errors. Backend I/O failures wrap
// model.ErrStorageUnavailable instead.
var (
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrClosed       = errors.New("store closed")
)
