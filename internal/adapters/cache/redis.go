package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/codequest/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

// Redis stores one JSON snapshot per category under a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ Leaderboard = (*Redis)(nil)

// snapshotEntry is the cached wire form of a ledger row.
type snapshotEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Category    string    `json:"category"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
	Seq         int64     `json:"seq"`
}

// NewRedis connects to addr and pings it.
func NewRedis(ctx context.Context, addr, password string, db int, opts ...Option) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connect to redis: %w", ErrUnavailable, err)
	}
	return newRedis(client, opts...), nil
}

func newRedis(client *redis.Client, opts ...Option) *Redis {
	r := &Redis{client: client, ttl: defaultTTL, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get implements Leaderboard.
func (r *Redis) Get(ctx context.Context, category string) ([]model.ScoreEntry, bool, error) {
	raw, err := r.client.Get(ctx, r.key(category)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get: %w", ErrUnavailable, err)
	}
	entries, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// Set implements Leaderboard.
func (r *Redis) Set(ctx context.Context, category string, entries []model.ScoreEntry) error {
	raw, err := encode(entries)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(category), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %w", ErrUnavailable, err)
	}
	return nil
}

// Invalidate implements Leaderboard.
func (r *Redis) Invalidate(ctx context.Context, category string) error {
	if err := r.client.Del(ctx, r.key(category)).Err(); err != nil {
		return fmt.Errorf("%w: del: %w", ErrUnavailable, err)
	}
	return nil
}

// Close implements Leaderboard.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(category string) string {
	return r.prefix + category
}

func encode(entries []model.ScoreEntry) ([]byte, error) {
	out := make([]snapshotEntry, len(entries))
	for i, e := range entries {
		out[i] = snapshotEntry{
			ID:          e.ID,
			UserID:      e.UserID,
			Username:    e.Username,
			Category:    e.Category,
			Score:       e.Score,
			SubmittedAt: e.SubmittedAt,
			Seq:         e.Seq,
		}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) ([]model.ScoreEntry, error) {
	var in []snapshotEntry
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	out := make([]model.ScoreEntry, len(in))
	for i, e := range in {
		out[i] = model.ScoreEntry{
			ID:          e.ID,
			UserID:      e.UserID,
			Username:    e.Username,
			Category:    e.Category,
			Score:       e.Score,
			SubmittedAt: e.SubmittedAt,
			Seq:         e.Seq,
		}
	}
	return out, nil
}
