package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/pgn-typist/internal/domain"
)

const (
	keyPrefix  = "typist:session:"
	keyIndex   = "typist:sessions"
	DefaultTTL = 7 * 24 * time.Hour
)

// Redis stores each session as a JSON value with a TTL and keeps a sorted
// index of ids by update time.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects to redisURL (redis:// or rediss://) and pings it.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("REDIS_URL required for session store")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisClient(rdb, ttl), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

func sessionKey(id string) string { return keyPrefix + strings.TrimSpace(id) }

func (r *Redis) Load(ctx context.Context, id string) (*domain.SessionRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyID
	}
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &rec, nil
}

func (r *Redis) Save(ctx context.Context, rec *domain.SessionRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if strings.TrimSpace(rec.ID) == "" {
		return ErrEmptyID
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.ID, err)
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(rec.ID), raw, r.ttl)
	pipe.ZAdd(ctx, keyIndex, redis.Z{Score: float64(updated.UnixMilli()), Member: rec.ID})
	pipe.Expire(ctx, keyIndex, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.ZRem(ctx, keyIndex, strings.TrimSpace(id))
	_, err := pipe.Exec(ctx)
	return err
}

// Recent returns indexed ids newest first, skipping ids whose value expired.
func (r *Redis) Recent(ctx context.Context, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := r.rdb.ZRevRange(ctx, keyIndex, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis session index: %w", err)
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := r.rdb.Exists(ctx, sessionKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			_ = r.rdb.ZRem(ctx, keyIndex, id).Err()
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// ParseRedisURL converts a redis:// or rediss:// URL into client options.
// rediss enables TLS; user info carries the ACL username and password.
func ParseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}
