package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"multiblog-api/models"
)

// tombstone marks a key invalidated by a write. It parses as neither a view
// nor JSON, and SetView's NX write cannot replace it until it expires.
const tombstone = "-"

// DefaultTombstoneTTL must outlast a store read that started before the
// invalidating write, otherwise that read may repopulate the key.
const DefaultTombstoneTTL = 10 * time.Second

// RedisCache stores the post+comments view as one JSON document so a cached
// read can never pair a new counter with an old comment list.
type RedisCache struct {
	Cli          *redis.Client
	TTL          time.Duration
	TombstoneTTL time.Duration
}

func New(addr string, db int, ttlSeconds int) *RedisCache {
	return &RedisCache{
		Cli:          redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		TTL:          time.Duration(ttlSeconds) * time.Second,
		TombstoneTTL: DefaultTombstoneTTL,
	}
}

func Key(postID int64) string { return "post:" + strconv.FormatInt(postID, 10) }

// GetView reports ok=false on a miss; err is only set for real failures.
// A tombstoned key is a miss.
func (r *RedisCache) GetView(ctx context.Context, postID int64) (models.PostView, bool, error) {
	val, err := r.Cli.Get(ctx, Key(postID)).Result()
	if errors.Is(err, redis.Nil) || val == tombstone {
		return models.PostView{}, false, nil
	}
	if err != nil {
		return models.PostView{}, false, err
	}
	var v models.PostView
	if err := json.Unmarshal([]byte(val), &v); err != nil {
		// drop the unreadable entry, next read repopulates it
		_ = r.Cli.Del(ctx, Key(postID)).Err()
		return models.PostView{}, false, nil
	}
	return v, true, nil
}

// SetView only fills an empty key. A view read before a concurrent write
// loses to that write's tombstone.
func (r *RedisCache) SetView(ctx context.Context, v models.PostView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Cli.SetNX(ctx, Key(v.Post.ID), b, r.TTL).Err()
}

// Invalidate replaces the entry with a short-lived tombstone.
func (r *RedisCache) Invalidate(ctx context.Context, postID int64) error {
	return r.Cli.Set(ctx, Key(postID), tombstone, r.TombstoneTTL).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.Cli.Ping(ctx).Err()
}

func (r *RedisCache) Close() error { return r.Cli.Close() }
