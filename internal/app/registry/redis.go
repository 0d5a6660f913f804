package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldInstance    = "instance"
	fieldConn        = "conn"
	fieldStatus      = "status"
	fieldConnectedAt = "connected_at"
)

// deleteOwnedScript deletes KEYS[1] only if its conn field equals ARGV[1].
var deleteOwnedScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'conn') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// setStatusScript sets the status field of KEYS[1] to ARGV[2] only if its conn field equals ARGV[1].
var setStatusScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'conn') == ARGV[1] then
	redis.call('HSET', KEYS[1], 'status', ARGV[2])
	return 1
end
return 0
`)

// Redis is a Registry shared across instances. Each entry is a hash at <prefix>:<pool>:<userId>.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Registry = (*Redis)(nil)

// NewRedis constructs a Redis registry whose keys start with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(pool Pool, userID int64) string {
	return fmt.Sprintf("%s:%s:%d", r.prefix, pool, userID)
}

func (r *Redis) Set(ctx context.Context, pool Pool, userID int64, entry Entry) error {
	key := r.key(pool, userID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldInstance, entry.InstanceID,
			fieldConn, entry.ConnID,
			fieldStatus, string(entry.Status),
			fieldConnectedAt, entry.ConnectedAt.UnixMilli(),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("registry set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, pool Pool, userID int64) (*Entry, error) {
	key := r.key(pool, userID)

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("registry get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	entry := &Entry{
		InstanceID: fields[fieldInstance],
		ConnID:     fields[fieldConn],
		Status:     Status(fields[fieldStatus]),
	}
	if ms, err := strconv.ParseInt(fields[fieldConnectedAt], 10, 64); err == nil {
		entry.ConnectedAt = time.UnixMilli(ms).UTC()
	}
	return entry, nil
}

func (r *Redis) Delete(ctx context.Context, pool Pool, userID int64) error {
	key := r.key(pool, userID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("registry delete %s: %w", key, err)
	}
	return nil
}

func (r *Redis) DeleteOwned(ctx context.Context, pool Pool, userID int64, connID string) (bool, error) {
	key := r.key(pool, userID)
	n, err := deleteOwnedScript.Run(ctx, r.client, []string{key}, connID).Int()
	if err != nil {
		return false, fmt.Errorf("registry delete owned %s: %w", key, err)
	}
	return n > 0, nil
}

func (r *Redis) SetStatus(ctx context.Context, pool Pool, userID int64, connID string, status Status) (bool, error) {
	key := r.key(pool, userID)
	n, err := setStatusScript.Run(ctx, r.client, []string{key}, connID, string(status)).Int()
	if err != nil {
		return false, fmt.Errorf("registry set status %s: %w", key, err)
	}
	return n > 0, nil
}
