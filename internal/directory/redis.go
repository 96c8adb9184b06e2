package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ragdesk/pkg/domain"
)

const snapshotTTL = 30 * 24 * time.Hour

// RedisDirectory stores ownership in Redis: a sorted set of session ids
// per user (scored by record time, so listing preserves creation order)
// plus a JSON snapshot per session.
type RedisDirectory struct {
	client *redis.Client
}

// NewRedisDirectory builds a directory on an existing Redis client.
func NewRedisDirectory(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client}
}

// Record upserts ownership and the cached snapshot.
func (d *RedisDirectory) Record(ctx context.Context, userID string, sess domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return &Error{Op: "encode snapshot", Err: err}
	}
	pipe := d.client.TxPipeline()
	pipe.ZAddNX(ctx, userKey(userID), redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: sess.ID,
	})
	pipe.Set(ctx, snapshotKey(sess.ID), raw, snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return &Error{Op: "record session", Err: err}
	}
	return nil
}

// List returns the user's session ids in record order.
func (d *RedisDirectory) List(ctx context.Context, userID string) ([]string, error) {
	ids, err := d.client.ZRange(ctx, userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, &Error{Op: "list sessions", Err: err}
	}
	return ids, nil
}

// Remove drops ownership and the snapshot.
func (d *RedisDirectory) Remove(ctx context.Context, userID, sessionID string) error {
	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, userKey(userID), sessionID)
	pipe.Del(ctx, snapshotKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return &Error{Op: "remove session", Err: err}
	}
	return nil
}

// Snapshot returns the cached record for a session when present.
func (d *RedisDirectory) Snapshot(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	raw, err := d.client.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, &Error{Op: "load snapshot", Err: err}
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.Session{}, false, &Error{Op: "decode snapshot", Err: err}
	}
	return sess, true, nil
}

func userKey(userID string) string {
	return fmt.Sprintf("ragdesk:dir:user:%s", userID)
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("ragdesk:dir:session:%s", sessionID)
}
