package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisClient "github.com/go-redis/redis/v8"
)

// RedisBackend mirrors sessions into Redis with a TTL, so result buttons
// keep working across a process restart.
type RedisBackend struct {
	client *redisClient.Client
	ttl    time.Duration
}

// NewRedisBackend connects to a managed Redis over TLS.
func NewRedisBackend(url, password string, ttl time.Duration) (*RedisBackend, error) {
	opt, err := redisClient.ParseURL(fmt.Sprintf("rediss://default:%s@%s", password, url))
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redisClient.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisBackend{client: client, ttl: ttl}, nil
}

func sessionKey(chatID int64) string {
	return fmt.Sprintf("session:%d", chatID)
}

func (r *RedisBackend) Save(ctx context.Context, chatID int64, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKey(chatID), data, r.ttl).Err()
}

func (r *RedisBackend) Load(ctx context.Context, chatID int64) (Session, bool, error) {
	data, err := r.client.Get(ctx, sessionKey(chatID)).Bytes()
	if err != nil {
		if err == redisClient.Nil {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *RedisBackend) Delete(ctx context.Context, chatID int64) error {
	return r.client.Del(ctx, sessionKey(chatID)).Err()
}

// Close releases the underlying connection pool.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
