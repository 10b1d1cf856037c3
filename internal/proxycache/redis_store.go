package proxycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "proxy:"

// RedisStore keeps proxy frames in Redis so several editor processes
// (or restarts) share decoded frames.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

// NewRedisStore returns a Store over client. ttl <= 0 stores without expiry.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: defaultKeyPrefix}
}

// ConnectRedis opens a client and checks it with PING.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) key(sourceID string, frame int) string {
	return s.prefix + sourceID + ":" + strconv.Itoa(frame)
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, sourceID string, frame int) (*Image, error) {
	data, err := s.client.Get(ctx, s.key(sourceID, frame)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var img Image
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("decode cached frame %s:%d: %w", sourceID, frame, err)
	}
	return &img, nil
}

// Put implements Store.Put.
func (s *RedisStore) Put(ctx context.Context, img *Image) error {
	data, err := json.Marshal(img)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(img.SourceID, img.Frame), data, s.ttl).Err()
}
