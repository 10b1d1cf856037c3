package proxycache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"nle-playback/internal/platform/logger"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisStore_GetPut(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	img, err := store.Get(ctx, "m1", 4)
	if err != nil || img != nil {
		t.Fatalf("miss should be (nil, nil), got %v %v", img, err)
	}

	if err := store.Put(ctx, &Image{SourceID: "m1", Frame: 4, Width: 2, Height: 1, Data: []byte{1, 2}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, "m1", 4)
	if err != nil || got == nil || got.Width != 2 || len(got.Data) != 2 {
		t.Errorf("Get after Put = %+v, %v", got, err)
	}
	if ttl := mr.TTL("proxy:m1:4"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}
}

func TestCache_usesRedisStoreBeforeDecoding(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisStore(client, 0)
	_ = store.Put(context.Background(), &Image{SourceID: "m1", Frame: 9, Data: []byte{9}})

	dec := &countingDecoder{}
	c, err := New(dec, Options{Store: store, Logger: logger.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	img, err := c.FetchFrame(context.Background(), "m1", 9, 30)
	if err != nil || img == nil || img.Data[0] != 9 {
		t.Fatalf("FetchFrame = %+v, %v", img, err)
	}
	if dec.calls.Load() != 0 {
		t.Error("frame present in redis should not be decoded")
	}

	// decoded frames are written back
	if _, err := c.FetchFrame(context.Background(), "m1", 10, 30); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Get(context.Background(), "m1", 10); got == nil {
		t.Error("decoded frame should be stored in redis")
	}
}

func TestCache_redisDownFallsBackToDecoder(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	dec := &countingDecoder{}
	c, _ := New(dec, Options{Store: NewRedisStore(client, 0), Logger: logger.Discard(), FetchTimeout: time.Second})
	img, err := c.FetchFrame(context.Background(), "m1", 1, 30)
	if err != nil || img == nil {
		t.Fatalf("redis outage should degrade to decoding, got %v %v", img, err)
	}
}
