package proxycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nle-playback/internal/platform/logger"
)

type countingDecoder struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (d *countingDecoder) DecodeFrame(ctx context.Context, sourceID string, frame int, fps float64) (*Image, error) {
	d.calls.Add(1)
	if d.gate != nil {
		<-d.gate
	}
	if d.err != nil {
		return nil, d.err
	}
	return &Image{Width: 320, Height: 180, Data: []byte{byte(frame)}}, nil
}

func newTestCache(t *testing.T, dec Decoder, capacity int) *Cache {
	t.Helper()
	c, err := New(dec, Options{Capacity: capacity, Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCache_Fetch_thenPeek(t *testing.T) {
	dec := &countingDecoder{}
	c := newTestCache(t, dec, 16)

	if _, ok := c.PeekCached("m1", 60); ok {
		t.Fatal("empty cache should miss")
	}
	img, err := c.Fetch(context.Background(), "m1", 2.0, 30)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if img.Frame != 60 || img.SourceID != "m1" {
		t.Errorf("Fetch image = %+v, want m1:60", img)
	}
	got, ok := c.PeekCached("m1", 60)
	if !ok || got != img {
		t.Error("PeekCached should return the fetched image")
	}
	if _, err := c.FetchFrame(context.Background(), "m1", 60, 30); err != nil || dec.calls.Load() != 1 {
		t.Errorf("cached fetch decoded again: calls=%d err=%v", dec.calls.Load(), err)
	}
}

func TestCache_FetchFrame_collapsesConcurrentRequests(t *testing.T) {
	dec := &countingDecoder{gate: make(chan struct{})}
	c := newTestCache(t, dec, 16)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.FetchFrame(context.Background(), "m1", 7, 30); err != nil {
				t.Errorf("FetchFrame: %v", err)
			}
		}()
	}
	// let every goroutine join the in-flight call before releasing it
	time.Sleep(50 * time.Millisecond)
	close(dec.gate)
	wg.Wait()

	if n := dec.calls.Load(); n != 1 {
		t.Errorf("decoder calls = %d, want 1", n)
	}
}

func TestCache_NearestCached(t *testing.T) {
	c := newTestCache(t, &countingDecoder{}, 16)
	for _, f := range []int{10, 20} {
		if _, err := c.FetchFrame(context.Background(), "m1", f, 30); err != nil {
			t.Fatal(err)
		}
	}

	img, ok := c.NearestCached("m1", 13, 5)
	if !ok || img.Frame != 10 {
		t.Errorf("nearest to 13 = %v/%v, want 10", img, ok)
	}
	img, ok = c.NearestCached("m1", 15, 5)
	if !ok || img.Frame != 10 {
		t.Errorf("tie at 15 should prefer earlier frame, got %v", img)
	}
	if _, ok := c.NearestCached("m1", 30, 5); ok {
		t.Error("no frame within distance 5 of 30")
	}
	if _, ok := c.NearestCached("other", 10, 5); ok {
		t.Error("other source must not match")
	}
}

func TestCache_evictionUpdatesNearestIndex(t *testing.T) {
	c := newTestCache(t, &countingDecoder{}, 2)
	for _, f := range []int{1, 2, 3} {
		_, _ = c.FetchFrame(context.Background(), "m1", f, 30)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.NearestCached("m1", 1, 0); ok {
		t.Error("evicted frame 1 should not be found")
	}
}

func TestCache_FetchFrame_decoderError(t *testing.T) {
	c := newTestCache(t, &countingDecoder{err: errors.New("corrupt proxy")}, 4)
	img, err := c.FetchFrame(context.Background(), "m1", 3, 30)
	if err == nil || img != nil {
		t.Errorf("expected error and no image, got %v %v", img, err)
	}
	if c.Len() != 0 {
		t.Error("failed decode must not be cached")
	}
}

func TestCache_FetchAsync_dropsStaleEpoch(t *testing.T) {
	dec := &countingDecoder{gate: make(chan struct{})}
	c := newTestCache(t, dec, 4)

	var epoch atomic.Uint64
	epoch.Store(1)
	applied := make(chan *Image, 2)
	apply := func(_ Request, img *Image) { applied <- img }

	c.FetchAsync(context.Background(), Request{SourceID: "m1", Frame: 5, FPS: 30, Epoch: 1}, epoch.Load, apply)
	epoch.Store(2)
	close(dec.gate)

	select {
	case img := <-applied:
		t.Fatalf("stale result applied: %+v", img)
	case <-time.After(100 * time.Millisecond):
	}
	if _, ok := c.PeekCached("m1", 5); !ok {
		t.Error("stale result should still populate the cache")
	}

	c.FetchAsync(context.Background(), Request{SourceID: "m1", Frame: 5, FPS: 30, Epoch: 2}, epoch.Load, apply)
	select {
	case img := <-applied:
		if img.Frame != 5 {
			t.Errorf("applied frame = %d", img.Frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("current-epoch result was not applied")
	}
}
