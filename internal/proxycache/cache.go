// Package proxycache is the frame-indexed store of low-resolution stills
// used for scrubbing and proxy playback. Lookups never block on decoding:
// PeekCached and NearestCached are synchronous, fetches run on their own
// goroutine and concurrent fetches of one frame share a single decode.
package proxycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"nle-playback/internal/media"
	"nle-playback/internal/platform/metrics"
)

const (
	DefaultCapacity     = 2048
	DefaultFetchTimeout = 5 * time.Second
)

// ErrNoDecoder is returned by fetches on a cache built without a Decoder.
var ErrNoDecoder = errors.New("proxy cache has no decoder")

// Image is one decoded proxy frame.
type Image struct {
	SourceID string `json:"sourceId"`
	Frame    int    `json:"frame"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Data     []byte `json:"data"`
}

// Decoder produces proxy frames. Decoding is outside the playback core.
type Decoder interface {
	DecodeFrame(ctx context.Context, sourceID string, frame int, fps float64) (*Image, error)
}

// Store is an optional second-level frame store shared across processes.
// Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, sourceID string, frame int) (*Image, error)
	Put(ctx context.Context, img *Image) error
}

// Request identifies one asynchronous fetch. Epoch is the requester's
// generation counter at the time of the request.
type Request struct {
	SourceID string
	Frame    int
	FPS      float64
	Epoch    uint64
}

// Options configures a Cache. Zero values pick defaults.
type Options struct {
	Capacity     int
	FetchTimeout time.Duration
	Store        Store
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

type frameKey struct {
	source string
	frame  int
}

// Cache is safe for concurrent use.
type Cache struct {
	decoder Decoder
	store   Store
	log     *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu    sync.Mutex
	lru   *simplelru.LRU[frameKey, *Image]
	index map[string]map[int]struct{} // cached frames per source, for nearest lookups

	group singleflight.Group
}

// New builds a cache in front of decoder.
func New(decoder Decoder, opts Options) (*Cache, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Cache{
		decoder: decoder,
		store:   opts.Store,
		log:     opts.Logger,
		metrics: opts.Metrics,
		timeout: opts.FetchTimeout,
		index:   make(map[string]map[int]struct{}),
	}
	l, err := simplelru.NewLRU[frameKey, *Image](opts.Capacity, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("proxy cache: %w", err)
	}
	c.lru = l
	return c, nil
}

// onEvict runs inside lru calls, which always happen with c.mu held.
func (c *Cache) onEvict(k frameKey, _ *Image) {
	if frames, ok := c.index[k.source]; ok {
		delete(frames, k.frame)
		if len(frames) == 0 {
			delete(c.index, k.source)
		}
	}
}

// PeekCached returns the cached frame, if any. No I/O.
func (c *Cache) PeekCached(sourceID string, frame int) (*Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(frameKey{sourceID, frame})
}

// NearestCached returns the closest cached frame of sourceID within
// maxDistance frames, preferring the earlier frame on ties.
func (c *Cache) NearestCached(sourceID string, frame, maxDistance int) (*Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := c.index[sourceID]
	if len(frames) == 0 {
		return nil, false
	}
	for d := 0; d <= maxDistance; d++ {
		for _, f := range [2]int{frame - d, frame + d} {
			if _, ok := frames[f]; ok {
				if img, ok := c.lru.Get(frameKey{sourceID, f}); ok {
					return img, true
				}
			}
		}
	}
	return nil, false
}

// Len returns the number of cached frames.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) put(img *Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(frameKey{img.SourceID, img.Frame}, img)
	frames, ok := c.index[img.SourceID]
	if !ok {
		frames = make(map[int]struct{})
		c.index[img.SourceID] = frames
	}
	frames[img.Frame] = struct{}{}
}

// Fetch resolves the frame at source time t, decoding and caching it if needed.
func (c *Cache) Fetch(ctx context.Context, sourceID string, t, fps float64) (*Image, error) {
	return c.FetchFrame(ctx, sourceID, media.FrameAt(t, fps), fps)
}

// FetchFrame resolves one frame. Concurrent calls for the same frame share
// one decode; a caller giving up (ctx done) does not cancel it for the others.
func (c *Cache) FetchFrame(ctx context.Context, sourceID string, frame int, fps float64) (*Image, error) {
	if img, ok := c.PeekCached(sourceID, frame); ok {
		return img, nil
	}
	if c.decoder == nil && c.store == nil {
		return nil, ErrNoDecoder
	}

	key := sourceID + ":" + strconv.Itoa(frame)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		dctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		return c.load(dctx, sourceID, frame, fps)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Image), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) load(ctx context.Context, sourceID string, frame int, fps float64) (*Image, error) {
	if c.store != nil {
		img, err := c.store.Get(ctx, sourceID, frame)
		if err != nil {
			c.log.Warn("proxy store get failed",
				slog.String("source_id", sourceID),
				slog.Int("frame", frame),
				slog.String("error", err.Error()))
		} else if img != nil {
			c.put(img)
			return img, nil
		}
	}
	if c.decoder == nil {
		return nil, ErrNoDecoder
	}

	img, err := c.decoder.DecodeFrame(ctx, sourceID, frame, fps)
	if err != nil {
		c.metrics.IncProxyFetchErrors()
		c.log.Warn("proxy frame decode failed",
			slog.String("source_id", sourceID),
			slog.Int("frame", frame),
			slog.String("error", err.Error()))
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("decoder returned no image for %s:%d", sourceID, frame)
	}
	img.SourceID, img.Frame = sourceID, frame
	c.put(img)

	if c.store != nil {
		if err := c.store.Put(ctx, img); err != nil {
			c.log.Warn("proxy store put failed",
				slog.String("source_id", sourceID),
				slog.Int("frame", frame),
				slog.String("error", err.Error()))
		}
	}
	return img, nil
}

// FetchAsync fetches req on a new goroutine. When it completes, apply is
// called only if current() still equals req.Epoch; stale or failed results
// are dropped. Cancelling ctx abandons the wait, not the shared decode.
func (c *Cache) FetchAsync(ctx context.Context, req Request, current func() uint64, apply func(Request, *Image)) {
	go func() {
		img, err := c.FetchFrame(ctx, req.SourceID, req.Frame, req.FPS)
		if err != nil || img == nil {
			return
		}
		if current() != req.Epoch {
			c.log.Debug("dropping stale proxy frame",
				slog.String("source_id", req.SourceID),
				slog.Int("frame", req.Frame),
				slog.Uint64("epoch", req.Epoch))
			return
		}
		apply(req, img)
	}()
}
