package decl

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries caps the number of cached file indexes.
const DefaultMaxEntries = 4096

// Cache holds file indexes keyed by path. Entries live until Invalidate is
// called for their path or they are evicted as least recently used. Nothing
// detects on-disk changes: a caller that misses an invalidation keeps getting
// the stale index.
type Cache struct {
	provider Provider
	group    singleflight.Group

	mu       sync.Mutex
	entries  *lru.Cache[string, *FileIndex]
	gens     map[string]uint64 // path -> invalidations seen by running parses
	inflight map[string]int    // path -> running provider calls
	epoch    uint64            // bumped by Purge
}

// NewCache returns a cache filled on demand by provider.
func NewCache(provider Provider, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[string, *FileIndex](maxEntries)
	if err != nil {
		// lru.New only rejects non-positive sizes.
		panic(err)
	}
	return &Cache{
		provider: provider,
		entries:  entries,
		gens:     make(map[string]uint64),
		inflight: make(map[string]int),
	}
}

// Get returns the index for path, calling the provider on a miss. Concurrent
// misses for one path share a single provider call; a miss after Invalidate
// starts a fresh one. The shared call is not cancelled by any single caller:
// a caller whose ctx ends stops waiting and gets ctx.Err(). Provider failures
// are returned as *ParseError and are not cached.
func (c *Cache) Get(ctx context.Context, path string) (*FileIndex, error) {
	c.mu.Lock()
	if idx, ok := c.entries.Get(path); ok {
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(path, func() (any, error) {
		return c.fill(context.WithoutCancel(ctx), path)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			log.Debug().Err(res.Err).Str("file", path).Bool("shared", res.Shared).Msg("decl: index unavailable")
			return nil, res.Err
		}
		return res.Val.(*FileIndex), nil
	}
}

// fill runs the provider for path and caches the result unless path was
// invalidated or the cache purged while it ran.
func (c *Cache) fill(ctx context.Context, path string) (*FileIndex, error) {
	c.mu.Lock()
	if idx, ok := c.entries.Get(path); ok {
		c.mu.Unlock()
		return idx, nil
	}
	gen, epoch := c.gens[path], c.epoch
	c.inflight[path]++
	c.mu.Unlock()

	idx, err := c.provider.Declarations(ctx, path)
	if err == nil && idx == nil {
		idx = NewFileIndex(path, "", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.gens[path] == gen && c.epoch == epoch
	if c.inflight[path]--; c.inflight[path] <= 0 {
		delete(c.inflight, path)
		delete(c.gens, path)
	}
	if err != nil {
		return nil, parseErr(path, err)
	}
	if current {
		c.entries.Add(path, idx)
	} else {
		log.Debug().Str("file", path).Msg("decl: invalidated while parsing, not cached")
	}
	return idx, nil
}

// Invalidate drops the index for path. A provider call already running for
// path still answers the callers that joined it, but does not populate the
// cache, and later callers start a new call.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(path)
	if c.inflight[path] > 0 {
		c.gens[path]++
		c.group.Forget(path)
	}
}

// Purge drops every cached index. Running provider calls stop populating the
// cache.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	for path := range c.inflight {
		c.group.Forget(path)
	}
	c.epoch++
}

// Len reports the number of cached indexes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
