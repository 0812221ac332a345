package synthesis

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vanguardlabs/frontdesk/internal/session"
)

// Metrics is the subset of instrumentation the cache reports into.
type Metrics interface {
	ObserveSynthesis(outcome string)
}

type asset struct {
	storageKey string
	createdAt  time.Time
	lastUsed   time.Time
}

// Cache is the audio synthesis cache. Synthesis is keyed globally by content
// fingerprint, not by call, because the same prompt text and voice recur
// across many calls. Concurrent requests for one in-flight key share a single
// synthesis via singleflight.
type Cache struct {
	store       *Store
	synth       Synthesizer
	baseAddress string
	ttl         time.Duration
	maxAssets   int
	metrics     Metrics

	group singleflight.Group

	mu    sync.Mutex
	index map[string]*asset
}

type CacheConfig struct {
	BaseAddress string
	TTL         time.Duration
	MaxAssets   int
}

func NewCache(store *Store, synth Synthesizer, cfg CacheConfig, metrics Metrics) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.MaxAssets <= 0 {
		cfg.MaxAssets = 512
	}
	return &Cache{
		store:       store,
		synth:       synth,
		baseAddress: cfg.BaseAddress,
		ttl:         cfg.TTL,
		maxAssets:   cfg.MaxAssets,
		metrics:     metrics,
		index:       make(map[string]*asset),
	}
}

// AudioURL returns the fetchable URL for the spoken form of text, synthesizing
// and caching on first use. On synthesis failure it returns a fallback result
// instead of an error: the line is still spoken via the platform's built-in
// speech.
func (c *Cache) AudioURL(ctx context.Context, text, voiceID string, lang session.Language) Result {
	key := ContentKey(text, voiceID, lang)

	if url, ok := c.cachedURL(key); ok {
		c.observe("hit")
		return Result{URL: url}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: a racing caller may have just populated it.
		if url, ok := c.cachedURL(key); ok {
			c.observe("hit")
			return url, nil
		}
		data, err := c.synth.Synthesize(ctx, text, voiceID)
		if err != nil {
			return nil, err
		}
		storageKey := StorageKey(key)
		if err := c.store.Put(storageKey, data); err != nil {
			return nil, err
		}
		c.admit(key, storageKey)
		// Recorded inside the flight: one synthesis, one miss, however many
		// callers shared it.
		c.observe("miss")
		return AssetURL(c.baseAddress, storageKey), nil
	})
	if err != nil {
		log.Printf("synthesis failed for key %s: %v", key, err)
		c.observe("fallback")
		return Result{Fallback: true}
	}
	return Result{URL: v.(string)}
}

func (c *Cache) cachedURL(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.index[key]
	if !ok {
		return "", false
	}
	if time.Since(a.createdAt) >= c.ttl || !c.store.Has(a.storageKey) {
		delete(c.index, key)
		return "", false
	}
	a.lastUsed = time.Now().UTC()
	return AssetURL(c.baseAddress, a.storageKey), true
}

func (c *Cache) admit(key, storageKey string) {
	now := time.Now().UTC()
	c.mu.Lock()
	c.index[key] = &asset{storageKey: storageKey, createdAt: now, lastUsed: now}
	c.mu.Unlock()
}

// StartJanitor evicts expired assets and trims the cache to its size bound,
// least recently used first. Eviction runs off the webhook hot path.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.evictStale()
			}
		}
	}()
}

func (c *Cache) evictStale() {
	now := time.Now().UTC()

	c.mu.Lock()
	var victims []string
	for key, a := range c.index {
		if now.Sub(a.createdAt) >= c.ttl {
			victims = append(victims, a.storageKey)
			delete(c.index, key)
		}
	}
	if len(c.index) > c.maxAssets {
		type aged struct {
			key string
			a   *asset
		}
		all := make([]aged, 0, len(c.index))
		for key, a := range c.index {
			all = append(all, aged{key, a})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].a.lastUsed.Before(all[j].a.lastUsed) })
		for _, it := range all[:len(all)-c.maxAssets] {
			victims = append(victims, it.a.storageKey)
			delete(c.index, it.key)
		}
	}
	c.mu.Unlock()

	for _, storageKey := range victims {
		if err := c.store.Remove(storageKey); err != nil {
			log.Printf("evict audio asset %s: %v", storageKey, err)
		}
	}
}

// Len reports the number of indexed assets.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *Cache) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveSynthesis(outcome)
	}
}
