// Package debounce suppresses repeat pipeline decisions for a key within a
// configured window, independently for the tracklet, stream and stream-group
// scopes.
package debounce

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"autoenroll/internal/model"
)

// Cache maps a key to the instant it was last blocked. Entries carry a hard
// absolute expiration regardless of the caller's window so the cache cannot
// grow without bound when a key is never revisited; a configured window
// longer than the ceiling is effectively capped by it.
type Cache struct {
	mu    sync.Mutex
	items *expirable.LRU[string, time.Time]
	now   func() time.Time
}

func NewCache(hardExpiration time.Duration) *Cache {
	if hardExpiration <= 0 {
		hardExpiration = 10 * time.Second
	}
	return &Cache{
		items: expirable.NewLRU[string, time.Time](0, nil, hardExpiration),
		now:   time.Now,
	}
}

// Block stamps key with the current time.
func (c *Cache) Block(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, c.now().UTC())
}

// IsBlocked reports whether key was blocked less than window ago. It never
// stamps the key itself.
func (c *Cache) IsBlocked(key string, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.items.Peek(key)
	if !ok {
		return false
	}
	return c.now().UTC().Sub(ts) < window
}

// Debouncer applies the three debounce scopes of a stream configuration to a
// notification. The whole check-then-block sequence for one decision runs
// against a single cache so concurrent notifications racing on the same key
// observe a consistent order.
type Debouncer struct {
	cache  *Cache
	logger *slog.Logger
}

func NewDebouncer(cache *Cache, logger *slog.Logger) *Debouncer {
	return &Debouncer{cache: cache, logger: logger}
}

// IsBlocked reports whether any configured scope is still within its window.
func (d *Debouncer) IsBlocked(n *model.Notification, cfg *model.StreamConfiguration) bool {
	if w := duration(cfg.TrackletDebounce); w > 0 {
		if d.cache.IsBlocked(trackletKey(n.TrackletID), w) {
			d.log("tracklet blocked", "tracklet_id", n.TrackletID, "window", w)
			return true
		}
	}
	if w := duration(cfg.StreamDebounce); w > 0 {
		if d.cache.IsBlocked(streamKey(n.StreamID), w) {
			d.log("stream blocked", "stream_id", n.StreamID, "window", w)
			return true
		}
	}
	if w := duration(cfg.GroupDebounce); w > 0 && cfg.StreamGroupID != "" {
		if d.cache.IsBlocked(groupKey(cfg.StreamGroupID), w) {
			d.log("stream group blocked", "stream_group_id", cfg.StreamGroupID, "window", w)
			return true
		}
	}
	return false
}

// Block stamps every scope that has a configured window.
func (d *Debouncer) Block(n *model.Notification, cfg *model.StreamConfiguration) {
	if duration(cfg.TrackletDebounce) > 0 {
		d.cache.Block(trackletKey(n.TrackletID))
	}
	if duration(cfg.StreamDebounce) > 0 {
		d.cache.Block(streamKey(n.StreamID))
	}
	if duration(cfg.GroupDebounce) > 0 && cfg.StreamGroupID != "" {
		d.cache.Block(groupKey(cfg.StreamGroupID))
	}
}

func (d *Debouncer) log(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

func duration(v *time.Duration) time.Duration {
	if v == nil {
		return 0
	}
	return *v
}

func trackletKey(id string) string { return "tracklet|" + id }
func streamKey(id string) string   { return "stream|" + id }
func groupKey(id string) string    { return "group|" + id }
