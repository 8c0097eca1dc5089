// Package cache provides a bounded in-memory cache with age based expiry
// and batch eviction, used to avoid repeated extraction calls for chunks
// whose text has already been processed.
package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/stratum-kg/stratum/internal/util"
)

const (
	DefaultMaxEntries    = 1000
	DefaultMaxAge        = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute

	// evictionFraction is the share of entries removed in one eviction
	// batch when the cache is full.
	evictionFraction = 0.3
)

// Config controls cache capacity and expiry. The zero value gets defaults.
type Config struct {
	MaxEntries    int
	MaxAge        time.Duration
	SweepInterval time.Duration
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Metrics is a point-in-time snapshot of cache activity.
type Metrics struct {
	Size           int     `json:"size"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Evictions      int64   `json:"evictions"`
	Expirations    int64   `json:"expirations"`
	HitRate        float64 `json:"hitRate"`
	TotalSizeBytes int64   `json:"totalSizeBytes"`
}

type entry[T any] struct {
	value      T
	insertedAt time.Time
	hitCount   int64
	approxSize int64
}

// approxSizeOf estimates the memory held by a value through its JSON
// encoding. Unencodable values count as zero.
func approxSizeOf(v any) int64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(b))
}

// Cache is a thread safe generic cache. Expired entries are dropped lazily
// on access and by the background sweeper between Start and Stop. When the
// cache is full, Set evicts the least used entries in one batch, oldest
// first among equals.
type Cache[T any] struct {
	cfg     Config
	mu      sync.Mutex
	entries map[string]*entry[T]

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
	totalBytes  int64

	stop chan struct{}
	done chan struct{}
}

func New[T any](cfg Config) *Cache[T] {
	return &Cache[T]{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry[T]),
	}
}

// Key derives a stable cache key from chunk text, so identical text shares
// one entry regardless of which document it came from.
func Key(text string) string {
	return util.ContentHash(text)
}

// Get returns the cached value and whether it was present and fresh. An
// expired entry counts as a miss and is removed.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero T
		return zero, false
	}
	if c.cfg.Now().Sub(e.insertedAt) > c.cfg.MaxAge {
		c.drop(key, e)
		c.expirations++
		c.misses++
		var zero T
		return zero, false
	}

	e.hitCount++
	c.hits++
	return e.value, true
}

// Set stores a value. Overwriting an existing key resets its age and hit
// count. At capacity a batch of entries is evicted first.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, exists := c.entries[key]; exists {
		c.totalBytes -= prev.approxSize
	} else if len(c.entries) >= c.cfg.MaxEntries {
		c.evictBatch()
	}
	size := approxSizeOf(value)
	c.entries[key] = &entry[T]{value: value, insertedAt: c.cfg.Now(), approxSize: size}
	c.totalBytes += size
}

func (c *Cache[T]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && c.cfg.Now().Sub(e.insertedAt) <= c.cfg.MaxAge
}

func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.drop(key, e)
	}
}

func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[T])
	c.totalBytes = 0
}

// drop removes an entry and its size contribution. Caller holds the lock.
func (c *Cache[T]) drop(key string, e *entry[T]) {
	delete(c.entries, key)
	c.totalBytes -= e.approxSize
}

func (c *Cache[T]) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		Size:           len(c.entries),
		Hits:           c.hits,
		Misses:         c.misses,
		Evictions:      c.evictions,
		Expirations:    c.expirations,
		TotalSizeBytes: c.totalBytes,
	}
	if total := c.hits + c.misses; total > 0 {
		m.HitRate = float64(c.hits) / float64(total)
	}
	return m
}

// Start launches the background sweeper. Calling Start twice without Stop
// is a no-op.
func (c *Cache[T]) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.sweep(c.stop, c.done)
}

// Stop terminates the sweeper and waits for it to exit.
func (c *Cache[T]) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (c *Cache[T]) sweep(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache[T]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.cfg.Now()
	for key, e := range c.entries {
		if now.Sub(e.insertedAt) > c.cfg.MaxAge {
			c.drop(key, e)
			c.expirations++
		}
	}
}

// evictBatch removes the least valuable entries, ranked by hit count and
// then by age. Caller holds the lock.
func (c *Cache[T]) evictBatch() {
	n := int(float64(len(c.entries)) * evictionFraction)
	if n < 1 {
		n = 1
	}

	type ranked struct {
		key string
		e   *entry[T]
	}
	victims := make([]ranked, 0, len(c.entries))
	for key, e := range c.entries {
		victims = append(victims, ranked{key, e})
	}
	less := func(a, b ranked) bool {
		if a.e.hitCount != b.e.hitCount {
			return a.e.hitCount < b.e.hitCount
		}
		return a.e.insertedAt.Before(b.e.insertedAt)
	}
	// Partial selection, n is small relative to the map.
	for i := 0; i < n; i++ {
		min := i
		for j := i + 1; j < len(victims); j++ {
			if less(victims[j], victims[min]) {
				min = j
			}
		}
		victims[i], victims[min] = victims[min], victims[i]
		c.drop(victims[i].key, victims[i].e)
		c.evictions++
	}
}
