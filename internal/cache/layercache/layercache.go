// Package layercache keeps normalized layers in memory under a byte budget
// and a maximum entry age.
//
// Eviction is FIFO by insertion time, not access recency: layers are
// normally requested once per map view, so recency carries little signal.
package layercache

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/layer-ingest/internal/core/observability"
)

const (
	DefaultMaxBytes = 50 << 20
	DefaultMaxAge   = 30 * time.Minute
)

var (
	// ErrEntryTooLarge is returned by Put for values larger than the whole budget.
	ErrEntryTooLarge = errors.New("layercache: entry exceeds cache budget")
	// ErrSkipped is returned by PutWith when its guard refused the write. The
	// returned Entry still carries the serialized body.
	ErrSkipped = errors.New("layercache: write skipped by guard")
)

// eviction reasons, also used as metric labels
const (
	reasonSize     = "size"
	reasonExpired  = "expired"
	reasonReplaced = "replaced"
	reasonInvalid  = "invalidated"
	reasonCapacity = "capacity"
	reasonPurge    = "purge"
)

type Config struct {
	MaxBytes   int
	MaxAge     time.Duration
	MaxEntries int
	Now        func() time.Time // for tests
}

// Meta records how a layer was produced, so a hit reports the same facts
// as the miss that filled it.
type Meta struct {
	CRS         string
	Declared    string
	Reprojected bool
	FellBack    bool
	Dropped     int
}

// Entry is one cached layer. Value and Body are shared with the cache and
// must not be modified by callers.
type Entry struct {
	Key       string
	Value     *geojson.FeatureCollection
	Body      []byte
	Meta      Meta
	CreatedAt time.Time
	SizeBytes int
}

type PutOptions struct {
	Meta Meta
	// Guard runs under the cache lock right before the write; returning
	// false skips the write with ErrSkipped.
	Guard func() bool
}

type Cache struct {
	mu     sync.Mutex
	cfg    Config
	now    func() time.Time
	fifo   *simplelru.LRU[string, Entry]
	bytes  int
	reason string
}

func New(cfg Config) *Cache {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = math.MaxInt32
	}
	c := &Cache{cfg: cfg, now: cfg.Now}
	if c.now == nil {
		c.now = time.Now
	}
	// only Peek is used for reads, so list order stays insertion order
	fifo, err := simplelru.NewLRU[string, Entry](cfg.MaxEntries, c.onEvict)
	if err != nil {
		panic(fmt.Sprintf("layercache: %v", err))
	}
	c.fifo = fifo
	return c
}

// called with c.mu held
func (c *Cache) onEvict(_ string, e Entry) {
	c.bytes -= e.SizeBytes
	observability.IncCacheEviction(c.reason)
	observability.SetCacheBytes(c.bytes)
}

func (c *Cache) expired(e Entry) bool {
	return c.now().Sub(e.CreatedAt) > c.cfg.MaxAge
}

// Get returns the entry stored under key. Expired entries are evicted and
// reported as a miss.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.fifo.Peek(key)
	if !ok {
		observability.IncCacheMiss()
		return Entry{}, false
	}
	if c.expired(e) {
		c.reason = reasonExpired
		c.fifo.Remove(key)
		observability.IncCacheMiss()
		return Entry{}, false
	}
	observability.IncCacheHit()
	return e, true
}

// Put serializes value and stores it under key, evicting the oldest entries
// until it fits the byte budget.
func (c *Cache) Put(key string, value *geojson.FeatureCollection) (Entry, error) {
	return c.PutWith(key, value, PutOptions{})
}

// PutWith is Put with metadata and an optional guard. On ErrEntryTooLarge
// and ErrSkipped the returned Entry is not resident but its Body is set.
func (c *Cache) PutWith(key string, value *geojson.FeatureCollection, opts PutOptions) (Entry, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return Entry{}, fmt.Errorf("layercache: marshal %q: %w", key, err)
	}
	e := Entry{
		Key:       key,
		Value:     value,
		Body:      body,
		Meta:      opts.Meta,
		SizeBytes: len(body),
	}
	if len(body) > c.cfg.MaxBytes {
		return e, fmt.Errorf("%w: %d > %d bytes", ErrEntryTooLarge, len(body), c.cfg.MaxBytes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if opts.Guard != nil && !opts.Guard() {
		return e, ErrSkipped
	}

	if _, ok := c.fifo.Peek(key); ok {
		c.reason = reasonReplaced
		c.fifo.Remove(key)
	}
	c.pruneExpired()
	for c.bytes+len(body) > c.cfg.MaxBytes {
		c.reason = reasonSize
		if _, _, ok := c.fifo.RemoveOldest(); !ok {
			break
		}
	}

	e.CreatedAt = c.now()
	c.reason = reasonCapacity
	c.fifo.Add(key, e)
	c.bytes += e.SizeBytes
	observability.SetCacheBytes(c.bytes)
	return e, nil
}

// drops expired entries from the old end of the queue
func (c *Cache) pruneExpired() {
	for {
		_, e, ok := c.fifo.GetOldest()
		if !ok || !c.expired(e) {
			return
		}
		c.reason = reasonExpired
		c.fifo.RemoveOldest()
	}
}

// Invalidate removes key and reports whether it was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reason = reasonInvalid
	return c.fifo.Remove(key)
}

func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reason = reasonPurge
	c.fifo.Purge()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fifo.Len()
}

// SizeBytes is the total serialized size of resident entries.
func (c *Cache) SizeBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Keys returns resident keys, oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fifo.Keys()
}
