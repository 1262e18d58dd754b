package toolexec

import (
	"encoding/json"
	"reflect"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultCacheTTL is how long a memoized result stays valid.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheMaxEntries bounds the entries kept per tool.
	DefaultCacheMaxEntries = 256
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// cacheBucket is one registration's LRU. gen identifies the registration
// that created it.
type cacheBucket struct {
	gen     uint64
	entries *lru.Cache[string, cacheEntry]
}

// ResultCache memoizes completed results per tool. Each registration gets
// its own LRU bucket, created by Init and discarded by Drop. Expired entries
// are removed lazily on lookup.
//
// Arguments must be JSON encodable to be cached. Arguments that are not
// (funcs, channels) or that encode ambiguously (byte slices, which JSON
// writes as base64 strings) bypass the cache.
type ResultCache struct {
	mu         sync.Mutex
	buckets    map[string]*cacheBucket
	nextGen    uint64
	ttl        time.Duration
	maxEntries int
	clock      Clock
}

// NewResultCache creates an empty cache. Zero values fall back to
// DefaultCacheTTL, DefaultCacheMaxEntries and SystemClock.
func NewResultCache(ttl time.Duration, maxEntries int, clock Clock) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &ResultCache{
		buckets:    make(map[string]*cacheBucket),
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
	}
}

// Init creates an empty bucket for name, replacing any existing one, and
// returns its generation. Stores must present that generation.
func (c *ResultCache) Init(name string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextGen++
	entries, err := lru.New[string, cacheEntry](c.maxEntries)
	if err != nil {
		// lru.New only errors on non-positive size which the constructor guards.
		delete(c.buckets, name)
		return c.nextGen
	}
	c.buckets[name] = &cacheBucket{gen: c.nextGen, entries: entries}
	return c.nextGen
}

// Drop discards name's bucket and all its entries.
func (c *ResultCache) Drop(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buckets, name)
}

// Clear empties name's bucket but keeps it usable.
func (c *ResultCache) Clear(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bucket, ok := c.buckets[name]; ok {
		bucket.entries.Purge()
	}
}

// Lookup returns the live entry for (name, args).
func (c *ResultCache) Lookup(name string, args map[string]any) (any, bool) {
	key, ok := CacheKey(name, args)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.buckets[name]
	if !ok {
		return nil, false
	}
	entry, ok := bucket.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		bucket.entries.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Store inserts or overwrites the entry for (name, args) in the bucket of
// generation gen. It is a no-op when name has no bucket or a bucket from a
// later registration, so results of an execution that outlived its
// registration are dropped.
func (c *ResultCache) Store(name string, gen uint64, args map[string]any, value any) {
	key, ok := CacheKey(name, args)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.buckets[name]
	if !ok || bucket.gen != gen {
		return
	}
	bucket.entries.Add(key, cacheEntry{
		value:     value,
		expiresAt: c.clock.Now().Add(c.ttl),
	})
}

// Len returns the number of entries held for name, expired ones included.
func (c *ResultCache) Len(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bucket, ok := c.buckets[name]; ok {
		return bucket.entries.Len()
	}
	return 0
}

// CacheKey derives the memoization key from the tool name and a canonical
// encoding of args. encoding/json writes map keys in sorted order at every
// nesting level, so structurally equal maps always produce the same key.
// ok is false when args cannot be keyed unambiguously.
func CacheKey(name string, args map[string]any) (key string, ok bool) {
	encoded, ok := canonicalArgs(args)
	if !ok {
		return "", false
	}
	return name + ":" + encoded, true
}

func canonicalArgs(args map[string]any) (string, bool) {
	if len(args) == 0 {
		return "{}", true
	}
	if containsBytes(reflect.ValueOf(args)) {
		return "", false
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// containsBytes reports whether v holds a byte slice anywhere.
func containsBytes(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		return !v.IsNil() && containsBytes(v.Elem())
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return true
		}
		fallthrough
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if containsBytes(v.Index(i)) {
				return true
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if containsBytes(iter.Value()) {
				return true
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() && containsBytes(v.Field(i)) {
				return true
			}
		}
	}
	return false
}
