// Package cache implements the daemon's persistent, byte-budgeted LRU
// cache (spec §4.5): entries survive restarts in a bbolt-backed store,
// while an in-memory hashicorp/golang-lru simplelru keeps the access
// order and drives eviction without a linear scan on every write.
package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	bolt "go.etcd.io/bbolt"

	"github.com/lspd/lspd/logger"
)

var bucketName = []byte("entries")

// record is the on-disk shape of one cache entry (spec §4.5: "{value,
// access_time, size_bytes}").
type record struct {
	Value      []byte    `json:"value"`
	AccessTime time.Time `json:"access_time"`
	SizeBytes  int       `json:"size_bytes"`
}

// Cache is a persistent, byte-budgeted LRU keyed by opaque string keys.
// The caller is responsible for producing a stable key from whatever
// tuple it wants to cache under (spec §4.5 "serializing the caller's
// opaque key tuple").
type Cache struct {
	mu sync.Mutex

	db       *bolt.DB
	order    *lru.LRU[string, struct{}]
	maxBytes int64
	curBytes int64
}

// Open opens (creating if absent) the bbolt file at path and rebuilds the
// in-memory LRU order by scanning every stored record (spec §4.5 "On
// open ... sorts entries ascending by access_time").
func Open(path string, maxBytes int64) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create bucket: %w", err)
	}

	c := &Cache{db: db, maxBytes: maxBytes}

	// simplelru.NewLRU needs a positive capacity; the daemon evicts on
	// byte budget, not entry count, so size it generously and rely on
	// evictOnOverflow for the real bound.
	order, err := lru.NewLRU[string, struct{}](1<<31-1, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: init lru: %w", err)
	}
	c.order = order

	if err := c.rebuild(); err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

type rebuildEntry struct {
	key        string
	accessTime time.Time
	size       int
}

func (c *Cache) rebuild() error {
	var entries []rebuildEntry
	var totalBytes int64
	skipped := 0

	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				skipped++
				return nil
			}
			entries = append(entries, rebuildEntry{key: string(k), accessTime: rec.AccessTime, size: rec.SizeBytes})
			totalBytes += int64(rec.SizeBytes)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("cache: rebuild scan: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].accessTime.Before(entries[j].accessTime)
	})

	for _, e := range entries {
		c.order.Add(e.key, struct{}{})
	}
	c.curBytes = totalBytes

	if skipped > 0 {
		logger.Warn(fmt.Sprintf("cache: skipped %d corrupt entries while rebuilding", skipped))
	}
	logger.Info(fmt.Sprintf("cache: loaded %d entries (%.2f MB)", len(entries), float64(totalBytes)/(1<<20)))

	return nil
}

// Get returns the stored value for key, refreshing its access time and
// moving it to the most-recently-used position. A missing or undecodable
// entry returns ok=false; a decode failure is logged and the stale entry
// is left in the store (spec §4.5 "left in place").
func (c *Cache) Get(key string) (value []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.getRaw(key)
	if err != nil || raw == nil {
		return nil, false
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		logger.Warn(fmt.Sprintf("cache: corrupt entry for key %q: %v", key, err))
		return nil, false
	}

	rec.AccessTime = time.Now()
	if err := c.putRaw(key, rec); err != nil {
		logger.Warn(fmt.Sprintf("cache: failed refreshing access time for key %q: %v", key, err))
	}
	c.order.Add(key, struct{}{})

	return rec.Value, true
}

// Set stores value under key, serializing it and evicting least-recently
// used entries until the byte budget is respected (spec §4.5). A single
// entry larger than maxBytes is still admitted when the store is
// otherwise empty, since eviction cannot make room for it.
func (c *Cache) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := len(value)

	if old, err := c.getRaw(key); err == nil && old != nil {
		var oldRec record
		if err := json.Unmarshal(old, &oldRec); err == nil {
			c.curBytes -= int64(oldRec.SizeBytes)
		}
		c.order.Remove(key)
	}

	for c.curBytes+int64(size) > c.maxBytes && c.order.Len() > 0 {
		evictKey, _, ok := c.order.RemoveOldest()
		if !ok {
			break
		}
		if raw, err := c.getRaw(evictKey); err == nil && raw != nil {
			var evicted record
			if err := json.Unmarshal(raw, &evicted); err == nil {
				c.curBytes -= int64(evicted.SizeBytes)
			}
		}
		if err := c.deleteRaw(evictKey); err != nil {
			logger.Warn(fmt.Sprintf("cache: failed evicting key %q: %v", evictKey, err))
			continue
		}
	}

	rec := record{Value: value, AccessTime: time.Now(), SizeBytes: size}
	if err := c.putRaw(key, rec); err != nil {
		return err
	}
	c.order.Add(key, struct{}{})
	c.curBytes += int64(size)

	return nil
}

// Contains reports whether key is present without affecting LRU order.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Contains(key)
}

// Len returns the number of entries currently tracked.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CurrentBytes returns the running total of stored value sizes, which
// must always equal the sum of each entry's SizeBytes (spec §4.5
// invariant).
func (c *Cache) CurrentBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Close closes the underlying bbolt database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) getRaw(key string) ([]byte, error) {
	var out []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			out = append([]byte{}, v...)
		}
		return nil
	})
	return out, err
}

func (c *Cache) putRaw(key string, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
}

func (c *Cache) deleteRaw(key string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}
