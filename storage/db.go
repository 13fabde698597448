package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/syndtr/goleveldb/leveldb"
)

// ErrCacheMiss is returned when a key has never been stored.
var ErrCacheMiss = errors.New("storage: cache miss")

// Entry is a cached value together with the time it was stored.
type Entry struct {
	Value    []byte
	StoredAt time.Time
}

// Cache keeps the last good response per key so the daemon can answer
// while the indexer is unreachable. Implementations are safe for
// concurrent use.
type Cache interface {
	Put(key string, value []byte, at time.Time) error
	Get(key string) (Entry, error)
	Len() int
	Close() error
}

// encodeEntry prefixes value with the store time in unix nanoseconds.
func encodeEntry(value []byte, at time.Time) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, uint64(at.UnixNano()))
	copy(buf[8:], value)
	return buf
}

func decodeEntry(raw []byte) (Entry, error) {
	if len(raw) < 8 {
		return Entry{}, fmt.Errorf("storage: corrupt cache entry (%d bytes)", len(raw))
	}
	nanos := int64(binary.BigEndian.Uint64(raw[:8]))
	value := make([]byte, len(raw)-8)
	copy(value, raw[8:])
	return Entry{Value: value, StoredAt: time.Unix(0, nanos).UTC()}, nil
}

// PutJSON stores v encoded as JSON.
func PutJSON(c Cache, key string, v any, at time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return c.Put(key, data, at)
}

// GetJSON decodes the value stored under key into out and returns the time
// it was stored.
func GetJSON(c Cache, key string, out any) (time.Time, error) {
	entry, err := c.Get(key)
	if err != nil {
		return time.Time{}, err
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return time.Time{}, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return entry.StoredAt, nil
}

// DefaultCacheEntries bounds a cache opened with a non-positive capacity.
const DefaultCacheEntries = 4096

func capacity(maxEntries int) int {
	if maxEntries <= 0 {
		return DefaultCacheEntries
	}
	return maxEntries
}

// MemCache is an in-process Cache that evicts the least recently used key
// once it holds maxEntries.
type MemCache struct {
	entries *lru.Cache[string, []byte]
}

// NewMemCache returns an empty MemCache holding at most maxEntries keys.
func NewMemCache(maxEntries int) *MemCache {
	return &MemCache{entries: lru.NewCache[string, []byte](capacity(maxEntries))}
}

// Put stores value under key, evicting the least recently used key when full.
func (c *MemCache) Put(key string, value []byte, at time.Time) error {
	c.entries.Add(key, encodeEntry(value, at))
	return nil
}

// Get returns the entry under key or ErrCacheMiss.
func (c *MemCache) Get(key string) (Entry, error) {
	raw, ok := c.entries.Get(key)
	if !ok {
		return Entry{}, ErrCacheMiss
	}
	return decodeEntry(raw)
}

// Len reports how many keys are held.
func (c *MemCache) Len() int { return c.entries.Len() }

// Close satisfies Cache; there is nothing to release.
func (c *MemCache) Close() error { return nil }

// LevelCache is a Cache persisted in a LevelDB directory, so the last good
// responses survive a restart. An in-memory recency index bounds the
// directory to maxEntries keys.
type LevelCache struct {
	mu    sync.Mutex
	db    *leveldb.DB
	index lru.BasicLRU[string, struct{}]
}

// OpenLevelCache creates or opens a LevelDB database at path holding at
// most maxEntries keys. Entries beyond the bound are deleted oldest first.
func OpenLevelCache(path string, maxEntries int) (*LevelCache, error) {
	if path == "" {
		return nil, ErrPathRequired
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	c := &LevelCache{db: db, index: lru.NewBasicLRU[string, struct{}](capacity(maxEntries))}
	if err := c.loadIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// loadIndex replays the stored keys into the index in store-time order.
func (c *LevelCache) loadIndex() error {
	type stored struct {
		key string
		at  uint64
	}
	var keys []stored
	iter := c.db.NewIterator(nil, nil)
	for iter.Next() {
		k := stored{key: string(iter.Key())}
		if raw := iter.Value(); len(raw) >= 8 {
			k.at = binary.BigEndian.Uint64(raw[:8])
		}
		keys = append(keys, k)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("scan cache: %w", err)
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].at < keys[j].at })
	for _, k := range keys {
		if err := c.touch(k.key); err != nil {
			return err
		}
	}
	return nil
}

// touch marks key most recently used and deletes the key it displaces.
func (c *LevelCache) touch(key string) error {
	evicted, _, ok := c.index.Add3(key, struct{}{})
	if !ok {
		return nil
	}
	if err := c.db.Delete([]byte(evicted), nil); err != nil {
		return fmt.Errorf("evict %s: %w", evicted, err)
	}
	return nil
}

// Put stores value under key, evicting the least recently used key when full.
func (c *LevelCache) Put(key string, value []byte, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.db.Put([]byte(key), encodeEntry(value, at), nil); err != nil {
		return err
	}
	return c.touch(key)
}

// Get returns the entry under key or ErrCacheMiss.
func (c *LevelCache) Get(key string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := c.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, ErrCacheMiss
	}
	if err != nil {
		return Entry{}, err
	}
	c.index.Get(key)
	return decodeEntry(raw)
}

// Len reports how many keys are held.
func (c *LevelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Len()
}

// Close releases the LevelDB handle.
func (c *LevelCache) Close() error {
	return c.db.Close()
}
