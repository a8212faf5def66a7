package archive

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/archivefeed/svnloader/objects"
)

// ExistenceCache is a bounded LRU of identifiers already known to exist
// in the archive, used to elide redundant existence queries. It is an
// optimization only -- a false negative here just costs one extra
// round trip to the archive's authoritative server-side check.
//
// Keys are hashed with xxhash rather than used as the 20-byte ID
// directly so the underlying map stays a fixed-width uint64, matching
// the fast-keying idiom pinpt-ripsrc uses for its own in-memory
// dedup caches (ripsrc/history3/incblame).
type ExistenceCache struct {
	mu      sync.Mutex
	cap     int
	entries map[uint64]*list.Element
	order   *list.List
}

type cacheEntry struct {
	key uint64
	id  objects.ID
}

// NewExistenceCache returns a cache holding at most capacity entries.
func NewExistenceCache(capacity int) *ExistenceCache {
	return &ExistenceCache{
		cap:     capacity,
		entries: make(map[uint64]*list.Element, capacity),
		order:   list.New(),
	}
}

func cacheKey(id objects.ID) uint64 {
	return xxhash.Sum64(id[:])
}

// Has reports whether id was recently marked present.
func (c *ExistenceCache) Has(id objects.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(id)
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.MoveToFront(el)
	return true
}

// Add marks id as present, evicting the least-recently-used entry if the
// cache is at capacity.
func (c *ExistenceCache) Add(id objects.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(id)
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(cacheEntry{key: key, id: id})
	c.entries[key] = el

	if c.cap > 0 && c.order.Len() > c.cap {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(cacheEntry).key)
		}
	}
}
