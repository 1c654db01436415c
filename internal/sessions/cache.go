package sessions

import (
	"container/list"
	"sync"

	"github.com/agentcore/runtime/pkg/models"
)

// lruCache is a bounded, in-memory cache of recently-touched sessions,
// per spec.md §4.7: "eviction never drops on-disk data" — this cache
// only ever holds a copy of what Store has already durably written.
// No third-party LRU library is used: a grep across the pack found
// github.com/hashicorp/golang-lru only as an indirect, transitive
// dependency of unrelated manifests (never a direct import any example
// repo chose for a cache), so this is built on stdlib container/list,
// the same structure that library itself wraps.
type lruCache struct {
	mu       sync.Mutex
	cap      int
	ll       *list.List
	elements map[string]*list.Element
}

type cacheEntry struct {
	key     string
	session *models.Session
}

func newLRUCache(capacity int) *lruCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &lruCache{
		cap:      capacity,
		ll:       list.New(),
		elements: map[string]*list.Element{},
	}
}

func (c *lruCache) get(id string) (*models.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.elements[id]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).session, true
}

func (c *lruCache) put(id string, s *models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elements[id]; ok {
		el.Value.(*cacheEntry).session = s
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&cacheEntry{key: id, session: s})
	c.elements[id] = el
	if c.ll.Len() > c.cap {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.elements, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *lruCache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elements[id]; ok {
		c.ll.Remove(el)
		delete(c.elements, id)
	}
}
