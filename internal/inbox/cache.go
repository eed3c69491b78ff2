package inbox

import (
	"container/list"
	"sync"
)

// messageCache is a thread-safe LRU cache of fetched messages. Message
// content is immutable on the source side, so entries never expire; the
// cache only bounds memory.
type messageCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	id  string
	msg *Message
}

func newMessageCache(capacity int) *messageCache {
	return &messageCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (c *messageCache) Get(id string) (*Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[id]; exists {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).msg, true
	}
	return nil, false
}

func (c *messageCache) Put(id string, msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[id]; exists {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).msg = msg
		return
	}

	if c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).id)
		}
	}

	c.cache[id] = c.lru.PushFront(&cacheEntry{id: id, msg: msg})
}

func (c *messageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
