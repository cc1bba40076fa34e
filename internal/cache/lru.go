package cache

import (
	"sync"
	"time"
)

// entry is a node of the recency list; head is the most recently used.
type entry[T any] struct {
	key        string
	value      T
	expiresAt  time.Time
	prev, next *entry[T]
}

// LRUCache holds at most maxSize values, each valid for ttl after it was set.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	index      map[string]*entry[T]
	head, tail *entry[T]
}

var _ Cache[int] = (*LRUCache[int])(nil)

// NewLRUCache creates an empty cache. maxSize below one is treated as one.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		maxSize: max(maxSize, 1),
		ttl:     ttl,
		now:     time.Now,
		index:   make(map[string]*entry[T]),
	}
}

// Get returns the value for key unless it is missing or expired.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.index[key]
	if !ok {
		return zero, false
	}
	if c.expired(e) {
		c.remove(e)
		return zero, false
	}
	c.unlink(e)
	c.pushFront(e)
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.index[key]; ok {
		e.value = value
		e.expiresAt = c.now().Add(c.ttl)
		c.unlink(e)
		c.pushFront(e)
		return
	}

	e := &entry[T]{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	c.index[key] = e
	c.pushFront(e)
	if len(c.index) > c.maxSize {
		c.remove(c.tail)
	}
}

// Delete drops key if present.
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index[key]; ok {
		c.remove(e)
	}
}

// Purge drops every entry.
func (c *LRUCache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*entry[T])
	c.head, c.tail = nil, nil
}

// CleanExpired drops expired entries and returns how many were removed.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for e := c.head; e != nil; {
		next := e.next
		if c.expired(e) {
			c.remove(e)
			removed++
		}
		e = next
	}
	return removed
}

// Size returns the number of stored entries, expired ones included.
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *LRUCache[T]) expired(e *entry[T]) bool {
	return c.now().After(e.expiresAt)
}

func (c *LRUCache[T]) pushFront(e *entry[T]) {
	e.prev, e.next = nil, c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *LRUCache[T]) unlink(e *entry[T]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *LRUCache[T]) remove(e *entry[T]) {
	c.unlink(e)
	delete(c.index, e.key)
}
