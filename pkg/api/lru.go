package api

import "container/list"

// lruCache is a bounded cache with strict least-recently-used eviction.
// Get refreshes recency; Put evicts from the cold end once the size cap is
// exceeded. Not safe for concurrent use; each client owns its caches.
type lruCache[V any] struct {
	maxSize int
	order   *list.List
	items   map[string]*list.Element
}

type lruEntry[V any] struct {
	key   string
	value V
}

func newLRUCache[V any](maxSize int) *lruCache[V] {
	return &lruCache[V]{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
}

func (c *lruCache[V]) Get(key string) (V, bool) {
	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(lruEntry[V]).value, true
}

func (c *lruCache[V]) Put(key string, value V) {
	if elem, ok := c.items[key]; ok {
		elem.Value = lruEntry[V]{key: key, value: value}
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(lruEntry[V]{key: key, value: value})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		delete(c.items, oldest.Value.(lruEntry[V]).key)
		c.order.Remove(oldest)
	}
}

func (c *lruCache[V]) Delete(key string) {
	if elem, ok := c.items[key]; ok {
		delete(c.items, key)
		c.order.Remove(elem)
	}
}

func (c *lruCache[V]) Contains(key string) bool {
	_, ok := c.items[key]
	return ok
}

func (c *lruCache[V]) Len() int {
	return c.order.Len()
}

func (c *lruCache[V]) Clear() {
	c.order.Init()
	clear(c.items)
}
