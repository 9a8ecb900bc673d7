package api

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_EvictsOldest(t *testing.T) {
	cache := newLRUCache[int](3)
	for i := 0; i < 4; i++ {
		cache.Put(strconv.Itoa(i), i)
	}
	assert.Equal(t, 3, cache.Len())
	assert.False(t, cache.Contains("0"))
	assert.True(t, cache.Contains("1"))
	assert.True(t, cache.Contains("3"))
}

func TestLRUCache_GetRefreshesRecency(t *testing.T) {
	cache := newLRUCache[int](2)
	cache.Put("a", 1)
	cache.Put("b", 2)

	_, ok := cache.Get("a")
	assert.True(t, ok)

	// "b" is now the cold entry and gets evicted.
	cache.Put("c", 3)
	assert.True(t, cache.Contains("a"))
	assert.False(t, cache.Contains("b"))
	assert.True(t, cache.Contains("c"))
}

func TestLRUCache_PutOverwrites(t *testing.T) {
	cache := newLRUCache[int](2)
	cache.Put("a", 1)
	cache.Put("a", 2)
	assert.Equal(t, 1, cache.Len())

	v, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLRUCache_NeverExceedsBound(t *testing.T) {
	cache := newLRUCache[int](16)
	for i := 0; i < 1000; i++ {
		cache.Put(strconv.Itoa(i), i)
		assert.LessOrEqual(t, cache.Len(), 16)
	}
}

func TestLRUCache_DeleteAndClear(t *testing.T) {
	cache := newLRUCache[string](4)
	cache.Put("a", "x")
	cache.Put("b", "y")

	cache.Delete("a")
	assert.False(t, cache.Contains("a"))
	assert.Equal(t, 1, cache.Len())

	// Deleting a missing key is a no-op.
	cache.Delete("missing")

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
	_, ok := cache.Get("b")
	assert.False(t, ok)
}
