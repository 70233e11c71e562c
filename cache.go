package molecule

import (
	"sync"
)

// entryCache maps derived cache keys to live entries
type entryCache struct {
	data sync.Map
}

func newEntryCache() *entryCache {
	return &entryCache{}
}

func (c *entryCache) Load(key cacheKey) (*entry, bool) {
	value, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	return value.(*entry), true
}

func (c *entryCache) Store(key cacheKey, e *entry) {
	c.data.Store(key, e)
}

func (c *entryCache) Delete(key cacheKey) {
	c.data.Delete(key)
}

func (c *entryCache) Range(fn func(key cacheKey, e *entry) bool) {
	c.data.Range(func(key, value any) bool {
		return fn(key.(cacheKey), value.(*entry))
	})
}

func (c *entryCache) Size() int {
	count := 0
	c.data.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}
