// Package cache keeps transform outputs between build passes so unchanged
// files are not run through their chain again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one transform result: the file path, the exact input bytes
// (including any partials the file pulls in) and the chain signature.
func Key(path string, content []byte, chain string) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(content)
	h.Write([]byte{0})
	h.Write([]byte(chain))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a bounded LRU of transform outputs. A nil or zero-sized cache
// never hits. It is safe for concurrent use.
type Cache struct {
	lru    *lru.Cache[string, []byte]
	hits   atomic.Int64
	misses atomic.Int64
}

// New returns a cache holding up to size entries. size 0 disables caching.
func New(size int) (*Cache, error) {
	c := &Cache{}
	if size <= 0 {
		return c, nil
	}
	l, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns the cached output for key.
func (c *Cache) Get(key string) ([]byte, bool) {
	if c == nil || c.lru == nil {
		if c != nil {
			c.misses.Add(1)
		}
		return nil, false
	}
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores out under key.
func (c *Cache) Put(key string, out []byte) {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Add(key, out)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Stats returns the cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Purge()
}
