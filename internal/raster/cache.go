package raster

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/fastcache"
)

// Cache keeps decoded rasters in memory across epochs. A nil *Cache is valid
// and caches nothing.
type Cache struct {
	c      *fastcache.Cache
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache returns nil when maxBytes is not positive.
func NewCache(maxBytes int) *Cache {
	if maxBytes <= 0 {
		return nil
	}
	return &Cache{c: fastcache.New(maxBytes)}
}

// Load returns the cached raster for path or reads it with read.
func (c *Cache) Load(path string, read func(string) (*Raster, error)) (*Raster, error) {
	if c == nil {
		return read(path)
	}
	var key = []byte(path)
	if data := c.c.GetBig(nil, key); len(data) != 0 {
		var r Raster
		if err := r.UnmarshalBinary(data); err == nil {
			c.hits.Add(1)
			return &r, nil
		}
	}
	c.misses.Add(1)
	r, err := read(path)
	if err != nil {
		return nil, err
	}
	data, err := r.MarshalBinary()
	if err != nil {
		return nil, err
	}
	c.c.SetBig(key, data)
	return r, nil
}

func (c *Cache) Stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
