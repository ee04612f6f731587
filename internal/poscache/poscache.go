// Package poscache persists the single most recent playback position in
// a small local cache file, the lowest-authority durable source consulted
// when resolving where an item should resume.
package poscache

import (
	"github.com/metafates/gache"

	"github.com/lvaillant/cadenza/internal/fsutil"
	"github.com/lvaillant/cadenza/internal/playback"
)

// key under which the scalar lives in the cache file.
const key = "lastPlaybackPosition"

// Cache is a disk-backed position scalar.
type Cache struct {
	cacher *gache.Cache[map[string]float64]
}

var _ playback.LocalPosition = (*Cache)(nil)

// New creates a cache stored at the given path.
func New(path string) *Cache {
	return &Cache{
		cacher: gache.New[map[string]float64](
			&gache.Options{
				Path:       path,
				FileSystem: &fsutil.GacheFs{},
			},
		),
	}
}

// Get returns the stored position and whether one was present.
func (c *Cache) Get() (float64, bool, error) {
	cached, expired, err := c.cacher.Get()
	if err != nil {
		return 0, false, err
	}
	if expired || cached == nil {
		return 0, false, nil
	}
	v, ok := cached[key]
	return v, ok, nil
}

// Set stores the position, replacing any previous value.
func (c *Cache) Set(position float64) error {
	cached, _, err := c.cacher.Get()
	if err != nil {
		return err
	}
	if cached == nil {
		cached = make(map[string]float64)
	}
	cached[key] = position
	return c.cacher.Set(cached)
}

// Clear removes the stored position. Clearing an empty cache is a no-op.
func (c *Cache) Clear() error {
	cached, _, err := c.cacher.Get()
	if err != nil {
		return err
	}
	if _, ok := cached[key]; !ok {
		return nil
	}
	delete(cached, key)
	return c.cacher.Set(cached)
}
