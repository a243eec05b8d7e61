// Package cache provides a generic LRU cache.
//
// filmic uses it to memoize curve sets by tone parameter value and to keep
// recently used tile layouts, so repeated renders with unchanged inputs
// skip recomputation.
//
//	c := cache.New[string, int](100)
//	c.Set("key", 42)
//	value, ok := c.Get("key")
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
