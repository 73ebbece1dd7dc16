// Package identity provides the identity cache: a concurrent map from
// (model type, primary-key tuple) to the live instance state, ensuring one
// in-memory representation per row. Entries are never auto-expired; callers
// invalidate on delete or flush explicitly.
package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// Key identifies a cached instance by model type and primary-key tuple.
// Tuple equality is by value; the tuple is flattened to a string so composite
// keys compare cheaply.
type Key struct {
	Model string
	PK    string
}

const tupleSep = "\x1f"

// KeyFor builds a cache key from primary-key values. It returns false when
// any value is nil, since unsaved instances have no identity.
func KeyFor(model string, values []interface{}) (Key, bool) {
	if len(values) == 0 {
		return Key{}, false
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := valueString(v)
		if !ok {
			return Key{}, false
		}
		parts = append(parts, s)
	}
	return Key{Model: model, PK: strings.Join(parts, tupleSep)}, true
}

func valueString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case []byte:
		return string(val), true
	default:
		return fmt.Sprintf("%v", val), true
	}
}

// Cache maps keys to live instance state.
type Cache struct {
	entries *xsync.MapOf[Key, interface{}]
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: xsync.NewMapOf[Key, interface{}]()}
}

// Get returns the cached entry for the key.
func (c *Cache) Get(key Key) (interface{}, bool) {
	return c.entries.Load(key)
}

// Put stores an entry under the key.
func (c *Cache) Put(key Key, v interface{}) {
	c.entries.Store(key, v)
}

// Forget removes a single entry.
func (c *Cache) Forget(key Key) {
	c.entries.Delete(key)
}

// Flush removes every entry for the given model type.
func (c *Cache) Flush(model string) {
	c.entries.Range(func(k Key, _ interface{}) bool {
		if k.Model == model {
			c.entries.Delete(k)
		}
		return true
	})
}

// FlushAll removes every entry.
func (c *Cache) FlushAll() {
	c.entries.Clear()
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	return c.entries.Size()
}
