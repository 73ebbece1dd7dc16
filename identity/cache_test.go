package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyForFlattensTuples(t *testing.T) {
	a, ok := KeyFor("User", []interface{}{1})
	require.True(t, ok)
	b, ok := KeyFor("User", []interface{}{int64(1)})
	require.True(t, ok)
	assert.Equal(t, a, b, "int widths normalize to one key")

	c, ok := KeyFor("User", []interface{}{[]byte("abc")})
	require.True(t, ok)
	d, ok := KeyFor("User", []interface{}{"abc"})
	require.True(t, ok)
	assert.Equal(t, c, d)

	composite, ok := KeyFor("Membership", []interface{}{1, 2})
	require.True(t, ok)
	other, ok := KeyFor("Membership", []interface{}{12})
	require.True(t, ok)
	assert.NotEqual(t, composite, other, "composite tuples do not collapse")
}

func TestKeyForRejectsNilComponents(t *testing.T) {
	_, ok := KeyFor("User", []interface{}{nil})
	assert.False(t, ok)

	_, ok = KeyFor("User", []interface{}{1, nil})
	assert.False(t, ok)

	_, ok = KeyFor("User", nil)
	assert.False(t, ok)
}

func TestCacheLifecycle(t *testing.T) {
	c := NewCache()
	key, ok := KeyFor("User", []interface{}{1})
	require.True(t, ok)

	_, hit := c.Get(key)
	assert.False(t, hit)

	c.Put(key, "instance")
	v, hit := c.Get(key)
	require.True(t, hit)
	assert.Equal(t, "instance", v)
	assert.Equal(t, 1, c.Size())

	c.Forget(key)
	_, hit = c.Get(key)
	assert.False(t, hit)
}

func TestFlushRemovesOnlyOneModel(t *testing.T) {
	c := NewCache()
	uk, _ := KeyFor("User", []interface{}{1})
	pk, _ := KeyFor("Post", []interface{}{1})
	c.Put(uk, "u")
	c.Put(pk, "p")

	c.Flush("User")
	_, hit := c.Get(uk)
	assert.False(t, hit)
	_, hit = c.Get(pk)
	assert.True(t, hit)

	c.FlushAll()
	assert.Equal(t, 0, c.Size())
}
