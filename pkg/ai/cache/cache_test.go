package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	_, err := c.Get("seattle")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, c.Set("seattle", []float32{1, 2}))
	vec, err := c.Get("seattle")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestBadgerCache(t *testing.T) {
	c, err := NewBadgerCache(t.TempDir(), "model-a:", 0)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get("boston")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, c.Set("boston", []float32{0.5, -1.25, 3}))
	vec, err := c.Get("boston")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1.25, 3}, vec)
}

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, 1.5, -2.25}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
