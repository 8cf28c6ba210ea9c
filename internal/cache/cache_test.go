package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("spectrum"), "txt")
	assert.Equal(t, a, Fingerprint([]byte("spectrum"), "txt"))
	assert.NotEqual(t, a, Fingerprint([]byte("spectrum"), "txt,json"))
	assert.NotEqual(t, a, Fingerprint([]byte("spectrun"), "txt"))
}

func TestCachePutLookup(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "db", "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	out := filepath.Join(dir, "sample.txt")
	require.NoError(t, os.WriteFile(out, []byte("#\n"), 0o644))
	key := Fingerprint([]byte("raw"), "txt")

	_, err = c.Get(key)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, c.Put(key, Entry{Input: "sample.cnf", Outputs: []string{out}, Channels: 1024, TotalCounts: 9}))
	e, ok := c.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, "sample.cnf", e.Input)
	assert.Equal(t, 1024, e.Channels)
	assert.False(t, e.Created.IsZero())

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, os.Remove(out))
	_, ok = c.Lookup(key)
	assert.False(t, ok)
	n, err = c.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCacheReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Put(7, Entry{Input: "a.cnf"}))
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()
	e, err := c.Get(7)
	require.NoError(t, err)
	assert.Equal(t, "a.cnf", e.Input)
	assert.False(t, e.Fresh())
}
